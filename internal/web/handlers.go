package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type acceptedResponse struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := log.With().Str("request_id", requestID).Logger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error(), RequestID: requestID})
		return
	}
	logger.Debug().RawJSON("event", safeJSON(body)).Msg("event received")

	if s.validator != nil {
		if err := s.validator.Validate(body); err != nil {
			logger.Info().Err(err).Msg("event rejected")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestID})
			return
		}
	}

	id, err := s.pub.Publish(body, requestID)
	if err != nil {
		logger.Error().Err(err).Msg("publish failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), RequestID: requestID})
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id, RequestID: requestID})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// safeJSON keeps invalid payloads from corrupting structured log output.
func safeJSON(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
