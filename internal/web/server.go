package web

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	maxEventBytes   = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Publisher queues an accepted event for processing.
type Publisher interface {
	Publish(payload []byte, requestID string) (string, error)
}

// Validator rejects payloads that are not a supported event.
type Validator interface {
	Validate(raw []byte) error
}

// Server is the HTTP ingest for pipeline events.
type Server struct {
	pub       Publisher
	validator Validator
	addr      string
}

// NewServer creates a Server. A nil validator accepts every payload.
func NewServer(pub Publisher, validator Validator, addr string) *Server {
	return &Server{pub: pub, validator: validator, addr: addr}
}

// Handler returns the routes served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("notifier ingest listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	}
}
