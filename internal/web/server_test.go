package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lucasnoah/codepipeline-notifier/internal/events"
)

type fakePublisher struct {
	payloads   []string
	requestIDs []string
	err        error
}

func (f *fakePublisher) Publish(payload []byte, requestID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, string(payload))
	f.requestIDs = append(f.requestIDs, requestID)
	return "msg-1", nil
}

const stageEvent = `{"source":"aws.codepipeline","detail-type":"CodePipeline Stage Execution State Change","detail":{"pipeline":"api","execution-id":"e","stage":"Build","state":"STARTED"}}`

func newTestServer(t *testing.T, pub *fakePublisher) http.Handler {
	t.Helper()
	v, err := events.NewValidator()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return NewServer(pub, v, ":0").Handler()
}

func TestHandleEvents_Accepted(t *testing.T) {
	pub := &fakePublisher{}
	h := newTestServer(t, pub)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(stageEvent))
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp acceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "msg-1" || resp.RequestID != "req-42" {
		t.Errorf("response = %+v", resp)
	}
	if len(pub.payloads) != 1 || pub.payloads[0] != stageEvent {
		t.Errorf("published payloads = %v", pub.payloads)
	}
}

func TestHandleEvents_GeneratesRequestID(t *testing.T) {
	pub := &fakePublisher{}
	h := newTestServer(t, pub)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(stageEvent)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(pub.requestIDs) != 1 || len(pub.requestIDs[0]) != 36 {
		t.Errorf("expected a generated uuid request id, got %v", pub.requestIDs)
	}
}

func TestHandleEvents_SchemaFailure(t *testing.T) {
	pub := &fakePublisher{}
	h := newTestServer(t, pub)

	for _, body := range []string{
		`{"source":"aws.codepipeline","detail-type":"x","detail":{}}`,
		`not json`,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if len(pub.payloads) != 0 {
		t.Errorf("rejected events must not be published, got %d", len(pub.payloads))
	}
}

func TestHandleEvents_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakePublisher{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleEvents_PublishFailure(t *testing.T) {
	h := newTestServer(t, &fakePublisher{err: errors.New("router closed")})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(stageEvent)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	h := NewServer(&fakePublisher{}, nil, ":0").Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}
