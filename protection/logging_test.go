package protection

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestLogger_InjectsLoggerAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	var sawLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		sawLogger = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusTeapot)
	})

	h := RequestLogger(base, nil)(next)
	r := httptest.NewRequest(http.MethodPost, "http://relay/update-protection", nil)
	r.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if !sawLogger {
		t.Fatalf("expected logger in request context")
	}
	if w.Header().Get("X-Request-Id") != "req-123" {
		t.Fatalf("expected request id echoed, got %q", w.Header().Get("X-Request-Id"))
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var last map[string]any
	if err := json.Unmarshal(lines[1], &last); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if last["request_id"] != "req-123" || last["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected completion line %v", last)
	}
}

func TestRequestLogger_GeneratesRequestID(t *testing.T) {
	h := RequestLogger(zerolog.Nop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://relay/health", nil))

	if len(w.Header().Get("X-Request-Id")) != 36 {
		t.Fatalf("expected generated uuid, got %q", w.Header().Get("X-Request-Id"))
	}
}

func TestRouteLabel(t *testing.T) {
	if routeLabel("/update-protection") != "/update-protection" || routeLabel("/wp-admin") != "other" {
		t.Fatalf("unexpected route labels")
	}
}
