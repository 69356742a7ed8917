package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/checkpoint-player/internal/platform/api"
)

func newPlayerRouter(t *testing.T, ready func() error) (chi.Router, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	r := chi.NewRouter()
	SetupRouter(r, RouterConfig{ReadyFunc: ready, Logger: zap.New(core)})
	return r, logs
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) api.APIError {
	t.Helper()
	var env api.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v (%q)", err, rr.Body.String())
	}
	return env.Error
}

func TestHealthzAndReadyz(t *testing.T) {
	r, _ := newPlayerRouter(t, nil)
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK || rr.Body.String() != want {
			t.Fatalf("%s: expected 200 %q, got %d %q", path, want, rr.Code, rr.Body.String())
		}
	}
}

func TestReadyz_NotReadyEnvelopeCarriesRequestID(t *testing.T) {
	r, _ := newPlayerRouter(t, func() error { return errors.New("evaluator pool empty") })
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set(RequestIDHeader, "lb-check-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	e := decodeEnvelope(t, rr)
	if e.Code != "NOT_READY" || e.RequestID != "lb-check-1" || e.Message != "evaluator pool empty" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestRequestID_ClientValueIsKeptWhenWellFormed(t *testing.T) {
	r, _ := newPlayerRouter(t, nil)
	var seen string
	r.Post("/v1/playback/sessions/{id}/seek", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/playback/sessions/s-1/seek", nil)
	req.Header.Set(RequestIDHeader, "web-7f3a:seek.2")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if seen != "web-7f3a:seek.2" || rr.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected client id kept and echoed, got ctx=%q header=%q", seen, rr.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_MalformedClientValueIsReplaced(t *testing.T) {
	r, _ := newPlayerRouter(t, nil)
	var seen string
	r.Get("/v1/progress", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/v1/progress", nil)
		req.Header.Set(RequestIDHeader, bad)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if seen == "" || seen == bad || len(seen) > maxRequestIDLen {
			t.Fatalf("expected %q replaced, got %q", bad, seen)
		}
		if rr.Header().Get(RequestIDHeader) != seen {
			t.Fatalf("expected minted id echoed, got %q", rr.Header().Get(RequestIDHeader))
		}
	}
}

func TestLoggerFromContext_TaggedWithRequestID(t *testing.T) {
	r, logs := newPlayerRouter(t, nil)
	r.Get("/v1/admin/sessions", func(w http.ResponseWriter, r *http.Request) {
		LoggerFromContext(r.Context(), nil).Info("listing sessions")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/sessions", nil)
	req.Header.Set(RequestIDHeader, "ops-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("listing sessions").All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "ops-1" {
		t.Fatalf("expected one entry tagged ops-1, got %+v", entries)
	}
}

func TestLoggerFromContext_OutsideRouter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "bg-1")

	LoggerFromContext(ctx, zap.New(core)).Info("sweep")
	if got := logs.All()[0].ContextMap()["request_id"]; got != "bg-1" {
		t.Fatalf("expected fallback logger tagged bg-1, got %v", got)
	}
	if LogFields(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != nil {
		t.Fatal("expected no fields without a request id")
	}
}

func TestPanicRecovery_EnvelopeAndLog(t *testing.T) {
	r, logs := newPlayerRouter(t, nil)
	r.Post("/v1/playback/sessions/{id}/answer", func(http.ResponseWriter, *http.Request) { panic("grader exploded") })

	req := httptest.NewRequest(http.MethodPost, "/v1/playback/sessions/s-1/answer", nil)
	req.Header.Set(RequestIDHeader, "ans-9")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if e := decodeEnvelope(t, rr); e.Code != "INTERNAL" || e.RequestID != "ans-9" {
		t.Fatalf("unexpected envelope %+v", e)
	}
	entries := logs.FilterMessage("panic recovered").All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "ans-9" {
		t.Fatalf("expected panic logged with request id, got %+v", entries)
	}
}

func TestCORS_PreflightForSessionClose(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://learn.example.com")
	r, _ := newPlayerRouter(t, nil)
	r.Delete("/v1/playback/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/playback/sessions/s-1", nil)
	req.Header.Set("Origin", "https://learn.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "https://learn.example.com" {
		t.Fatalf("expected origin allowed, got headers %v", rr.Header())
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete) {
		t.Fatalf("expected DELETE allowed, got %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestParseCORSOrigins(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{" , ", []string{"*"}},
		{"https://learn.example.com", []string{"https://learn.example.com"}},
		{"https://learn.example.com , https://admin.learn.example.com", []string{"https://learn.example.com", "https://admin.learn.example.com"}},
	}
	for _, c := range cases {
		got := parseCORSOrigins(c.in)
		if strings.Join(got, "|") != strings.Join(c.want, "|") {
			t.Fatalf("parseCORSOrigins(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
