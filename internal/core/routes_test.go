package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"floodfactor/internal/config"
	"floodfactor/internal/types"
)

// newTestServerForRoutes returns a mounted server with one /v1 route that
// echoes the request ID, its context deadline, and panics on demand.
func newTestServerForRoutes(t *testing.T, cfg *config.Config) (*Server, *mockMetricsCollector) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Environment: "local"}
	}
	srv, err := NewServer(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	mc := &mockMetricsCollector{}
	srv.Metrics = mc
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
			deadline, _ := r.Context().Deadline()
			JSON(w, r, http.StatusOK, map[string]any{
				"request_id":      types.GetRequestID(r.Context()),
				"deadline_in_sec": time.Until(deadline).Seconds(),
			})
		})
		r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("handler bug")
		})
	})
	srv.MountRoutes()
	return srv, mc
}

func TestMountRoutes_MiddlewareCount(t *testing.T) {
	srv, _ := newTestServerForRoutes(t, nil)
	if got := len(srv.Router().Middlewares()); got != 7 {
		t.Errorf("middleware count = %d, want 7", got)
	}
}

func TestMountRoutes_Health(t *testing.T) {
	srv, mc := newTestServerForRoutes(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on /health")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("request ID missing on /health")
	}
	if calls := mc.snapshot(); len(calls) != 1 || calls[0].endpoint != "GET /health" {
		t.Errorf("metrics calls = %+v", calls)
	}
}

func TestMountRoutes_V1Registrars(t *testing.T) {
	srv, _ := newTestServerForRoutes(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["request_id"] != "client-supplied" {
		t.Errorf("request_id = %v", body["request_id"])
	}
	if rec.Header().Get("X-Request-Id") != "client-supplied" {
		t.Errorf("response header = %q", rec.Header().Get("X-Request-Id"))
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d", rec.Code)
	}
}

func TestMountRoutes_RequestTimeoutFromConfig(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{RequestTimeout: 90 * time.Second}}
	srv, _ := newTestServerForRoutes(t, cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/echo", nil))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	secs, _ := body["deadline_in_sec"].(float64)
	if secs <= 80 || secs > 90 {
		t.Errorf("deadline in %vs, want about 90s", secs)
	}
}

func TestMountRoutes_CORSFromConfig(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{CorsAllowedOrigins: []string{"https://maps.example.org"}}}
	srv, _ := newTestServerForRoutes(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/v1/echo", nil)
	req.Header.Set("Origin", "https://maps.example.org")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://maps.example.org" {
		t.Errorf("Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestMountRoutes_RecovererCatchesHandlerPanic(t *testing.T) {
	srv, _ := newTestServerForRoutes(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/panic", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.RequestID == "" {
		t.Error("panic response should carry the request ID")
	}
}

func TestContextTimeoutMiddleware_Cancellation(t *testing.T) {
	var ctxErr error
	handler := ContextTimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("ctx err = %v", ctxErr)
	}
}

func TestRequestIDMiddleware_Generation(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 32 {
		t.Errorf("generated ID %q should be 32 hex characters", seen)
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Error("response header does not match context ID")
	}
	if generateRequestID() == generateRequestID() {
		t.Error("IDs should be unique")
	}
}
