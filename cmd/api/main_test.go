package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"floodfactor/internal/app"
	"floodfactor/internal/config"
	"floodfactor/internal/core"
	"floodfactor/internal/raster"
)

// buildTestServer wires the real service against the in-memory repository
// and a local artifact store.
func buildTestServer(t *testing.T) *core.Server {
	t.Helper()
	dir := t.TempDir()

	lcPath := filepath.Join(dir, "landcover.asc")
	lc := raster.NewFilled(4, 4, raster.NorthUp(90, 24, 0.001), raster.CRS{Def: raster.WGS84}, 40)
	if err := raster.WriteASCIIGrid(lcPath, lc); err != nil {
		t.Fatalf("writing land cover: %v", err)
	}

	cfg := &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{APIExternalURL: "http://localhost:8080"},
		AWS:         config.AWSConfig{Region: "us-east-1"},
		Pipeline: config.PipelineConfig{
			WorkspaceRoot: filepath.Join(dir, "ws"),
			LandcoverPath: lcPath,
			CellSizeM:     30,
			DefaultCRS:    raster.WGS84,
		},
		Simulation: config.SimulationConfig{Algorithm: "unit", Workers: 1},
		External: config.ExternalConfig{
			NominatimURL:      "http://127.0.0.1:1",
			OpenTopographyURL: "http://127.0.0.1:1",
			WhiteboxBinary:    "sh",
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Build(context.Background(), cfg, logger, app.Options{})
	if err != nil {
		t.Fatalf("app.Build: %v", err)
	}
	srv, err := buildServer(cfg, a, logger)
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: got status %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
	for _, name := range []string{"landcover", "toolkit"} {
		if _, ok := resp.Components[name]; !ok {
			t.Errorf("component %q missing from %v", name, resp.Components)
		}
	}
}

func TestFloodRoutesMounted(t *testing.T) {
	srv := buildTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/floods", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/floods: got %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Errorf("expected an empty list, got %v", resp.Data)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/floods/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown run: got %d", rec.Code)
	}
}

func TestLambdaHandler(t *testing.T) {
	srv := buildTestServer(t)
	handle := newLambdaHandler(srv.Handler())

	resp, err := handle(context.Background(), events.APIGatewayV2HTTPRequest{
		RawPath:        "/v1/floods",
		RawQueryString: "limit=5",
		Headers:        map[string]string{"Accept": "application/json"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RequestID: "gw-123",
			HTTP:      events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: http.MethodGet},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; body: %s", resp.StatusCode, resp.Body)
	}
	if resp.IsBase64Encoded {
		t.Error("JSON responses should not be base64 encoded")
	}
	if resp.Headers["X-Request-Id"] != "gw-123" {
		t.Errorf("request id = %q", resp.Headers["X-Request-Id"])
	}

	body := base64.StdEncoding.EncodeToString([]byte(`{"address":`))
	resp, err = handle(context.Background(), events.APIGatewayV2HTTPRequest{
		RawPath:         "/v1/floods",
		Body:            body,
		IsBase64Encoded: true,
		Headers:         map[string]string{"Content-Type": "application/json"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: http.MethodPost},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d; body: %s", resp.StatusCode, resp.Body)
	}
}

func TestGatewayRequestID_KeepsCallerID(t *testing.T) {
	var seen string
	h := gatewayRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-Id")
		w.WriteHeader(http.StatusNoContent)
	}))

	resp, err := httpadapter.NewV2(h).ProxyWithContext(context.Background(), events.APIGatewayV2HTTPRequest{
		RawPath: "/",
		Headers: map[string]string{"X-Request-Id": "client-7"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RequestID: "gw-456",
			HTTP:      events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: http.MethodGet},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if seen != "client-7" {
		t.Errorf("request id = %q, want the caller's", seen)
	}

	// Outside Lambda there is no gateway context and the header stays unset.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen != "" {
		t.Errorf("request id = %q, want empty", seen)
	}
}

func TestIsLambdaEnvironment(t *testing.T) {
	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	os.Unsetenv("_LAMBDA_SERVER_PORT")

	if isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected false when no Lambda env vars are set")
	}

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "localhost:8080")
	if !isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected true when AWS_LAMBDA_RUNTIME_API is set")
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			if newLogger(level) == nil {
				t.Fatalf("newLogger(%q) returned nil", level)
			}
		})
	}
	if !newLogger("debug").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should enable debug records")
	}
	if newLogger("warn").Enabled(context.Background(), slog.LevelInfo) {
		t.Error("warn level should suppress info records")
	}
}
