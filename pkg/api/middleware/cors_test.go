package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atriumhq/atrium/config"
)

func dashboardCORS() *config.CORSConfig {
	return &config.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"http://dashboard.atrium.local:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           3600,
	}
}

func serveCORS(cfg *config.CORSConfig, method, origin string) *httptest.ResponseRecorder {
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/v1/memory/temporal", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	w := serveCORS(dashboardCORS(), http.MethodGet, "http://dashboard.atrium.local:3000")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.atrium.local:3000" {
		t.Errorf("Allow-Origin = %q, want the configured origin echoed", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Allow-Credentials not set for allowed origin")
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Errorf("Expose-Headers = %q, want X-Request-ID", got)
	}
	if w.Header().Get("Vary") != "Origin" {
		t.Error("Vary: Origin missing; shared caches could cross origins")
	}
}

func TestCORSOmitsGrantForUnknownOrigin(t *testing.T) {
	w := serveCORS(dashboardCORS(), http.MethodGet, "http://evil.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for unknown origin, want none", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("Allow-Credentials leaked to unknown origin")
	}
}

func TestCORSWildcardOrigin(t *testing.T) {
	cfg := dashboardCORS()
	cfg.AllowedOrigins = []string{"*"}
	cfg.AllowCredentials = false

	w := serveCORS(cfg, http.MethodGet, "http://anywhere.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://anywhere.example" {
		t.Errorf("Allow-Origin = %q, want the requesting origin", got)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	w := serveCORS(dashboardCORS(), http.MethodOptions, "http://dashboard.atrium.local:3000")

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Request-ID" {
		t.Errorf("Allow-Headers = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q, want 3600", got)
	}
	if w.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", w.Body.String())
	}
}

func TestCORSDisabledIsPassThrough(t *testing.T) {
	w := serveCORS(&config.CORSConfig{Enabled: false}, http.MethodGet, "http://dashboard.atrium.local:3000")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers set while disabled")
	}
	if w.Header().Get("Vary") != "" {
		t.Error("Vary set while disabled")
	}
}
