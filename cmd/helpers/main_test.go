package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Davasny/n8n-helpers/navigator"
	"github.com/Davasny/n8n-helpers/observability"
)

func testRouter(t *testing.T, mutate func(*navigator.Config)) http.Handler {
	t.Helper()
	cfg := navigator.DefaultConfig()
	cfg.Screenshots.Dir = filepath.Join(t.TempDir(), "screenshots")
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := navigator.New(cfg, navigator.WithLogger(logger))
	if err != nil {
		t.Fatalf("navigator.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return newRouter(cfg, logger, observability.NewMetrics(), svc)
}

func do(h http.Handler, method, path, body string, auth ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicRoutes(t *testing.T) {
	h := testRouter(t, nil)

	rec := do(h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Hello from the helpers") {
		t.Fatalf("/: got %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("/: missing trace id header")
	}

	rec = do(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("/health: got %d %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "helpers_http_requests_total") {
		t.Fatalf("/metrics: got %d", rec.Code)
	}
}

func TestRouter_SimplifyHTML(t *testing.T) {
	h := testRouter(t, nil)
	rec := do(h, http.MethodPost, "/simplify-html", `{"content":"<html><head><title>T</title></head><body><p>hi</p></body></html>"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"title":"T"`) {
		t.Fatalf("/simplify-html: got %d %s", rec.Code, rec.Body)
	}
}

func TestRouter_ConvertUnsupported(t *testing.T) {
	h := testRouter(t, nil)
	rec := do(h, http.MethodPost, "/convert/base64", `{"from":"xlsx","to":"pdf","file":{"name":"a.xlsx","base64":""}}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Conversion from xlsx to pdf is not supported") {
		t.Fatalf("/convert/base64: got %d %s", rec.Code, rec.Body)
	}
}

func TestRouter_GotoValidation(t *testing.T) {
	h := testRouter(t, nil)
	rec := do(h, http.MethodGet, "/goto?url=javascript:alert(1)", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("/goto: got %d, want 400", rec.Code)
	}
	rec = do(h, http.MethodGet, "/goto/screenshots", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"files":[]`) {
		t.Fatalf("/goto/screenshots: got %d %s", rec.Code, rec.Body)
	}
}

func TestRouter_BasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := testRouter(t, func(c *navigator.Config) {
		c.Auth.Username = "n8n"
		c.Auth.PasswordHash = string(hash)
	})

	if rec := do(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("/health: got %d, want 200", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/goto/screenshots", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: got %d, want 401", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/goto/screenshots", "", "n8n", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: got %d, want 401", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/goto/screenshots", "", "n8n", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("good credentials: got %d, want 200", rec.Code)
	}
}
