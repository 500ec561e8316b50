// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/figures/internal/config"
)

func TestRateLimit(t *testing.T) {
	t.Parallel()

	h := NewHandler(&fakeStore{}, &fakeRunner{}, nil)
	router := NewRouter(h, NewMiddleware(&MiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute}))
	env := &testEnv{router: router}

	for i := 0; i < 2; i++ {
		if rec, _ := env.do(t, http.MethodGet, "/api/v1/sites/1/daily", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec, resp := env.do(t, http.MethodGet, "/api/v1/sites/1/daily", nil)
	if rec.Code != http.StatusTooManyRequests || resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("status = %d, error = %+v", rec.Code, resp.Error)
	}

	// Health is not limited.
	if rec, _ := env.do(t, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestRateLimitWriteIsStricter(t *testing.T) {
	t.Parallel()

	mw := NewMiddleware(&MiddlewareConfig{RateLimitRequests: 5})
	router := NewRouter(NewHandler(&fakeStore{}, &fakeRunner{}, nil), mw)
	env := &testEnv{router: router}

	body := RunSiteRequest{SiteID: 1}
	if rec, _ := env.do(t, http.MethodPost, "/api/v1/pipeline/site", body); rec.Code != http.StatusOK {
		t.Fatalf("first run status = %d", rec.Code)
	}
	if rec, _ := env.do(t, http.MethodPost, "/api/v1/pipeline/site", body); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second run status = %d, want 429", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	mw := NewMiddleware(MiddlewareConfigFromServer(config.ServerConfig{
		CORSOrigins: []string{"https://dashboard.example.com"},
	}))
	router := NewRouter(NewHandler(&fakeStore{}, &fakeRunner{}, nil), mw)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pipeline/course", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin got Allow-Origin %q", got)
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, http.NotFoundHandler())
	if srv.Addr != "127.0.0.1:8080" || srv.WriteTimeout != 30*time.Second {
		t.Errorf("server = %s, %v", srv.Addr, srv.WriteTimeout)
	}
}
