package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"catapult/internal/shared"
	"catapult/internal/shared/auth"
)

type stubBuilder struct {
	mu  sync.Mutex
	job shared.BuildJob
}

func (s *stubBuilder) RunAndReport(ctx context.Context, job shared.BuildJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = job
}

type stubCleaner struct {
	mu  sync.Mutex
	job shared.CleanupJob
}

func (s *stubCleaner) RunCleanupAndReport(ctx context.Context, job shared.CleanupJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = job
}

func newTestServer() (*Server, *stubBuilder, *stubCleaner) {
	builder := &stubBuilder{}
	cleaner := &stubCleaner{}
	return &Server{Builder: builder, Cleaner: cleaner, SharedSecret: []byte("worker-secret"), Log: zap.NewNop()}, builder, cleaner
}

func signedRequest(t *testing.T, secret []byte, method, url string, body []byte) *http.Request {
	t.Helper()
	sig, ts := auth.Sign(secret, body, time.Now())
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("X-Central-Signature", sig)
	req.Header.Set("X-Request-Timestamp", ts)
	return req
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestBuildRejectsBadSignature(t *testing.T) {
	srv, _, _ := newTestServer()
	body, _ := json.Marshal(shared.BuildJob{JobID: "job-1"})
	req := httptest.NewRequest(http.MethodPost, "/build", bytes.NewReader(body))
	req.Header.Set("X-Central-Signature", "sha256=bad")
	req.Header.Set("X-Request-Timestamp", "0")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBuildAcceptsValidSignature(t *testing.T) {
	srv, _, _ := newTestServer()
	body, _ := json.Marshal(shared.BuildJob{JobID: "job-1"})
	req := signedRequest(t, srv.SharedSecret, http.MethodPost, "/build", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestCleanupAcceptsValidSignature(t *testing.T) {
	srv, _, _ := newTestServer()
	body, _ := json.Marshal(shared.CleanupJob{JobID: "job-1", SiteID: "site-a"})
	req := signedRequest(t, srv.SharedSecret, http.MethodPost, "/cleanup", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}
