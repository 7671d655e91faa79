package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"catapult/internal/shared/auth"
	"catapult/internal/shared/store"
)

type stubHandler struct{ code int }

func (s stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { w.WriteHeader(s.code) }

type stubHeartbeater struct{ zone string }

func (s *stubHeartbeater) UpdateHeartbeat(ctx context.Context, zone string) (bool, error) {
	s.zone = zone
	return true, nil
}

type stubAuthStore struct {
	orgs   []store.AuthorizedOrg
	upsert store.AuthorizedOrg
}

func (s *stubAuthStore) ListAuthorizedOrgs(ctx context.Context) ([]store.AuthorizedOrg, error) {
	return s.orgs, nil
}
func (s *stubAuthStore) UpsertAuthorizedOrg(ctx context.Context, o store.AuthorizedOrg) error {
	s.upsert = o
	return nil
}
func (s *stubAuthStore) DeleteAuthorizedOrg(ctx context.Context, githubOrg string) error { return nil }

func newTestServer() (*Server, *stubHeartbeater, *stubAuthStore) {
	hb := &stubHeartbeater{}
	as := &stubAuthStore{}
	srv := &Server{
		Webhook:      stubHandler{code: http.StatusAccepted},
		Status:       stubHandler{code: http.StatusOK},
		Heartbeat:    hb,
		Auth:         as,
		AdminKey:     "topsecret",
		SharedSecret: []byte("worker-secret"),
		Log:          zap.NewNop(),
	}
	return srv, hb, as
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAdminAuthRequiresBearerKey(t *testing.T) {
	srv, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/auth/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/admin/auth/", nil)
	req2.Header.Set("Authorization", "Bearer topsecret")
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct key, got %d", rec2.Code)
	}
}

func TestHeartbeatUpdatesZone(t *testing.T) {
	srv, hb, _ := newTestServer()
	body := []byte(`{"zone":"nxm"}`)
	sig, ts := auth.Sign(srv.SharedSecret, body, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/api/workers/heartbeat", bytes.NewReader(body))
	req.Header.Set("X-Worker-Signature", sig)
	req.Header.Set("X-Request-Timestamp", ts)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if hb.zone != "nxm" {
		t.Fatalf("expected heartbeat for zone nxm, got %q", hb.zone)
	}
}

func TestUpsertAuthRejectsMissingZones(t *testing.T) {
	srv, _, _ := newTestServer()
	body := []byte(`{"github_org":"acme","zones":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/auth/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty zones, got %d", rec.Code)
	}
}

func TestUpsertAuthAcceptsValidPayload(t *testing.T) {
	srv, _, as := newTestServer()
	body := []byte(`{"github_org":"acme","zones":["us"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/auth/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if as.upsert.GithubOrg != "acme" {
		t.Fatalf("expected upsert to be recorded, got %+v", as.upsert)
	}
}

func TestHeartbeatRejectsBadSignature(t *testing.T) {
	srv, _, _ := newTestServer()
	body := []byte(`{"zone":"nxm"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/workers/heartbeat", bytes.NewReader(body))
	req.Header.Set("X-Worker-Signature", "sha256=bad")
	req.Header.Set("X-Request-Timestamp", "1")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
