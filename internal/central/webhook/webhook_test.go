package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"catapult/internal/shared/auth"
)

func TestServeHTTPRejectsBadSignature(t *testing.T) {
	in := &Intake{WebhookSecret: []byte("secret"), Log: zap.NewNop()}
	body := []byte(`{"zen":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=bad")
	req.Header.Set("X-GitHub-Event", "ping")

	rec := httptest.NewRecorder()
	in.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServeHTTPAcceptsValidPingSignature(t *testing.T) {
	secret := []byte("secret")
	in := &Intake{WebhookSecret: secret, Log: zap.NewNop()}
	body := []byte(`{"zen":"hello"}`)
	sig := auth.SignWebhook(secret, body)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	req.Header.Set("X-GitHub-Event", "ping")

	rec := httptest.NewRecorder()
	in.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestServeHTTPRejectsUnparsablePayload(t *testing.T) {
	secret := []byte("secret")
	in := &Intake{WebhookSecret: secret, Log: zap.NewNop()}
	body := []byte(`not json`)
	sig := auth.SignWebhook(secret, body)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	req.Header.Set("X-GitHub-Event", "push")

	rec := httptest.NewRecorder()
	in.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
