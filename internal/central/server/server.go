// Package server assembles Central's chi router: webhook intake, status
// callbacks, worker heartbeats, and admin authorization management.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"catapult/internal/shared/auth"
	"catapult/internal/shared/store"
)

var validate = validator.New()

// WebhookHandler is the subset of webhook.Intake the server wires in.
type WebhookHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// StatusHandler is the subset of status.Intake the server wires in.
type StatusHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Heartbeater persists a worker-initiated heartbeat.
type Heartbeater interface {
	UpdateHeartbeat(ctx context.Context, zone string) (bool, error)
}

// AuthStore is the subset of store.Store the admin-auth endpoint needs.
type AuthStore interface {
	ListAuthorizedOrgs(ctx context.Context) ([]store.AuthorizedOrg, error)
	UpsertAuthorizedOrg(ctx context.Context, o store.AuthorizedOrg) error
	DeleteAuthorizedOrg(ctx context.Context, githubOrg string) error
}

// Server owns Central's HTTP surface.
type Server struct {
	Webhook      WebhookHandler
	Status       StatusHandler
	Heartbeat    Heartbeater
	Auth         AuthStore
	AdminKey     string
	SharedSecret []byte
	Log          *zap.Logger
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Post("/webhook/github", s.Webhook.ServeHTTP)
	r.Post("/api/status", s.Status.ServeHTTP)
	r.Post("/api/workers/heartbeat", s.handleHeartbeat)

	r.Route("/api/admin/auth", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/", s.handleListAuth)
		r.Post("/", s.handleUpsertAuth)
		r.Delete("/", s.handleDeleteAuth)
	})

	return r
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if s.AdminKey == "" || header != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type heartbeatRequest struct {
	Zone string `json:"zone"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("X-Worker-Signature")
	ts := r.Header.Get("X-Request-Timestamp")

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := auth.Verify(s.SharedSecret, raw, sig, ts, time.Now()); err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var req heartbeatRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Zone == "" {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if _, err := s.Heartbeat.UpdateHeartbeat(r.Context(), req.Zone); err != nil {
		http.Error(w, "heartbeat failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListAuth(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.Auth.ListAuthorizedOrgs(r.Context())
	if err != nil {
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

type upsertAuthRequest struct {
	GithubOrg      string   `json:"github_org" validate:"required"`
	Zones          []string `json:"zones" validate:"required,min=1,dive,required"`
	DomainPatterns []string `json:"domain_patterns" validate:"omitempty,dive,required"`
}

func (s *Server) handleUpsertAuth(w http.ResponseWriter, r *http.Request) {
	var req upsertAuthRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "bad payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	err := s.Auth.UpsertAuthorizedOrg(r.Context(), store.AuthorizedOrg{
		GithubOrg:      req.GithubOrg,
		Zones:          req.Zones,
		DomainPatterns: req.DomainPatterns,
		Enabled:        true,
	})
	if err != nil {
		http.Error(w, "upsert failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deleteAuthRequest struct {
	GithubOrg string `json:"github_org" validate:"required"`
}

func (s *Server) handleDeleteAuth(w http.ResponseWriter, r *http.Request) {
	var req deleteAuthRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "bad payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Auth.DeleteAuthorizedOrg(r.Context(), req.GithubOrg); err != nil {
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

