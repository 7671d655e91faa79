// Package server assembles a Worker's chi router: build and cleanup
// job intake, both gated by the mutual service signature, plus a
// health check.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"catapult/internal/shared"
	"catapult/internal/shared/auth"
)

// Builder runs a build job to completion and reports the outcome.
type Builder interface {
	RunAndReport(ctx context.Context, job shared.BuildJob)
}

// Cleaner removes a deployed site and reports the outcome.
type Cleaner interface {
	RunCleanupAndReport(ctx context.Context, job shared.CleanupJob)
}

// Server owns a Worker's HTTP surface.
type Server struct {
	Builder      Builder
	Cleaner      Cleaner
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
	r.Post("/build", s.handleBuild)
	r.Post("/cleanup", s.handleCleanup)

	return r
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, false
	}
	sig := r.Header.Get("X-Central-Signature")
	ts := r.Header.Get("X-Request-Timestamp")
	if err := auth.Verify(s.SharedSecret, raw, sig, ts, time.Now()); err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	return raw, true
}

// handleBuild accepts a BuildJob, acknowledges immediately, and runs
// the build in the background. Central has no queue and does not
// retry, so the job is taken at face value.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.verify(w, r)
	if !ok {
		return
	}
	var job shared.BuildJob
	if err := json.Unmarshal(raw, &job); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)

	ctx := context.WithoutCancel(r.Context())
	go s.Builder.RunAndReport(ctx, job)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.verify(w, r)
	if !ok {
		return
	}
	var job shared.CleanupJob
	if err := json.Unmarshal(raw, &job); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)

	ctx := context.WithoutCancel(r.Context())
	go s.Cleaner.RunCleanupAndReport(ctx, job)
}
