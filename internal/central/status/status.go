// Package status implements StatusIntake: receiving a worker's signed
// build/cleanup status callbacks and reconciling PR comments and job
// state, idempotently.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"catapult/internal/central/githubapp"
	"catapult/internal/shared"
	"catapult/internal/shared/auth"
	"catapult/internal/shared/store"
)

// GithubApp is the subset of githubapp.App StatusIntake needs.
type GithubApp interface {
	InstallationClient(ctx context.Context, installationID int64) (*github.Client, error)
}

// JobContextStore is the subset of store.Store StatusIntake needs.
type JobContextStore interface {
	GetJobContext(ctx context.Context, jobID string) (store.JobContext, error)
}

// Intake is StatusIntake.
type Intake struct {
	SharedSecret []byte
	App          GithubApp
	Store        JobContextStore
	Log          *zap.Logger
}

// ServeHTTP verifies the mutual signature, parses the StatusUpdate, and
// returns 200 immediately; reconciliation runs on a background goroutine.
func (in *Intake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("X-Worker-Signature")
	ts := r.Header.Get("X-Request-Timestamp")
	if err := auth.Verify(in.SharedSecret, body, sig, ts, time.Now()); err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var update shared.StatusUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	go in.reconcile(context.Background(), update)
}

// reconcile looks up the job's context and, for success/failed, updates
// the tracked PR comment. Jobs with no stored context, and jobs whose
// context tracks no PR comment (push-to-main builds), are a no-op, not
// an error.
func (in *Intake) reconcile(ctx context.Context, update shared.StatusUpdate) {
	jc, err := in.Store.GetJobContext(ctx, update.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		in.Log.Warn("lookup job context failed", zap.String("job_id", update.JobID), zap.Error(err))
		return
	}

	if jc.PRCommentID == nil {
		return
	}

	var body string
	switch update.Status {
	case shared.JobSuccess:
		body = githubapp.SuccessBody(update.DeployedURL)
	case shared.JobFailed:
		body = githubapp.FailedBody(update.ErrorMessage)
	default:
		return // pending/building/cleaned: no comment update
	}

	client, err := in.App.InstallationClient(ctx, jc.InstallationID)
	if err != nil {
		in.Log.Warn("installation client failed", zap.String("job_id", update.JobID), zap.Error(err))
		return
	}
	if err := githubapp.UpdateComment(ctx, client, jc.Org, jc.Repo, *jc.PRCommentID, body); err != nil {
		in.Log.Warn("update pr comment failed", zap.String("job_id", update.JobID), zap.Error(err))
		return
	}
}
