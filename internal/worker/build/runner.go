package build

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"catapult/internal/shared"
	"catapult/internal/worker/tunnel"
)

// Reporter posts a StatusUpdate back to Central.
type Reporter interface {
	Report(ctx context.Context, callbackURL string, update shared.StatusUpdate) error
}

// Runner wires an Engine (and cleanup's route/tunnel/filesystem
// removal) to the callback Reporter, so /build and /cleanup handlers
// only need to fire-and-forget.
type Runner struct {
	Engine   *Engine
	Route    RouteRemover
	Tunnel   tunnel.Programmer
	SitesDir string
	Reporter Reporter
	Log      *zap.Logger
}

// RouteRemover is the subset of route.Programmer cleanup needs.
type RouteRemover interface {
	Remove(ctx context.Context, siteID string) error
}

// RunAndReport runs a build job and reports success/failure to Central.
func (r *Runner) RunAndReport(ctx context.Context, job shared.BuildJob) {
	update := shared.StatusUpdate{JobID: job.JobID, Status: shared.JobBuilding}
	if err := r.Reporter.Report(ctx, job.CallbackURL, update); err != nil {
		r.Log.Warn("failed to report building status", zap.String("job_id", job.JobID), zap.Error(err))
	}

	deployedURL, err := r.Engine.Run(ctx, job)
	if err != nil {
		r.Log.Error("build failed", zap.String("job_id", job.JobID), zap.Error(err))
		r.report(ctx, job.CallbackURL, shared.StatusUpdate{JobID: job.JobID, Status: shared.JobFailed, ErrorMessage: err.Error()})
		return
	}

	r.Log.Info("build succeeded", zap.String("job_id", job.JobID), zap.String("deployed_url", deployedURL))
	r.report(ctx, job.CallbackURL, shared.StatusUpdate{JobID: job.JobID, Status: shared.JobSuccess, DeployedURL: deployedURL})
}

// RunCleanupAndReport removes a deployed site's route, tunnel ingress,
// and published artifact, then reports the outcome to Central.
func (r *Runner) RunCleanupAndReport(ctx context.Context, job shared.CleanupJob) {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	note(r.Route.Remove(ctx, job.SiteID))
	if job.Domain != "" {
		note(r.Tunnel.RemoveRoute(ctx, job.Domain))
	}
	note(os.RemoveAll(filepath.Join(r.SitesDir, job.SiteID)))

	if firstErr != nil {
		r.Log.Error("cleanup failed", zap.String("job_id", job.JobID), zap.Error(firstErr))
		r.report(ctx, job.CallbackURL, shared.StatusUpdate{JobID: job.JobID, Status: shared.JobFailed, ErrorMessage: firstErr.Error()})
		return
	}
	r.report(ctx, job.CallbackURL, shared.StatusUpdate{JobID: job.JobID, Status: shared.JobCleaned})
}

func (r *Runner) report(ctx context.Context, callbackURL string, update shared.StatusUpdate) {
	if err := r.Reporter.Report(ctx, callbackURL, update); err != nil {
		r.Log.Warn("failed to report status", zap.String("job_id", update.JobID), zap.String("status", string(update.Status)), zap.Error(err))
	}
}
