package build

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"catapult/internal/shared"
	"catapult/internal/worker/dockerutil"
	"catapult/internal/worker/limits"
	"catapult/internal/worker/metrics"
	"catapult/internal/worker/tunnel"
)

// RouteProgrammer is the subset of route.Programmer the Engine needs.
type RouteProgrammer interface {
	Configure(ctx context.Context, siteID, siteDir, domain string) error
}

// Config holds the dependencies and policy knobs an Engine needs to
// run a build end to end.
type Config struct {
	SitesDir    string
	WorkDirBase string
	Image       string
	NetworkID   string
	Limits      limits.Profile
	// DirectBuild runs the build on the host instead of in a container.
	// Discouraged; set via CATAPULT_DIRECT_BUILD=1.
	DirectBuild bool
	Docker      *dockerutil.Client
	Route       RouteProgrammer
	Tunnel      tunnel.Programmer
	Log         *zap.Logger
}

// Engine runs BuildJobs: clone, resolve build context, build, publish,
// and install routes.
type Engine struct {
	cfg Config
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	if cfg.Image == "" {
		cfg.Image = defaultBuildImage
	}
	return &Engine{cfg: cfg}
}

// Run executes job and returns the deployed URL on success. The
// caller is responsible for reporting the outcome back to Central.
func (e *Engine) Run(ctx context.Context, job shared.BuildJob) (deployedURL string, err error) {
	start := time.Now()
	metrics.ActiveBuilds.Inc()
	defer metrics.ActiveBuilds.Dec()

	workDir, err := os.MkdirTemp(e.cfg.WorkDirBase, "catapult-build-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	siteType := job.SiteType
	outcome := "failed"
	defer func() {
		metrics.BuildsTotal.WithLabelValues(outcome).Inc()
		metrics.BuildDurationSeconds.WithLabelValues(string(siteType)).Observe(time.Since(start).Seconds())
	}()

	repoDir, err := CloneRepository(ctx, job.RepoURL, job.GitToken, job.CommitSHA, workDir)
	if err != nil {
		return "", err
	}

	deployConfig := LoadDeployConfig(repoDir, e.cfg.Log)

	if siteType == shared.SiteAuto || siteType == "" {
		siteType = DetectSiteType(repoDir)
	}
	if siteType == shared.SiteAuto {
		return "", fmt.Errorf("could not auto-detect site type and no explicit type provided")
	}

	buildCtx := NewBuildContext(siteType, deployConfig)
	e.cfg.Log.Info("resolved build context",
		zap.String("job_id", job.JobID),
		zap.String("site_type", string(buildCtx.SiteType)),
		zap.String("build_command", buildCtx.BuildCommand),
		zap.String("output_dir", buildCtx.OutputDir),
	)
	if !e.cfg.DirectBuild {
		e.cfg.Log.Debug("container resource limits",
			zap.String("memory", humanize.IBytes(uint64(e.cfg.Limits.MemoryMB)*1024*1024)),
			zap.Int64("pids_limit", e.cfg.Limits.PidsLimit),
		)
	}

	artifactDir, err := e.runBuild(ctx, job, repoDir, workDir, buildCtx)
	if err != nil {
		return "", err
	}

	siteID := shared.GenerateSiteID(job.OrgName, job.RepoName, job.PRNumber)
	siteDir := filepath.Join(e.cfg.SitesDir, siteID)
	if err := publish(artifactDir, siteDir, shared.SiteMetadata{SiteID: siteID, Domain: job.Domain}); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	if err := e.cfg.Route.Configure(ctx, siteID, siteDir, job.Domain); err != nil {
		metrics.RouteInstallFailures.WithLabelValues("route").Inc()
		return "", fmt.Errorf("configure route: %w", err)
	}
	if err := e.cfg.Tunnel.EnsureRoute(ctx, job.Domain); err != nil {
		metrics.RouteInstallFailures.WithLabelValues("tunnel").Inc()
		return "", fmt.Errorf("configure tunnel: %w", err)
	}

	outcome = "success"
	return shared.GeneratePreviewURL(job.Domain), nil
}

// runBuild executes the build in the configured mode and returns the
// directory whose contents should be published, normalized so both
// modes hand back a flat artifact directory.
func (e *Engine) runBuild(ctx context.Context, job shared.BuildJob, repoDir, workDir string, buildCtx BuildContext) (string, error) {
	if e.cfg.DirectBuild {
		e.cfg.Log.Warn("running build directly on host, not in a container (discouraged)", zap.String("job_id", job.JobID))
		if _, err := runDirect(ctx, repoDir, buildCtx); err != nil {
			return "", err
		}
		return filepath.Join(repoDir, buildCtx.OutputDir), nil
	}

	outputDir := filepath.Join(workDir, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if _, err := runContainerized(ctx, e.cfg.Docker, e.cfg.Image, e.cfg.NetworkID, e.cfg.Limits, repoDir, outputDir, buildCtx); err != nil {
		return "", err
	}
	return outputDir, nil
}

// publish replaces sites_dir/{site_id} with the built artifact and
// writes the SiteMetadata sidecar RouteProgrammer reads on recovery.
func publish(artifactDir, siteDir string, meta shared.SiteMetadata) error {
	if _, err := os.Stat(artifactDir); err != nil {
		return fmt.Errorf("build output directory does not exist: %s", artifactDir)
	}
	if err := os.RemoveAll(siteDir); err != nil {
		return fmt.Errorf("remove existing site dir: %w", err)
	}
	if err := copyDir(artifactDir, siteDir); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(siteDir, "catapult-site.json"), data, 0o644)
}

// copyDir recursively copies src into dst, creating dst if needed.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
