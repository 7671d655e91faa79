// Package webhook implements WebhookIntake: verifying, parsing, and
// routing GitHub webhook events, and owning the PR-lifecycle flow.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/go-github/v66/github"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"catapult/internal/central/authority"
	"catapult/internal/central/githubapp"
	"catapult/internal/central/metrics"
	"catapult/internal/central/resolver"
	"catapult/internal/shared"
	"catapult/internal/shared/auth"
	"catapult/internal/shared/store"
)

// Dispatcher is the subset of dispatch.Dispatcher WebhookIntake needs.
type Dispatcher interface {
	DispatchBuild(ctx context.Context, endpoint string, job any) error
	DispatchCleanup(ctx context.Context, endpoint string, job any) error
}

// GithubApp is the subset of githubapp.App WebhookIntake needs.
type GithubApp interface {
	InstallationClient(ctx context.Context, installationID int64) (*github.Client, error)
	InstallationToken(ctx context.Context, installationID int64) (string, error)
}

// Intake is WebhookIntake: verifies GitHub webhooks and drives the
// PR-lifecycle and push-to-main build flow.
type Intake struct {
	WebhookSecret []byte
	App           GithubApp
	Store         *store.Store
	Dispatcher    Dispatcher
	CentralURL    string // used to build worker callback URLs
	Log           *zap.Logger
}

// ServeHTTP verifies the signature, parses the event, and returns 202
// immediately; all side effects run on a background goroutine, per
// spec §4.6/§5.
func (in *Intake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 5<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("X-Hub-Signature-256")
	if err := auth.VerifyWebhook(in.WebhookSecret, body, sig); err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	event, err := github.ParseWebHook(eventType, body)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	metrics.WebhookEventsReceived.WithLabelValues(eventType).Inc()

	w.WriteHeader(http.StatusAccepted)

	go in.process(context.Background(), event)
}

func (in *Intake) process(ctx context.Context, event any) {
	switch e := event.(type) {
	case *github.PingEvent:
		in.Log.Info("received ping event")
	case *github.PushEvent:
		in.handlePush(ctx, e)
	case *github.PullRequestEvent:
		in.handlePullRequest(ctx, e)
	default:
		// unknown event kinds are ignored
	}
}

// gateResult carries the state resolved by the shared gating steps
// (installation token, deploy config, zone authorization) common to
// both push and pull_request handling.
type gateResult struct {
	client *github.Client
	token  string
	cfg    shared.DeployConfig
	org    authority.Org
}

func (in *Intake) gate(ctx context.Context, installationID int64, org, repo string) (*gateResult, error) {
	if installationID == 0 {
		return nil, errors.New("missing installation id")
	}
	client, err := in.App.InstallationClient(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("installation client: %w", err)
	}
	token, err := in.App.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("installation token: %w", err)
	}

	cfg, err := resolver.FetchDeployConfig(ctx, client, org, repo)
	if err != nil {
		return nil, fmt.Errorf("fetch deploy config: %w", err)
	}
	if cfg == nil || !cfg.IsDeployable() {
		return nil, nil // absent/non-deployable: silent stop, not an error
	}

	authOrg, err := in.Store.GetAuthorizedOrg(ctx, org)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			in.Log.Info("org not authorized, dropping event", zap.String("org", org), zap.String("repo", repo))
			return nil, nil // unauthorized org: silent stop
		}
		return nil, fmt.Errorf("lookup authorized org: %w", err)
	}
	gateOrg := authority.Org{Zones: authOrg.Zones, DomainPatterns: authOrg.DomainPatterns}
	if !authority.CanUseZone(gateOrg, cfg.Zone) {
		in.Log.Info("zone not permitted for org, dropping event",
			zap.String("org", org), zap.String("repo", repo), zap.String("zone", cfg.Zone))
		return nil, nil
	}

	return &gateResult{client: client, token: token, cfg: *cfg, org: gateOrg}, nil
}

func (in *Intake) handlePush(ctx context.Context, e *github.PushEvent) {
	ref := e.GetRef()
	if ref != "refs/heads/main" && ref != "refs/heads/master" {
		return
	}
	org := e.GetRepo().GetOwner().GetLogin()
	repo := e.GetRepo().GetName()
	installationID := e.GetInstallation().GetID()

	g, err := in.gate(ctx, installationID, org, repo)
	if err != nil {
		in.Log.Warn("push gating failed", zap.Error(err), zap.String("org", org), zap.String("repo", repo))
		return
	}
	if g == nil {
		return
	}

	hostname := g.cfg.ResolveDomain(repo)
	if hostname == "" || !authority.CanUseDomain(g.org, hostname) {
		in.Log.Info("domain not permitted for org, dropping event",
			zap.String("org", org), zap.String("repo", repo), zap.String("domain", hostname))
		return
	}

	worker, err := in.Store.GetWorker(ctx, g.cfg.Zone)
	if err != nil {
		in.Log.Warn("no worker for zone", zap.String("zone", g.cfg.Zone), zap.Error(err))
		return
	}

	jobID := uuid.NewString()
	siteType, err := shared.ParseSiteType(g.cfg.BuildType)
	if err != nil {
		siteType = shared.SiteAuto
	}
	job := shared.BuildJob{
		JobID:       jobID,
		RepoURL:     e.GetRepo().GetCloneURL(),
		GitToken:    g.token,
		Branch:      ref,
		CommitSHA:   e.GetAfter(),
		Domain:      hostname,
		SiteType:    siteType,
		CallbackURL: in.CentralURL + "/api/status",
		RepoName:    repo,
		OrgName:     org,
		Subdomain:   g.cfg.Subdomain,
	}

	if err := in.Dispatcher.DispatchBuild(ctx, worker.Endpoint, job); err != nil {
		in.Log.Warn("dispatch build failed", zap.Error(err), zap.String("job_id", jobID))
		return
	}
	if err := in.Store.StoreJobContext(ctx, store.JobContext{
		JobID: jobID, InstallationID: installationID, Org: org, Repo: repo, CommitSHA: e.GetAfter(),
	}); err != nil {
		in.Log.Warn("store job context failed", zap.Error(err), zap.String("job_id", jobID))
	}
}

func (in *Intake) handlePullRequest(ctx context.Context, e *github.PullRequestEvent) {
	org := e.GetRepo().GetOwner().GetLogin()
	repo := e.GetRepo().GetName()
	installationID := e.GetInstallation().GetID()
	prNumber := e.GetNumber()

	g, err := in.gate(ctx, installationID, org, repo)
	if err != nil {
		in.Log.Warn("pull_request gating failed", zap.Error(err), zap.String("org", org), zap.String("repo", repo))
		return
	}
	if g == nil {
		return
	}

	switch e.GetAction() {
	case "opened", "synchronize", "reopened":
		in.handlePROpenOrSync(ctx, e, g, org, repo, installationID, prNumber)
	case "closed":
		in.handlePRClosed(ctx, g, org, repo, prNumber)
	default:
		// ignored
	}
}

func (in *Intake) handlePROpenOrSync(ctx context.Context, e *github.PullRequestEvent, g *gateResult, org, repo string, installationID int64, prNumber int) {
	hostname := g.cfg.ResolvePRDomain(repo, prNumber)
	if hostname == "" || !authority.CanUseDomain(g.org, hostname) {
		in.Log.Info("domain not permitted for org, dropping event",
			zap.String("org", org), zap.String("repo", repo), zap.String("domain", hostname))
		return
	}
	worker, err := in.Store.GetWorker(ctx, g.cfg.Zone)
	if err != nil {
		in.Log.Warn("no worker for zone", zap.String("zone", g.cfg.Zone), zap.Error(err))
		return
	}

	sha := e.GetPullRequest().GetHead().GetSHA()
	key := store.PRCommentKey{Org: org, Repo: repo, PRNumber: prNumber}
	body := githubapp.BuildingBody(githubapp.ShortSHA(sha))

	commentID, err := in.Store.GetPRComment(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		commentID, err = githubapp.CreateComment(ctx, g.client, org, repo, prNumber, body)
		if err != nil {
			in.Log.Warn("create pr comment failed", zap.Error(err))
		} else if err := in.Store.UpsertPRComment(ctx, key, commentID); err != nil {
			in.Log.Warn("persist pr comment failed", zap.Error(err))
		}
	case err != nil:
		in.Log.Warn("lookup pr comment failed", zap.Error(err))
	default:
		if err := githubapp.UpdateComment(ctx, g.client, org, repo, commentID, body); err != nil {
			in.Log.Warn("update pr comment failed", zap.Error(err))
		}
	}

	jobID := uuid.NewString()
	siteType, err := shared.ParseSiteType(g.cfg.BuildType)
	if err != nil {
		siteType = shared.SiteAuto
	}
	pr := prNumber
	job := shared.BuildJob{
		JobID:       jobID,
		RepoURL:     e.GetRepo().GetCloneURL(),
		GitToken:    g.token,
		Branch:      e.GetPullRequest().GetHead().GetRef(),
		CommitSHA:   sha,
		PRNumber:    &pr,
		Domain:      hostname,
		SiteType:    siteType,
		CallbackURL: in.CentralURL + "/api/status",
		RepoName:    repo,
		OrgName:     org,
	}
	if err := in.Dispatcher.DispatchBuild(ctx, worker.Endpoint, job); err != nil {
		in.Log.Warn("dispatch build failed", zap.Error(err), zap.String("job_id", jobID))
		return
	}

	var commentIDPtr *int64
	if commentID != 0 {
		commentIDPtr = &commentID
	}
	if err := in.Store.StoreJobContext(ctx, store.JobContext{
		JobID: jobID, InstallationID: installationID, Org: org, Repo: repo,
		PRCommentID: commentIDPtr, CommitSHA: sha,
	}); err != nil {
		in.Log.Warn("store job context failed", zap.Error(err), zap.String("job_id", jobID))
	}
}

func (in *Intake) handlePRClosed(ctx context.Context, g *gateResult, org, repo string, prNumber int) {
	worker, err := in.Store.GetWorker(ctx, g.cfg.Zone)
	if err != nil {
		in.Log.Warn("no worker for zone", zap.String("zone", g.cfg.Zone), zap.Error(err))
		return
	}
	hostname := g.cfg.ResolvePRDomain(repo, prNumber)
	pr := prNumber
	siteID := shared.GenerateSiteID(org, repo, &pr)

	job := shared.CleanupJob{
		JobID:       uuid.NewString(),
		SiteID:      siteID,
		CallbackURL: in.CentralURL + "/api/status",
		Domain:      hostname,
	}
	if err := in.Dispatcher.DispatchCleanup(ctx, worker.Endpoint, job); err != nil {
		in.Log.Warn("dispatch cleanup failed", zap.Error(err), zap.String("site_id", siteID))
	}

	key := store.PRCommentKey{Org: org, Repo: repo, PRNumber: prNumber}
	if err := in.Store.DeletePRComment(ctx, key); err != nil {
		in.Log.Warn("delete pr comment failed (non-fatal)", zap.Error(err))
	}
}
