// Package shared holds the wire types and pure domain logic common to
// both Central and Worker: job payloads, deploy configuration, and site
// identity.
package shared

import (
	"fmt"
	"strings"
)

// JobStatus is the lifecycle state of a dispatched job.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobBuilding JobStatus = "building"
	JobSuccess  JobStatus = "success"
	JobFailed   JobStatus = "failed"
	JobCleaned  JobStatus = "cleaned"
)

// SiteType names the static-site generator a repository uses.
type SiteType string

const (
	SiteSvelteKit SiteType = "sveltekit"
	SiteVite      SiteType = "vite"
	SiteZola      SiteType = "zola"
	SiteCustom    SiteType = "custom"
	SiteAuto      SiteType = "auto"
)

// ParseSiteType parses a DeployConfig's build_type field, defaulting to
// SiteAuto for an empty string.
func ParseSiteType(s string) (SiteType, error) {
	switch SiteType(strings.ToLower(strings.TrimSpace(s))) {
	case "", SiteAuto:
		return SiteAuto, nil
	case SiteSvelteKit:
		return SiteSvelteKit, nil
	case SiteVite:
		return SiteVite, nil
	case SiteZola:
		return SiteZola, nil
	case SiteCustom:
		return SiteCustom, nil
	default:
		return "", fmt.Errorf("unrecognized site type %q", s)
	}
}

// DefaultBuildCommand returns the conventional build command for a site
// type, or "" when none applies (custom/auto require explicit config).
func (t SiteType) DefaultBuildCommand() string {
	switch t {
	case SiteSvelteKit:
		return "npm ci && npm run build"
	case SiteVite:
		return "npm ci && npm run build"
	case SiteZola:
		return "zola build"
	default:
		return ""
	}
}

// DefaultOutputDir returns the conventional artifact directory for a
// site type, or "" when none applies.
func (t SiteType) DefaultOutputDir() string {
	switch t {
	case SiteSvelteKit:
		return "build"
	case SiteVite:
		return "dist"
	case SiteZola:
		return "public"
	default:
		return ""
	}
}

// FlakeRef returns the nix flake reference used to wrap the build
// command for site types that are conventionally built inside a flake
// dev shell. Empty when not applicable.
func (t SiteType) FlakeRef() string {
	if t == SiteCustom {
		return "."
	}
	return ""
}

// BuildJob is the payload Central dispatches to a Worker's /build.
type BuildJob struct {
	JobID       string    `json:"job_id"`
	RepoURL     string    `json:"repo_url"`
	GitToken    string    `json:"git_token"`
	Branch      string    `json:"branch"`
	CommitSHA   string    `json:"commit_sha"`
	PRNumber    *int      `json:"pr_number,omitempty"`
	Domain      string    `json:"domain"`
	SiteType    SiteType  `json:"site_type"`
	CallbackURL string    `json:"callback_url"`
	RepoName    string    `json:"repo_name"`
	OrgName     string    `json:"org_name"`
	Subdomain   string    `json:"subdomain,omitempty"`
}

// CleanupJob is the payload Central dispatches to a Worker's /cleanup.
type CleanupJob struct {
	JobID       string `json:"job_id"`
	SiteID      string `json:"site_id"`
	CallbackURL string `json:"callback_url"`
	Domain      string `json:"domain,omitempty"`
}

// StatusUpdate is the payload a Worker posts back to Central.
type StatusUpdate struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	DeployedURL  string    `json:"deployed_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// SiteMetadata is written alongside published artifacts so the Worker
// can recover reverse-proxy routes on restart.
type SiteMetadata struct {
	SiteID string `json:"site_id"`
	Domain string `json:"domain"`
}

// GenerateSiteID composes the filesystem/route identifier for a
// deployment: lower(org)-lower(repo)-{pr-N|main}.
func GenerateSiteID(org, repo string, prNumber *int) string {
	base := fmt.Sprintf("%s-%s", strings.ToLower(org), strings.ToLower(repo))
	if prNumber != nil {
		return fmt.Sprintf("%s-pr-%d", base, *prNumber)
	}
	return base + "-main"
}

// GeneratePreviewURL formats an https preview URL for a resolved domain.
func GeneratePreviewURL(domain string) string {
	if domain == "" {
		return ""
	}
	return "https://" + domain
}
