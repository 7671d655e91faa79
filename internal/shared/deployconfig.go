package shared

import (
	"strconv"
	"strings"
)

// DeployConfig is the merged `.deploy.json` for a repository: org
// defaults overridden field-by-field by repo-level settings.
type DeployConfig struct {
	Zone          string `json:"zone,omitempty"`
	DomainPattern string `json:"domain_pattern,omitempty"`
	PRPattern     string `json:"pr_pattern,omitempty"`
	Domain        string `json:"domain,omitempty"`
	Subdomain     string `json:"subdomain,omitempty"`
	BuildType     string `json:"build_type,omitempty"`
	BuildCommand  string `json:"build_command,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
	Enabled       *bool  `json:"enabled,omitempty"`
}

// MergeDeployConfig merges repo-level config over org-level defaults.
// Repo wins field-by-field; Enabled takes repo's explicit value when set,
// otherwise org's, defaulting to true when neither specifies it.
func MergeDeployConfig(org, repo *DeployConfig) DeployConfig {
	var merged DeployConfig
	if org != nil {
		merged = *org
	}
	if repo == nil {
		return normalizeEnabled(merged)
	}
	if repo.Zone != "" {
		merged.Zone = repo.Zone
	}
	if repo.DomainPattern != "" {
		merged.DomainPattern = repo.DomainPattern
	}
	if repo.PRPattern != "" {
		merged.PRPattern = repo.PRPattern
	}
	if repo.Domain != "" {
		merged.Domain = repo.Domain
	}
	if repo.Subdomain != "" {
		merged.Subdomain = repo.Subdomain
	}
	if repo.BuildType != "" {
		merged.BuildType = repo.BuildType
	}
	if repo.BuildCommand != "" {
		merged.BuildCommand = repo.BuildCommand
	}
	if repo.OutputDir != "" {
		merged.OutputDir = repo.OutputDir
	}
	if repo.Enabled != nil {
		merged.Enabled = repo.Enabled
	}
	return normalizeEnabled(merged)
}

func normalizeEnabled(c DeployConfig) DeployConfig {
	if c.Enabled == nil {
		t := true
		c.Enabled = &t
	}
	return c
}

// IsDeployable reports whether a config is both enabled and has a zone.
func (c DeployConfig) IsDeployable() bool {
	enabled := c.Enabled == nil || *c.Enabled
	return enabled && strings.TrimSpace(c.Zone) != ""
}

// ResolveDomain computes the main-branch hostname. An explicit Domain
// wins over DomainPattern; Subdomain is only applied alongside an
// explicit Domain, never with a pattern. Returns "" when neither is set.
func (c DeployConfig) ResolveDomain(repo string) string {
	if c.Domain != "" {
		if c.Subdomain != "" {
			return c.Subdomain + "." + c.Domain
		}
		return c.Domain
	}
	if c.DomainPattern != "" {
		return strings.ReplaceAll(c.DomainPattern, "{repo}", strings.ToLower(repo))
	}
	return ""
}

// ResolvePRDomain computes the PR-preview hostname. PRPattern wins when
// set; otherwise falls back to "pr-{pr}-{repo}.{main}" when a main
// domain resolves. Returns "" when neither path yields a hostname.
func (c DeployConfig) ResolvePRDomain(repo string, prNumber int) string {
	if c.PRPattern != "" {
		s := strings.ReplaceAll(c.PRPattern, "{repo}", strings.ToLower(repo))
		s = strings.ReplaceAll(s, "{pr}", strconv.Itoa(prNumber))
		return s
	}
	main := c.ResolveDomain(repo)
	if main == "" {
		return ""
	}
	return "pr-" + strconv.Itoa(prNumber) + "-" + strings.ToLower(repo) + "." + main
}
