package shared

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestMergeDeployConfigRepoWinsFieldByField(t *testing.T) {
	org := &DeployConfig{Zone: "nxm", DomainPattern: "{repo}.nxm.rs", BuildType: "vite"}
	repo := &DeployConfig{BuildCommand: "npm run build:custom"}

	merged := MergeDeployConfig(org, repo)
	if merged.Zone != "nxm" {
		t.Fatalf("expected zone to carry from org, got %q", merged.Zone)
	}
	if merged.BuildType != "vite" {
		t.Fatalf("expected build type to carry from org, got %q", merged.BuildType)
	}
	if merged.BuildCommand != "npm run build:custom" {
		t.Fatalf("expected repo build command to win, got %q", merged.BuildCommand)
	}
	if merged.Enabled == nil || !*merged.Enabled {
		t.Fatalf("expected enabled to default true")
	}
}

func TestMergeDeployConfigIsIdempotent(t *testing.T) {
	org := &DeployConfig{Zone: "nxm", DomainPattern: "{repo}.nxm.rs"}
	repo := &DeployConfig{Subdomain: "www", Enabled: boolPtr(false)}

	once := MergeDeployConfig(org, repo)
	twice := MergeDeployConfig(&once, repo)

	if once.Zone != twice.Zone || once.Subdomain != twice.Subdomain || *once.Enabled != *twice.Enabled {
		t.Fatalf("merge not idempotent: %+v vs %+v", once, twice)
	}
}

func TestIsDeployable(t *testing.T) {
	cases := []struct {
		name string
		cfg  DeployConfig
		want bool
	}{
		{"zone and default enabled", DeployConfig{Zone: "nxm"}, true},
		{"explicit disabled", DeployConfig{Zone: "nxm", Enabled: boolPtr(false)}, false},
		{"no zone", DeployConfig{Enabled: boolPtr(true)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.IsDeployable(); got != tc.want {
				t.Fatalf("IsDeployable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveDomainPrefersExplicitDomainOverPattern(t *testing.T) {
	cfg := DeployConfig{Domain: "example.com", DomainPattern: "{repo}.nxm.rs", Subdomain: "www"}
	if got := cfg.ResolveDomain("website"); got != "www.example.com" {
		t.Fatalf("got %q", got)
	}

	patternOnly := DeployConfig{DomainPattern: "{repo}.nxm.rs", Subdomain: "www"}
	if got := patternOnly.ResolveDomain("Website"); got != "website.nxm.rs" {
		t.Fatalf("pattern resolution (subdomain must be ignored) got %q", got)
	}
}

func TestResolvePRDomainFallsBackWithoutPRPattern(t *testing.T) {
	cfg := DeployConfig{DomainPattern: "{repo}.nxm.rs"}
	got := cfg.ResolvePRDomain("Website", 42)
	if got != "pr-42-website.website.nxm.rs" {
		t.Fatalf("got %q", got)
	}

	withPattern := DeployConfig{PRPattern: "pr-{pr}-{repo}.nxm.rs"}
	got = withPattern.ResolvePRDomain("Website", 42)
	if got != "pr-42-website.nxm.rs" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateSiteIDLowercases(t *testing.T) {
	pr := 42
	if got := GenerateSiteID("nullisLabs", "Website", &pr); got != "nullislabs-website-pr-42" {
		t.Fatalf("got %q", got)
	}
	if got := GenerateSiteID("nullisLabs", "Website", nil); got != "nullislabs-website-main" {
		t.Fatalf("got %q", got)
	}
}
