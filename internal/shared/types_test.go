package shared

import "testing"

func TestParseSiteTypeDefaultsToAuto(t *testing.T) {
	got, err := ParseSiteType("")
	if err != nil || got != SiteAuto {
		t.Fatalf("expected auto/nil, got %q/%v", got, err)
	}
}

func TestParseSiteTypeNormalizesCase(t *testing.T) {
	got, err := ParseSiteType(" Zola ")
	if err != nil || got != SiteZola {
		t.Fatalf("expected zola/nil, got %q/%v", got, err)
	}
}

func TestParseSiteTypeRejectsUnknown(t *testing.T) {
	if _, err := ParseSiteType("hugo"); err == nil {
		t.Fatalf("expected error for unrecognized site type")
	}
}

func TestSiteTypeDefaultsVaryBySiteType(t *testing.T) {
	if got := SiteSvelteKit.DefaultOutputDir(); got != "build" {
		t.Fatalf("expected build, got %q", got)
	}
	if got := SiteVite.DefaultOutputDir(); got != "dist" {
		t.Fatalf("expected dist, got %q", got)
	}
	if got := SiteCustom.DefaultBuildCommand(); got != "" {
		t.Fatalf("expected empty default for custom, got %q", got)
	}
}

func TestSiteTypeFlakeRefOnlyForCustom(t *testing.T) {
	if got := SiteCustom.FlakeRef(); got != "." {
		t.Fatalf("expected '.', got %q", got)
	}
	if got := SiteVite.FlakeRef(); got != "" {
		t.Fatalf("expected empty flake ref for vite, got %q", got)
	}
}

func TestGenerateSiteIDMainBranch(t *testing.T) {
	got := GenerateSiteID("MyOrg", "MyRepo", nil)
	if got != "myorg-myrepo-main" {
		t.Fatalf("unexpected site id: %q", got)
	}
}

func TestGenerateSiteIDPullRequest(t *testing.T) {
	pr := 42
	got := GenerateSiteID("MyOrg", "MyRepo", &pr)
	if got != "myorg-myrepo-pr-42" {
		t.Fatalf("unexpected site id: %q", got)
	}
}

func TestGeneratePreviewURL(t *testing.T) {
	if got := GeneratePreviewURL("example.com"); got != "https://example.com" {
		t.Fatalf("unexpected url: %q", got)
	}
	if got := GeneratePreviewURL(""); got != "" {
		t.Fatalf("expected empty string for empty domain, got %q", got)
	}
}
