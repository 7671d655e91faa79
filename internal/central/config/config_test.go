package config

import "testing"

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(nil); err == nil {
		t.Fatalf("expected error when DATABASE_URL is unset")
	}
}

func TestLoadParsesWorkerFlagsAndAppID(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/catapult")
	t.Setenv("GITHUB_APP_ID", "12345")

	cfg, err := Load([]string{"--worker", "us=http://us.example.com", "--worker", "eu=http://eu.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GithubAppID != 12345 {
		t.Fatalf("expected app id 12345, got %d", cfg.GithubAppID)
	}
	if cfg.Workers["us"] != "http://us.example.com" || cfg.Workers["eu"] != "http://eu.example.com" {
		t.Fatalf("expected both workers parsed, got %+v", cfg.Workers)
	}
}

func TestLoadRejectsMalformedWorkerFlag(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/catapult")
	if _, err := Load([]string{"--worker", "missing-equals"}); err == nil {
		t.Fatalf("expected error for malformed --worker value")
	}
}
