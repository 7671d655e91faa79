// Package config loads Central's runtime configuration from the
// environment and a repeatable --worker flag.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Config holds everything Central needs to boot.
type Config struct {
	ListenAddr          string
	DatabaseURL         string
	GithubAppID         int64
	GithubPrivateKeyPEM []byte
	GithubWebhookSecret string
	WorkerSharedSecret  string
	AdminKey            string
	CentralURL          string
	Workers             map[string]string // zone -> endpoint, seeded at boot
}

// Load reads environment variables and parses the repeatable
// --worker zone=endpoint CLI flag, the only flag Central accepts; no
// flag overrides an environment variable.
func Load(args []string) (Config, error) {
	var workerFlags []string
	fs := pflag.NewFlagSet("central", pflag.ContinueOnError)
	fs.StringArrayVar(&workerFlags, "worker", nil, "zone=endpoint pair, repeatable")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	cfg := Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		GithubWebhookSecret: os.Getenv("GITHUB_WEBHOOK_SECRET"),
		WorkerSharedSecret:  os.Getenv("WORKER_SHARED_SECRET"),
		AdminKey:            os.Getenv("CATAPULT_ADMIN_KEY"),
		CentralURL:          strings.TrimRight(os.Getenv("CENTRAL_URL"), "/"),
		Workers:             make(map[string]string),
	}

	appIDStr := os.Getenv("GITHUB_APP_ID")
	if appIDStr != "" {
		var appID int64
		if _, err := fmt.Sscanf(appIDStr, "%d", &appID); err != nil {
			return Config{}, fmt.Errorf("parse GITHUB_APP_ID: %w", err)
		}
		cfg.GithubAppID = appID
	}

	if keyPath := os.Getenv("GITHUB_PRIVATE_KEY_PATH"); keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return Config{}, fmt.Errorf("read github private key: %w", err)
		}
		cfg.GithubPrivateKeyPEM = data
	}

	for _, pair := range workerFlags {
		zone, endpoint, ok := strings.Cut(pair, "=")
		if !ok {
			return Config{}, fmt.Errorf("invalid --worker value %q, want zone=endpoint", pair)
		}
		cfg.Workers[zone] = endpoint
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
