// Package config loads a Worker's runtime configuration from the
// environment, mirroring Central's env-var-first convention.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds everything a Worker needs to boot.
type Config struct {
	ListenAddr         string
	CentralURL         string
	WorkerSharedSecret string
	CaddyAdminAPI      string
	SitesDir           string
	WorkDirBase        string
	BuildImage         string
	LimitsPath         string
	DirectBuild        bool

	CloudflareAPIToken   string
	CloudflareAccountID  string
	CloudflareTunnelID   string
	CloudflareServiceURL string
}

// Load reads environment variables, applying the same defaults the
// original worker shipped with.
func Load() Config {
	return Config{
		ListenAddr:         envOr("LISTEN_ADDR", ":8081"),
		CentralURL:         strings.TrimRight(os.Getenv("CENTRAL_URL"), "/"),
		WorkerSharedSecret: os.Getenv("WORKER_SHARED_SECRET"),
		CaddyAdminAPI:      envOr("CADDY_ADMIN_API", "http://localhost:2019"),
		SitesDir:           envOr("SITES_DIR", "/var/lib/catapult/sites"),
		WorkDirBase:        envOr("WORK_DIR", "/var/tmp/catapult-builds"),
		BuildImage:         os.Getenv("CATAPULT_BUILD_IMAGE"),
		LimitsPath:         os.Getenv("CATAPULT_LIMITS_FILE"),
		DirectBuild:        envBool("CATAPULT_DIRECT_BUILD"),

		CloudflareAPIToken:   os.Getenv("CLOUDFLARE_API_TOKEN"),
		CloudflareAccountID:  os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		CloudflareTunnelID:   os.Getenv("CLOUDFLARE_TUNNEL_ID"),
		CloudflareServiceURL: envOr("CLOUDFLARE_SERVICE_URL", "http://localhost:2019"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
