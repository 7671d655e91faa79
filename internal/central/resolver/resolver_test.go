package resolver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v66/github"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *github.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	client.BaseURL = base
	return client
}

func contentResponse(body string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	payload, _ := json.Marshal(map[string]string{
		"content":  encoded,
		"encoding": "base64",
		"type":     "file",
		"name":     ".deploy.json",
	})
	return string(payload)
}

func TestFetchDeployConfigMergesOrgAndRepo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/nullislabs/.github/contents/.deploy.json":
			fmt.Fprint(w, contentResponse(`{"zone":"nxm","domain_pattern":"{repo}.nxm.rs"}`))
		case "/repos/nullislabs/website/contents/.deploy.json":
			fmt.Fprint(w, contentResponse(`{"domain":"nxm.rs","subdomain":"www"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	cfg, err := FetchDeployConfig(context.Background(), client, "nullislabs", "website")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatalf("expected a merged config")
	}
	if cfg.Zone != "nxm" {
		t.Fatalf("expected org zone to carry, got %q", cfg.Zone)
	}
	if cfg.Domain != "nxm.rs" || cfg.Subdomain != "www" {
		t.Fatalf("expected repo overrides, got %+v", cfg)
	}
}

func TestFetchDeployConfigAbsentReturnsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	cfg, err := FetchDeployConfig(context.Background(), client, "nullislabs", "website")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config when neither file exists, got %+v", cfg)
	}
}
