package route

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"catapult/internal/shared"
)

func newTestProgrammer(t *testing.T, handler http.HandlerFunc) (*Programmer, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, zap.NewNop()), server
}

func TestConfigureInsertsBeforeCatchAll(t *testing.T) {
	var putPath string
	p, _ := newTestProgrammer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet:
			routes := []map[string]any{
				{"match": []any{map[string]any{"host": []string{"other.example.com"}}}},
				{"handle": []any{map[string]any{"handler": "file_server"}}}, // catch-all, no match
			}
			json.NewEncoder(w).Encode(routes)
		case r.Method == http.MethodPut:
			putPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	if err := p.Configure(context.Background(), "site-a", "/sites/site-a", "site-a.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if putPath != "/config/apps/http/servers/main/routes/1" {
		t.Fatalf("expected insert at catch-all index 1, got %q", putPath)
	}
}

func TestConfigureAppendsWithoutCatchAll(t *testing.T) {
	var posted bool
	p, _ := newTestProgrammer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodGet:
			json.NewEncoder(w).Encode([]map[string]any{
				{"match": []any{map[string]any{"host": []string{"other.example.com"}}}},
			})
		case http.MethodPost:
			posted = true
			w.WriteHeader(http.StatusOK)
		}
	})

	if err := p.Configure(context.Background(), "site-b", "/sites/site-b", "site-b.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !posted {
		t.Fatalf("expected a POST append when no catch-all exists")
	}
}

func TestRemoveTreats404AsSuccess(t *testing.T) {
	p, _ := newTestProgrammer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := p.Remove(context.Background(), "missing-site"); err != nil {
		t.Fatalf("expected 404 to be treated as success, got %v", err)
	}
}

func TestRecoverSitesReadsMetadataAndConfigures(t *testing.T) {
	dir := t.TempDir()
	siteDir := filepath.Join(dir, "nullislabs-website-main")
	if err := os.MkdirAll(siteDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	meta := shared.SiteMetadata{SiteID: "nullislabs-website-main", Domain: "nxm.rs"}
	data, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(siteDir, metadataFileName), data, 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	var configured bool
	p, _ := newTestProgrammer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/config/":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]map[string]any{})
		case r.Method == http.MethodPost:
			configured = true
			w.WriteHeader(http.StatusOK)
		}
	})

	if err := p.RecoverSites(context.Background(), dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configured {
		t.Fatalf("expected the discovered site's route to be configured")
	}
}
