// Package route implements RouteProgrammer: installing and removing
// reverse-proxy routes against a Caddy-shaped admin API, preserving the
// invariant that the catch-all route stays last, plus startup recovery
// of routes for already-published sites.
package route

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"catapult/internal/shared"
)

const (
	readyTimeout  = 60 * time.Second
	readyInterval = 500 * time.Millisecond
)

// caddyRoute mirrors the reverse proxy's route object shape.
type caddyRoute struct {
	ID       string         `json:"@id"`
	Match    []caddyMatch   `json:"match"`
	Handle   []caddyHandler `json:"handle"`
	Terminal bool           `json:"terminal"`
}

type caddyMatch struct {
	Host []string `json:"host"`
}

type caddyHandler struct {
	Handler    string   `json:"handler"`
	Root       string   `json:"root"`
	IndexNames []string `json:"index_names"`
}

// Programmer installs/removes routes against a Caddy-shaped admin API.
type Programmer struct {
	AdminAPI string
	Client   *http.Client
	Log      *zap.Logger
}

// New constructs a Programmer with a sane default HTTP timeout.
func New(adminAPI string, log *zap.Logger) *Programmer {
	return &Programmer{
		AdminAPI: adminAPI,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Log:      log,
	}
}

// Configure installs a route for siteID, first deleting any existing
// route with the same id, then inserting it before the catch-all route
// (or appending if none exists).
func (p *Programmer) Configure(ctx context.Context, siteID, siteDir, domain string) error {
	_ = p.Remove(ctx, siteID) // ignore: route may not exist yet

	route := caddyRoute{
		ID:    siteID,
		Match: []caddyMatch{{Host: []string{domain}}},
		Handle: []caddyHandler{{
			Handler:    "file_server",
			Root:       siteDir,
			IndexNames: []string{"index.html"},
		}},
		Terminal: true,
	}

	idx, err := p.findCatchAllIndex(ctx)
	if err != nil {
		return fmt.Errorf("find catch-all route: %w", err)
	}
	return p.addRoute(ctx, route, idx)
}

// findCatchAllIndex returns the index of the first route lacking a
// match clause, or -1 if none is found (append instead of insert).
func (p *Programmer) findCatchAllIndex(ctx context.Context) (int, error) {
	url := p.AdminAPI + "/config/apps/http/servers/main/routes"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return -1, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return -1, nil
	}

	var routes []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		return -1, fmt.Errorf("decode routes: %w", err)
	}
	for i, r := range routes {
		if _, hasMatch := r["match"]; !hasMatch {
			return i, nil
		}
	}
	return -1, nil
}

func (p *Programmer) addRoute(ctx context.Context, route caddyRoute, insertIndex int) error {
	body, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}

	method := http.MethodPost
	url := p.AdminAPI + "/config/apps/http/servers/main/routes"
	if insertIndex >= 0 {
		method = http.MethodPut
		url = fmt.Sprintf("%s/config/apps/http/servers/main/routes/%d", p.AdminAPI, insertIndex)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("add route: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("reverse proxy api error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Remove deletes a route by its @id. A 404 is treated as success.
func (p *Programmer) Remove(ctx context.Context, siteID string) error {
	url := p.AdminAPI + "/id/" + siteID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("remove route: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("reverse proxy api error %d: %s", resp.StatusCode, string(respBody))
}

// WaitReady polls {AdminAPI}/config/ until it responds with 2xx or the
// 60s/500ms timeout elapses, to avoid racing the reverse proxy's own
// startup.
func (p *Programmer) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(readyTimeout)
	url := p.AdminAPI + "/config/"
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			if resp, err := p.Client.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode/100 == 2 {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("reverse proxy admin api not ready after %s", readyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyInterval):
		}
	}
}

// RecoverSites waits for the admin API then re-installs a route for
// every published site found under sitesDir, reading each site's
// SiteMetadata sidecar file.
func (p *Programmer) RecoverSites(ctx context.Context, sitesDir string) error {
	if err := p.WaitReady(ctx); err != nil {
		return err
	}

	entries, err := os.ReadDir(sitesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read sites dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		siteDir := filepath.Join(sitesDir, entry.Name())
		meta, err := readSiteMetadata(siteDir)
		if err != nil {
			p.Log.Warn("skipping site with unreadable metadata", zap.String("site_dir", siteDir), zap.Error(err))
			continue
		}
		if err := p.Configure(ctx, meta.SiteID, siteDir, meta.Domain); err != nil {
			p.Log.Warn("recover route failed", zap.String("site_id", meta.SiteID), zap.Error(err))
			continue
		}
		p.Log.Info("recovered route", zap.String("site_id", meta.SiteID), zap.String("domain", meta.Domain))
	}
	return nil
}

const metadataFileName = "catapult-site.json"

func readSiteMetadata(siteDir string) (shared.SiteMetadata, error) {
	data, err := os.ReadFile(filepath.Join(siteDir, metadataFileName))
	if err != nil {
		return shared.SiteMetadata{}, err
	}
	var meta shared.SiteMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return shared.SiteMetadata{}, err
	}
	return meta, nil
}
