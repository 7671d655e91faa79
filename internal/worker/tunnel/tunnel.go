// Package tunnel implements TunnelProgrammer: optional Cloudflare-shaped
// tunnel ingress and DNS management. Disabled configurations get a
// no-op client so callers never need to branch on whether tunneling is
// turned on.
package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds the credentials and identifiers needed to manage a
// tunnel. Tunneling is enabled only when all three are set.
type Config struct {
	APIToken       string
	AccountID      string
	TunnelID       string
	ServiceURL     string // origin service URL ingress rules point at
	CloudflareBase string // override for tests; defaults to api.cloudflare.com
}

// Enabled reports whether the configuration has everything needed.
func (c Config) Enabled() bool {
	return c.APIToken != "" && c.AccountID != "" && c.TunnelID != ""
}

// Programmer is TunnelProgrammer's interface; the noop variant is
// returned when tunneling is disabled.
type Programmer interface {
	EnsureRoute(ctx context.Context, hostname string) error
	RemoveRoute(ctx context.Context, hostname string) error
}

// New returns a live Programmer when cfg is enabled, else a no-op.
func New(cfg Config, log *zap.Logger) Programmer {
	if !cfg.Enabled() {
		return noopProgrammer{}
	}
	base := cfg.CloudflareBase
	if base == "" {
		base = "https://api.cloudflare.com/client/v4"
	}
	return &cloudflareProgrammer{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

type noopProgrammer struct{}

func (noopProgrammer) EnsureRoute(ctx context.Context, hostname string) error { return nil }
func (noopProgrammer) RemoveRoute(ctx context.Context, hostname string) error { return nil }

type ingressRule struct {
	Hostname string `json:"hostname,omitempty"`
	Service  string `json:"service"`
}

type tunnelConfig struct {
	Config struct {
		Ingress []ingressRule `json:"ingress"`
	} `json:"config"`
}

type cloudflareProgrammer struct {
	cfg    Config
	base   string
	client *http.Client
	log    *zap.Logger
}

func (p *cloudflareProgrammer) configURL() string {
	return fmt.Sprintf("%s/accounts/%s/cfd_tunnel/%s/configurations", p.base, p.cfg.AccountID, p.cfg.TunnelID)
}

func (p *cloudflareProgrammer) EnsureRoute(ctx context.Context, hostname string) error {
	cur, err := p.getConfig(ctx)
	if err != nil {
		return fmt.Errorf("get tunnel config: %w", err)
	}

	for _, rule := range cur.Config.Ingress {
		if rule.Hostname == hostname {
			return nil // already present
		}
	}

	catchAllIdx := -1
	for i, rule := range cur.Config.Ingress {
		if rule.Hostname == "" {
			catchAllIdx = i
			break
		}
	}

	newRule := ingressRule{Hostname: hostname, Service: p.cfg.ServiceURL}
	if catchAllIdx >= 0 {
		ingress := make([]ingressRule, 0, len(cur.Config.Ingress)+1)
		ingress = append(ingress, cur.Config.Ingress[:catchAllIdx]...)
		ingress = append(ingress, newRule)
		ingress = append(ingress, cur.Config.Ingress[catchAllIdx:]...)
		cur.Config.Ingress = ingress
	} else {
		cur.Config.Ingress = append(cur.Config.Ingress, newRule, ingressRule{Service: "http_status:404"})
	}

	if err := p.putConfig(ctx, cur); err != nil {
		return fmt.Errorf("update tunnel config: %w", err)
	}

	if err := p.ensureDNS(ctx, hostname); err != nil {
		return fmt.Errorf("ensure dns: %w", err)
	}
	return nil
}

func (p *cloudflareProgrammer) RemoveRoute(ctx context.Context, hostname string) error {
	if err := p.removeDNS(ctx, hostname); err != nil {
		p.log.Warn("remove dns record failed (non-fatal)", zap.String("hostname", hostname), zap.Error(err))
	}

	cur, err := p.getConfig(ctx)
	if err != nil {
		p.log.Warn("get tunnel config failed (non-fatal)", zap.String("hostname", hostname), zap.Error(err))
		return nil
	}
	filtered := cur.Config.Ingress[:0]
	for _, rule := range cur.Config.Ingress {
		if rule.Hostname != hostname {
			filtered = append(filtered, rule)
		}
	}
	cur.Config.Ingress = filtered
	if err := p.putConfig(ctx, cur); err != nil {
		p.log.Warn("update tunnel config failed (non-fatal)", zap.String("hostname", hostname), zap.Error(err))
	}
	return nil
}

func (p *cloudflareProgrammer) getConfig(ctx context.Context) (tunnelConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.configURL(), nil)
	if err != nil {
		return tunnelConfig{}, err
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return tunnelConfig{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return tunnelConfig{}, fmt.Errorf("cloudflare api error %d: %s", resp.StatusCode, string(body))
	}
	var cfg tunnelConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return tunnelConfig{}, err
	}
	return cfg, nil
}

func (p *cloudflareProgrammer) putConfig(ctx context.Context, cfg tunnelConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.configURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("cloudflare api error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

type dnsRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl"`
}

type dnsListResponse struct {
	Result []dnsRecord `json:"result"`
}

func (p *cloudflareProgrammer) dnsBaseURL() string {
	return fmt.Sprintf("%s/zones/%s/dns_records", p.base, p.cfg.AccountID)
}

// ensureDNS creates or updates the CNAME pointing hostname at the
// tunnel, only writing when the content actually differs.
func (p *cloudflareProgrammer) ensureDNS(ctx context.Context, hostname string) error {
	target := p.cfg.TunnelID + ".cfargotunnel.com"

	existing, err := p.findDNSRecord(ctx, hostname)
	if err != nil {
		return err
	}
	record := dnsRecord{Type: "CNAME", Name: hostname, Content: target, Proxied: true, TTL: 1}

	if existing == nil {
		return p.createDNSRecord(ctx, record)
	}
	if existing.Content == target {
		return nil
	}
	record.ID = existing.ID
	return p.updateDNSRecord(ctx, record)
}

func (p *cloudflareProgrammer) removeDNS(ctx context.Context, hostname string) error {
	existing, err := p.findDNSRecord(ctx, hostname)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.dnsBaseURL()+"/"+existing.ID, nil)
	if err != nil {
		return err
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (p *cloudflareProgrammer) findDNSRecord(ctx context.Context, hostname string) (*dnsRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.dnsBaseURL()+"?name="+hostname, nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cloudflare api error %d: %s", resp.StatusCode, string(body))
	}
	var list dnsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	if len(list.Result) == 0 {
		return nil, nil
	}
	return &list.Result[0], nil
}

func (p *cloudflareProgrammer) createDNSRecord(ctx context.Context, record dnsRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.dnsBaseURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("cloudflare api error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (p *cloudflareProgrammer) updateDNSRecord(ctx context.Context, record dnsRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.dnsBaseURL()+"/"+record.ID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("cloudflare api error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (p *cloudflareProgrammer) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)
}
