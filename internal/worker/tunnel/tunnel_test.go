package tunnel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	p := New(Config{}, zap.NewNop())
	if err := p.EnsureRoute(context.Background(), "x.example.com"); err != nil {
		t.Fatalf("noop EnsureRoute should never fail: %v", err)
	}
	if err := p.RemoveRoute(context.Background(), "x.example.com"); err != nil {
		t.Fatalf("noop RemoveRoute should never fail: %v", err)
	}
}

func TestEnsureRouteInsertsBeforeCatchAllAndSkipsDNSWhenUpToDate(t *testing.T) {
	var putBody tunnelConfig
	var dnsWritten bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/accounts/acct/cfd_tunnel/tun/configurations":
			cfg := tunnelConfig{}
			cfg.Config.Ingress = []ingressRule{{Service: "http_status:404"}}
			json.NewEncoder(w).Encode(cfg)
		case r.Method == http.MethodPut && r.URL.Path == "/accounts/acct/cfd_tunnel/tun/configurations":
			json.NewDecoder(r.Body).Decode(&putBody)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/zones/acct/dns_records":
			resp := dnsListResponse{Result: []dnsRecord{{ID: "rec1", Content: "tun.cfargotunnel.com"}}}
			json.NewEncoder(w).Encode(resp)
		case r.Method != http.MethodGet && strings.HasPrefix(r.URL.Path, "/zones/acct/dns_records"):
			dnsWritten = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	p := New(Config{APIToken: "tok", AccountID: "acct", TunnelID: "tun", ServiceURL: "http://localhost:3000", CloudflareBase: server.URL}, zap.NewNop())

	if err := p.EnsureRoute(context.Background(), "pr-1-site.example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(putBody.Config.Ingress) != 2 {
		t.Fatalf("expected new rule inserted before catch-all, got %+v", putBody.Config.Ingress)
	}
	if putBody.Config.Ingress[0].Hostname != "pr-1-site.example.com" {
		t.Fatalf("expected new rule first, got %+v", putBody.Config.Ingress)
	}
	if putBody.Config.Ingress[1].Hostname != "" {
		t.Fatalf("expected catch-all rule last, got %+v", putBody.Config.Ingress)
	}
	if dnsWritten {
		t.Fatalf("expected no DNS write when the CNAME already points at the tunnel")
	}
}
