// Package githubapp mints GitHub App JWTs and installation tokens
// explicitly, rather than through a caching transport, so the exact
// claim shape and the Worker never seeing a persisted token are both
// enforced directly.
package githubapp

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/go-github/v66/github"
)

// App holds a GitHub App's identity and private key.
type App struct {
	AppID      int64
	PrivateKey *rsa.PrivateKey
	BaseURL    string
}

// New parses the app's RSA private key PEM.
func New(appID int64, privateKeyPEM []byte, baseURL string) (*App, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse github app private key: %w", err)
	}
	return &App{
		AppID:      appID,
		PrivateKey: key,
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// GenerateJWT mints an RS256 app JWT with iat=now-60, exp=now+600,
// iss=app_id, per spec §6.
func (a *App) GenerateJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(600 * time.Second)),
		Issuer:    fmt.Sprintf("%d", a.AppID),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.PrivateKey)
}

// AppClient returns a go-github client authenticated as the app itself
// (JWT bearer), for installation-token exchange.
func (a *App) AppClient(now time.Time) (*github.Client, error) {
	tok, err := a.GenerateJWT(now)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Transport: &bearerTransport{token: tok, base: http.DefaultTransport}}
	return github.NewClient(hc), nil
}

// InstallationToken exchanges the app JWT for a short-lived installation
// token. The token is returned to the caller and never persisted here.
func (a *App) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	client, err := a.AppClient(time.Now())
	if err != nil {
		return "", err
	}
	tok, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("create installation token: %w", err)
	}
	return tok.GetToken(), nil
}

// InstallationClient returns a go-github client authenticated with a
// freshly minted installation token.
func (a *App) InstallationClient(ctx context.Context, installationID int64) (*github.Client, error) {
	tok, err := a.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Transport: &bearerTransport{token: tok, base: http.DefaultTransport, scheme: "token"}}
	return github.NewClient(hc), nil
}

type bearerTransport struct {
	token  string
	base   http.RoundTripper
	scheme string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	scheme := t.scheme
	if scheme == "" {
		scheme = "Bearer"
	}
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", scheme+" "+t.token)
	return t.base.RoundTrip(cloned)
}
