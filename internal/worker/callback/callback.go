// Package callback posts StatusUpdate reports from a Worker back to
// Central, signed with the mutual service signature.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"catapult/internal/shared"
	"catapult/internal/shared/auth"
)

// Reporter posts signed StatusUpdates to a Central instance.
type Reporter struct {
	SharedSecret []byte
	Client       *http.Client
}

// New constructs a Reporter with a sane default HTTP timeout.
func New(sharedSecret []byte) *Reporter {
	return &Reporter{SharedSecret: sharedSecret, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Report signs and POSTs update to callbackURL (Central's /api/status).
func (r *Reporter) Report(ctx context.Context, callbackURL string, update shared.StatusUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	sig, ts := auth.Sign(r.SharedSecret, body, time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worker-Signature", sig)
	req.Header.Set("X-Request-Timestamp", ts)

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post status update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("central rejected status update: %d", resp.StatusCode)
	}
	return nil
}
