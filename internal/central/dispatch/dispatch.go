// Package dispatch implements Dispatcher: signing and POSTing build and
// cleanup jobs to a worker's endpoint, one circuit breaker per worker.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"catapult/internal/central/metrics"
	"catapult/internal/shared/auth"
)

// Dispatcher signs and posts jobs to worker endpoints.
type Dispatcher struct {
	httpClient   *http.Client
	sharedSecret []byte

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New constructs a Dispatcher.
func New(sharedSecret string, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		httpClient:   httpClient,
		sharedSecret: []byte(sharedSecret),
		breakers:     make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (d *Dispatcher) breakerFor(endpoint string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.breakers[endpoint]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    endpoint,
		Timeout: 30 * time.Second,
	})
	d.breakers[endpoint] = b
	return b
}

// DispatchBuild signs and POSTs a BuildJob to {endpoint}/build.
func (d *Dispatcher) DispatchBuild(ctx context.Context, endpoint string, job any) error {
	err := d.post(ctx, endpoint, "/build", job)
	metrics.JobsDispatched.WithLabelValues("build", outcomeLabel(err)).Inc()
	return err
}

// DispatchCleanup signs and POSTs a CleanupJob to {endpoint}/cleanup.
func (d *Dispatcher) DispatchCleanup(ctx context.Context, endpoint string, job any) error {
	err := d.post(ctx, endpoint, "/cleanup", job)
	metrics.JobsDispatched.WithLabelValues("cleanup", outcomeLabel(err)).Inc()
	return err
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (d *Dispatcher) post(ctx context.Context, endpoint, path string, job any) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("serialize job: %w", err)
	}
	signature, timestamp := auth.Sign(d.sharedSecret, body, time.Now())

	url := endpoint + path
	breaker := d.breakerFor(endpoint)
	_, err = breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Central-Signature", signature)
		req.Header.Set("X-Request-Timestamp", timestamp)

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("dispatch to worker: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("worker returned %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, nil
	})
	return err
}
