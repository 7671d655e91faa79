// Package monitor implements WorkerMonitor: periodic worker health
// probing with bounded exponential backoff on startup.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catapult/internal/central/metrics"
)

// Config holds the monitor's timing knobs, matching spec §4.8 and
// original_source's worker_monitor.rs defaults.
type Config struct {
	CheckInterval     time.Duration
	RequestTimeout    time.Duration
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
}

// DefaultConfig returns the spec-mandated monitor defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     30 * time.Second,
		RequestTimeout:    5 * time.Second,
		MaxRetries:        3,
		InitialRetryDelay: 1 * time.Second,
		MaxRetryDelay:     30 * time.Second,
	}
}

// Heartbeater persists a successful health probe.
type Heartbeater interface {
	UpdateHeartbeat(ctx context.Context, zone string) (bool, error)
}

// Monitor periodically probes worker /health endpoints.
type Monitor struct {
	workers map[string]string // zone -> endpoint
	store   Heartbeater
	cfg     Config
	client  *http.Client
	log     *zap.Logger
}

// New constructs a Monitor for a fixed zone->endpoint map.
func New(workers map[string]string, store Heartbeater, cfg Config, log *zap.Logger) *Monitor {
	return &Monitor{
		workers: workers,
		store:   store,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		log:     log,
	}
}

// Run blocks, performing the initial backoff-bearing check pass then
// looping on cfg.CheckInterval until ctx is cancelled. Intended to run
// on its own goroutine; never blocks request handling.
func (m *Monitor) Run(ctx context.Context) {
	m.initialCheck(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAllWorkers(ctx)
		}
	}
}

func (m *Monitor) initialCheck(ctx context.Context) {
	m.log.Info("performing initial worker health check")
	for zone, endpoint := range m.workers {
		zone, endpoint := zone, endpoint
		delay := m.cfg.InitialRetryDelay
		for attempt := 1; ; attempt++ {
			err := m.checkWorkerHealth(ctx, zone, endpoint)
			if err == nil {
				m.log.Info("worker is healthy", zap.String("zone", zone), zap.String("endpoint", endpoint))
				break
			}
			if attempt >= m.cfg.MaxRetries {
				m.log.Warn("worker unreachable after max retries",
					zap.String("zone", zone), zap.String("endpoint", endpoint),
					zap.Int("attempts", attempt), zap.Error(err))
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > m.cfg.MaxRetryDelay {
				delay = m.cfg.MaxRetryDelay
			}
		}
	}
}

func (m *Monitor) checkAllWorkers(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for zone, endpoint := range m.workers {
		zone, endpoint := zone, endpoint
		g.Go(func() error {
			if err := m.checkWorkerHealth(gctx, zone, endpoint); err != nil {
				m.log.Warn("worker health check failed",
					zap.String("zone", zone), zap.String("endpoint", endpoint), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) checkWorkerHealth(ctx context.Context, zone, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		metrics.WorkerUp.WithLabelValues(zone).Set(0)
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		metrics.WorkerUp.WithLabelValues(zone).Set(0)
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	metrics.WorkerUp.WithLabelValues(zone).Set(1)
	_, err = m.store.UpdateHeartbeat(ctx, zone)
	return err
}
