package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeHeartbeater struct {
	mu   sync.Mutex
	seen map[string]int
}

func (f *fakeHeartbeater) UpdateHeartbeat(ctx context.Context, zone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]int)
	}
	f.seen[zone]++
	return true, nil
}

func (f *fakeHeartbeater) count(zone string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[zone]
}

func TestCheckAllWorkersProbesEveryZone(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	hb := &fakeHeartbeater{}
	m := New(map[string]string{"nxm": healthy.URL, "dead": down.URL}, hb, DefaultConfig(), zap.NewNop())

	m.checkAllWorkers(context.Background())

	if hb.count("nxm") != 1 {
		t.Fatalf("expected healthy zone to get a heartbeat, got %d", hb.count("nxm"))
	}
	if hb.count("dead") != 0 {
		t.Fatalf("expected unhealthy zone to be skipped, got %d", hb.count("dead"))
	}
}

func TestInitialCheckBacksOffThenGivesUp(t *testing.T) {
	var calls int
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.InitialRetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 2 * time.Millisecond

	hb := &fakeHeartbeater{}
	m := New(map[string]string{"nxm": down.URL}, hb, cfg, zap.NewNop())

	m.initialCheck(context.Background())

	if calls != cfg.MaxRetries {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxRetries, calls)
	}
}
