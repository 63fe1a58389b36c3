package health

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vellum-proxy/vellum/internal/domain"
)

type fakeRuntime struct {
	mu        sync.Mutex
	healthy   map[string]bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{healthy: make(map[string]bool)}
}

func (f *fakeRuntime) MarkHealthy(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := !f.healthy[target]
	f.healthy[target] = true
	return changed
}

func (f *fakeRuntime) MarkUnhealthy(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.healthy[target]
	f.healthy[target] = false
	return changed
}

func (f *fakeRuntime) get(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy[target]
}

func TestProber_MarksHealthyOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := newFakeRuntime()
	rule := &domain.Rule{
		Target:                srv.URL,
		HealthCheckPath:       "/",
		HealthCheckIntervalMs: 20,
		HealthCheckTimeoutMs:  500,
	}

	p := NewProber()
	p.Start([]Target{{Rule: rule, Runtime: rt}})
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rt.get(srv.URL) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected target to be marked healthy within timeout")
}
