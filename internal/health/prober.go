// Package health implements HealthProber: a periodic GET probe per rule
// target that marks targets healthy or unhealthy in their rule's Runtime.
package health

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vellum-proxy/vellum/internal/domain"
	"github.com/vellum-proxy/vellum/internal/events"
)

// Runtime is the subset of rule.Runtime the prober mutates.
type Runtime interface {
	MarkHealthy(target string) bool
	MarkUnhealthy(target string) bool
}

// Target pairs a rule's runtime with the concrete data the prober needs:
// its target list, health-check path and timing.
type Target struct {
	Rule    *domain.Rule
	Runtime Runtime
}

// Prober runs one ticking goroutine per eligible rule (those with a
// healthCheckPath and a non-empty target list). Probes within a rule run
// serially; rules run concurrently with respect to each other.
type Prober struct {
	client *http.Client

	// Events, when set, receives a TargetHealthy/TargetUnhealthy event on
	// every genuine state transition. Listener names the owning listener
	// for the event payload; it may be left empty.
	Events   *events.Bus
	Listener string

	mu      sync.Mutex
	cancels []context.CancelFunc
}

func NewProber() *Prober {
	return &Prober{client: &http.Client{}}
}

// Start schedules a ticking probe goroutine for every eligible target.
// Calling Start again without Stop runs a second set of goroutines alongside
// the first; a single Stop cancels both.
func (p *Prober) Start(targets []Target) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range targets {
		if t.Rule.HealthCheckPath == "" || len(t.Rule.GetAllTargets()) == 0 {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		p.cancels = append(p.cancels, cancel)
		go p.run(ctx, t)
	}
}

// Stop cancels every scheduled probe goroutine.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
}

func (p *Prober) run(ctx context.Context, t Target) {
	interval := time.Duration(t.Rule.HealthCheckIntervalOrDefault()) * time.Millisecond
	timeout := time.Duration(t.Rule.HealthCheckTimeoutOrDefault()) * time.Millisecond

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.probeOnce(ctx, t, timeout)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx, t, timeout)
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context, t Target, timeout time.Duration) {
	for _, target := range t.Rule.GetAllTargets() {
		url := strings.TrimSuffix(target, "/") + t.Rule.HealthCheckPath

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			p.emitIfChanged(t.Runtime.MarkUnhealthy(target), events.TargetUnhealthy, target)
			continue
		}

		resp, err := p.client.Do(req)
		cancel()
		if err != nil {
			p.emitIfChanged(t.Runtime.MarkUnhealthy(target), events.TargetUnhealthy, target)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 400 {
			p.emitIfChanged(t.Runtime.MarkHealthy(target), events.TargetHealthy, target)
		} else {
			p.emitIfChanged(t.Runtime.MarkUnhealthy(target), events.TargetUnhealthy, target)
		}
	}
}

func (p *Prober) emitIfChanged(changed bool, kind events.Kind, target string) {
	if !changed || p.Events == nil {
		return
	}
	p.Events.Publish(events.Event{Kind: kind, Listener: p.Listener, Target: target})
}
