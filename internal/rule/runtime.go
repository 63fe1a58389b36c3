package rule

import (
	"sync"
	"sync/atomic"

	"github.com/vellum-proxy/vellum/internal/balancer"
	"github.com/vellum-proxy/vellum/internal/domain"
	"github.com/vellum-proxy/vellum/internal/ratelimit"
)

// Runtime owns the live state for one Rule on one running Listener: its
// lazily initialized load balancer, the set of targets currently marked
// unhealthy, and the per-client-IP bucket map.
type Runtime struct {
	rule     *domain.Rule
	registry *balancer.Registry

	lbInitialized atomic.Bool
	lbMu          sync.Mutex
	lb            balancer.Selector

	unhealthyMu sync.RWMutex
	unhealthy   map[string]struct{}

	buckets *ratelimit.BucketMap
}

// NewRuntime builds the runtime state for a rule. registry resolves
// CUSTOM load balancer names; it may be nil if the rule never uses CUSTOM.
func NewRuntime(r *domain.Rule, registry *balancer.Registry) *Runtime {
	rt := &Runtime{
		rule:      r,
		registry:  registry,
		unhealthy: make(map[string]struct{}),
	}
	if r.RateLimit > 0 {
		rt.buckets = ratelimit.NewBucketMap(r.RateLimit, r.BurstOrDefault())
	}
	return rt
}

// MarkHealthy / MarkUnhealthy are called by the health prober. Both report
// whether the call actually changed the target's state, so callers can
// raise a transition event only once rather than on every probe tick.
func (rt *Runtime) MarkHealthy(target string) bool {
	rt.unhealthyMu.Lock()
	_, was := rt.unhealthy[target]
	delete(rt.unhealthy, target)
	rt.unhealthyMu.Unlock()
	return was
}

func (rt *Runtime) MarkUnhealthy(target string) bool {
	rt.unhealthyMu.Lock()
	_, was := rt.unhealthy[target]
	rt.unhealthy[target] = struct{}{}
	rt.unhealthyMu.Unlock()
	return !was
}

func (rt *Runtime) isUnhealthy(target string) bool {
	rt.unhealthyMu.RLock()
	defer rt.unhealthyMu.RUnlock()
	_, bad := rt.unhealthy[target]
	return bad
}

// ResolveTarget picks a backend URL for clientIP, per spec §4.6 and Open
// Question (b): targets is the load-balancing pool whenever it is
// non-empty; target is used only as a fallback when targets is empty,
// never merged in alongside it. Unhealthy targets are filtered out unless
// that would empty the list.
func (rt *Runtime) ResolveTarget(clientIP string) (string, error) {
	all := rt.rule.Targets
	if len(all) == 0 {
		return rt.rule.Target, nil
	}
	if len(all) == 1 {
		return all[0], nil
	}

	candidates := all
	if rt.rule.HealthCheckPath != "" {
		healthy := make([]string, 0, len(all))
		for _, t := range all {
			if !rt.isUnhealthy(t) {
				healthy = append(healthy, t)
			}
		}
		if len(healthy) > 0 {
			candidates = healthy
		}
	}

	sel, err := rt.selector()
	if err != nil {
		return "", err
	}
	return sel.Select(candidates, clientIP)
}

// selector lazily initializes the load balancer strategy under a mutex
// with a double-checked atomic flag; it is never swapped again afterward.
func (rt *Runtime) selector() (balancer.Selector, error) {
	if rt.lbInitialized.Load() {
		return rt.lb, nil
	}

	rt.lbMu.Lock()
	defer rt.lbMu.Unlock()
	if rt.lbInitialized.Load() {
		return rt.lb, nil
	}

	var sel balancer.Selector
	var err error
	switch rt.rule.LoadBalancing {
	case domain.IPHash:
		sel = balancer.NewIPHashSelector()
	case domain.Custom:
		if rt.registry == nil {
			return nil, &domain.ConfigError{Reason: "CUSTOM load balancer requested but no registry configured"}
		}
		sel, err = rt.registry.Create(rt.rule.CustomLoadBalancer)
		if err != nil {
			return nil, &domain.ConfigError{Reason: err.Error()}
		}
	default:
		sel = balancer.NewRoundRobinSelector()
	}
	if err != nil {
		return nil, err
	}

	rt.lb = sel
	rt.lbInitialized.Store(true)
	return rt.lb, nil
}

// AllowRequest enforces the rule's rate limit for clientIP. A rule with
// rateLimit <= 0 never rate limits.
func (rt *Runtime) AllowRequest(clientIP string) bool {
	if rt.buckets == nil {
		return true
	}
	return rt.buckets.Allow(clientIP)
}
