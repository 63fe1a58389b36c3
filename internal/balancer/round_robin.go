package balancer

import (
	"fmt"
	"sync/atomic"
)

// RoundRobinSelector cycles through targets with an atomic counter, so the
// first |targets|*k selections are exactly k permutations of targets in
// insertion order for any k >= 1 while the target list is unchanged.
type RoundRobinSelector struct {
	counter uint64
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

func (r *RoundRobinSelector) Name() string { return "round-robin" }

func (r *RoundRobinSelector) Select(targets []string, _ string) (string, error) {
	if len(targets) == 0 {
		return "", fmt.Errorf("no targets available")
	}
	idx := (atomic.AddUint64(&r.counter, 1) - 1) % uint64(len(targets))
	return targets[idx], nil
}
