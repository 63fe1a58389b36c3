package balancer

import (
	"fmt"
	"math/rand"
)

// PrioritySelector is a bonus CUSTOM strategy: weighted random selection
// across targets. Weights default to 1.0 for any target not present in the
// supplied map, so it degrades to uniform random selection when no weights
// are configured.
type PrioritySelector struct {
	weights map[string]float64
}

func NewPrioritySelector(weights map[string]float64) *PrioritySelector {
	return &PrioritySelector{weights: weights}
}

func (p *PrioritySelector) Name() string { return "priority" }

func (p *PrioritySelector) weightOf(target string) float64 {
	if p.weights == nil {
		return 1.0
	}
	if w, ok := p.weights[target]; ok {
		return w
	}
	return 1.0
}

func (p *PrioritySelector) Select(targets []string, _ string) (string, error) {
	if len(targets) == 0 {
		return "", fmt.Errorf("no targets available")
	}
	if len(targets) == 1 {
		return targets[0], nil
	}

	total := 0.0
	for _, t := range targets {
		total += p.weightOf(t)
	}
	if total <= 0 {
		return targets[rand.Intn(len(targets))], nil
	}

	r := rand.Float64() * total
	sum := 0.0
	for _, t := range targets {
		sum += p.weightOf(t)
		if r <= sum {
			return t, nil
		}
	}
	return targets[len(targets)-1], nil
}
