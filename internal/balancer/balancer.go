// Package balancer selects one target URL from a rule's target list. The
// core strategies (round-robin, IP-hash) are built in; additional
// strategies register by name in a Registry and are resolved by
// rule.customLoadBalancer.
package balancer

import "fmt"

// Selector picks one target from a non-empty, pre-filtered (healthy)
// target list.
type Selector interface {
	Name() string
	Select(targets []string, clientIP string) (string, error)
}

// Registry resolves a custom load-balancer name to a Selector instance. A
// name absent from the registry is a configuration error, not a panic.
type Registry struct {
	factories map[string]func() Selector
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Selector)}
}

func (r *Registry) Register(name string, factory func() Selector) {
	r.factories[name] = factory
}

func (r *Registry) Create(name string) (Selector, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown custom load balancer: %s", name)
	}
	return factory(), nil
}

// NewDefaultRegistry returns a registry pre-populated with the bonus
// strategies beyond the two core ones (least-connections, priority),
// available to rules that set loadBalancing=CUSTOM.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("least-connections", func() Selector { return NewLeastConnectionsSelector() })
	r.Register("priority", func() Selector { return NewPrioritySelector(nil) })
	return r
}
