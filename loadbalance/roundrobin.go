package loadbalance

import (
	"go.uber.org/atomic"

	"madigan/registry"
)

// RoundRobinBalancer cycles through endpoints in order, ignoring the key.
type RoundRobinBalancer struct {
	counter atomic.Int64
}

func (b *RoundRobinBalancer) Pick(_ string, eps []registry.Endpoint) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}
	index := (b.counter.Inc() - 1) % int64(len(eps))
	return eps[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
