// Package loadbalance picks the peer a bridge dials when several are
// registered.
//
//   - RoundRobin:     spread reconnects evenly
//   - WeightedRandom: favour peers with a larger Weight
//   - ConsistentHash: send an instance back to the same peer, which still
//     holds that instance's message history
package loadbalance

import (
	"errors"
	"fmt"

	"madigan/registry"
)

var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer selects one endpoint for the bridge instance identified by key.
// Implementations are safe for concurrent use.
type Balancer interface {
	Pick(key string, eps []registry.Endpoint) (registry.Endpoint, error)
	Name() string
}

// ByName returns a balancer for "round_robin" (the default), "weighted" or
// "hash".
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted":
		return NewWeightedRandomBalancer(0), nil
	case "hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown balancer %q", name)
}
