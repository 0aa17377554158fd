package loadbalance

import (
	"math/rand"
	"sync"

	"madigan/registry"
)

// WeightedRandomBalancer picks with probability proportional to Weight. A
// weight of zero or less counts as 1.
type WeightedRandomBalancer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewWeightedRandomBalancer seeds its source with seed, or from the clock
// when seed is 0.
func NewWeightedRandomBalancer(seed int64) *WeightedRandomBalancer {
	if seed == 0 {
		return &WeightedRandomBalancer{rnd: rand.New(rand.NewSource(rand.Int63()))}
	}
	return &WeightedRandomBalancer{rnd: rand.New(rand.NewSource(seed))}
}

func (b *WeightedRandomBalancer) Pick(_ string, eps []registry.Endpoint) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	total := 0
	for _, ep := range eps {
		total += weight(ep)
	}

	b.mu.Lock()
	r := b.rnd.Intn(total)
	b.mu.Unlock()
	for _, ep := range eps {
		r -= weight(ep)
		if r < 0 {
			return ep, nil
		}
	}
	return eps[len(eps)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weight(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
