package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"madigan/registry"
)

// ConsistentHashBalancer maps a key to a point on a hash ring of endpoints.
// The same key keeps landing on the same endpoint while the endpoint set is
// stable, and only keys owned by a removed endpoint move when it changes.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●           ● A
//	           │  key ◆──►  │   (clockwise to the nearest node → A)
//	         C ●           ● A' (virtual node of A)
//	                ╲   ╱
//
// Each endpoint owns replicas virtual nodes hashed from "{addr}#{i}".
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string // endpoint set the ring was built from
	ring  []uint32
	nodes map[uint32]registry.Endpoint
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

func (b *ConsistentHashBalancer) Pick(key string, eps []registry.Endpoint) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sig := signature(eps); sig != b.sig {
		b.build(eps)
		b.sig = sig
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func (b *ConsistentHashBalancer) build(eps []registry.Endpoint) {
	b.ring = make([]uint32, 0, len(eps)*b.replicas)
	b.nodes = make(map[uint32]registry.Endpoint, len(eps)*b.replicas)
	for _, ep := range eps {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = ep
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

func signature(eps []registry.Endpoint) string {
	addrs := make([]string, len(eps))
	for i, ep := range eps {
		addrs[i] = ep.Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}
