package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madigan/registry"
)

var testEndpoints = []registry.Endpoint{
	{Addr: "127.0.0.1:5555", Weight: 10},
	{Addr: "127.0.0.1:5556", Weight: 5},
	{Addr: "127.0.0.1:5557", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	var got []string
	for i := 0; i < 4; i++ {
		ep, err := b.Pick("ui", testEndpoints)
		require.NoError(t, err)
		got = append(got, ep.Addr)
	}
	assert.Equal(t, []string{
		testEndpoints[0].Addr, testEndpoints[1].Addr, testEndpoints[2].Addr, testEndpoints[0].Addr,
	}, got)
}

func TestEmpty(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, NewWeightedRandomBalancer(1), NewConsistentHashBalancer()} {
		_, err := b.Pick("ui", nil)
		assert.ErrorIs(t, err, ErrNoEndpoints, b.Name())
	}
}

func TestWeightedRandom(t *testing.T) {
	b := NewWeightedRandomBalancer(42)

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		ep, err := b.Pick("ui", testEndpoints)
		require.NoError(t, err)
		counts[ep.Addr]++
	}
	// weights 10:5:10
	ratio := float64(counts[testEndpoints[0].Addr]) / float64(counts[testEndpoints[1].Addr])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := NewWeightedRandomBalancer(7)
	eps := []registry.Endpoint{{Addr: "a"}, {Addr: "b"}}
	for i := 0; i < 20; i++ {
		_, err := b.Pick("ui", eps)
		require.NoError(t, err)
	}
}

func TestConsistentHashAffinity(t *testing.T) {
	b := NewConsistentHashBalancer()

	first, err := b.Pick("4d2-0", testEndpoints)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := b.Pick("4d2-0", testEndpoints)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ep, _ := b.Pick(fmt.Sprintf("4d2-%x", i), testEndpoints)
		seen[ep.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashRebuildsOnChange(t *testing.T) {
	b := NewConsistentHashBalancer()
	only := testEndpoints[1:2]
	ep, err := b.Pick("any", only)
	require.NoError(t, err)
	assert.Equal(t, only[0], ep)

	// Reordering the same set keeps the ring.
	reversed := []registry.Endpoint{testEndpoints[2], testEndpoints[1], testEndpoints[0]}
	a, _ := b.Pick("key", testEndpoints)
	c, _ := b.Pick("key", reversed)
	assert.Equal(t, a.Addr, c.Addr)
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{
		"":            "RoundRobin",
		"round_robin": "RoundRobin",
		"weighted":    "WeightedRandom",
		"hash":        "ConsistentHash",
	} {
		b, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, b.Name())
	}
	_, err := ByName("random")
	assert.Error(t, err)
}
