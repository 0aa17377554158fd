package transport

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffDelay(t *testing.T) {
	cfg := DefaultBackoff()
	cfg.Jitter = false

	assert.Equal(t, 250*time.Millisecond, NextBackoffDelay(cfg, 0, nil))
	assert.Equal(t, 250*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 500*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 3, nil))
	assert.Equal(t, 5*time.Second, NextBackoffDelay(cfg, 10, nil))

	cfg.InitialDelay = 0
	assert.Zero(t, NextBackoffDelay(cfg, 4, nil))
}

func TestNextBackoffDelayJitter(t *testing.T) {
	cfg := DefaultBackoff()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		d := NextBackoffDelay(cfg, 2, rng)
		assert.GreaterOrEqual(t, d, 250*time.Millisecond)
		assert.Less(t, d, 750*time.Millisecond)
	}
	assert.Equal(t, 125*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
}
