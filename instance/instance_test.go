package instance

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestCounterFormat(t *testing.T) {
	c := NewCounter(atomic.NewUint32(0))
	pid := fmt.Sprintf("%x", uint32(os.Getpid()))
	assert.Equal(t, pid+"-0", c.Next())
	assert.Equal(t, pid+"-1", c.Next())

	c = NewCounter(atomic.NewUint32(255))
	assert.Equal(t, pid+"-ff", c.Next())
}

func TestCounterSharedAcrossSources(t *testing.T) {
	shared := atomic.NewUint32(0)
	a, b := NewCounter(shared), NewCounter(shared)

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			id := s.Next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}([]Source{a, b}[i%2])
	}
	wg.Wait()
	assert.Len(t, seen, 50)
	assert.Equal(t, uint32(50), shared.Load())
}

func TestUUID(t *testing.T) {
	id := UUID{}.Next()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, UUID{}.Next())
}

func TestByName(t *testing.T) {
	s, err := ByName("", atomic.NewUint32(0))
	require.NoError(t, err)
	assert.IsType(t, &Counter{}, s)

	s, err = ByName("uuid", nil)
	require.NoError(t, err)
	assert.IsType(t, UUID{}, s)

	_, err = ByName("sequence", nil)
	assert.Error(t, err)
}
