// Package instance issues the identifiers a bridge announces in its
// handshake and stamps on every outbound message.
package instance

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Source yields a fresh identifier per bridge instance.
type Source interface {
	Next() string
}

// Counter issues "<pid hex>-<counter hex>". The counter is shared by every
// bridge in the process and passed in rather than held globally.
type Counter struct {
	pid     int
	counter *atomic.Uint32
}

// NewCounter uses counter, or a private one when counter is nil.
func NewCounter(counter *atomic.Uint32) *Counter {
	if counter == nil {
		counter = atomic.NewUint32(0)
	}
	return &Counter{pid: os.Getpid(), counter: counter}
}

func (c *Counter) Next() string {
	n := c.counter.Inc() - 1
	return fmt.Sprintf("%x-%x", uint32(c.pid), n)
}

// UUID issues random version 4 UUIDs.
type UUID struct{}

func (UUID) Next() string { return uuid.NewString() }

// Fixed always yields the same identifier.
type Fixed string

func (f Fixed) Next() string { return string(f) }

// ByName selects a source: "counter" (default) or "uuid".
func ByName(name string, counter *atomic.Uint32) (Source, error) {
	switch name {
	case "", "counter":
		return NewCounter(counter), nil
	case "uuid":
		return UUID{}, nil
	}
	return nil, fmt.Errorf("instance: unknown id source %q", name)
}
