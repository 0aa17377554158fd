package middleware

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madigan/message"
)

var patch = message.Inbound{Command: message.PatchParameter{Key: "gain", Value: "0.8"}, Fields: 3}

func okHandler(ctx context.Context, in message.Inbound) error { return nil }

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	handler := LoggingMiddleware(logger)(okHandler)

	require.NoError(t, handler(context.Background(), patch))
	assert.Contains(t, buf.String(), `"kind":"patch-parameter"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)

	buf.Reset()
	boom := errors.New("boom")
	handler = LoggingMiddleware(logger)(func(context.Context, message.Inbound) error { return boom })
	assert.ErrorIs(t, handler(context.Background(), patch), boom)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is dropped
	handler := RateLimitMiddleware(1, 2)(okHandler)
	for i := 0; i < 2; i++ {
		require.NoError(t, handler(context.Background(), patch), "command %d", i)
	}
	assert.ErrorIs(t, handler(context.Background(), patch), ErrRateLimited)
}

func TestRecover(t *testing.T) {
	handler := RecoverMiddleware()(func(context.Context, message.Inbound) error {
		panic("host exploded")
	})
	err := handler(context.Background(), patch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host exploded")
}

func TestMetricsPassesThrough(t *testing.T) {
	calls := 0
	handler := MetricsMiddleware()(func(context.Context, message.Inbound) error {
		calls++
		return nil
	})
	require.NoError(t, handler(context.Background(), message.Inbound{Command: message.Unknown{Type: "x"}}))
	require.NoError(t, handler(context.Background(), patch))
	assert.Equal(t, 2, calls)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, in message.Inbound) error {
				order = append(order, name)
				return next(ctx, in)
			}
		}
	}
	handler := Chain(mark("a"), mark("b"), MetricsMiddleware())(func(context.Context, message.Inbound) error {
		order = append(order, "handler")
		return nil
	})
	require.NoError(t, handler(context.Background(), patch))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
