package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"madigan/message"
)

func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in message.Inbound) error {
			start := time.Now()
			err := next(ctx, in)

			event := logger.Debug()
			if err != nil {
				event = logger.Warn().Err(err)
			} else if in.Truncated {
				event = logger.Warn()
			}
			event.
				Str("kind", kindLabel(in.Command)).
				Int("fields", in.Fields).
				Bool("truncated", in.Truncated).
				Dur("duration", time.Since(start)).
				Msg("command")
			return err
		}
	}
}

func kindLabel(cmd message.Command) string {
	switch c := cmd.(type) {
	case nil:
		return "none"
	case message.Unknown:
		return "unknown"
	case message.Incomplete:
		return "incomplete:" + c.Type
	default:
		return c.Kind().String()
	}
}
