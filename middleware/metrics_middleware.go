package middleware

import (
	"context"
	"errors"

	"madigan/message"
	"madigan/observability"
)

// MetricsMiddleware counts every command by kind and every drop by reason.
func MetricsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in message.Inbound) error {
			observability.RecordCommand(kindLabel(in.Command))
			if in.Truncated {
				observability.RecordDropped(observability.ReasonTruncated)
			}
			err := next(ctx, in)
			switch {
			case errors.Is(err, ErrRateLimited):
				observability.RecordDropped(observability.ReasonRateLimited)
			case err != nil:
				observability.RecordDropped(observability.ReasonHandler)
			}
			switch in.Command.(type) {
			case message.Unknown:
				observability.RecordDropped(observability.ReasonUnknown)
			case message.Incomplete:
				observability.RecordDropped(observability.ReasonIncomplete)
			}
			return err
		}
	}
}
