package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"madigan/message"
)

var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimitMiddleware drops commands beyond a token bucket of r per second
// with the given burst. It never waits: the bridge tick must stay short.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in message.Inbound) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(ctx, in)
		}
	}
}
