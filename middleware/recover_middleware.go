package middleware

import (
	"context"
	"fmt"

	"madigan/message"
)

// RecoverMiddleware turns a panic below it, typically from the host's
// delivery callback, into an error for the caller of the tick.
func RecoverMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in message.Inbound) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("middleware: handler panic: %v", r)
				}
			}()
			return next(ctx, in)
		}
	}
}
