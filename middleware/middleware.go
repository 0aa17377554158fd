// Package middleware wraps the inbound command handler. A chain runs once
// per parsed command, before the dispatcher touches the host.
package middleware

import (
	"context"

	"madigan/message"
)

type HandlerFunc func(ctx context.Context, in message.Inbound) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one given runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
