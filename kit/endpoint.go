// Package kit holds the transport-neutral plumbing shared by the MCP tools
// and the HTTP API: endpoints, middleware and request-scoped context values.
package kit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Endpoint is one operation, independent of the transport that carries it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the named endpoint with its duration.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration", time.Since(start),
			}
			if id := GetPageID(ctx); id != "" {
				attrs = append(attrs, "page_id", id)
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}

// Recover turns a panic in the endpoint into an error.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (resp any, err error) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("kit: endpoint panic", "panic", p, "request_id", GetRequestID(ctx))
					resp, err = nil, fmt.Errorf("kit: internal error: %v", p)
				}
			}()
			return next(ctx, req)
		}
	}
}
