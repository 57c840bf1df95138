package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/replay/idgen"
	"github.com/hazyhaar/replay/kit"
)

type contextKey string

const loggerKey contextKey = "api_logger"

// securityHeaders sets the headers every JSON response carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// headToGet lets routes registered with Get answer HEAD.
func headToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// maxBody caps request bodies.
func maxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestID tags each request with an id, taken from X-Request-ID when the
// caller sent one, and attaches a logger carrying it.
func requestID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = idgen.New()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithTransport(r.Context(), "http")
			ctx = kit.WithRequestID(ctx, id)
			logger := base.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx = context.WithValue(ctx, loggerKey, logger)
			logger.Debug("api: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
