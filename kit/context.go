package kit

import "context"

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	pageIDKey
)

// WithTransport records which surface ("http" or "mcp") carried the call.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

// GetTransport defaults to "http".
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithPageID tags the call with the recorded page it acts on.
func WithPageID(ctx context.Context, pageID string) context.Context {
	return context.WithValue(ctx, pageIDKey, pageID)
}

func GetPageID(ctx context.Context) string {
	v, _ := ctx.Value(pageIDKey).(string)
	return v
}
