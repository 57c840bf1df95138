package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/replay/diff"
)

// Router fans output out to every sink. A failing sink does not stop the
// others; failures are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a sink. Not safe during delivery.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) SendSnapshot(ctx context.Context, snap diff.Snapshot) error {
	return r.each("snapshot", snap.PageID, func(s Sink) error { return s.SendSnapshot(ctx, snap) })
}

func (r *Router) SendBatch(ctx context.Context, batch diff.Batch) error {
	return r.each("batch", batch.PageID, func(s Sink) error { return s.SendBatch(ctx, batch) })
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) each(kind, pageID string, send func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := send(s); err != nil {
			r.logger.Warn("sink: send failed", "kind", kind, "page_id", pageID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
