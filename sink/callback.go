package sink

import (
	"context"

	"github.com/hazyhaar/replay/diff"
)

// SnapshotFunc is called for each snapshot.
type SnapshotFunc func(ctx context.Context, snap diff.Snapshot) error

// BatchFunc is called for each batch.
type BatchFunc func(ctx context.Context, batch diff.Batch) error

// Callback hands output to Go functions in the same process, without
// serialisation. Either function may be nil.
type Callback struct {
	onSnapshot SnapshotFunc
	onBatch    BatchFunc
}

// NewCallback creates a Callback sink.
func NewCallback(onSnapshot SnapshotFunc, onBatch BatchFunc) *Callback {
	return &Callback{onSnapshot: onSnapshot, onBatch: onBatch}
}

func (c *Callback) SendSnapshot(ctx context.Context, snap diff.Snapshot) error {
	if c.onSnapshot == nil {
		return nil
	}
	return c.onSnapshot(ctx, snap)
}

func (c *Callback) SendBatch(ctx context.Context, batch diff.Batch) error {
	if c.onBatch == nil {
		return nil
	}
	return c.onBatch(ctx, batch)
}

func (c *Callback) Close() error { return nil }
