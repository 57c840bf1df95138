// Package sink defines the output backends for snapshots and diff batches.
package sink

import (
	"context"

	"github.com/hazyhaar/replay/diff"
)

// Sink delivers capture output to one backend.
type Sink interface {
	SendSnapshot(ctx context.Context, snap diff.Snapshot) error
	SendBatch(ctx context.Context, batch diff.Batch) error
	Close() error
}

// Envelope wraps every serialised message.
type Envelope struct {
	Type   string `json:"type"` // "snapshot" or "batch"
	PageID string `json:"page_id"`
	ID     string `json:"id"`
	Data   any    `json:"data"`
}

func snapshotEnvelope(s diff.Snapshot) Envelope {
	return Envelope{Type: "snapshot", PageID: s.PageID, ID: s.ID, Data: s}
}

func batchEnvelope(b diff.Batch) Envelope {
	return Envelope{Type: "batch", PageID: b.PageID, ID: b.ID, Data: b}
}
