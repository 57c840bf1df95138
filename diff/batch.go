// Package diff computes the incremental records that turn one recorded view
// tree into the next. Consumers replay a full snapshot, then apply batches in
// Seq order.
package diff

import (
	"github.com/hazyhaar/replay/recorder"
)

// Op is the kind of change a Record describes.
type Op string

const (
	OpAdd    Op = "add"    // node appears (without children, those follow)
	OpRemove Op = "remove" // node and its subtree disappear
	OpUpdate Op = "update" // node keeps its place, some fields changed
)

// Record is a single change between two snapshots.
type Record struct {
	Op Op              `json:"op"`
	ID recorder.NodeID `json:"id"`

	// add only. ParentID is nil for a root; PrevID is nil for a first child.
	ParentID *recorder.NodeID `json:"parent_id,omitempty"`
	PrevID   *recorder.NodeID `json:"prev_id,omitempty"`
	Node     *recorder.Node   `json:"node,omitempty"`

	// update only. Nil fields are unchanged.
	Kind     *recorder.Kind  `json:"kind,omitempty"`
	Frame    *recorder.Rect  `json:"frame,omitempty"`
	Text     *string         `json:"text,omitempty"`
	Style    *recorder.Style `json:"style,omitempty"`
	Resource *string         `json:"resource,omitempty"`
}

// Batch is the unit emitted between two full snapshots.
type Batch struct {
	ID          string   `json:"id"` // UUIDv7
	PageID      string   `json:"page_id"`
	Seq         uint64   `json:"seq"` // per page, gap detection
	SnapshotRef string   `json:"snapshot_ref"`
	Timestamp   int64    `json:"timestamp"` // epoch ms
	Records     []Record `json:"records"`
}

// Snapshot is a full recorded tree. Batches reference it through
// SnapshotRef and apply on top of it.
type Snapshot struct {
	ID        string                    `json:"id"` // UUIDv7
	PageID    string                    `json:"page_id"`
	URL       string                    `json:"url,omitempty"`
	Timestamp int64                     `json:"timestamp"` // epoch ms of Tree.Date
	Tree      recorder.ViewTreeSnapshot `json:"tree"`
}
