package recorder

import "time"

// ViewTreeSnapshot is the recorded tree of one capture. It is never modified
// after CreateSnapshot returns it.
type ViewTreeSnapshot struct {
	// Date is the capture time corrected by RUMContext.ServerTimeOffset.
	Date       time.Time  `json:"date"`
	RUMContext RUMContext `json:"rum_context"`
	// Root is nil when nothing in the tree was recognised.
	Root *Node `json:"root,omitempty"`
}

// Nodes returns every node depth-first in child order.
func (s ViewTreeSnapshot) Nodes() []*Node {
	var out []*Node
	s.Root.Walk(func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Count returns the number of nodes in the snapshot.
func (s ViewTreeSnapshot) Count() int {
	count := 0
	s.Root.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// SnapshotBuilder produces ViewTreeSnapshots. One builder is meant to live as
// long as the recorded session so NodeIDs stay stable across captures.
type SnapshotBuilder struct {
	ViewTreeRecorder *ViewTreeRecorder
	IDs              *NodeIDGenerator
}

// NewSnapshotBuilder creates a builder dispatching to nodeRecorders with a
// fresh NodeIDGenerator.
func NewSnapshotBuilder(nodeRecorders ...NodeRecorder) *SnapshotBuilder {
	return &SnapshotBuilder{
		ViewTreeRecorder: NewViewTreeRecorder(nodeRecorders...),
		IDs:              NewNodeIDGenerator(),
	}
}

// CreateSnapshot records the tree under root. It never fails: an
// unrecognised root yields a snapshot with a nil Root and valid metadata.
func (b *SnapshotBuilder) CreateSnapshot(root View, ctx Context) ViewTreeSnapshot {
	obf := Obfuscators(ctx.Privacy)
	date := ctx.Date.Add(ctx.RUMContext.ServerTimeOffset)

	rc := &ViewTreeRecordingContext{
		Recorder:                ctx,
		CoordinateSpace:         root,
		IDs:                     b.IDs,
		TextObfuscator:          obf.Text,
		SelectionTextObfuscator: obf.SelectionText,
		SensitiveTextObfuscator: obf.SensitiveText,
	}

	return ViewTreeSnapshot{
		Date:       date,
		RUMContext: ctx.RUMContext,
		Root:       b.ViewTreeRecorder.RecordNodes(root, rc),
	}
}
