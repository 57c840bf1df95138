// Package recorder turns a live view hierarchy into an immutable,
// privacy-filtered ViewTreeSnapshot.
//
// The package knows nothing about a concrete UI toolkit. A view-tree provider
// (domview for a live browser page, htmlview for static markup) exposes its
// nodes through the View interface, and NodeRecorders registered on a
// ViewTreeRecorder decide what each view means. SnapshotBuilder ties the two
// together once per capture tick.
//
// Everything in this package is synchronous, in-memory computation. It does
// not log and does not perform I/O.
package recorder

// Key is a stable handle assigned to a view by its provider. A provider must
// never hand out the same Key for two different underlying views.
type Key uint64

// View is a node of the external view tree. The recorder only reads it.
type View interface {
	Key() Key
	// Frame is the view geometry in the provider's coordinate space.
	Frame() Rect
	// Subviews returns children in native order. The order is meaningful for
	// occluding layers and is never changed.
	Subviews() []View
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Offset returns r translated by (dx, dy).
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// IsEmpty reports whether r has no area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}
