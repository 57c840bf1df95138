package recorder

// Kind is the semantic category of a recorded view.
type Kind string

const (
	KindContainer Kind = "container"
	KindText      Kind = "text"
	KindTextField Kind = "text_field"
	KindSelection Kind = "selection"
	KindImage     Kind = "image"
	KindHidden    Kind = "hidden" // matched but renders nothing
)

// Style is the visual decoration of a view.
type Style struct {
	BackgroundColor string  `json:"background_color,omitempty"`
	BorderColor     string  `json:"border_color,omitempty"`
	BorderWidth     float64 `json:"border_width,omitempty"`
	CornerRadius    float64 `json:"corner_radius,omitempty"`
	Opacity         float64 `json:"opacity,omitempty"`
}

// SubtreeStrategy tells the walker whether to descend into a matched view.
type SubtreeStrategy int

const (
	// SubtreeRecord walks the view's subviews.
	SubtreeRecord SubtreeStrategy = iota
	// SubtreeIgnore stops the walk at this view. The NodeRecorder may
	// supply NodeSemantics.Children itself.
	SubtreeIgnore
)

// NodeSemantics is what a NodeRecorder reports for a view it recognises.
type NodeSemantics struct {
	Kind  Kind
	Frame Rect
	// Text is already obfuscated.
	Text  string
	Style *Style
	// Resource references external content (an image hash) without
	// embedding it.
	Resource string
	Subtree  SubtreeStrategy
	// Children is used only with SubtreeIgnore.
	Children []*Node
}

// Node is one recorded view. Nodes hold no reference to the view they came
// from.
type Node struct {
	ID       NodeID  `json:"id"`
	Kind     Kind    `json:"kind"`
	Frame    Rect    `json:"frame"`
	Text     string  `json:"text,omitempty"`
	Style    *Style  `json:"style,omitempty"`
	Resource string  `json:"resource,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Walk calls fn for n and its descendants, depth-first in child order.
// Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
