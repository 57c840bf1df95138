package recorder

// NodeRecorder recognises one family of views. Semantics returns nil when the
// view is not one it handles.
type NodeRecorder interface {
	Semantics(view View, ctx *ViewTreeRecordingContext) *NodeSemantics
}

// NodeRecorderFunc adapts a plain function to NodeRecorder.
type NodeRecorderFunc func(view View, ctx *ViewTreeRecordingContext) *NodeSemantics

func (f NodeRecorderFunc) Semantics(view View, ctx *ViewTreeRecordingContext) *NodeSemantics {
	return f(view, ctx)
}

// ViewTreeRecorder dispatches views to NodeRecorders in registration order.
// The first non-nil result wins. A view nothing recognises is dropped along
// with its subtree.
type ViewTreeRecorder struct {
	NodeRecorders []NodeRecorder
}

// NewViewTreeRecorder creates a recorder over the given NodeRecorders.
func NewViewTreeRecorder(nodeRecorders ...NodeRecorder) *ViewTreeRecorder {
	return &ViewTreeRecorder{NodeRecorders: nodeRecorders}
}

// Semantics returns the first match for view, or nil.
func (r *ViewTreeRecorder) Semantics(view View, ctx *ViewTreeRecordingContext) *NodeSemantics {
	for _, nr := range r.NodeRecorders {
		if s := nr.Semantics(view, ctx); s != nil {
			return s
		}
	}
	return nil
}

// RecordNodes walks root depth-first and returns the recorded tree, or nil if
// root itself is not recognised. The result is built from scratch on every
// call and only returned once complete.
func (r *ViewTreeRecorder) RecordNodes(root View, ctx *ViewTreeRecordingContext) *Node {
	if root == nil {
		return nil
	}
	if ctx.IDs == nil {
		c := *ctx
		c.IDs = NewNodeIDGenerator()
		ctx = &c
	}
	return r.recordNode(root, ctx)
}

func (r *ViewTreeRecorder) recordNode(view View, ctx *ViewTreeRecordingContext) *Node {
	s := r.Semantics(view, ctx)
	if s == nil {
		return nil
	}

	n := &Node{
		ID:       ctx.IDs.NodeID(view),
		Kind:     s.Kind,
		Frame:    s.Frame,
		Text:     s.Text,
		Style:    s.Style,
		Resource: s.Resource,
	}

	if s.Subtree == SubtreeIgnore {
		n.Children = s.Children
		return n
	}

	for _, sub := range view.Subviews() {
		if c := r.recordNode(sub, ctx); c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}
