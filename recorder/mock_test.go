package recorder

import "sync"

type mockView struct {
	key      Key
	frame    Rect
	subviews []View
}

func (v *mockView) Key() Key         { return v.key }
func (v *mockView) Frame() Rect      { return v.frame }
func (v *mockView) Subviews() []View { return v.subviews }

func newView(key Key, frame Rect, subviews ...View) *mockView {
	return &mockView{key: key, frame: frame, subviews: subviews}
}

// nodeRecorderMock records every context it is queried with.
type nodeRecorderMock struct {
	mu       sync.Mutex
	contexts []ViewTreeRecordingContext
	views    []View
	result   func(View) *NodeSemantics
}

func (m *nodeRecorderMock) Semantics(view View, ctx *ViewTreeRecordingContext) *NodeSemantics {
	m.mu.Lock()
	m.contexts = append(m.contexts, *ctx)
	m.views = append(m.views, view)
	m.mu.Unlock()
	if m.result == nil {
		return nil
	}
	return m.result(view)
}

func matchAll(kind Kind) func(View) *NodeSemantics {
	return func(v View) *NodeSemantics {
		return &NodeSemantics{Kind: kind, Frame: v.Frame()}
	}
}
