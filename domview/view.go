// Package domview exposes a live browser page as a recorder view tree.
//
// A page is captured with CDP DOMSnapshot.captureSnapshot, which returns the
// flattened DOM together with layout boxes and computed styles in one round
// trip. The flattened arrays are rebuilt into a tree of small view types, one
// per capability the recorder/nodes recognisers look for.
//
// Keys are CDP backend node ids stamped with an epoch (WithEpoch). A renderer
// never reuses a backend id for a different node, but a new renderer starts
// numbering again, so callers bump the epoch whenever the page is reopened.
package domview

import "github.com/hazyhaar/replay/recorder"

// node is the part every view shares.
type node struct {
	key      recorder.Key
	tag      string
	frame    recorder.Rect
	subviews []recorder.View
}

func (n *node) Key() recorder.Key         { return n.key }
func (n *node) Frame() recorder.Rect      { return n.frame }
func (n *node) Subviews() []recorder.View { return n.subviews }

// Tag returns the lower-case element name ("#text" for text nodes).
func (n *node) Tag() string { return n.tag }

// Element is a generic rendered element.
type Element struct {
	node
	hidden bool
	style  recorder.Style
}

func (e *Element) Hidden() bool          { return e.hidden }
func (e *Element) Style() recorder.Style { return e.style }

// Text is a rendered text node.
type Text struct {
	node
	text string
}

func (t *Text) Text() string { return t.text }

// Input is an <input> or <textarea> holding user-entered text.
type Input struct {
	node
	value       string
	placeholder string
	secure      bool
	style       recorder.Style
}

func (i *Input) InputValue() string    { return i.value }
func (i *Input) Placeholder() string   { return i.placeholder }
func (i *Input) Secure() bool          { return i.secure }
func (i *Input) Style() recorder.Style { return i.style }

// Select is a <select> showing its selected option.
type Select struct {
	node
	selected string
	style    recorder.Style
}

func (s *Select) SelectedText() string  { return s.selected }
func (s *Select) Style() recorder.Style { return s.style }

// Image is an <img>.
type Image struct {
	node
	src string
}

func (i *Image) ImageSource() string { return i.src }
