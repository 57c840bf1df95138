package htmlview

import "github.com/hazyhaar/replay/recorder"

type node struct {
	key      recorder.Key
	tag      string
	frame    recorder.Rect
	subviews []recorder.View
}

func (n *node) Key() recorder.Key         { return n.key }
func (n *node) Frame() recorder.Rect      { return n.frame }
func (n *node) Subviews() []recorder.View { return n.subviews }

// Tag returns the element name ("#text" for text).
func (n *node) Tag() string { return n.tag }

// Element is a generic element.
type Element struct {
	node
	hidden bool
}

func (e *Element) Hidden() bool { return e.hidden }

// Text is a non-blank text run, trimmed.
type Text struct {
	node
	text string
}

func (t *Text) Text() string { return t.text }

// Input is an <input> or <textarea>.
type Input struct {
	node
	value       string
	placeholder string
	secure      bool
}

func (i *Input) InputValue() string  { return i.value }
func (i *Input) Placeholder() string { return i.placeholder }
func (i *Input) Secure() bool        { return i.secure }

// Select is a <select>.
type Select struct {
	node
	selected string
}

func (s *Select) SelectedText() string { return s.selected }

// Image is an <img>.
type Image struct {
	node
	src string
}

func (i *Image) ImageSource() string { return i.src }
