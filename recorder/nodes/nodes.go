// Package nodes provides the built-in NodeRecorders. Each one recognises views
// through a small capability interface, so any view-tree provider opts in by
// implementing the methods that apply to its node types.
package nodes

import (
	"crypto/sha256"
	"fmt"

	"github.com/hazyhaar/replay/recorder"
)

// Hider is implemented by views that can be invisible.
type Hider interface {
	Hidden() bool
}

// Inputter is implemented by editable text fields.
type Inputter interface {
	InputValue() string
	// Secure reports a field whose value must never be recorded in clear
	// (password entry).
	Secure() bool
	Placeholder() string
}

// Selecter is implemented by pickers showing a selected value.
type Selecter interface {
	SelectedText() string
}

// Texter is implemented by views displaying static text.
type Texter interface {
	Text() string
}

// Imager is implemented by views displaying an image.
type Imager interface {
	ImageSource() string
}

// Styler is implemented by views with visual decoration.
type Styler interface {
	Style() recorder.Style
}

// Defaults returns the built-in recorders in dispatch order. ContainerRecorder
// is last and matches everything.
func Defaults() []recorder.NodeRecorder {
	return []recorder.NodeRecorder{
		HiddenRecorder{},
		TextFieldRecorder{},
		SelectionRecorder{},
		TextRecorder{},
		ImageRecorder{},
		ContainerRecorder{},
	}
}

// HiddenRecorder matches invisible views and stops the walk there.
type HiddenRecorder struct{}

func (HiddenRecorder) Semantics(v recorder.View, ctx *recorder.ViewTreeRecordingContext) *recorder.NodeSemantics {
	h, ok := v.(Hider)
	if !ok || !h.Hidden() {
		return nil
	}
	return &recorder.NodeSemantics{
		Kind:    recorder.KindHidden,
		Frame:   ctx.ConvertFrame(v),
		Subtree: recorder.SubtreeIgnore,
	}
}

// TextFieldRecorder records editable fields. Secure fields always go through
// the sensitive obfuscator. The placeholder shows only while the field is
// empty.
type TextFieldRecorder struct{}

func (TextFieldRecorder) Semantics(v recorder.View, ctx *recorder.ViewTreeRecordingContext) *recorder.NodeSemantics {
	in, ok := v.(Inputter)
	if !ok {
		return nil
	}

	var text string
	switch value := in.InputValue(); {
	case value == "":
		text = ctx.TextObfuscator.Obfuscate(in.Placeholder())
	case in.Secure():
		text = ctx.SensitiveTextObfuscator.Obfuscate(value)
	default:
		text = ctx.TextObfuscator.Obfuscate(value)
	}

	return &recorder.NodeSemantics{
		Kind:    recorder.KindTextField,
		Frame:   ctx.ConvertFrame(v),
		Text:    text,
		Style:   styleOf(v),
		Subtree: recorder.SubtreeIgnore,
	}
}

// SelectionRecorder records pickers through the selection obfuscator.
type SelectionRecorder struct{}

func (SelectionRecorder) Semantics(v recorder.View, ctx *recorder.ViewTreeRecordingContext) *recorder.NodeSemantics {
	sel, ok := v.(Selecter)
	if !ok {
		return nil
	}
	return &recorder.NodeSemantics{
		Kind:    recorder.KindSelection,
		Frame:   ctx.ConvertFrame(v),
		Text:    ctx.SelectionTextObfuscator.Obfuscate(sel.SelectedText()),
		Style:   styleOf(v),
		Subtree: recorder.SubtreeIgnore,
	}
}

// TextRecorder records static text.
type TextRecorder struct{}

func (TextRecorder) Semantics(v recorder.View, ctx *recorder.ViewTreeRecordingContext) *recorder.NodeSemantics {
	t, ok := v.(Texter)
	if !ok {
		return nil
	}
	return &recorder.NodeSemantics{
		Kind:  recorder.KindText,
		Frame: ctx.ConvertFrame(v),
		Text:  ctx.TextObfuscator.Obfuscate(t.Text()),
		Style: styleOf(v),
	}
}

// ImageRecorder records images by reference. Only a hash of the source is
// kept; image content is never captured.
type ImageRecorder struct{}

func (ImageRecorder) Semantics(v recorder.View, ctx *recorder.ViewTreeRecordingContext) *recorder.NodeSemantics {
	img, ok := v.(Imager)
	if !ok {
		return nil
	}
	var res string
	if src := img.ImageSource(); src != "" {
		res = fmt.Sprintf("%x", sha256.Sum256([]byte(src)))
	}
	return &recorder.NodeSemantics{
		Kind:     recorder.KindImage,
		Frame:    ctx.ConvertFrame(v),
		Style:    styleOf(v),
		Resource: res,
		Subtree:  recorder.SubtreeIgnore,
	}
}

// ContainerRecorder matches any view.
type ContainerRecorder struct{}

func (ContainerRecorder) Semantics(v recorder.View, ctx *recorder.ViewTreeRecordingContext) *recorder.NodeSemantics {
	return &recorder.NodeSemantics{
		Kind:  recorder.KindContainer,
		Frame: ctx.ConvertFrame(v),
		Style: styleOf(v),
	}
}

func styleOf(v recorder.View) *recorder.Style {
	s, ok := v.(Styler)
	if !ok {
		return nil
	}
	st := s.Style()
	if st == (recorder.Style{}) {
		return nil
	}
	return &st
}
