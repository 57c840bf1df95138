package domview

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/replay/recorder"
)

// ComputedStyles are requested from captureSnapshot, in this order.
var ComputedStyles = []string{"display", "visibility", "opacity", "background-color", "border-color", "border-width", "border-radius"}

const (
	styleDisplay = iota
	styleVisibility
	styleOpacity
	styleBackground
	styleBorderColor
	styleBorderWidth
	styleBorderRadius
)

// ErrNoDocument is returned when a capture contains no document.
var ErrNoDocument = errors.New("domview: capture has no document")

// Option configures a conversion.
type Option func(*flatTree)

// WithEpoch stamps keys with the renderer epoch the capture came from. A
// caller that reopens a page in a new renderer must bump the epoch, since
// backend node ids restart there.
func WithEpoch(epoch uint32) Option {
	return func(t *flatTree) { t.epoch = epoch }
}

// KeyFor is the Key of a backend node captured in the given epoch.
func KeyFor(epoch uint32, backendID proto.DOMBackendNodeID) recorder.Key {
	return recorder.Key(epoch)<<32 | recorder.Key(uint32(backendID))
}

// Capture snapshots the page and returns the view for <body>.
func Capture(ctx context.Context, page *rod.Page, opts ...Option) (recorder.View, error) {
	res, err := proto.DOMSnapshotCaptureSnapshot{
		ComputedStyles: ComputedStyles,
	}.Call(page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("domview: captureSnapshot: %w", err)
	}
	return FromCapture(res, opts...)
}

// FromCapture converts a captureSnapshot result into a view tree rooted at
// <body>, or at the document element when there is no body.
func FromCapture(res *proto.DOMSnapshotCaptureSnapshotResult, opts ...Option) (recorder.View, error) {
	if res == nil || len(res.Documents) == 0 || res.Documents[0].Nodes == nil {
		return nil, ErrNoDocument
	}
	t := newFlatTree(res.Documents[0], res.Strings)
	for _, o := range opts {
		o(t)
	}

	root := t.find("body")
	if root < 0 {
		root = t.find("html")
	}
	if root < 0 {
		return nil, fmt.Errorf("domview: no <body> or <html> in %d nodes", t.len())
	}

	v := t.build(root)
	if v == nil {
		// The body exists but has no layout box (display:none on <html>).
		return &Element{node: t.base(root), hidden: true}, nil
	}
	return v, nil
}

// flatTree indexes one DOMSnapshot document.
type flatTree struct {
	nodes    *proto.DOMSnapshotNodeTreeSnapshot
	layout   *proto.DOMSnapshotLayoutTreeSnapshot
	strs     []string
	epoch    uint32
	children [][]int
	layoutOf map[int]int
	input    map[int]string
	textarea map[int]string
	selected map[int]bool
}

func newFlatTree(doc *proto.DOMSnapshotDocumentSnapshot, strs []string) *flatTree {
	n := doc.Nodes
	t := &flatTree{
		nodes:    n,
		layout:   doc.Layout,
		strs:     strs,
		children: make([][]int, len(n.ParentIndex)),
		layoutOf: make(map[int]int),
		input:    rareStrings(n.InputValue, strs),
		textarea: rareStrings(n.TextValue, strs),
		selected: rareBools(n.OptionSelected),
	}

	// Parents always precede children, so appending in index order keeps
	// native child order.
	for i, p := range n.ParentIndex {
		if p >= 0 && p < len(t.children) {
			t.children[p] = append(t.children[p], i)
		}
	}

	if doc.Layout != nil {
		for li, ni := range doc.Layout.NodeIndex {
			if _, dup := t.layoutOf[ni]; !dup {
				t.layoutOf[ni] = li
			}
		}
	}
	return t
}

func (t *flatTree) len() int { return len(t.nodes.ParentIndex) }

func (t *flatTree) str(i proto.DOMSnapshotStringIndex) string {
	if i < 0 || int(i) >= len(t.strs) {
		return ""
	}
	return t.strs[i]
}

func (t *flatTree) nodeType(i int) int {
	if i < len(t.nodes.NodeType) {
		return t.nodes.NodeType[i]
	}
	return 0
}

func (t *flatTree) tag(i int) string {
	if i < len(t.nodes.NodeName) {
		return strings.ToLower(t.str(t.nodes.NodeName[i]))
	}
	return ""
}

func (t *flatTree) value(i int) string {
	if i < len(t.nodes.NodeValue) {
		return t.str(t.nodes.NodeValue[i])
	}
	return ""
}

func (t *flatTree) attr(i int, name string) (string, bool) {
	if i >= len(t.nodes.Attributes) {
		return "", false
	}
	attrs := t.nodes.Attributes[i]
	for j := 0; j+1 < len(attrs); j += 2 {
		if strings.EqualFold(t.str(attrs[j]), name) {
			return t.str(attrs[j+1]), true
		}
	}
	return "", false
}

func (t *flatTree) find(tag string) int {
	for i := 0; i < t.len(); i++ {
		if t.nodeType(i) == 1 && t.tag(i) == tag {
			return i
		}
	}
	return -1
}

func (t *flatTree) base(i int) node {
	n := node{tag: t.tag(i)}
	if i < len(t.nodes.BackendNodeID) {
		n.key = KeyFor(t.epoch, t.nodes.BackendNodeID[i])
	}
	if li, ok := t.layoutOf[i]; ok && li < len(t.layout.Bounds) {
		n.frame = rect(t.layout.Bounds[li])
	}
	return n
}

// styleValue returns computed style k (an index into ComputedStyles).
func (t *flatTree) styleValue(i, k int) string {
	li, ok := t.layoutOf[i]
	if !ok || li >= len(t.layout.Styles) {
		return ""
	}
	s := t.layout.Styles[li]
	if k >= len(s) {
		return ""
	}
	return t.str(s[k])
}

var skipTags = map[string]bool{
	"head": true, "script": true, "style": true, "noscript": true,
	"template": true, "meta": true, "link": true, "title": true,
}

// build returns the view for node i, or nil when it is not rendered.
func (t *flatTree) build(i int) recorder.View {
	_, laidOut := t.layoutOf[i]

	switch t.nodeType(i) {
	case 3:
		text := t.value(i)
		if !laidOut || strings.TrimSpace(text) == "" {
			return nil
		}
		n := t.base(i)
		n.tag = "#text"
		return &Text{node: n, text: text}
	case 1:
	default:
		return nil
	}

	tag := t.tag(i)
	if skipTags[tag] || !laidOut {
		return nil
	}

	n := t.base(i)
	st := t.computedStyle(i)

	switch tag {
	case "input":
		typ, _ := t.attr(i, "type")
		typ = strings.ToLower(typ)
		if isTextInput(typ) {
			ph, _ := t.attr(i, "placeholder")
			return &Input{node: n, value: t.input[i], placeholder: ph, secure: typ == "password", style: st}
		}
	case "textarea":
		ph, _ := t.attr(i, "placeholder")
		return &Input{node: n, value: t.textarea[i], placeholder: ph, style: st}
	case "select":
		return &Select{node: n, selected: t.selectedOption(i), style: st}
	case "img":
		src, _ := t.attr(i, "src")
		return &Image{node: n, src: src}
	}

	el := &Element{node: n, style: st, hidden: t.isHidden(i)}
	if el.hidden {
		return el
	}
	for _, c := range t.children[i] {
		if v := t.build(c); v != nil {
			el.subviews = append(el.subviews, v)
		}
	}
	return el
}

func (t *flatTree) isHidden(i int) bool {
	if t.styleValue(i, styleVisibility) == "hidden" || t.styleValue(i, styleDisplay) == "none" {
		return true
	}
	if op := t.styleValue(i, styleOpacity); op != "" {
		if f, err := strconv.ParseFloat(op, 64); err == nil && f == 0 {
			return true
		}
	}
	return false
}

func (t *flatTree) computedStyle(i int) recorder.Style {
	var st recorder.Style
	if bg := t.styleValue(i, styleBackground); !transparent(bg) {
		st.BackgroundColor = bg
	}
	if w := px(t.styleValue(i, styleBorderWidth)); w > 0 {
		st.BorderWidth = w
		st.BorderColor = t.styleValue(i, styleBorderColor)
	}
	st.CornerRadius = px(t.styleValue(i, styleBorderRadius))
	if op := t.styleValue(i, styleOpacity); op != "" {
		if f, err := strconv.ParseFloat(op, 64); err == nil && f < 1 {
			st.Opacity = f
		}
	}
	return st
}

func (t *flatTree) selectedOption(i int) string {
	first := ""
	for _, c := range t.descendants(i) {
		if t.nodeType(c) != 1 || t.tag(c) != "option" {
			continue
		}
		text := strings.TrimSpace(t.textContent(c))
		if t.selected[c] {
			return text
		}
		if first == "" {
			first = text
		}
	}
	return first
}

func (t *flatTree) textContent(i int) string {
	var b strings.Builder
	for _, c := range t.descendants(i) {
		if t.nodeType(c) == 3 {
			b.WriteString(t.value(c))
		}
	}
	return b.String()
}

func (t *flatTree) descendants(i int) []int {
	var out []int
	for _, c := range t.children[i] {
		out = append(out, c)
		out = append(out, t.descendants(c)...)
	}
	return out
}

func isTextInput(typ string) bool {
	switch typ {
	case "", "text", "password", "email", "search", "tel", "url", "number":
		return true
	}
	return false
}

func rect(r proto.DOMSnapshotRectangle) recorder.Rect {
	if len(r) < 4 {
		return recorder.Rect{}
	}
	return recorder.Rect{X: r[0], Y: r[1], Width: r[2], Height: r[3]}
}

func rareStrings(d *proto.DOMSnapshotRareStringData, strs []string) map[int]string {
	out := make(map[int]string)
	if d == nil {
		return out
	}
	for j, idx := range d.Index {
		if j < len(d.Value) {
			v := d.Value[j]
			if v >= 0 && int(v) < len(strs) {
				out[idx] = strs[v]
			}
		}
	}
	return out
}

func rareBools(d *proto.DOMSnapshotRareBooleanData) map[int]bool {
	out := make(map[int]bool)
	if d == nil {
		return out
	}
	for _, idx := range d.Index {
		out[idx] = true
	}
	return out
}

func transparent(color string) bool {
	switch strings.ReplaceAll(color, " ", "") {
	case "", "transparent", "rgba(0,0,0,0)":
		return true
	}
	return false
}

// px parses a CSS pixel length such as "4px". Compound values use the first
// component.
func px(v string) float64 {
	if f := strings.Fields(v); len(f) > 0 {
		v = f[0]
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return 0
	}
	return f
}
