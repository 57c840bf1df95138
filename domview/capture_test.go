package domview

import (
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/replay/recorder"
	"github.com/hazyhaar/replay/recorder/nodes"
)

// docBuilder assembles a DOMSnapshot document by hand.
type docBuilder struct {
	strs   []string
	index  map[string]proto.DOMSnapshotStringIndex
	nodes  proto.DOMSnapshotNodeTreeSnapshot
	layout proto.DOMSnapshotLayoutTreeSnapshot
}

func newDocBuilder() *docBuilder {
	return &docBuilder{
		index: map[string]proto.DOMSnapshotStringIndex{},
		nodes: proto.DOMSnapshotNodeTreeSnapshot{
			InputValue:     &proto.DOMSnapshotRareStringData{},
			TextValue:      &proto.DOMSnapshotRareStringData{},
			OptionSelected: &proto.DOMSnapshotRareBooleanData{},
		},
	}
}

func (b *docBuilder) s(v string) proto.DOMSnapshotStringIndex {
	if i, ok := b.index[v]; ok {
		return i
	}
	i := proto.DOMSnapshotStringIndex(len(b.strs))
	b.strs = append(b.strs, v)
	b.index[v] = i
	return i
}

type nodeDesc struct {
	parent   int
	typ      int
	name     string
	value    string
	attrs    []string
	bounds   []float64 // nil = no layout
	styles   []string  // in ComputedStyles order
	input    string
	selected bool
}

func (b *docBuilder) add(n nodeDesc) int {
	i := len(b.nodes.ParentIndex)
	b.nodes.ParentIndex = append(b.nodes.ParentIndex, n.parent)
	b.nodes.NodeType = append(b.nodes.NodeType, n.typ)
	b.nodes.NodeName = append(b.nodes.NodeName, b.s(n.name))
	b.nodes.NodeValue = append(b.nodes.NodeValue, b.s(n.value))
	b.nodes.BackendNodeID = append(b.nodes.BackendNodeID, proto.DOMBackendNodeID(1000+i))

	var attrs proto.DOMSnapshotArrayOfStrings
	for _, a := range n.attrs {
		attrs = append(attrs, b.s(a))
	}
	b.nodes.Attributes = append(b.nodes.Attributes, attrs)

	if n.input != "" {
		b.nodes.InputValue.Index = append(b.nodes.InputValue.Index, i)
		b.nodes.InputValue.Value = append(b.nodes.InputValue.Value, b.s(n.input))
	}
	if n.selected {
		b.nodes.OptionSelected.Index = append(b.nodes.OptionSelected.Index, i)
	}
	if n.bounds != nil {
		b.layout.NodeIndex = append(b.layout.NodeIndex, i)
		b.layout.Bounds = append(b.layout.Bounds, proto.DOMSnapshotRectangle(n.bounds))
		var st proto.DOMSnapshotArrayOfStrings
		styles := n.styles
		if styles == nil {
			styles = []string{"block", "visible", "1", "rgba(0, 0, 0, 0)", "rgb(0, 0, 0)", "0px", "0px"}
		}
		for _, v := range styles {
			st = append(st, b.s(v))
		}
		b.layout.Styles = append(b.layout.Styles, st)
	}
	return i
}

func (b *docBuilder) result() *proto.DOMSnapshotCaptureSnapshotResult {
	nodes, layout := b.nodes, b.layout
	return &proto.DOMSnapshotCaptureSnapshotResult{
		Documents: []*proto.DOMSnapshotDocumentSnapshot{{Nodes: &nodes, Layout: &layout}},
		Strings:   b.strs,
	}
}

func samplePage() *docBuilder {
	b := newDocBuilder()
	doc := b.add(nodeDesc{parent: -1, typ: 9, name: "#document"})
	html := b.add(nodeDesc{parent: doc, typ: 1, name: "HTML", bounds: []float64{0, 0, 800, 600}})
	head := b.add(nodeDesc{parent: html, typ: 1, name: "HEAD"})
	b.add(nodeDesc{parent: head, typ: 1, name: "SCRIPT"})
	body := b.add(nodeDesc{parent: html, typ: 1, name: "BODY", bounds: []float64{8, 8, 784, 584},
		styles: []string{"block", "visible", "1", "rgb(255, 255, 255)", "rgb(0, 0, 0)", "0px", "0px"}})
	p := b.add(nodeDesc{parent: body, typ: 1, name: "P", bounds: []float64{8, 8, 784, 20}})
	b.add(nodeDesc{parent: p, typ: 3, name: "#text", value: "Hello Alice", bounds: []float64{8, 8, 80, 20}})
	b.add(nodeDesc{parent: body, typ: 3, name: "#text", value: "\n  ", bounds: []float64{0, 0, 0, 0}})
	b.add(nodeDesc{parent: body, typ: 1, name: "INPUT", attrs: []string{"type", "password"}, input: "hunter2", bounds: []float64{8, 40, 200, 24}})
	b.add(nodeDesc{parent: body, typ: 1, name: "INPUT", attrs: []string{"type", "email", "placeholder", "Email"}, bounds: []float64{8, 70, 200, 24}})
	sel := b.add(nodeDesc{parent: body, typ: 1, name: "SELECT", bounds: []float64{8, 100, 120, 24}})
	o1 := b.add(nodeDesc{parent: sel, typ: 1, name: "OPTION"})
	b.add(nodeDesc{parent: o1, typ: 3, name: "#text", value: "France"})
	o2 := b.add(nodeDesc{parent: sel, typ: 1, name: "OPTION", selected: true})
	b.add(nodeDesc{parent: o2, typ: 3, name: "#text", value: "Spain"})
	b.add(nodeDesc{parent: body, typ: 1, name: "IMG", attrs: []string{"src", "/logo.png"}, bounds: []float64{8, 130, 64, 64}})
	hidden := b.add(nodeDesc{parent: body, typ: 1, name: "DIV", bounds: []float64{8, 200, 10, 10},
		styles: []string{"block", "hidden", "1", "rgba(0, 0, 0, 0)", "rgb(0, 0, 0)", "0px", "0px"}})
	b.add(nodeDesc{parent: hidden, typ: 3, name: "#text", value: "never", bounds: []float64{8, 200, 10, 10}})
	b.add(nodeDesc{parent: body, typ: 1, name: "DIV"}) // display:none, no layout box
	return b
}

func TestFromCapture_BuildsTree(t *testing.T) {
	root, err := FromCapture(samplePage().result())
	if err != nil {
		t.Fatal(err)
	}

	body, ok := root.(*Element)
	if !ok {
		t.Fatalf("root: got %T, want *Element", root)
	}
	if body.Tag() != "body" {
		t.Errorf("root tag: got %q, want body", body.Tag())
	}
	if body.Style().BackgroundColor != "rgb(255, 255, 255)" {
		t.Errorf("background: got %q", body.Style().BackgroundColor)
	}

	subs := body.Subviews()
	if len(subs) != 6 {
		t.Fatalf("body subviews: got %d, want 6", len(subs))
	}
	if _, ok := subs[0].(*Element); !ok {
		t.Errorf("subs[0]: got %T, want *Element", subs[0])
	}
	pw, ok := subs[1].(*Input)
	if !ok || !pw.Secure() || pw.InputValue() != "hunter2" {
		t.Errorf("subs[1]: got %#v, want secure input", subs[1])
	}
	email, ok := subs[2].(*Input)
	if !ok || email.Secure() || email.Placeholder() != "Email" {
		t.Errorf("subs[2]: got %#v, want email input", subs[2])
	}
	sel, ok := subs[3].(*Select)
	if !ok || sel.SelectedText() != "Spain" {
		t.Errorf("subs[3]: got %#v, want select showing Spain", subs[3])
	}
	img, ok := subs[4].(*Image)
	if !ok || img.ImageSource() != "/logo.png" {
		t.Errorf("subs[4]: got %#v, want image", subs[4])
	}
	hid, ok := subs[5].(*Element)
	if !ok || !hid.Hidden() || len(hid.Subviews()) != 0 {
		t.Errorf("subs[5]: got %#v, want hidden element without subviews", subs[5])
	}
}

func TestFromCapture_KeysAreBackendIDs(t *testing.T) {
	first, err := FromCapture(samplePage().result())
	if err != nil {
		t.Fatal(err)
	}
	second, err := FromCapture(samplePage().result())
	if err != nil {
		t.Fatal(err)
	}
	if first.Key() != second.Key() {
		t.Errorf("root keys differ: %d vs %d", first.Key(), second.Key())
	}
	if first.Key() < 1000 {
		t.Errorf("root key: got %d, want a backend node id", first.Key())
	}
}

func TestFromCapture_EpochSeparatesRenderers(t *testing.T) {
	b := recorder.NewSnapshotBuilder(nodes.Defaults()...)
	ctx := recorder.Context{Privacy: recorder.PrivacyAllow, Date: time.Unix(0, 0)}

	ids := func(epoch uint32) map[recorder.NodeID]bool {
		t.Helper()
		root, err := FromCapture(samplePage().result(), WithEpoch(epoch))
		if err != nil {
			t.Fatal(err)
		}
		out := map[recorder.NodeID]bool{}
		for _, n := range b.CreateSnapshot(root, ctx).Nodes() {
			out[n.ID] = true
		}
		return out
	}

	before := ids(1)
	again := ids(1)
	after := ids(2)
	if len(before) == 0 || len(before) != len(again) {
		t.Fatalf("same epoch: got %d then %d ids", len(before), len(again))
	}
	for id := range again {
		if !before[id] {
			t.Errorf("same epoch: id %d not stable", id)
		}
	}
	for id := range after {
		if before[id] {
			t.Errorf("new epoch reused id %d for a different renderer's node", id)
		}
	}
}

func TestKeyFor(t *testing.T) {
	if KeyFor(0, 1042) != 1042 {
		t.Errorf("epoch 0: got %d, want 1042", KeyFor(0, 1042))
	}
	if KeyFor(1, 1042) == KeyFor(2, 1042) {
		t.Error("epochs collide")
	}
}

func TestFromCapture_NoDocument(t *testing.T) {
	_, err := FromCapture(&proto.DOMSnapshotCaptureSnapshotResult{})
	if !errors.Is(err, ErrNoDocument) {
		t.Errorf("got %v, want ErrNoDocument", err)
	}
}

func TestFromCapture_SnapshotWithDefaultRecorders(t *testing.T) {
	root, err := FromCapture(samplePage().result())
	if err != nil {
		t.Fatal(err)
	}

	b := recorder.NewSnapshotBuilder(nodes.Defaults()...)
	snap := b.CreateSnapshot(root, recorder.Context{Privacy: recorder.PrivacyAllow, Date: time.Now()})

	if snap.Root == nil || snap.Root.Kind != recorder.KindContainer {
		t.Fatalf("root: got %+v", snap.Root)
	}
	if snap.Root.Frame.X != 0 || snap.Root.Frame.Y != 0 {
		t.Errorf("root frame: got %+v, want origin", snap.Root.Frame)
	}

	var texts []string
	for _, n := range snap.Nodes() {
		if n.Kind == recorder.KindText || n.Kind == recorder.KindTextField || n.Kind == recorder.KindSelection {
			texts = append(texts, n.Text)
		}
	}
	want := []string{"Hello Alice", recorder.SensitivePlaceholder, "Email", "Spain"}
	if len(texts) != len(want) {
		t.Fatalf("texts: got %q, want %q", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("texts[%d]: got %q, want %q", i, texts[i], want[i])
		}
	}

	para := snap.Root.Children[0]
	if len(para.Children) != 1 || para.Children[0].Frame.X != 0 {
		t.Errorf("text frame relative to body: got %+v", para.Children)
	}
}
