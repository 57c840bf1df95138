package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hazyhaar/replay/recorder"
)

func n(id recorder.NodeID, text string, children ...*recorder.Node) *recorder.Node {
	return &recorder.Node{ID: id, Kind: recorder.KindContainer, Text: text, Children: children}
}

func snap(root *recorder.Node) *recorder.ViewTreeSnapshot {
	return &recorder.ViewTreeSnapshot{Root: root}
}

// shape renders a tree as "id(child,child)" with text, ignoring slice identity.
func shape(root *recorder.Node) string {
	if root == nil {
		return "<nil>"
	}
	var b strings.Builder
	var walk func(*recorder.Node)
	walk = func(x *recorder.Node) {
		fmt.Fprintf(&b, "%d", x.ID)
		if x.Text != "" {
			fmt.Fprintf(&b, "%q", x.Text)
		}
		if len(x.Children) > 0 {
			b.WriteString("(")
			for i, c := range x.Children {
				if i > 0 {
					b.WriteString(",")
				}
				walk(c)
			}
			b.WriteString(")")
		}
	}
	walk(root)
	return b.String()
}

func ops(records []Record) string {
	var parts []string
	for _, r := range records {
		parts = append(parts, fmt.Sprintf("%s:%d", r.Op, r.ID))
	}
	return strings.Join(parts, " ")
}

func TestDiff_NilPrevAddsEverything(t *testing.T) {
	next := snap(n(0, "", n(1, "a"), n(2, "", n(3, "b"))))
	got := Diff(nil, next)
	if want := "add:0 add:1 add:2 add:3"; ops(got) != want {
		t.Fatalf("ops: got %q, want %q", ops(got), want)
	}
	if got[0].ParentID != nil {
		t.Errorf("root add has parent %d", *got[0].ParentID)
	}
	if got[3].ParentID == nil || *got[3].ParentID != 2 || got[3].PrevID != nil {
		t.Errorf("add:3 placement: parent=%v prev=%v", got[3].ParentID, got[3].PrevID)
	}
	if len(got[2].Node.Children) != 0 {
		t.Error("add record carries children")
	}
}

func TestDiff_Identical(t *testing.T) {
	tree := func() *recorder.Node { return n(0, "", n(1, "a"), n(2, "b")) }
	if got := Diff(snap(tree()), snap(tree())); len(got) != 0 {
		t.Errorf("identical trees: got %q", ops(got))
	}
}

func TestDiff_TextUpdate(t *testing.T) {
	prev := snap(n(0, "", n(1, "a")))
	next := snap(n(0, "", n(1, "b")))
	got := Diff(prev, next)
	if len(got) != 1 || got[0].Op != OpUpdate || got[0].Text == nil || *got[0].Text != "b" {
		t.Fatalf("got %+v", got)
	}
	if got[0].Frame != nil || got[0].Kind != nil || got[0].Style != nil {
		t.Error("unchanged fields reported")
	}
}

func TestDiff_InsertAndRemove(t *testing.T) {
	prev := snap(n(0, "", n(1, "a"), n(2, "b", n(4, "x"))))
	next := snap(n(0, "", n(1, "a"), n(3, "c")))
	got := Diff(prev, next)
	if want := "remove:2 add:3"; ops(got) != want {
		t.Fatalf("ops: got %q, want %q", ops(got), want)
	}
	if p := got[1].PrevID; p == nil || *p != 1 {
		t.Errorf("add:3 prev: got %v, want 1", p)
	}
}

func TestDiff_ReparentedNodeIsReadded(t *testing.T) {
	prev := snap(n(0, "", n(1, "", n(3, "moved")), n(2, "")))
	next := snap(n(0, "", n(1, ""), n(2, "", n(3, "moved"))))
	got := Diff(prev, next)
	if want := "remove:3 add:3"; ops(got) != want {
		t.Fatalf("ops: got %q, want %q", ops(got), want)
	}
}

func TestDiff_RoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		prev, next *recorder.Node
	}{
		{"empty to tree", nil, n(0, "", n(1, "a"))},
		{"tree to empty", n(0, "", n(1, "a")), nil},
		{"append", n(0, "", n(1, "a")), n(0, "", n(1, "a"), n(2, "b"))},
		{"prepend", n(0, "", n(1, "a")), n(0, "", n(2, "b"), n(1, "a"))},
		{"reorder", n(0, "", n(1, "a"), n(2, "b"), n(3, "c")), n(0, "", n(3, "c"), n(1, "a"), n(2, "b"))},
		{"swap", n(0, "", n(1, "a"), n(2, "b")), n(0, "", n(2, "b"), n(1, "a"))},
		{"nested move", n(0, "", n(1, "", n(4, "", n(5, "deep"))), n(2, "")), n(0, "", n(1, ""), n(2, "", n(4, "", n(5, "deep"))))},
		{"new root", n(0, "", n(1, "a")), n(9, "", n(1, "a"))},
		{"wrap", n(0, "", n(1, "a"), n(2, "b")), n(0, "", n(7, "", n(1, "a"), n(2, "b")))},
		{"mixed", n(0, "", n(1, "a"), n(2, "b", n(3, "c")), n(4, "d")), n(0, "", n(4, "D"), n(5, "e"), n(2, "b"), n(6, "", n(3, "c")))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records := Diff(snap(tc.prev), snap(tc.next))
			got := Apply(tc.prev, records)
			if shape(got) != shape(tc.next) {
				t.Errorf("apply: got %s, want %s (records %s)", shape(got), shape(tc.next), ops(records))
			}
		})
	}
}

func TestDiff_StyleRemovedReportsZero(t *testing.T) {
	prev := n(0, "")
	prev.Style = &recorder.Style{BackgroundColor: "red"}
	next := n(0, "")
	got := Diff(snap(prev), snap(next))
	if len(got) != 1 || got[0].Style == nil || *got[0].Style != (recorder.Style{}) {
		t.Fatalf("got %+v", got)
	}
	if applied := Apply(prev, got); applied.Style != nil {
		t.Errorf("style after apply: got %+v, want nil", applied.Style)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	prev := n(0, "", n(1, "a"))
	Apply(prev, Diff(snap(prev), snap(n(0, "", n(1, "b"), n(2, "c")))))
	if shape(prev) != `0(1"a")` {
		t.Errorf("input mutated: %s", shape(prev))
	}
}
