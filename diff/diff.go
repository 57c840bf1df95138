package diff

import (
	"github.com/hazyhaar/replay/recorder"
)

type place struct {
	node   *recorder.Node
	parent *recorder.NodeID
	prev   *recorder.NodeID
	index  int
}

func index(root *recorder.Node) map[recorder.NodeID]place {
	out := make(map[recorder.NodeID]place)
	if root == nil {
		return out
	}
	out[root.ID] = place{node: root}
	root.Walk(func(n *recorder.Node) bool {
		var prev *recorder.NodeID
		for i, c := range n.Children {
			out[c.ID] = place{node: c, parent: idPtr(n.ID), prev: prev, index: i}
			prev = idPtr(c.ID)
		}
		return true
	})
	return out
}

func idPtr(id recorder.NodeID) *recorder.NodeID { return &id }

func sameID(a, b *recorder.NodeID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Diff returns the records that turn prev into next.
//
// Removals come first, topmost node only. Then next is walked depth-first:
// new nodes are added after their previous sibling, kept nodes get an update
// when a field changed. A node that changed parent or was reordered among its
// siblings is removed and added back with its subtree. A nil prev (or prev
// without a root) yields one add per node of next.
func Diff(prev, next *recorder.ViewTreeSnapshot) []Record {
	var prevRoot, nextRoot *recorder.Node
	if prev != nil {
		prevRoot = prev.Root
	}
	if next != nil {
		nextRoot = next.Root
	}
	before, after := index(prevRoot), index(nextRoot)
	moved := movedNodes(before, after, nextRoot)

	var out []Record
	gone := make(map[recorder.NodeID]bool)
	prevRoot.Walk(func(n *recorder.Node) bool {
		if _, kept := after[n.ID]; kept && !moved[n.ID] {
			return true
		}
		out = append(out, Record{Op: OpRemove, ID: n.ID})
		n.Walk(func(d *recorder.Node) bool {
			gone[d.ID] = true
			return true
		})
		return false
	})

	nextRoot.Walk(func(n *recorder.Node) bool {
		a := after[n.ID]
		b, existed := before[n.ID]
		if !existed || gone[n.ID] {
			out = append(out, Record{
				Op:       OpAdd,
				ID:       n.ID,
				ParentID: a.parent,
				PrevID:   a.prev,
				Node:     shallow(n),
			})
			return true
		}
		if r, ok := update(b.node, n); ok {
			out = append(out, r)
		}
		return true
	})
	return out
}

// movedNodes finds kept nodes whose parent changed, plus the nodes that break
// the previous relative order among surviving siblings.
func movedNodes(before, after map[recorder.NodeID]place, nextRoot *recorder.Node) map[recorder.NodeID]bool {
	moved := make(map[recorder.NodeID]bool)
	for id, a := range after {
		if b, ok := before[id]; ok && !sameID(a.parent, b.parent) {
			moved[id] = true
		}
	}
	nextRoot.Walk(func(n *recorder.Node) bool {
		last := -1
		for _, c := range n.Children {
			b, ok := before[c.ID]
			if !ok || moved[c.ID] {
				continue
			}
			if b.index < last {
				moved[c.ID] = true
				continue
			}
			last = b.index
		}
		return true
	})
	return moved
}

func shallow(n *recorder.Node) *recorder.Node {
	c := *n
	c.Children = nil
	return &c
}

// update compares the node's own fields. A style that disappeared is reported
// as the zero Style.
func update(old, n *recorder.Node) (Record, bool) {
	r := Record{Op: OpUpdate, ID: n.ID}
	changed := false
	if old.Kind != n.Kind {
		k := n.Kind
		r.Kind = &k
		changed = true
	}
	if old.Frame != n.Frame {
		f := n.Frame
		r.Frame = &f
		changed = true
	}
	if old.Text != n.Text {
		t := n.Text
		r.Text = &t
		changed = true
	}
	if styleOf(old) != styleOf(n) {
		s := styleOf(n)
		r.Style = &s
		changed = true
	}
	if old.Resource != n.Resource {
		res := n.Resource
		r.Resource = &res
		changed = true
	}
	return r, changed
}

func styleOf(n *recorder.Node) recorder.Style {
	if n.Style == nil {
		return recorder.Style{}
	}
	return *n.Style
}

// Apply replays records onto a copy of root and returns the new tree. It is
// the reference consumer of Diff.
func Apply(root *recorder.Node, records []Record) *recorder.Node {
	root = clone(root)
	byID := make(map[recorder.NodeID]*recorder.Node)
	parentOf := make(map[recorder.NodeID]*recorder.Node)
	register := func(n, parent *recorder.Node) {
		n.Walk(func(d *recorder.Node) bool {
			byID[d.ID] = d
			for _, c := range d.Children {
				parentOf[c.ID] = d
			}
			return true
		})
		if parent != nil {
			parentOf[n.ID] = parent
		}
	}
	register(root, nil)

	for _, r := range records {
		switch r.Op {
		case OpRemove:
			n, ok := byID[r.ID]
			if !ok {
				continue
			}
			if p := parentOf[r.ID]; p != nil {
				p.Children = without(p.Children, r.ID)
			} else if root != nil && root.ID == r.ID {
				root = nil
			}
			n.Walk(func(d *recorder.Node) bool {
				delete(byID, d.ID)
				delete(parentOf, d.ID)
				return true
			})
		case OpAdd:
			if r.Node == nil {
				continue
			}
			n := shallow(r.Node)
			if r.ParentID == nil {
				root = n
				register(n, nil)
				continue
			}
			p, ok := byID[*r.ParentID]
			if !ok {
				continue
			}
			p.Children = insertAfter(p.Children, r.PrevID, n)
			register(n, p)
		case OpUpdate:
			n, ok := byID[r.ID]
			if !ok {
				continue
			}
			if r.Kind != nil {
				n.Kind = *r.Kind
			}
			if r.Frame != nil {
				n.Frame = *r.Frame
			}
			if r.Text != nil {
				n.Text = *r.Text
			}
			if r.Style != nil {
				if *r.Style == (recorder.Style{}) {
					n.Style = nil
				} else {
					s := *r.Style
					n.Style = &s
				}
			}
			if r.Resource != nil {
				n.Resource = *r.Resource
			}
		}
	}
	return root
}

func clone(n *recorder.Node) *recorder.Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Style != nil {
		s := *n.Style
		c.Style = &s
	}
	c.Children = make([]*recorder.Node, 0, len(n.Children))
	for _, ch := range n.Children {
		c.Children = append(c.Children, clone(ch))
	}
	return &c
}

func without(children []*recorder.Node, id recorder.NodeID) []*recorder.Node {
	out := children[:0]
	for _, c := range children {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func insertAfter(children []*recorder.Node, prev *recorder.NodeID, n *recorder.Node) []*recorder.Node {
	at := 0
	if prev != nil {
		for i, c := range children {
			if c.ID == *prev {
				at = i + 1
				break
			}
		}
	}
	children = append(children, nil)
	copy(children[at+1:], children[at:])
	children[at] = n
	return children
}
