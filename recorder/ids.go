package recorder

import (
	"math"
	"sync"
)

// NodeID identifies a recorded view across snapshots.
type NodeID uint32

// NodeIDGenerator hands out stable NodeIDs per view Key. The table is keyed by
// Key only and never holds a view. Ids are never reused, even after Release.
//
// A single generator is shared by successive captures, which may overlap, so
// all access goes through mu.
type NodeIDGenerator struct {
	mu   sync.Mutex
	next NodeID
	ids  map[Key]NodeID
	// seen holds the sweep round in which each key was last looked up.
	seen  map[Key]uint64
	round uint64
}

// NewNodeIDGenerator creates a generator whose first id is 0.
func NewNodeIDGenerator() *NodeIDGenerator {
	return &NodeIDGenerator{ids: make(map[Key]NodeID), seen: make(map[Key]uint64)}
}

// NodeID returns the id for view, allocating one on first sight.
func (g *NodeIDGenerator) NodeID(view View) NodeID {
	return g.nodeID(view.Key())
}

func (g *NodeIDGenerator) nodeID(key Key) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ids == nil {
		g.ids = make(map[Key]NodeID)
		g.seen = make(map[Key]uint64)
	}
	g.seen[key] = g.round
	if id, ok := g.ids[key]; ok {
		return id
	}
	if g.next == math.MaxUint32 {
		panic("recorder: node id space exhausted")
	}
	id := g.next
	g.next++
	g.ids[key] = id
	return id
}

// Release forgets the given keys. Their ids stay retired.
func (g *NodeIDGenerator) Release(keys ...Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		delete(g.ids, k)
		delete(g.seen, k)
	}
}

// Sweep closes a round and releases every key not looked up during the last
// keep rounds, keep >= 1. It returns how many keys were released. Callers run
// it once per capture so the table tracks live views only.
func (g *NodeIDGenerator) Sweep(keep int) int {
	if keep < 1 {
		keep = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.round++
	released := 0
	for k, r := range g.seen {
		if g.round-r > uint64(keep) {
			delete(g.ids, k)
			delete(g.seen, k)
			released++
		}
	}
	return released
}

// Len reports how many keys currently hold an id.
func (g *NodeIDGenerator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids)
}
