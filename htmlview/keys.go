package htmlview

import (
	"runtime"
	"sync"
	"weak"

	"golang.org/x/net/html"

	"github.com/hazyhaar/replay/recorder"
)

// Keyer assigns recorder keys to parsed nodes.
type Keyer interface {
	Key(n *html.Node, path string) recorder.Key
}

// identityKeys keys nodes by object identity. Entries are held through weak
// pointers and dropped by a runtime cleanup once the node is collected, so
// the table never keeps a tree alive. Keys come from a counter and are never
// handed out twice.
type identityKeys struct {
	mu   sync.Mutex
	next recorder.Key
	keys map[weak.Pointer[html.Node]]recorder.Key
}

var defaultKeys = &identityKeys{keys: make(map[weak.Pointer[html.Node]]recorder.Key)}

func (k *identityKeys) Key(n *html.Node, _ string) recorder.Key {
	wp := weak.Make(n)

	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.keys[wp]; ok {
		return key
	}
	k.next++
	key := k.next
	k.keys[wp] = key
	runtime.AddCleanup(n, k.forget, wp)
	return key
}

func (k *identityKeys) forget(wp weak.Pointer[html.Node]) {
	k.mu.Lock()
	delete(k.keys, wp)
	k.mu.Unlock()
}

func (k *identityKeys) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}

// PathKeys keys nodes by their XPath, so re-parsing the same markup yields
// the same keys. Use one PathKeys per page.
type PathKeys struct {
	mu   sync.Mutex
	next recorder.Key
	keys map[string]recorder.Key
}

// NewPathKeys creates an empty path table.
func NewPathKeys() *PathKeys {
	return &PathKeys{keys: make(map[string]recorder.Key)}
}

func (p *PathKeys) Key(_ *html.Node, path string) recorder.Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key, ok := p.keys[path]; ok {
		return key
	}
	p.next++
	p.keys[path] = p.next
	return p.next
}

// Len reports how many paths hold a key.
func (p *PathKeys) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
