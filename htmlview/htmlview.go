// Package htmlview exposes static HTML as a recorder view tree. It serves
// pages fetched over plain HTTP, where no browser lays the page out.
//
// Markup is first reduced to the elements a replay can render with a
// bluemonday allow-list (scripts, styles and event handlers never become
// views), then parsed with golang.org/x/net/html. With no layout engine,
// frames are synthesised by stacking rendered lines vertically, which keeps
// geometry ordered and non-overlapping.
package htmlview

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/replay/recorder"
)

const (
	// ViewportWidth is the width of every synthesised frame.
	ViewportWidth = 1024
	// LineHeight is the height of one rendered line.
	LineHeight = 20
)

// Option configures Parse.
type Option func(*parser)

// WithKeyer sets how nodes are keyed. The default keys by node identity.
func WithKeyer(k Keyer) Option {
	return func(p *parser) { p.keys = k }
}

// WithoutSanitize parses the markup as given.
func WithoutSanitize() Option {
	return func(p *parser) { p.sanitize = false }
}

type parser struct {
	keys     Keyer
	sanitize bool
	y        float64
}

// Policy returns the allow-list applied before parsing.
func Policy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"div", "span", "p", "a", "ul", "ol", "li", "dl", "dt", "dd",
		"h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "code",
		"em", "strong", "b", "i", "u", "small", "br", "hr",
		"table", "thead", "tbody", "tfoot", "tr", "td", "th",
		"section", "article", "main", "nav", "header", "footer", "aside",
		"form", "label", "button", "input", "textarea", "select", "option", "fieldset", "legend",
	)
	p.AllowAttrs("type", "value", "placeholder", "selected", "hidden", "name").Globally()
	p.AllowImages()
	p.AllowStandardURLs()
	p.AllowRelativeURLs(true)
	return p
}

var policy = Policy()

// Parse reads markup and returns the view for <body>.
func Parse(r io.Reader, opts ...Option) (recorder.View, error) {
	p := &parser{keys: defaultKeys, sanitize: true}
	for _, o := range opts {
		o(p)
	}

	if p.sanitize {
		clean := policy.SanitizeReader(r)
		r = bytes.NewReader(clean.Bytes())
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmlview: parse: %w", err)
	}

	body := findElement(doc, "body")
	if body == nil {
		return nil, fmt.Errorf("htmlview: no <body>")
	}
	v := p.build(body, "/html/body")
	if v == nil {
		return nil, fmt.Errorf("htmlview: empty <body>")
	}
	return v, nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, tag); f != nil {
			return f
		}
	}
	return nil
}

func (p *parser) base(n *html.Node, path string, tag string) node {
	return node{key: p.keys.Key(n, path), tag: tag}
}

// line reserves one line and returns its frame.
func (p *parser) line() recorder.Rect {
	r := recorder.Rect{X: 0, Y: p.y, Width: ViewportWidth, Height: LineHeight}
	p.y += LineHeight
	return r
}

func (p *parser) build(n *html.Node, path string) recorder.View {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		t := &Text{node: p.base(n, path, "#text"), text: strings.TrimSpace(n.Data)}
		t.frame = p.line()
		return t
	case html.ElementNode:
	default:
		return nil
	}

	if _, ok := attr(n, "hidden"); ok {
		el := &Element{node: p.base(n, path, n.Data), hidden: true}
		el.frame = recorder.Rect{X: 0, Y: p.y, Width: ViewportWidth}
		return el
	}

	switch n.Data {
	case "input":
		typ, _ := attr(n, "type")
		typ = strings.ToLower(typ)
		if typ == "hidden" {
			return nil
		}
		if isTextInput(typ) {
			value, _ := attr(n, "value")
			ph, _ := attr(n, "placeholder")
			in := &Input{node: p.base(n, path, "input"), value: value, placeholder: ph, secure: typ == "password"}
			in.frame = p.line()
			return in
		}
	case "textarea":
		ph, _ := attr(n, "placeholder")
		in := &Input{node: p.base(n, path, "textarea"), value: textContent(n), placeholder: ph}
		in.frame = p.line()
		return in
	case "select":
		s := &Select{node: p.base(n, path, "select"), selected: selectedOption(n)}
		s.frame = p.line()
		return s
	case "img":
		src, _ := attr(n, "src")
		img := &Image{node: p.base(n, path, "img"), src: src}
		img.frame = p.line()
		return img
	case "br", "hr":
		p.y += LineHeight / 2
		return nil
	}

	el := &Element{node: p.base(n, path, n.Data)}
	top := p.y
	for c, paths := n.FirstChild, childPaths(n, path); c != nil; c = c.NextSibling {
		if v := p.build(c, paths[c]); v != nil {
			el.subviews = append(el.subviews, v)
		}
	}
	el.frame = recorder.Rect{X: 0, Y: top, Width: ViewportWidth, Height: p.y - top}
	return el
}

// childPaths computes the XPath of every child of n. Same-tag siblings get a
// 1-based index when there is more than one of them.
func childPaths(n *html.Node, parent string) map[*html.Node]string {
	total := map[string]int{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		total[stepName(c)]++
	}
	seen := map[string]int{}
	out := make(map[*html.Node]string, len(total))
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		name := stepName(c)
		seen[name]++
		if total[name] > 1 {
			out[c] = fmt.Sprintf("%s/%s[%d]", parent, name, seen[name])
		} else {
			out[c] = parent + "/" + name
		}
	}
	return out
}

func stepName(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return "text()"
	case html.CommentNode:
		return "comment()"
	case html.ElementNode:
		return n.Data
	default:
		return "node()"
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func selectedOption(sel *html.Node) string {
	first := ""
	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "option" {
			text := strings.TrimSpace(textContent(n))
			if _, ok := attr(n, "selected"); ok {
				found = text
				return true
			}
			if first == "" {
				first = text
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if walk(sel) {
		return found
	}
	return first
}

func isTextInput(typ string) bool {
	switch typ {
	case "", "text", "password", "email", "search", "tel", "url", "number":
		return true
	}
	return false
}
