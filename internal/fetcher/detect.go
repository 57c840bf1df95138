package fetcher

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// spaShells are mount points left empty until JavaScript runs.
var spaShells = []string{"root", "app", "__next", "__nuxt"}

// IsSufficient reports whether html already carries its content, so the
// page can be recorded without a browser. Pages with under 200 visible
// characters, under 10% text, or an empty SPA mount point need one.
func IsSufficient(doc []byte) bool {
	if len(doc) < 256 {
		return false
	}
	text, markup, shell := measure(doc)
	if shell || text < 200 {
		return false
	}
	return float64(text)/float64(text+markup) >= 0.10
}

// measure counts visible non-space text bytes and everything else.
func measure(doc []byte) (text, markup int, shell bool) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	skip := 0
	var openShell string
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed document; either way stop counting.
			return text, markup, shell
		case html.TextToken:
			raw := z.Raw()
			if skip > 0 {
				markup += len(raw)
				continue
			}
			n := 0
			for _, r := range string(raw) {
				if !unicode.IsSpace(r) {
					n++
				}
			}
			text += n
			markup += len(raw) - n
			if openShell != "" && n > 0 {
				openShell = ""
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			markup += len(z.Raw())
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" || tag == "noscript" {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			}
			if tag == "div" && tt == html.StartTagToken && hasAttr {
				openShell = shellID(z)
				continue
			}
			if tag == "div" && tt == html.EndTagToken && openShell != "" {
				shell = true
			}
			openShell = ""
		default:
			markup += len(z.Raw())
		}
	}
}

func shellID(z *html.Tokenizer) string {
	for {
		k, v, more := z.TagAttr()
		if strings.EqualFold(string(k), "id") {
			for _, s := range spaShells {
				if string(v) == s {
					return s
				}
			}
			return ""
		}
		if !more {
			return ""
		}
	}
}
