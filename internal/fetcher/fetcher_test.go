package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/replay/recorder"
)

func TestFetch_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "replay") {
			t.Errorf("user agent: got %q", ua)
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<p>hi</p>"))
	}))
	defer srv.Close()

	f := New()
	p, err := f.Fetch(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Body) != "<p>hi</p>" || p.ETag != `"v1"` {
		t.Errorf("page: got %+v", p)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing", ""); err == nil {
		t.Error("expected error for 404")
	}
}

func TestSource_ConditionalAndStableKeys(t *testing.T) {
	var gets, notModified atomic.Int32
	body := atomic.Value{}
	body.Store(`<div><p>one</p></div>`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		b := body.Load().(string)
		etag := `"` + b + `"`
		if r.Header.Get("If-None-Match") == etag {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Write([]byte(b))
	}))
	defer srv.Close()

	src := New().Source(srv.URL)
	ctx := context.Background()

	first, err := src.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := src.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if notModified.Load() != 1 {
		t.Errorf("304 answers: got %d, want 1", notModified.Load())
	}
	if first != second {
		t.Error("304 did not return the cached tree")
	}

	body.Store(`<div><p>two</p></div>`)
	third, err := src.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Fatal("changed page returned cached tree")
	}
	if key(first, 0, 0) != key(third, 0, 0) {
		t.Error("paragraph key changed between fetches of the same structure")
	}
	if gets.Load() != 3 {
		t.Errorf("requests: got %d, want 3", gets.Load())
	}
}

func key(v recorder.View, path ...int) recorder.Key {
	for _, i := range path {
		v = v.Subviews()[i]
	}
	return v.Key()
}

func TestIsSufficient(t *testing.T) {
	article := `<!DOCTYPE html><html><head><title>T</title></head><body><main><article><h1>Title</h1><p>` +
		strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit. ", 6) +
		`</p></article></main></body></html>`

	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"article", article, true},
		{"too short", `<html><body>hi</body></html>`, false},
		{"spa shell", `<!DOCTYPE html><html><head><meta charset="utf-8"><title>App</title></head><body>` +
			`<div id="root"></div><script src="/static/js/main.chunk.js"></script>` +
			strings.Repeat("<!-- padding -->", 20) + `</body></html>`, false},
		{"script heavy", `<html><body><p>short text</p><script>` + strings.Repeat("var a = 1;", 200) + `</script></body></html>`, false},
	}
	for _, tt := range tests {
		if got := IsSufficient([]byte(tt.doc)); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFetch_RateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("<p>hi</p>"))
	}))
	defer srv.Close()

	// One token, refilled every hour: the second request must wait.
	f := New(WithRateLimit(1.0/3600, 1))
	if _, err := f.Fetch(context.Background(), srv.URL, ""); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Fetch(ctx, srv.URL, ""); err == nil {
		t.Error("second fetch: expected rate limit error")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits: got %d, want 1", got)
	}
}
