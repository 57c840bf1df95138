// Package fetcher is the browserless acquisition path: an HTTP GET whose
// body is parsed into a view tree by htmlview.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/replay/htmlview"
	"github.com/hazyhaar/replay/recorder"
)

// maxBody caps a fetched page.
const maxBody = 10 << 20

// Fetcher performs the HTTP requests.
type Fetcher struct {
	client  *http.Client
	ua      string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithRateLimit caps requests across every page of this Fetcher at perSecond,
// with bursts of up to burst. perSecond <= 0 disables the cap.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; replay/1.0)",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Page is one fetched document.
type Page struct {
	Body       []byte
	StatusCode int
	ETag       string
	LastMod    string
}

// Fetch GETs pageURL. etag, when set, is sent as If-None-Match; a 304
// answer returns a Page with no body.
func (f *Fetcher) Fetch(ctx context.Context, pageURL, etag string) (*Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetcher: rate limit: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	p := &Page{
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		LastMod:    resp.Header.Get("Last-Modified"),
	}
	if resp.StatusCode == http.StatusNotModified {
		return p, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetcher: get %s: status %d", pageURL, resp.StatusCode)
	}
	p.Body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}

	f.logger.Debug("fetcher: fetched", "url", pageURL, "status", resp.StatusCode, "size", len(p.Body))
	return p, nil
}

// Source returns a capture source that fetches pageURL on every capture.
// Keys are XPaths, so unchanged markup keeps its node ids.
func (f *Fetcher) Source(pageURL string) *Source {
	return &Source{f: f, url: pageURL, keys: htmlview.NewPathKeys()}
}

// Source is one page fetched over HTTP. It implements capture.Source.
type Source struct {
	f    *Fetcher
	url  string
	keys *htmlview.PathKeys

	mu   sync.Mutex
	etag string
	last recorder.View
}

// Root fetches and parses the page. When the server answers 304 the
// previous tree is returned as is.
func (s *Source) Root(ctx context.Context) (recorder.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	etag := ""
	if s.last != nil {
		etag = s.etag
	}
	p, err := s.f.Fetch(ctx, s.url, etag)
	if err != nil {
		return nil, err
	}
	if p.StatusCode == http.StatusNotModified && s.last != nil {
		return s.last, nil
	}

	root, err := htmlview.Parse(bytes.NewReader(p.Body), htmlview.WithKeyer(s.keys))
	if err != nil {
		return nil, fmt.Errorf("fetcher: %s: %w", s.url, err)
	}
	s.etag, s.last = p.ETag, root
	return root, nil
}
