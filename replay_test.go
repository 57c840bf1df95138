package replay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/replay/capture"
	"github.com/hazyhaar/replay/diff"
	"github.com/hazyhaar/replay/internal/urlguard"
	"github.com/hazyhaar/replay/recorder"
)

const article = `<!doctype html>
<html><head><title>report</title></head>
<body>
  <h1>Daily Report</h1>
  <p>The quarterly figures came in above expectations for every region, with the northern
  offices leading the way on both revenue and retention across the whole period.</p>
  <p>Operations kept costs flat while shipping three new product lines, and the support
  team closed more tickets than in any previous quarter on record.</p>
  <p>Next quarter the focus moves to the southern offices, where hiring starts in spring.</p>
</body></html>`

// site serves markup that tests can change between requests.
type site struct {
	mu     sync.Mutex
	markup string
}

func (s *site) set(m string) {
	s.mu.Lock()
	s.markup = m
	s.mu.Unlock()
}

func (s *site) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	m := s.markup
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(m))
}

func newSite(t *testing.T, markup string) (*site, *httptest.Server) {
	t.Helper()
	s := &site{markup: markup}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

// outputs collects what the recorder sends.
type outputs struct {
	snapshots chan diff.Snapshot
	batches   chan diff.Batch
}

func newOutputs() *outputs {
	return &outputs{snapshots: make(chan diff.Snapshot, 64), batches: make(chan diff.Batch, 64)}
}

func (o *outputs) sink() Sink {
	return NewCallbackSink(
		func(_ context.Context, s diff.Snapshot) error { o.snapshots <- s; return nil },
		func(_ context.Context, b diff.Batch) error { o.batches <- b; return nil },
	)
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

// testConfig allows loopback so tests can capture httptest servers.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Fetch.AllowPrivate = true
	return cfg
}

func firstText(snap recorder.ViewTreeSnapshot) string {
	for _, n := range snap.Nodes() {
		if n.Kind == recorder.KindText {
			return n.Text
		}
	}
	return ""
}

func TestSnapshotOnce_AutoPicksHTTP(t *testing.T) {
	_, srv := newSite(t, article)
	out := newOutputs()
	r := New(testConfig(), nil, out.sink())
	defer r.Stop()

	snap, err := r.SnapshotOnce(context.Background(), srv.URL, recorder.PrivacyMask)
	if err != nil {
		t.Fatal(err)
	}
	if snap.PageID != OncePageID || snap.URL != srv.URL {
		t.Errorf("snapshot: got page %q url %q", snap.PageID, snap.URL)
	}
	if got := firstText(snap.Tree); got != "xxxxx xxxxxx" {
		t.Errorf("masked heading: got %q", got)
	}
	if sent := waitFor(t, out.snapshots); sent.ID != snap.ID {
		t.Errorf("sink got %q, want %q", sent.ID, snap.ID)
	}
	if len(r.Pages()) != 0 {
		t.Errorf("pages after SnapshotOnce: got %d, want 0", len(r.Pages()))
	}
}

func TestSnapshotOnce_Allow(t *testing.T) {
	_, srv := newSite(t, article)
	r := New(testConfig(), nil, newOutputs().sink())
	defer r.Stop()

	snap, err := r.SnapshotOnce(context.Background(), srv.URL, recorder.PrivacyAllow)
	if err != nil {
		t.Fatal(err)
	}
	if got := firstText(snap.Tree); got != "Daily Report" {
		t.Errorf("heading: got %q", got)
	}
}

func TestCapturePage_SnapshotThenBatch(t *testing.T) {
	s, srv := newSite(t, article)
	out := newOutputs()
	cfg := testConfig()
	cfg.RUM.ApplicationID = "app-1"
	r := New(cfg, nil, out.sink())
	defer r.Stop()

	pc := PageConfig{ID: "report", URL: srv.URL, Source: "http", Interval: 20 * time.Millisecond, Privacy: "allow", SessionID: "sess-1"}
	if err := r.CapturePage(context.Background(), pc); err != nil {
		t.Fatal(err)
	}

	snap := waitFor(t, out.snapshots)
	if snap.PageID != "report" {
		t.Errorf("page id: got %q", snap.PageID)
	}
	rum := snap.Tree.RUMContext
	if rum.ApplicationID != "app-1" || rum.SessionID != "sess-1" || rum.ViewID == "" {
		t.Errorf("rum context: got %+v", rum)
	}

	s.set(strings.Replace(article, "Daily Report", "Weekly Report", 1))
	batch := waitFor(t, out.batches)
	if batch.SnapshotRef != snap.ID || batch.Seq != 1 {
		t.Errorf("batch: ref %q seq %d, want ref %q seq 1", batch.SnapshotRef, batch.Seq, snap.ID)
	}
	var updated bool
	for _, rec := range batch.Records {
		if rec.Op == diff.OpUpdate && rec.Text != nil && *rec.Text == "Weekly Report" {
			updated = true
		}
	}
	if !updated {
		t.Errorf("batch records: no text update in %+v", batch.Records)
	}

	pages := r.Pages()
	if len(pages) != 1 || pages[0].ID != "report" || pages[0].Source != "http" || pages[0].Privacy != "allow" {
		t.Errorf("pages: got %+v", pages)
	}
}

func TestCapturePage_DuplicateAndStop(t *testing.T) {
	_, srv := newSite(t, article)
	r := New(testConfig(), nil, newOutputs().sink())
	defer r.Stop()

	pc := PageConfig{ID: "p", URL: srv.URL, Source: "http", Interval: time.Hour}
	if err := r.CapturePage(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if err := r.CapturePage(context.Background(), pc); !errors.Is(err, ErrPageExists) {
		t.Errorf("duplicate: got %v, want ErrPageExists", err)
	}
	if err := r.StopPage("p"); err != nil {
		t.Fatal(err)
	}
	if err := r.StopPage("p"); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("second stop: got %v, want ErrPageNotFound", err)
	}
	if _, err := r.CaptureNow(context.Background(), "p"); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("capture stopped page: got %v, want ErrPageNotFound", err)
	}
}

func TestCapturePage_MissingFields(t *testing.T) {
	r := New(testConfig(), nil)
	defer r.Stop()
	if err := r.CapturePage(context.Background(), PageConfig{ID: "x"}); err == nil {
		t.Error("expected error for page without url")
	}
	if err := r.CapturePage(context.Background(), PageConfig{ID: "a/b", URL: "https://example.com"}); !errors.Is(err, urlguard.ErrInvalidIdentifier) {
		t.Errorf("invalid page id: got %v, want ErrInvalidIdentifier", err)
	}
}

func TestGuard_RejectsPrivateByDefault(t *testing.T) {
	_, srv := newSite(t, article)
	r := New(nil, nil, newOutputs().sink())
	defer r.Stop()

	if _, err := r.SnapshotOnce(context.Background(), srv.URL, recorder.PrivacyMask); !errors.Is(err, urlguard.ErrPrivateAddress) {
		t.Errorf("SnapshotOnce: got %v, want ErrPrivateAddress", err)
	}
	err := r.CapturePage(context.Background(), PageConfig{ID: "p", URL: "file:///etc/passwd", Source: "http"})
	if !errors.Is(err, urlguard.ErrUnsafeScheme) {
		t.Errorf("CapturePage: got %v, want ErrUnsafeScheme", err)
	}
	if len(r.Pages()) != 0 {
		t.Error("rejected page is listed")
	}
}

func TestStart_ConfigPages(t *testing.T) {
	_, srv := newSite(t, article)
	out := newOutputs()
	cfg, err := ParseConfig([]byte(`
fetch:
  allow_private: true
pages:
  - id: a
    url: ` + srv.URL + `
    source: http
    interval: 1h
  - id: b
    url: ` + srv.URL + `
    source: http
    interval: 1h
`))
	if err != nil {
		t.Fatal(err)
	}
	r := New(cfg, nil, out.sink())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	got[waitFor(t, out.snapshots).PageID] = true
	got[waitFor(t, out.snapshots).PageID] = true
	if !got["a"] || !got["b"] {
		t.Errorf("snapshots for pages: got %v", got)
	}

	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if err := r.CapturePage(ctx, PageConfig{ID: "c", URL: srv.URL, Source: "http"}); err == nil {
		t.Error("expected error after Stop")
	}
}

func TestCaptureNow(t *testing.T) {
	_, srv := newSite(t, article)
	out := newOutputs()
	r := New(testConfig(), nil, out.sink())
	defer r.Stop()

	if err := r.CapturePage(context.Background(), PageConfig{ID: "p", URL: srv.URL, Source: "http", Interval: time.Hour}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, out.snapshots)

	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := r.CaptureNow(context.Background(), "p")
		if errors.Is(err, capture.ErrBusy) && time.Now().Before(deadline) {
			// The first tick is still returning.
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if res.Snapshot != nil || res.Batch != nil {
			t.Errorf("unchanged page: got snapshot=%v batch=%v", res.Snapshot != nil, res.Batch != nil)
		}
		break
	}
}

func TestRegistry_CaptureMetrics(t *testing.T) {
	_, srv := newSite(t, article)
	r := New(testConfig(), nil, newOutputs().sink())
	defer r.Stop()

	if _, err := r.SnapshotOnce(context.Background(), srv.URL, recorder.PrivacyMask); err != nil {
		t.Fatal(err)
	}
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != "replay_capture_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	if total != 1 {
		t.Errorf("replay_capture_total: got %v, want 1", total)
	}
}

func TestOpenSinks(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
store:
  path: ` + filepath.Join(t.TempDir(), "replay.db") + `
sinks:
  - type: stdout
  - type: sqlite
`))
	if err != nil {
		t.Fatal(err)
	}
	sinks, st, err := OpenSinks(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sinks) != 2 || st == nil {
		t.Fatalf("sinks: got %d, store %v", len(sinks), st)
	}
	for _, s := range sinks {
		s.Close()
	}
}

func TestMCP_Tools(t *testing.T) {
	_, srv := newSite(t, article)
	r := New(testConfig(), nil, newOutputs().sink())
	defer r.Stop()

	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "replay", Version: "test"}, nil)
	r.RegisterMCP(server)
	serverT, clientT := mcp.NewInMemoryTransports()
	go server.Run(ctx, serverT)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	call := func(name string, args map[string]any) string {
		t.Helper()
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if res.IsError {
			t.Fatalf("%s: tool error: %v", name, res.GetError())
		}
		return res.Content[0].(*mcp.TextContent).Text
	}

	var snap snapshotResponse
	if err := json.Unmarshal([]byte(call("replay_snapshot", map[string]any{"url": srv.URL, "privacy": "allow"})), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Nodes == 0 || snap.Root == nil || snap.URL != srv.URL {
		t.Errorf("snapshot: got %+v", snap)
	}

	call("replay_capture_page", map[string]any{"id": "mcp", "url": srv.URL, "source": "http", "interval": "1h"})
	var pages []PageStatus
	if err := json.Unmarshal([]byte(call("replay_list_pages", map[string]any{})), &pages); err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].ID != "mcp" || pages[0].Interval != "1h0m0s" {
		t.Errorf("pages: got %+v", pages)
	}
	call("replay_stop_page", map[string]any{"id": "mcp"})

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "replay_stop_page", Arguments: map[string]any{"id": "mcp"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("stopping an unknown page should be a tool error")
	}
}
