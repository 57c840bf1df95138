// Package replay records web pages as session-replay view trees.
//
// A Recorder owns one capture.Producer per configured page. Each producer
// reads the page's view tree on an interval, either from a Chrome tab
// (DOMSnapshot) or from plain HTTP, turns it into a wireframe snapshot with
// the configured privacy level and ships full snapshots and incremental
// batches to the configured sinks.
//
// Usage:
//
//	cfg, _ := replay.LoadConfigFile("replay.yaml")
//	sinks, st, _ := replay.OpenSinks(cfg, logger)
//	r := replay.New(cfg, logger, sinks...)
//	if err := r.Start(ctx); err != nil { ... }
//	defer r.Stop()
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hazyhaar/replay/capture"
	"github.com/hazyhaar/replay/diff"
	"github.com/hazyhaar/replay/idgen"
	"github.com/hazyhaar/replay/internal/browser"
	"github.com/hazyhaar/replay/internal/fetcher"
	"github.com/hazyhaar/replay/internal/urlguard"
	"github.com/hazyhaar/replay/recorder"
	"github.com/hazyhaar/replay/sink"
)

// ErrPageExists is returned when a page id is already being captured.
var ErrPageExists = errors.New("replay: page already captured")

// ErrPageNotFound is returned for an unknown page id.
var ErrPageNotFound = errors.New("replay: page not found")

// OncePageID is the page id stamped on SnapshotOnce captures.
const OncePageID = "once"

// Recorder is the main replay orchestrator.
type Recorder struct {
	cfg      *Config
	logger   *slog.Logger
	router   *sink.Router
	fetch    *fetcher.Fetcher
	registry *prometheus.Registry
	metrics  *capture.Metrics

	mu      sync.Mutex
	browser *browser.Manager // nil until a browser page needs it
	pages   map[string]*pageRun
	ctx     context.Context
	wg      sync.WaitGroup
	stopped bool
}

type pageRun struct {
	cfg      PageConfig
	level    browser.StealthLevel
	producer *capture.Producer
	tab      *browser.Tab
	cancel   context.CancelFunc
	started  time.Time
}

// PageStatus describes one captured page.
type PageStatus struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	Privacy   string    `json:"privacy"`
	Interval  string    `json:"interval"`
	StartedAt time.Time `json:"started_at"`
}

// New creates a Recorder. cfg may be nil for a recorder driven only through
// CapturePage and SnapshotOnce.
func New(cfg *Config, logger *slog.Logger, sinks ...sink.Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Recorder{
		cfg:      cfg,
		logger:   logger,
		router:   sink.NewRouter(logger, sinks...),
		fetch:    newFetcher(cfg.Fetch, logger),
		registry: reg,
		metrics:  capture.NewMetrics(reg),
		pages:    make(map[string]*pageRun),
	}
}

func newFetcher(fc FetchConfig, logger *slog.Logger) *fetcher.Fetcher {
	opts := []fetcher.Option{
		fetcher.WithLogger(logger),
		fetcher.WithRateLimit(fc.Rate, fc.Burst),
	}
	if fc.UserAgent != "" {
		opts = append(opts, fetcher.WithUserAgent(fc.UserAgent))
	}
	if !fc.AllowPrivate {
		opts = append(opts, fetcher.WithClient(urlguard.Client(30*time.Second)))
	}
	return fetcher.New(opts...)
}

// Registry returns the Prometheus registry holding the capture metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Start begins capturing every configured page. Pages that fail to start
// are logged and skipped; Start fails only when none could start.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	var errs []error
	for _, p := range r.cfg.Pages {
		if err := r.CapturePage(ctx, p); err != nil {
			r.logger.Error("replay: start page", "page_id", p.ID, "url", p.URL, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && len(errs) == len(r.cfg.Pages) {
		return errors.Join(errs...)
	}
	r.logger.Info("replay: started", "pages", len(r.cfg.Pages)-len(errs), "sinks", r.router.Len())
	return nil
}

// CapturePage starts capturing one page until StopPage or Stop. Capture
// keeps running after ctx is done only when Start's context is still live.
func (r *Recorder) CapturePage(ctx context.Context, pc PageConfig) error {
	pc.ApplyDefaults()
	if pc.URL == "" {
		return fmt.Errorf("replay: page needs a url")
	}
	if err := urlguard.CheckIdentifier(pc.ID); err != nil {
		return fmt.Errorf("replay: page id: %w", err)
	}
	if err := r.checkURL(ctx, pc.URL); err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("replay: recorder stopped")
	}
	if _, ok := r.pages[pc.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageExists, pc.ID)
	}
	// Reserve the id while the page opens.
	r.pages[pc.ID] = nil
	runCtx := r.ctx
	r.mu.Unlock()

	run, err := r.openPage(ctx, pc)
	if err != nil {
		r.mu.Lock()
		delete(r.pages, pc.ID)
		r.mu.Unlock()
		return err
	}

	if runCtx == nil {
		runCtx = context.Background()
	}
	pctx, cancel := context.WithCancel(runCtx)
	run.cancel = cancel

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		if run.tab != nil {
			run.tab.Close()
		}
		return fmt.Errorf("replay: recorder stopped")
	}
	r.pages[pc.ID] = run
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		run.producer.Run(pctx)
	}()

	r.logger.Info("replay: capturing page", "page_id", pc.ID, "url", pc.URL, "source", pc.Source, "level", run.level, "interval", pc.Interval)
	return nil
}

func (r *Recorder) checkURL(ctx context.Context, url string) error {
	if r.cfg.Fetch.AllowPrivate {
		return nil
	}
	if err := urlguard.Check(ctx, url); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return nil
}

// openPage resolves the source for pc and builds its producer.
func (r *Recorder) openPage(ctx context.Context, pc PageConfig) (*pageRun, error) {
	run := &pageRun{cfg: pc, started: time.Now()}

	src, tab, level, err := r.source(ctx, pc)
	if err != nil {
		return nil, err
	}
	run.tab, run.level = tab, level

	rum := recorder.RUMContext{
		ApplicationID:    r.cfg.RUM.ApplicationID,
		SessionID:        pc.SessionID,
		ViewID:           idgen.New(),
		ServerTimeOffset: r.cfg.RUM.ServerTimeOffset,
	}
	if rum.SessionID == "" {
		rum.SessionID = idgen.New()
	}

	run.producer = capture.New(
		capture.Config{PageID: pc.ID, URL: pc.URL, Interval: pc.Interval, FullEvery: pc.FullSnapshotEvery},
		src,
		capture.StaticContext(recorder.ParsePrivacyLevel(pc.Privacy), rum),
		r.router,
		capture.WithLogger(r.logger),
		capture.WithMetrics(r.metrics),
	)
	return run, nil
}

// source picks where pc's view tree comes from.
func (r *Recorder) source(ctx context.Context, pc PageConfig) (capture.Source, *browser.Tab, browser.StealthLevel, error) {
	level := browser.LevelHTTP
	if pc.Source == "browser" {
		level = r.resolveStealthLevel(ctx, pc)
	}
	if level == browser.LevelHTTP {
		return r.fetch.Source(pc.URL), nil, level, nil
	}

	mgr, err := r.ensureBrowser(ctx)
	if err != nil {
		if pc.StealthLevel == "auto" {
			r.logger.Warn("replay: browser unavailable, falling back to HTTP", "page_id", pc.ID, "error", err)
			return r.fetch.Source(pc.URL), nil, browser.LevelHTTP, nil
		}
		return nil, nil, level, err
	}
	tab, err := browser.OpenTab(ctx, mgr, pc.URL, pc.ID, level)
	if err != nil {
		return nil, nil, level, fmt.Errorf("replay: open %s: %w", pc.URL, err)
	}
	return tab, tab, level, nil
}

// resolveStealthLevel turns the page's stealth_level into a level. "auto"
// fetches the page over HTTP and escalates to headless Chrome only when the
// static markup carries too little content.
func (r *Recorder) resolveStealthLevel(ctx context.Context, pc PageConfig) browser.StealthLevel {
	if level, ok := browser.ParseLevel(pc.StealthLevel); ok {
		return level
	}

	page, err := r.fetch.Fetch(ctx, pc.URL, "")
	if err != nil {
		r.logger.Debug("replay: http fetch failed, using headless", "url", pc.URL, "error", err)
		return browser.LevelHeadless
	}
	if fetcher.IsSufficient(page.Body) {
		r.logger.Info("replay: auto-detected HTTP level", "url", pc.URL)
		return browser.LevelHTTP
	}
	r.logger.Info("replay: auto-escalating to headless", "url", pc.URL)
	return browser.LevelHeadless
}

// ensureBrowser starts the browser manager on first use.
func (r *Recorder) ensureBrowser(ctx context.Context) (*browser.Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        r.cfg.Browser.Remote,
		ResourceBlocking: r.cfg.Browser.ResourceBlocking,
		Headful:          r.cfg.Browser.Stealth == "headful",
		XvfbDisplay:      r.cfg.Browser.XvfbDisplay,
		RecycleInterval:  r.cfg.Browser.RecycleInterval,
		MemoryLimit:      r.cfg.Browser.MemoryLimit,
		Logger:           r.logger,
	})
	startCtx := r.ctx
	if startCtx == nil {
		startCtx = ctx
	}
	if err := mgr.Start(startCtx); err != nil {
		return nil, fmt.Errorf("replay: start browser: %w", err)
	}
	r.browser = mgr
	return mgr, nil
}

// StopPage stops capturing a page and closes its tab.
func (r *Recorder) StopPage(pageID string) error {
	r.mu.Lock()
	run, ok := r.pages[pageID]
	if !ok || run == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	delete(r.pages, pageID)
	r.mu.Unlock()

	run.cancel()
	if run.tab != nil {
		run.tab.Close()
	}
	r.logger.Info("replay: stopped page", "page_id", pageID)
	return nil
}

// Pages lists the pages being captured, ordered by id.
func (r *Recorder) Pages() []PageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PageStatus, 0, len(r.pages))
	for _, run := range r.pages {
		if run == nil {
			continue
		}
		src := "browser"
		if run.level == browser.LevelHTTP {
			src = "http"
		}
		out = append(out, PageStatus{
			ID:        run.cfg.ID,
			URL:       run.cfg.URL,
			Source:    src,
			Privacy:   string(recorder.ParsePrivacyLevel(run.cfg.Privacy)),
			Interval:  run.cfg.Interval.String(),
			StartedAt: run.started,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CaptureNow takes an immediate capture of a running page, outside its
// interval. It returns capture.ErrBusy when a capture is in flight.
func (r *Recorder) CaptureNow(ctx context.Context, pageID string) (*capture.Output, error) {
	r.mu.Lock()
	run, ok := r.pages[pageID]
	r.mu.Unlock()
	if !ok || run == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	return run.producer.TryCapture(ctx)
}

// SnapshotOnce captures url a single time and returns the full snapshot.
// The snapshot is also sent to the sinks. No page is left running.
func (r *Recorder) SnapshotOnce(ctx context.Context, url string, privacy recorder.PrivacyLevel) (*diff.Snapshot, error) {
	if err := r.checkURL(ctx, url); err != nil {
		return nil, err
	}
	pc := PageConfig{ID: OncePageID, URL: url, Privacy: string(privacy)}
	pc.ApplyDefaults()
	pc.FullSnapshotEvery = 1

	run, err := r.openPage(ctx, pc)
	if err != nil {
		return nil, err
	}
	if run.tab != nil {
		defer run.tab.Close()
	}

	out, err := run.producer.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return out.Snapshot, nil
}

// Stop stops every page, closes the browser and the sinks.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	runs := make([]*pageRun, 0, len(r.pages))
	for _, run := range r.pages {
		if run != nil {
			runs = append(runs, run)
		}
	}
	r.pages = make(map[string]*pageRun)
	mgr := r.browser
	r.mu.Unlock()

	for _, run := range runs {
		run.cancel()
	}
	r.wg.Wait()
	for _, run := range runs {
		if run.tab != nil {
			run.tab.Close()
		}
	}

	var errs []error
	if mgr != nil {
		errs = append(errs, mgr.Close())
	}
	errs = append(errs, r.router.Close())
	r.logger.Info("replay: stopped")
	return errors.Join(errs...)
}
