// Package capture turns a view tree source into a stream of snapshots and
// diff batches. It owns the scheduling: when to capture, when a capture is
// skipped, and when a full snapshot is sent instead of a diff.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/replay/diff"
	"github.com/hazyhaar/replay/idgen"
	"github.com/hazyhaar/replay/recorder"
	"github.com/hazyhaar/replay/recorder/nodes"
	"github.com/hazyhaar/replay/sink"
)

// Source yields the current root view of a page.
type Source interface {
	Root(ctx context.Context) (recorder.View, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (recorder.View, error)

func (f SourceFunc) Root(ctx context.Context) (recorder.View, error) { return f(ctx) }

// ContextProvider returns the recording context of the next capture.
type ContextProvider func() recorder.Context

// StaticContext always returns privacy and rum, dated now.
func StaticContext(privacy recorder.PrivacyLevel, rum recorder.RUMContext) ContextProvider {
	return func() recorder.Context {
		return recorder.Context{Privacy: privacy, RUMContext: rum, Date: time.Now()}
	}
}

// Config describes one captured page.
type Config struct {
	PageID    string
	URL       string
	Interval  time.Duration
	FullEvery int // ticks between full snapshots; <= 1 sends only full snapshots
	// ReleaseAfter is how many captures a view may be absent before its
	// NodeID entry is dropped. Defaults to 3.
	ReleaseAfter int
}

// Output is what one capture emitted. Exactly one of Snapshot and Batch is
// set, or neither when nothing changed.
type Output struct {
	Tree     recorder.ViewTreeSnapshot
	Snapshot *diff.Snapshot
	Batch    *diff.Batch
}

// Producer captures one page.
type Producer struct {
	cfg     Config
	source  Source
	context ContextProvider
	out     sink.Sink
	builder *recorder.SnapshotBuilder
	metrics *Metrics
	ids     idgen.Generator
	logger  *slog.Logger

	busy atomic.Bool

	mu      sync.Mutex
	ticks   int
	prev    *recorder.ViewTreeSnapshot
	snapRef string
	seq     uint64
}

// Option configures a Producer.
type Option func(*Producer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics. Without it, metrics go to a private registry.
func WithMetrics(m *Metrics) Option {
	return func(p *Producer) { p.metrics = m }
}

// WithBuilder replaces the snapshot builder (nodes.Defaults by default).
func WithBuilder(b *recorder.SnapshotBuilder) Option {
	return func(p *Producer) { p.builder = b }
}

// WithIDGenerator sets how snapshot and batch ids are generated.
func WithIDGenerator(g idgen.Generator) Option {
	return func(p *Producer) { p.ids = g }
}

// New creates a Producer.
func New(cfg Config, src Source, ctxp ContextProvider, out sink.Sink, opts ...Option) *Producer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.FullEvery <= 0 {
		cfg.FullEvery = 1
	}
	if cfg.ReleaseAfter <= 0 {
		cfg.ReleaseAfter = 3
	}
	p := &Producer{
		cfg:     cfg,
		source:  src,
		context: ctxp,
		out:     out,
		ids:     idgen.Default,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.builder == nil {
		p.builder = recorder.NewSnapshotBuilder(nodes.Defaults()...)
	}
	if p.metrics == nil {
		p.metrics = nopMetrics()
	}
	return p
}

// PageID returns the captured page id.
func (p *Producer) PageID() string { return p.cfg.PageID }

// Run captures on every interval tick until ctx is done. A tick that fires
// while a capture is in flight is skipped. Run waits for the in-flight
// capture before returning.
func (p *Producer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		if !p.busy.CompareAndSwap(false, true) {
			p.metrics.skipped.WithLabelValues(p.cfg.PageID).Inc()
			p.logger.Debug("capture: tick skipped, previous capture running", "page_id", p.cfg.PageID)
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.busy.Store(false)
			if _, err := p.Capture(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("capture: failed", "page_id", p.cfg.PageID, "error", err)
			}
		}()
	}

	tick()
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			tick()
		}
	}
}

// Capture takes one snapshot now and sends the resulting snapshot or batch.
func (p *Producer) Capture(ctx context.Context) (*Output, error) {
	start := time.Now()
	root, err := p.source.Root(ctx)
	if err != nil {
		p.metrics.captures.WithLabelValues(p.cfg.PageID, "error").Inc()
		return nil, fmt.Errorf("capture: %s: read view tree: %w", p.cfg.PageID, err)
	}

	rc := p.context()
	if rc.Date.IsZero() {
		rc.Date = time.Now()
	}
	tree := p.builder.CreateSnapshot(root, rc)
	if p.builder.IDs != nil {
		if n := p.builder.IDs.Sweep(p.cfg.ReleaseAfter); n > 0 {
			p.logger.Debug("capture: released node ids", "page_id", p.cfg.PageID, "released", n)
		}
	}

	p.metrics.duration.WithLabelValues(p.cfg.PageID).Observe(time.Since(start).Seconds())
	p.metrics.nodes.WithLabelValues(p.cfg.PageID).Set(float64(tree.Count()))
	if tree.Root == nil {
		p.metrics.empty.WithLabelValues(p.cfg.PageID).Inc()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	full := p.prev == nil || p.ticks%p.cfg.FullEvery == 0
	p.ticks++
	out := &Output{Tree: tree}

	if full {
		snap := diff.Snapshot{
			ID:        p.ids(),
			PageID:    p.cfg.PageID,
			URL:       p.cfg.URL,
			Timestamp: tree.Date.UnixMilli(),
			Tree:      tree,
		}
		if err := p.out.SendSnapshot(ctx, snap); err != nil {
			// Batches must not reference a snapshot nobody received.
			p.prev = nil
			p.metrics.captures.WithLabelValues(p.cfg.PageID, "error").Inc()
			return nil, fmt.Errorf("capture: %s: send snapshot: %w", p.cfg.PageID, err)
		}
		p.prev, p.snapRef = &tree, snap.ID
		out.Snapshot = &snap
		p.metrics.captures.WithLabelValues(p.cfg.PageID, "full").Inc()
		return out, nil
	}

	records := diff.Diff(p.prev, &tree)
	if len(records) == 0 {
		p.metrics.captures.WithLabelValues(p.cfg.PageID, "unchanged").Inc()
		return out, nil
	}

	p.seq++
	batch := diff.Batch{
		ID:          p.ids(),
		PageID:      p.cfg.PageID,
		Seq:         p.seq,
		SnapshotRef: p.snapRef,
		Timestamp:   tree.Date.UnixMilli(),
		Records:     records,
	}
	if err := p.out.SendBatch(ctx, batch); err != nil {
		p.prev = nil
		p.metrics.captures.WithLabelValues(p.cfg.PageID, "error").Inc()
		return nil, fmt.Errorf("capture: %s: send batch: %w", p.cfg.PageID, err)
	}
	p.prev = &tree
	out.Batch = &batch
	p.metrics.captures.WithLabelValues(p.cfg.PageID, "diff").Inc()
	return out, nil
}

// ErrBusy is returned by TryCapture when a capture is already running.
var ErrBusy = errors.New("capture: busy")

// TryCapture is Capture that fails with ErrBusy instead of overlapping a
// running capture.
func (p *Producer) TryCapture(ctx context.Context) (*Output, error) {
	if !p.busy.CompareAndSwap(false, true) {
		p.metrics.skipped.WithLabelValues(p.cfg.PageID).Inc()
		return nil, ErrBusy
	}
	defer p.busy.Store(false)
	return p.Capture(ctx)
}
