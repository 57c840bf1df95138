package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/replay/domview"
	"github.com/hazyhaar/replay/recorder"
)

// Tab is one captured page. It implements capture.Source.
type Tab struct {
	URL    string
	PageID string
	Level  StealthLevel

	mgr *Manager

	mu   sync.Mutex
	page *rod.Page
	gen  uint64

	// epoch counts opens. Backend node ids restart in a new renderer, so
	// captures are keyed by epoch as well.
	epoch uint32
}

// OpenTab opens pageURL in a new tab.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string, level StealthLevel) (*Tab, error) {
	t := &Tab{URL: pageURL, PageID: pageID, Level: level, mgr: mgr}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.openLocked(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tab) openLocked(ctx context.Context) error {
	b, gen := t.mgr.Browser()
	if b == nil {
		return fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if t.Level >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return fmt.Errorf("browser: create tab: %w", err)
	}

	log := t.mgr.cfg.Logger
	if len(t.mgr.cfg.ResourceBlocking) > 0 {
		blockResources(page, t.mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(t.URL); err != nil {
		page.Close()
		return fmt.Errorf("browser: navigate %s: %w", t.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", t.URL, "error", err)
	}

	t.page, t.gen = page, gen
	t.epoch++
	log.Debug("browser: tab open", "page_id", t.PageID, "url", t.URL, "generation", gen, "epoch", t.epoch)
	return nil
}

// Root captures the tab's current layout. After a browser recycle the tab
// reopens its URL first.
func (t *Tab) Root(ctx context.Context) (recorder.View, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, gen := t.mgr.Browser(); t.page == nil || gen != t.gen {
		if err := t.openLocked(ctx); err != nil {
			return nil, err
		}
	}
	return domview.Capture(ctx, t.page, domview.WithEpoch(t.epoch))
}

// Close closes the tab.
func (t *Tab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page == nil {
		return nil
	}
	err := t.page.Close()
	t.page = nil
	return err
}
