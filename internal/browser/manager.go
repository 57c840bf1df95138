// Package browser runs the Chrome instance that live pages are captured
// from: launch or connect, periodic recycling, and tabs that survive a
// recycle by reopening themselves.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// StealthLevel controls how a page is acquired.
type StealthLevel int

const (
	LevelHTTP     StealthLevel = 0 // no browser, plain HTTP
	LevelHeadless StealthLevel = 1 // headless Chrome with stealth
	LevelHeadful  StealthLevel = 2 // visible Chrome (needs a display)
)

// ParseLevel maps "0", "1", "2", "http", "headless", "headful". Anything
// else, including "auto", returns ok=false.
func ParseLevel(s string) (StealthLevel, bool) {
	switch s {
	case "0", "http":
		return LevelHTTP, true
	case "1", "headless":
		return LevelHeadless, true
	case "2", "headful":
		return LevelHeadful, true
	}
	return 0, false
}

// ErrClosed is returned once the manager is closed.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket of a running Chrome. Empty
	// launches a local one.
	RemoteURL string
	// ResourceBlocking lists resource types tabs never load.
	ResourceBlocking []string
	// Headful launches a visible browser.
	Headful bool
	// XvfbDisplay is the virtual display started for a headful local
	// Chrome. Defaults to ":99" when $DISPLAY is unset; with $DISPLAY set
	// and no XvfbDisplay, Chrome uses the existing display.
	XvfbDisplay string
	// RecycleInterval restarts Chrome after this lifetime. 0 disables.
	RecycleInterval time.Duration
	// MemoryLimit restarts Chrome once the JS heap of its first page exceeds
	// this many bytes. 0 disables.
	MemoryLimit int64
	// CheckInterval is how often the recycle conditions are checked.
	// Defaults to 30s.
	CheckInterval time.Duration
	Logger        *slog.Logger
}

// Manager owns the Chrome process.
type Manager struct {
	cfg Config

	mu         sync.RWMutex
	browser    *rod.Browser
	lnch       *launcher.Launcher
	generation uint64
	startAt    time.Time
	closed     bool
	xvfb       *exec.Cmd
}

// xvfbBinary is the virtual display server started for headful mode.
var xvfbBinary = "Xvfb"

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Headful && cfg.RemoteURL == "" && cfg.XvfbDisplay == "" && os.Getenv("DISPLAY") == "" {
		cfg.XvfbDisplay = ":99"
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	return &Manager{cfg: cfg}
}

// Start launches or connects to Chrome and starts the recycle loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.launchLocked(); err != nil {
		return err
	}
	if m.cfg.RecycleInterval > 0 || m.cfg.MemoryLimit > 0 {
		go m.recycleLoop(ctx)
	}
	return nil
}

// Browser returns the current browser and its generation. The generation
// changes on every recycle; tabs compare it to know they must reopen.
func (m *Manager) Browser() (*rod.Browser, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser, m.generation
}

// Recycle restarts Chrome. Open tabs reopen on their next capture.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanupLocked()
	if err := m.launchLocked(); err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	return nil
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanupLocked()
	m.stopXvfbLocked()
	return nil
}

func (m *Manager) launchLocked() error {
	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Headful && m.cfg.XvfbDisplay != "" {
			if err := m.startXvfbLocked(); err != nil {
				return err
			}
			l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	m.browser = b
	m.generation++
	m.startAt = time.Now()
	return nil
}

func (m *Manager) cleanupLocked() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) recycleLoop(ctx context.Context) {
	t := time.NewTicker(m.cfg.CheckInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		m.mu.RLock()
		b, startAt, closed := m.browser, m.startAt, m.closed
		m.mu.RUnlock()
		if closed {
			return
		}

		var heap int64
		if m.cfg.MemoryLimit > 0 && b != nil {
			h, err := jsHeapUsed(b)
			if err != nil {
				m.cfg.Logger.Debug("browser: heap check failed", "error", err)
			}
			heap = h
		}
		reason := m.recycleReason(time.Since(startAt), heap)
		if reason == "" {
			continue
		}
		m.cfg.Logger.Info("browser: recycle due", "reason", reason, "heap", heap)
		if err := m.Recycle(); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			m.cfg.Logger.Error("browser: recycle failed", "error", err)
		}
	}
}

// recycleReason says why Chrome should restart now, or "" if it should not.
func (m *Manager) recycleReason(uptime time.Duration, heap int64) string {
	switch {
	case m.cfg.RecycleInterval > 0 && uptime >= m.cfg.RecycleInterval:
		return "interval"
	case m.cfg.MemoryLimit > 0 && heap > m.cfg.MemoryLimit:
		return "memory"
	}
	return ""
}

// jsHeapUsed reads performance.memory from the first open page.
func jsHeapUsed(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, errors.New("browser: no pages to measure")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Num()), nil
}

func (m *Manager) startXvfbLocked() error {
	if m.xvfb != nil {
		return nil
	}
	cmd := exec.Command(xvfbBinary, m.cfg.XvfbDisplay, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: start xvfb on %s: %w", m.cfg.XvfbDisplay, err)
	}
	m.xvfb = cmd
	// Xvfb accepts clients shortly after start.
	time.Sleep(500 * time.Millisecond)
	m.cfg.Logger.Info("browser: xvfb started", "display", m.cfg.XvfbDisplay, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfbLocked() {
	if m.xvfb == nil {
		return
	}
	_ = m.xvfb.Process.Kill()
	_ = m.xvfb.Wait()
	m.xvfb = nil
	m.cfg.Logger.Info("browser: xvfb stopped")
}
