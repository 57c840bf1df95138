package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want StealthLevel
		ok   bool
	}{
		{"0", LevelHTTP, true},
		{"http", LevelHTTP, true},
		{"1", LevelHeadless, true},
		{"headful", LevelHeadful, true},
		{"auto", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBlockSet(t *testing.T) {
	set := blockSet([]string{"Images", "fonts", "XHR"})
	if !set[proto.NetworkResourceTypeImage] || !set[proto.NetworkResourceTypeFont] {
		t.Errorf("config names not mapped: %v", set)
	}
	if set[proto.NetworkResourceTypeStylesheet] {
		t.Error("stylesheets blocked without being listed")
	}
	if !set[proto.NetworkResourceType("XHR")] {
		t.Error("raw CDP type not kept")
	}
}

func TestManager_Closed(t *testing.T) {
	m := NewManager(Config{})
	m.Close()
	if err := m.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close: got %v, want ErrClosed", err)
	}
	if err := m.Recycle(); !errors.Is(err, ErrClosed) {
		t.Errorf("Recycle after Close: got %v, want ErrClosed", err)
	}
}

func TestOpenTab_NoBrowser(t *testing.T) {
	m := NewManager(Config{})
	if _, err := OpenTab(context.Background(), m, "https://example.com", "p", LevelHeadless); err == nil {
		t.Error("expected error without a started browser")
	}
}

func TestManager_HeadfulNeedsXvfb(t *testing.T) {
	old := xvfbBinary
	xvfbBinary = "/nonexistent/Xvfb"
	t.Cleanup(func() { xvfbBinary = old })

	m := NewManager(Config{Headful: true, XvfbDisplay: ":123"})
	defer m.Close()
	err := m.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "xvfb") {
		t.Fatalf("Start: got %v, want an xvfb error", err)
	}
}

func TestNewManager_XvfbDefault(t *testing.T) {
	t.Setenv("DISPLAY", "")
	if got := NewManager(Config{Headful: true}).cfg.XvfbDisplay; got != ":99" {
		t.Errorf("headful without display: got %q, want :99", got)
	}
	if got := NewManager(Config{}).cfg.XvfbDisplay; got != "" {
		t.Errorf("headless: got %q, want none", got)
	}
	if got := NewManager(Config{Headful: true, RemoteURL: "ws://x"}).cfg.XvfbDisplay; got != "" {
		t.Errorf("remote: got %q, want none", got)
	}
}

func TestRecycleReason(t *testing.T) {
	m := NewManager(Config{RecycleInterval: time.Hour, MemoryLimit: 1 << 20})
	tests := []struct {
		uptime time.Duration
		heap   int64
		want   string
	}{
		{time.Minute, 0, ""},
		{time.Hour, 0, "interval"},
		{time.Minute, 2 << 20, "memory"},
		{time.Minute, 1 << 20, ""},
	}
	for _, tt := range tests {
		if got := m.recycleReason(tt.uptime, tt.heap); got != tt.want {
			t.Errorf("recycleReason(%v, %d) = %q, want %q", tt.uptime, tt.heap, got, tt.want)
		}
	}
	if got := NewManager(Config{}).recycleReason(24*time.Hour, 1<<40); got != "" {
		t.Errorf("disabled: got %q", got)
	}
}
