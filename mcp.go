package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/replay/kit"
	"github.com/hazyhaar/replay/recorder"
)

// RegisterMCP registers the replay tools on an MCP server.
func (r *Recorder) RegisterMCP(srv *mcp.Server) {
	r.registerSnapshotTool(srv)
	r.registerCapturePageTool(srv)
	r.registerStopPageTool(srv)
	r.registerListPagesTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	res := &kit.MCPDecodeResult{Request: &r}
	if p, ok := any(&r).(interface{ pageID() string }); ok {
		id := p.pageID()
		res.EnrichCtx = func(ctx context.Context) context.Context { return kit.WithPageID(ctx, id) }
	}
	return res, nil
}

func (r *Recorder) wrap(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Recover(r.logger), kit.Logging(r.logger, name))(ep)
}

// --- snapshot ---

type snapshotRequest struct {
	URL     string `json:"url"`
	Privacy string `json:"privacy,omitempty"`
}

type snapshotResponse struct {
	ID        string              `json:"id"`
	URL       string              `json:"url"`
	Nodes     int                 `json:"nodes"`
	Timestamp int64               `json:"timestamp"`
	Root      *recorder.Node      `json:"root"`
	RUM       recorder.RUMContext `json:"rum"`
}

func (r *Recorder) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replay_snapshot",
		Description: "Capture a page once and return its wireframe snapshot. Text is masked unless privacy is allow.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL"},
			"privacy": map[string]any{"type": "string", "enum": []any{"allow", "mask"}, "description": "Privacy level (default: mask)"},
		}, []string{"url"}),
	}

	endpoint := r.wrap("replay_snapshot", func(ctx context.Context, req any) (any, error) {
		q := req.(*snapshotRequest)
		if q.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		snap, err := r.SnapshotOnce(ctx, q.URL, recorder.ParsePrivacyLevel(q.Privacy))
		if err != nil {
			return nil, err
		}
		return &snapshotResponse{
			ID:        snap.ID,
			URL:       snap.URL,
			Nodes:     snap.Tree.Count(),
			Timestamp: snap.Timestamp,
			Root:      snap.Tree.Root,
			RUM:       snap.Tree.RUMContext,
		}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[snapshotRequest])
}

// --- capture_page ---

type capturePageRequest struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Source       string `json:"source,omitempty"`
	StealthLevel string `json:"stealth_level,omitempty"`
	Interval     string `json:"interval,omitempty"`
	Privacy      string `json:"privacy,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

func (q *capturePageRequest) pageID() string { return q.ID }

func (r *Recorder) registerCapturePageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replay_capture_page",
		Description: "Start recording a page on an interval. Snapshots and batches go to the configured sinks.",
		InputSchema: inputSchema(map[string]any{
			"id":            map[string]any{"type": "string", "description": "Page id, unique among running pages"},
			"url":           map[string]any{"type": "string", "description": "Page URL"},
			"source":        map[string]any{"type": "string", "enum": []any{"browser", "http"}, "description": "Where the view tree comes from (default: browser)"},
			"stealth_level": map[string]any{"type": "string", "enum": []any{"0", "1", "2", "auto"}, "description": "Browser stealth level (default: auto)"},
			"interval":      map[string]any{"type": "string", "description": "Capture interval as a Go duration (default: 1s)"},
			"privacy":       map[string]any{"type": "string", "enum": []any{"allow", "mask"}, "description": "Privacy level (default: mask)"},
			"session_id":    map[string]any{"type": "string", "description": "Session id stamped on snapshots"},
		}, []string{"id", "url"}),
	}

	endpoint := r.wrap("replay_capture_page", func(ctx context.Context, req any) (any, error) {
		q := req.(*capturePageRequest)
		pc := PageConfig{
			ID:           q.ID,
			URL:          q.URL,
			Source:       q.Source,
			StealthLevel: q.StealthLevel,
			Privacy:      q.Privacy,
			SessionID:    q.SessionID,
		}
		if q.Interval != "" {
			d, err := time.ParseDuration(q.Interval)
			if err != nil {
				return nil, fmt.Errorf("interval: %w", err)
			}
			pc.Interval = d
		}
		if err := r.CapturePage(ctx, pc); err != nil {
			return nil, err
		}
		return map[string]string{"status": "capturing", "id": q.ID}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[capturePageRequest])
}

// --- stop_page ---

type stopPageRequest struct {
	ID string `json:"id"`
}

func (q *stopPageRequest) pageID() string { return q.ID }

func (r *Recorder) registerStopPageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replay_stop_page",
		Description: "Stop recording a page.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Page id"},
		}, []string{"id"}),
	}

	endpoint := r.wrap("replay_stop_page", func(_ context.Context, req any) (any, error) {
		q := req.(*stopPageRequest)
		if err := r.StopPage(q.ID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "stopped", "id": q.ID}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[stopPageRequest])
}

// --- list_pages ---

func (r *Recorder) registerListPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replay_list_pages",
		Description: "List the pages being recorded.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return r.Pages(), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[struct{}])
}
