package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/replay/idgen"
)

// MCPDecodeResult is what a decoder extracts from a tool call: the typed
// request, and optionally values to attach to the call context.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder turns raw tool arguments into a request.
type MCPDecoder func(*mcp.CallToolRequest) (*MCPDecodeResult, error)

// RegisterMCPTool exposes endpoint as an MCP tool. Failures come back as
// tool errors so the client sees them as results, and a successful
// response is sent as one JSON text block.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		d, err := decode(req)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		ctx = WithRequestID(WithTransport(ctx, "mcp"), idgen.New())
		if d.EnrichCtx != nil {
			ctx = d.EnrichCtx(ctx)
		}

		out, err := endpoint(ctx, d.Request)
		if err != nil {
			return toolError(err), nil
		}
		body, err := json.Marshal(out)
		if err != nil {
			return toolError(fmt.Errorf("encode result: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	res := &mcp.CallToolResult{}
	res.SetError(err)
	return res
}
