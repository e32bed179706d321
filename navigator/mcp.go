package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Davasny/n8n-helpers/kit"
)

// RegisterMCP exposes the service as MCP tools: goto, list_screenshots and
// browser_session.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "goto",
		Description: "Open a URL in the shared headless browser and return the rendered page as HTML or Markdown.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "Absolute http(s) URL"},
			"format": map[string]any{"type": "string", "enum": []string{FormatHTML, FormatMarkdown}},
		}, []string{"url"}),
	}, s.gotoEndpoint(), func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r GotoRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}, s.toolLog("goto"))

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "list_screenshots",
		Description: "List the ids of diagnostic screenshots taken after failed navigations, oldest first.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ any) (any, error) {
		ids, err := s.Screenshots()
		if err != nil {
			return nil, err
		}
		return map[string][]string{"files": ids}, nil
	}, noArgs, s.toolLog("list_screenshots"))

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "browser_session",
		Description: "Report the state of the shared browser session.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ any) (any, error) {
		return s.SessionStats(), nil
	}, noArgs, s.toolLog("browser_session"))
}

func (s *Service) toolLog(name string) kit.Middleware {
	return kit.Logging(s.log.With("tool", name))
}

func (s *Service) gotoEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*GotoRequest)
		if !ok {
			return nil, fmt.Errorf("navigator: unexpected request type %T", req)
		}
		resp, err := s.Goto(ctx, *r)
		if err != nil {
			var f *Failure
			if errors.As(err, &f) && f.ScreenshotID != "" {
				return nil, fmt.Errorf("%w (screenshot %s)", err, f.ScreenshotID)
			}
			return nil, err
		}
		return resp, nil
	}
}

func noArgs(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}
