package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Davasny/n8n-helpers/navigator/internal/browser"
	"github.com/Davasny/n8n-helpers/navigator/internal/browser/browsertest"
)

func connectMCP(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	srv := mcp.NewServer(&mcp.Implementation{Name: "helpers", Version: "test"}, nil)
	svc.RegisterMCP(srv)

	ct, st := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, st, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil).Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callText(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("CallTool %s: empty content", name)
	}
	return res.Content[0].(*mcp.TextContent).Text, res.IsError
}

func TestMCP_Goto(t *testing.T) {
	cs := connectMCP(t, newService(t, &browsertest.Engine{}, nil))

	text, isErr := callText(t, cs, "goto", map[string]any{"url": "https://example.com/"})
	if isErr {
		t.Fatalf("goto: tool error %s", text)
	}
	var resp GotoResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PageContent != browsertest.NewPage().HTML {
		t.Fatalf("pageContent: got %q", resp.PageContent)
	}

	text, isErr = callText(t, cs, "goto", map[string]any{"url": "file:///etc/passwd"})
	if !isErr {
		t.Fatalf("file url: want tool error, got %s", text)
	}
}

func TestMCP_ListScreenshotsAfterFailure(t *testing.T) {
	eng := &browsertest.Engine{NewPage: func(int) *browsertest.Page {
		p := browsertest.NewPage()
		p.Outcomes = []browser.NavResult{browsertest.Failed(errors.New("boom"))}
		return p
	}}
	cs := connectMCP(t, newService(t, eng, nil))

	text, isErr := callText(t, cs, "goto", map[string]any{"url": "https://example.com/"})
	if !isErr || !strings.Contains(text, "screenshot") {
		t.Fatalf("goto: got %q (isError=%v)", text, isErr)
	}

	text, isErr = callText(t, cs, "list_screenshots", map[string]any{})
	if isErr {
		t.Fatalf("list_screenshots: %s", text)
	}
	var out struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Files) != 1 {
		t.Fatalf("files: got %v, want 1", out.Files)
	}

	text, _ = callText(t, cs, "browser_session", map[string]any{})
	if !strings.Contains(text, `"state":"absent"`) {
		t.Fatalf("browser_session: got %s", text)
	}
}
