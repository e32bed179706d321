package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithTraceID(WithTransport(context.Background(), "mcp"), "trc_1")

	fail := Logging(logger)(func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})
	if _, err := fail(ctx, nil); err == nil || err.Error() != "boom" {
		t.Fatalf("error: got %v, want boom", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["msg"] != "call failed" || line["level"] != "WARN" {
		t.Fatalf("line: got %v", line)
	}
	if line["transport"] != "mcp" || line["trace_id"] != "trc_1" || line["error"] != "boom" {
		t.Fatalf("attrs: got %v", line)
	}
}

func TestRegisterMCPTool_AppliesMiddlewareAndTrace(t *testing.T) {
	var (
		seenTransport string
		seenTrace     string
		order         []string
	)
	mark := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: "kit", Version: "test"}, nil)
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		InputSchema: InputSchema(map[string]any{"msg": map[string]any{"type": "string"}}, nil),
	}, func(ctx context.Context, req any) (any, error) {
		seenTransport, seenTrace = GetTransport(ctx), GetTraceID(ctx)
		order = append(order, "endpoint")
		return req, nil
	}, func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var m map[string]string
		if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
			return nil, err
		}
		return &MCPDecodeResult{Request: m}, nil
	}, mark("outer"), mark("inner"))

	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, st, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil).Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"msg": "hi"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	if text := res.Content[0].(*mcp.TextContent).Text; !strings.Contains(text, `"msg":"hi"`) {
		t.Fatalf("content: got %q", text)
	}
	if got := strings.Join(order, ","); got != "outer,inner,endpoint" {
		t.Fatalf("order: got %s", got)
	}
	if seenTransport != "mcp" {
		t.Fatalf("transport: got %q, want mcp", seenTransport)
	}
	if seenTrace == "" {
		t.Fatal("trace id must be set for MCP calls")
	}
}
