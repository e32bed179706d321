package convert

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func newRouter(maxBody int64) http.Handler {
	r := chi.NewRouter()
	NewHandler(maxBody).RegisterHTTP(r)
	return r
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/convert/base64", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func body(from, to, name string, data []byte) string {
	return fmt.Sprintf(`{"from":%q,"to":%q,"file":{"name":%q,"base64":%q}}`,
		from, to, name, base64.StdEncoding.EncodeToString(data))
}

func TestConvert_XLSXToCSV(t *testing.T) {
	data := workbook(t, [][]any{{"a", "b"}, {1, 2}}, false)
	rec := post(t, newRouter(0), body("xlsx", "csv", "report.xlsx", data))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	if got["data"] != "a,b\n1,2" {
		t.Fatalf("data: got %q", got["data"])
	}
	if got["filename"] != "report.csv" {
		t.Fatalf("filename: got %q, want report.csv", got["filename"])
	}
}

func TestConvert_FilenameWithoutExtension(t *testing.T) {
	data := workbook(t, [][]any{{"x"}}, false)
	rec := post(t, newRouter(0), body("xls", "csv", "export", data))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body)
	}
	if got := decode(t, rec)["filename"]; got != "export" {
		t.Fatalf("filename: got %q, want export", got)
	}
}

func TestConvert_UnsupportedPair(t *testing.T) {
	data := workbook(t, [][]any{{"x"}}, false)
	rec := post(t, newRouter(0), body("xlsx", "pdf", "a.xlsx", data))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
	if got := decode(t, rec)["message"]; got != "Conversion from xlsx to pdf is not supported" {
		t.Fatalf("message: got %q", got)
	}
}

func TestConvert_Validation(t *testing.T) {
	h := newRouter(0)
	cases := map[string]string{
		"bad from":     `{"from":"csv","to":"csv","file":{"name":"a","base64":""}}`,
		"short to":     `{"from":"xlsx","to":"cs","file":{"name":"a","base64":""}}`,
		"empty name":   `{"from":"xlsx","to":"csv","file":{"name":"","base64":""}}`,
		"bad base64":   `{"from":"xlsx","to":"csv","file":{"name":"a","base64":"***"}}`,
		"invalid json": `{"from":`,
		"not workbook": body("xlsx", "csv", "a.xlsx", []byte("plain text")),
	}
	for name, b := range cases {
		rec := post(t, h, b)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got %d, want 400 (%s)", name, rec.Code, rec.Body)
		}
		if decode(t, rec)["message"] == "" {
			t.Fatalf("%s: message missing", name)
		}
	}
}

func TestConvert_BodyTooLarge(t *testing.T) {
	data := workbook(t, [][]any{{strings.Repeat("x", 256)}}, false)
	rec := post(t, newRouter(64), body("xlsx", "csv", "a.xlsx", data))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d, want 413", rec.Code)
	}
}

func TestConvert_MCP(t *testing.T) {
	ctx := context.Background()
	srv := mcp.NewServer(&mcp.Implementation{Name: "helpers", Version: "test"}, nil)
	NewHandler(0).RegisterMCP(srv)

	ct, st := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, st, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil).Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	data := workbook(t, [][]any{{"k", "v"}}, false)
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name: "convert_spreadsheet",
		Arguments: map[string]any{
			"from": "xlsx",
			"to":   "csv",
			"file": map[string]any{"name": "t.xlsx", "base64": base64.StdEncoding.EncodeToString(data)},
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	var resp Response
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data != "k,v" || resp.Filename != "t.csv" {
		t.Fatalf("result: got %+v", resp)
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "convert_spreadsheet",
		Arguments: map[string]any{"from": "xlsx", "to": "pdf", "file": map[string]any{"name": "t.xlsx", "base64": ""}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("unsupported pair: want tool error")
	}
}
