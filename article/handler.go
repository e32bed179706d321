package article

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Davasny/n8n-helpers/kit"
	"github.com/Davasny/n8n-helpers/shield"
)

// ErrInvalidRequest marks a simplify request that failed validation.
var ErrInvalidRequest = errors.New("article: invalid request")

// Request is the /simplify-html body.
type Request struct {
	Content     string  `json:"content"`
	OriginalURL *string `json:"originalUrl"`
}

// Validate checks that content is present and originalUrl, when given, is
// an absolute URL.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidRequest)
	}
	if r.OriginalURL == nil || *r.OriginalURL == "" {
		return nil
	}
	u, err := url.Parse(*r.OriginalURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: originalUrl must be an absolute URL", ErrInvalidRequest)
	}
	return nil
}

func (r *Request) baseURL() string {
	if r.OriginalURL == nil {
		return ""
	}
	return *r.OriginalURL
}

// Endpoint validates a *Request and extracts its article.
func Endpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*Request)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected request type %T", ErrInvalidRequest, req)
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return Extract(r.Content, r.baseURL())
	}
}

// Handler serves POST /simplify-html.
type Handler struct {
	endpoint kit.Endpoint
	maxBody  int64
}

// NewHandler builds a Handler. maxBody <= 0 disables the body limit.
func NewHandler(maxBody int64) *Handler {
	return &Handler{endpoint: Endpoint(), maxBody: maxBody}
}

// RegisterHTTP mounts the routes on r.
func (h *Handler) RegisterHTTP(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.maxBody > 0 {
			r.Use(shield.MaxBody(h.maxBody))
		}
		r.Post("/simplify-html", h.simplify)
	})
}

func (h *Handler) simplify(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}

	resp, err := h.endpoint(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		shield.GetLogger(r.Context()).Error("simplify-html failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterMCP exposes the extractor as the simplify_html tool, wrapped in mws.
func (h *Handler) RegisterMCP(srv *mcp.Server, mws ...kit.Middleware) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "simplify_html",
		Description: "Extract the readable article (title, content, text, metadata) from an HTML document.",
		InputSchema: kit.InputSchema(map[string]any{
			"content":     map[string]any{"type": "string", "description": "Full HTML document"},
			"originalUrl": map[string]any{"type": "string", "description": "Page URL used to resolve relative links"},
		}, []string{"content"}),
	}, h.endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r Request
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}, mws...)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
