package convert

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Davasny/n8n-helpers/kit"
	"github.com/Davasny/n8n-helpers/shield"
)

var (
	// ErrInvalidRequest marks a conversion request that failed validation.
	ErrInvalidRequest = errors.New("convert: invalid request")
	// ErrUnsupported marks a well-formed request for a pair with no converter.
	ErrUnsupported = errors.New("convert: unsupported conversion")
)

// File is the uploaded document.
type File struct {
	Name   string `json:"name"`
	Base64 string `json:"base64"`
}

// Request is the /convert/base64 body.
type Request struct {
	From string `json:"from"` // xlsx | xls
	To   string `json:"to"`
	File File   `json:"file"`
}

// Response carries the converted document.
type Response struct {
	Data     string `json:"data"`
	Filename string `json:"filename"`
}

// Validate checks the shape of r and decodes the payload.
func (r *Request) Validate() ([]byte, error) {
	switch r.From {
	case "xlsx", "xls":
	default:
		return nil, fmt.Errorf("%w: from must be xlsx or xls", ErrInvalidRequest)
	}
	if len(r.To) != 3 {
		return nil, fmt.Errorf("%w: to must be 3 characters", ErrInvalidRequest)
	}
	if r.File.Name == "" {
		return nil, fmt.Errorf("%w: file.name must not be empty", ErrInvalidRequest)
	}
	data, err := base64.StdEncoding.DecodeString(r.File.Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: file.base64: %v", ErrInvalidRequest, err)
	}
	return data, nil
}

var spreadsheetExt = regexp.MustCompile(`\.(xlsx|xls)$`)

// Endpoint validates a *Request and converts its file.
func Endpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*Request)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected request type %T", ErrInvalidRequest, req)
		}
		data, err := r.Validate()
		if err != nil {
			return nil, err
		}
		if r.To != "csv" {
			return nil, fmt.Errorf("%w: Conversion from %s to %s is not supported", ErrUnsupported, r.From, r.To)
		}
		csv, err := ToCSV(data)
		if err != nil {
			return nil, err
		}
		return &Response{Data: csv, Filename: spreadsheetExt.ReplaceAllString(r.File.Name, ".csv")}, nil
	}
}

// Handler serves POST /convert/base64.
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
		r.Post("/convert/base64", h.convert)
	})
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	resp, err := h.endpoint(r.Context(), &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, ErrUnsupported):
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Conversion from %s to %s is not supported", req.From, req.To))
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnreadable):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		shield.GetLogger(r.Context()).Error("convert failed", "from", req.From, "to", req.To, "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}

// RegisterMCP exposes the converter as the convert_spreadsheet tool, wrapped
// in mws.
func (h *Handler) RegisterMCP(srv *mcp.Server, mws ...kit.Middleware) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "convert_spreadsheet",
		Description: "Convert the first sheet of a base64-encoded xlsx workbook to CSV.",
		InputSchema: kit.InputSchema(map[string]any{
			"from": map[string]any{"type": "string", "enum": []string{"xlsx", "xls"}},
			"to":   map[string]any{"type": "string", "description": "Target format; only csv is supported"},
			"file": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":   map[string]any{"type": "string"},
					"base64": map[string]any{"type": "string"},
				},
				"required": []string{"name", "base64"},
			},
		}, []string{"from", "to", "file"}),
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

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
