package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Davasny/n8n-helpers/guard"
	"github.com/Davasny/n8n-helpers/navigator/internal/browser"
	"github.com/Davasny/n8n-helpers/navigator/internal/nav"
	"github.com/Davasny/n8n-helpers/navigator/internal/session"
	"github.com/Davasny/n8n-helpers/navigator/internal/shots"
)

// RegisterHTTP mounts the /goto routes on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	if s.limiter != nil {
		r.With(s.limiter.Middleware).Get("/goto", s.handleGoto)
	} else {
		r.Get("/goto", s.handleGoto)
	}
	r.Get("/goto/session", s.handleSession)
	r.Get("/goto/screenshots", s.handleList)
	r.Get("/goto/screenshots/{fileId}", s.handleScreenshot)
	r.Get("/goto/screenshots/{fileId}/meta", s.handleMeta)
}

func (s *Service) handleGoto(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.Goto(r.Context(), GotoRequest{URL: q.Get("url"), Format: q.Get("format")})
	if err != nil {
		body := map[string]string{"error": err.Error()}
		var f *Failure
		if errors.As(err, &f) && f.ScreenshotID != "" {
			body["screenshotId"] = f.ScreenshotID
		}
		writeJSON(w, errorStatus(err), body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.SessionStats())
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Screenshots()
	if err != nil {
		s.logFor(r.Context()).Error("screenshots: list failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"files": ids})
}

func (s *Service) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileId")
	data, err := s.Screenshot(id)
	if err != nil {
		s.writeShotError(w, r, id, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Service) handleMeta(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileId")
	m, err := s.ScreenshotMeta(r.Context(), id)
	if err != nil {
		s.writeShotError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) writeShotError(w http.ResponseWriter, r *http.Request, id string, err error) {
	code := errorStatus(err)
	switch code {
	case http.StatusNotFound:
		writeJSON(w, code, map[string]string{"error": "screenshot not found", "fileId": id})
	case http.StatusBadRequest:
		writeJSON(w, code, map[string]string{"error": err.Error(), "fileId": id})
	default:
		s.logFor(r.Context()).Error("screenshots: read failed", "file_id", id, "error", err)
		writeError(w, code, err)
	}
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		connErr    *browser.ConnectionError
		timeoutErr *nav.TimeoutError
		navErr     *nav.Error
	)
	switch {
	case guard.IsValidation(err), errors.Is(err, ErrInvalidFormat), errors.Is(err, shots.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, shots.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &navErr):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
