// Command helpers serves the n8n helper endpoints: managed browser
// navigation (/goto), HTML simplification (/simplify-html), spreadsheet
// conversion (/convert/base64), metrics and an MCP endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Davasny/n8n-helpers/article"
	"github.com/Davasny/n8n-helpers/convert"
	"github.com/Davasny/n8n-helpers/kit"
	"github.com/Davasny/n8n-helpers/navigator"
	"github.com/Davasny/n8n-helpers/observability"
	"github.com/Davasny/n8n-helpers/shield"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", env("HELPERS_CONFIG", ""), "path to YAML config file")
	flag.Parse()

	cfg, err := navigator.LoadConfig(*configPath, os.Getenv)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := observability.NewLogger(cfg.Log)
	if err != nil {
		slog.Error("logger", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := observability.NewMetrics()

	svc, err := navigator.New(cfg, navigator.WithLogger(logger), navigator.WithMetrics(metrics))
	if err != nil {
		slog.Error("navigator", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, logger, metrics, svc),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("helpers starting", "addr", cfg.Server.Addr, "session_policy", cfg.Session.Policy,
			"remote_browser", cfg.Browser.Remote != "", "auth", cfg.Auth.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// newRouter wires middleware and every route. Basic auth, when configured,
// covers everything except the greeting, health and metrics.
func newRouter(cfg *navigator.Config, logger *slog.Logger, metrics *observability.Metrics, svc *navigator.Service) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(logger) {
		r.Use(mw)
	}
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled() {
		r.Use(shield.BasicAuth("helpers", cfg.Auth.Username, cfg.Auth.PasswordHash, "/", "/health", "/metrics"))
	}

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"msg": "Hello from the helpers"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	simplify := article.NewHandler(cfg.Server.MaxBodyBytes)
	simplify.RegisterHTTP(r)
	conv := convert.NewHandler(cfg.Server.MaxBodyBytes)
	conv.RegisterHTTP(r)
	svc.RegisterHTTP(r)

	if cfg.Server.MCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "helpers", Version: version}, nil)
		svc.RegisterMCP(mcpSrv)
		simplify.RegisterMCP(mcpSrv, kit.Logging(logger.With("tool", "simplify_html")))
		conv.RegisterMCP(mcpSrv, kit.Logging(logger.With("tool", "convert_spreadsheet")))
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.Handle("/mcp", h)
		r.Handle("/mcp/*", h)
	}
	return r
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
