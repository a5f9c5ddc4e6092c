// Package api provides the HTTP, WebSocket and Connect surfaces of the bill assistant.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/bill-assistant/internal/api/rpc"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/pdf"
	"github.com/spherical/bill-assistant/internal/pipeline"
)

// checkTimeout bounds each readiness probe.
const checkTimeout = 2 * time.Second

// Check is a named readiness probe.
type Check func(ctx context.Context) error

// RouterConfig holds router configuration.
type RouterConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	MaxUploadSize  int64
	Checks         map[string]Check
}

// NewRouter creates the API router with all routes configured.
func NewRouter(svc *pipeline.Service, cfg RouterConfig, logger *observability.Logger) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = pdf.DefaultMaxSize
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "bill-assistant"})
	})
	r.Get("/ready", readyHandler(cfg.Checks))

	handler := NewHandler(svc, cfg.MaxUploadSize, logger)
	socket := NewChatSocket(svc, cfg.AllowedOrigins, logger)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		// The chat socket outlives any single request timeout.
		r.Get("/{id}/ws", socket.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

			r.Post("/", handler.CreateSession)
			r.Get("/", handler.ListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.GetSession)
				r.Delete("/", handler.DeleteSession)
				r.Post("/document", handler.UploadDocument)
				r.Post("/translate", handler.Translate)
				r.Post("/ask", handler.Ask)
				r.Get("/history", handler.History)
				r.Post("/reset", handler.Reset)
			})
		})
	})

	path, rpcHandler := rpc.NewHandler(rpc.NewChatService(svc, logger))
	r.Mount(path, rpcHandler)

	return r
}

func readyHandler(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
