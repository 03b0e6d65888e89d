package rest

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/clintrovert/issueproxy/internal/pipeline"
)

// Submitter runs one inbound request through the submission pipeline
type Submitter interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Response
}

// Handler handles REST API requests
type Handler struct {
	submitter    Submitter
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHandler creates a new REST handler
func NewHandler(submitter Submitter, maxBodyBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		submitter:    submitter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// SubmitIssue handles every method on the submission routes; the pipeline
// decides what each one means.
func (h *Handler) SubmitIssue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		// An unreadable body decodes as invalid once the pipeline reaches it.
		h.logger.Debug("failed to read request body", zap.Error(err))
		body = nil
	}

	resp := h.submitter.Handle(r.Context(), pipeline.Request{
		Method: r.Method,
		Header: r.Header,
		Body:   body,
	})

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			h.logger.Debug("failed to write response", zap.Error(err))
		}
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RegisterRoutes registers REST API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/", h.SubmitIssue)
	r.HandleFunc("/issues", h.SubmitIssue)
	r.Get("/health", h.Health)
}

// NewRouter builds the public router: request IDs, panic recovery, CORS, the
// submission routes, /health and /metrics. Preflights pass through CORS to
// the pipeline, which answers them with 204.
func NewRouter(h *Handler, allowedOrigins []string, metricsHandler http.Handler) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:     allowedOrigins,
		AllowedMethods:     []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		MaxAge:             3600,
		OptionsPassthrough: true,
	}))
	h.RegisterRoutes(router)
	if metricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return router
}
