// Package httpserver provides the HTTP chat API for the book recommendation service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/pipeline"
	"github.com/helixir/book-recommendation-service/internal/session"
)

// Recommender runs one recommendation request.
type Recommender interface {
	Recommend(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Renderer turns ranked books into the HTML chat message.
type Renderer interface {
	Render(books []domain.RankedBook, language string) (string, error)
}

// BreakerStates reports circuit breaker states for readiness.
type BreakerStates interface {
	States() map[string]string
}

// Server is the HTTP chat API server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	recommender  Recommender
	renderer     Renderer
	sessions     session.Store
	breakers     BreakerStates
	validate     *validator.Validate
	systemPrompt string
	cfg          Config
	logger       zerolog.Logger
	metrics      *observability.Metrics

	// baseCtx parents every request context. It is cancelled when a graceful
	// shutdown runs out of time so in-flight pipelines stop.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	draining   atomic.Bool
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// RequestTimeout bounds one chat request. Zero means no bound.
	RequestTimeout time.Duration

	// MaxBodyBytes caps the chat request body. Larger bodies get 413.
	MaxBodyBytes int64

	CORS      CORSConfig
	RateLimit RateLimitConfig
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// RateLimitConfig configures per-client rate limiting of /chat.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// Deps are the collaborators of a Server. Breakers and Metrics are optional.
type Deps struct {
	Recommender  Recommender
	Renderer     Renderer
	Sessions     session.Store
	Breakers     BreakerStates
	SystemPrompt string
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
}

// defaultMaxBodyBytes applies when Config.MaxBodyBytes is unset.
const defaultMaxBodyBytes = 16 << 10

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		recommender:  deps.Recommender,
		renderer:     deps.Renderer,
		sessions:     deps.Sessions,
		breakers:     deps.Breakers,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		systemPrompt: deps.SystemPrompt,
		cfg:          cfg,
		logger:       deps.Logger.With().Str("component", "http-server").Logger(),
		metrics:      deps.Metrics,
		baseCtx:      baseCtx,
		cancelBase:   cancel,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware(s.cfg.CORS))

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Group(func(r chi.Router) {
		r.Use(rateLimitMiddleware(s.cfg.RateLimit))
		r.Post("/chat", s.chat)
	})

	return r
}

// Handler returns the root handler. Tests serve it through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server. Readiness fails at once;
// requests still running when ctx expires are cancelled and answer 503.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	err := s.httpServer.Shutdown(ctx)
	s.cancelBase()
	return err
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the server accepts new chat requests.
func (s *Server) readinessHandler(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ready"}
	if s.breakers != nil {
		resp["breakers"] = s.breakers.States()
	}
	if s.draining.Load() {
		resp["status"] = "draining"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// NewMetricsServer returns the server exposing Prometheus metrics on its own port.
func NewMetricsServer(address, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
