// Package api exposes sessions and PDF operations over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/mattjoyce/folio/internal/auth"
	"github.com/mattjoyce/folio/internal/bundle"
	"github.com/mattjoyce/folio/internal/dispatch"
	"github.com/mattjoyce/folio/internal/events"
	"github.com/mattjoyce/folio/internal/export"
	"github.com/mattjoyce/folio/internal/journal"
	"github.com/mattjoyce/folio/internal/session"
)

// Sessions is the session table the API drives.
type Sessions interface {
	Create(ctx context.Context, cfg session.Config) (session.Info, error)
	Get(ctx context.Context, id string) (*session.Handle, error)
	Status(id string) (session.Info, error)
	List() []session.Info
	Delete(ctx context.Context, id string) error
}

// Operations runs PDF operations against a held session.
type Operations interface {
	OCR(ctx context.Context, t dispatch.Target, p dispatch.OCRParams) (dispatch.Result, error)
	Markdown(ctx context.Context, t dispatch.Target, p dispatch.MarkdownParams) (dispatch.Result, error)
	Split(ctx context.Context, t dispatch.Target, p dispatch.SplitParams) (dispatch.Result, error)
	Merge(ctx context.Context, t dispatch.Target, p dispatch.MergeParams) (dispatch.Result, error)
	Capacity() int
	InFlight() int
}

// History lists journaled operations for a session.
type History interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]journal.Entry, error)
}

// Exporter copies a bundle to external storage.
type Exporter interface {
	Export(ctx context.Context, sessionID string, p *bundle.Payload) (export.Object, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	Auth   auth.Authenticator

	CORSOrigins []string
	// RateLimit is requests per RateWindow per client IP on mutating
	// session routes. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration

	// WriteTimeout bounds a whole response, which includes synchronous
	// operations.
	WriteTimeout time.Duration
}

// Deps are the services behind the routes. Journal and Export may be nil.
type Deps struct {
	Sessions Sessions
	Ops      Operations
	Journal  History
	Export   Exporter
	Events   *events.Hub
	Logger   *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	sessions  Sessions
	ops       Operations
	journal   History
	exporter  Exporter
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps) *Server {
	if config.RateWindow <= 0 {
		config.RateWindow = time.Minute
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 20 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := deps.Events
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		sessions:  deps.Sessions,
		ops:       deps.Ops,
		journal:   deps.Journal,
		exporter:  deps.Export,
		events:    hub,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	if !s.config.Auth.Enabled() {
		s.logger.Warn("no API credentials configured; all routes are open")
	}
	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"Content-Disposition", "ETag"},
		MaxAge:         300,
	}))

	// Unauthenticated.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Post("/auth/token", s.handleIssueToken)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)

		r.Route("/sessions", func(r chi.Router) {
			read := r.With(s.requireScopes(auth.ScopeSessionsRO))
			write := r.With(s.requireScopes(auth.ScopeSessionsRW), s.rateLimit())

			write.Post("/", s.handleCreateSession)
			read.Get("/", s.handleListSessions)
			read.Get("/{id}", s.handleSessionStatus)
			r.With(s.requireScopes(auth.ScopeSessionsRW)).Delete("/{id}", s.handleDeleteSession)

			read.Get("/{id}/files", s.handleListFiles)
			write.Post("/{id}/files", s.handleUpload)
			write.Post("/{id}/ocr", s.handleOCR)
			write.Post("/{id}/markdown", s.handleMarkdown)
			write.Post("/{id}/split", s.handleSplit)
			write.Post("/{id}/merge", s.handleMerge)
			write.Post("/{id}/export", s.handleExport)

			read.Get("/{id}/artifacts", s.handleListArtifacts)
			read.Get("/{id}/download", s.handleDownload)
			read.Get("/{id}/history", s.handleHistory)
		})
	})

	return r
}

func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.config.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.config.RateLimit,
		s.config.RateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
