// Package api provides the HTTP API server and handlers for the library backend.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JoeAtEgypt/library-management/internal/sse"
	"github.com/JoeAtEgypt/library-management/internal/store"
	"github.com/JoeAtEgypt/library-management/internal/validation"
)

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string

	// Borrow and return budget per user. Zero LedgerRate disables limiting.
	LedgerRate     int
	LedgerInterval time.Duration
	LedgerBurst    int
}

// DefaultOptions allows any origin and 20 ledger writes per minute per user.
func DefaultOptions() Options {
	return Options{
		AllowedOrigins: []string{"*"},
		LedgerRate:     20,
		LedgerInterval: time.Minute,
		LedgerBurst:    5,
	}
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store         store.Store
	services      *Services
	hub           *sse.Hub
	router        *chi.Mux
	api           huma.API
	validator     *validation.Validator
	ledgerLimiter *RateLimiter
	logger        *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st store.Store, services *Services, hub *sse.Hub, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		store:     st,
		services:  services,
		hub:       hub,
		router:    chi.NewRouter(),
		validator: validation.New(),
		logger:    logger,
	}
	if opts.LedgerRate > 0 {
		s.ledgerLimiter = NewRateLimiter(opts.LedgerRate, opts.LedgerInterval, opts.LedgerBurst)
	}

	s.setupMiddleware(opts)
	s.setupAPI()
	s.setupRoutes(opts)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources owned by the server.
func (s *Server) Close() {
	if s.ledgerLimiter != nil {
		s.ledgerLimiter.Stop()
	}
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(authMiddleware(s.services.Tokens))
}

func (s *Server) setupAPI() {
	humaConfig := huma.DefaultConfig("Library Management API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()
}

func (s *Server) setupRoutes(opts Options) {
	s.registerHealthRoutes()
	s.registerCatalogRoutes()
	s.registerBorrowRoutes()
	s.registerLoanRoutes()
	s.registerAdminRoutes()

	// Streams bypass huma: they hijack or hold the connection open.
	if s.hub != nil {
		s.router.Get("/api/v1/stream", sse.NewHandler(s.hub, userIDFromRequest, s.logger).ServeHTTP)
		s.router.Get("/ws/book-availability/", sse.NewWebSocketHandler(s.hub, opts.AllowedOrigins, userIDFromRequest, s.logger).ServeHTTP)
	}
}
