package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/daily-missions/internal/config"
	"github.com/terra-clan/daily-missions/internal/missions"
	"github.com/terra-clan/daily-missions/internal/models"
	"github.com/terra-clan/daily-missions/internal/storage"
)

const requestTimeout = 30 * time.Second

// Definitions is the catalog view the API serves
type Definitions interface {
	List() []*models.Definition
	Get(id string) *models.Definition
	ByDifficulty(d models.Difficulty) []*models.Definition
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	missions       missions.Manager
	definitions    Definitions
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server. A nil repo disables authentication.
func NewServer(
	cfg config.ServerConfig,
	manager missions.Manager,
	definitions Definitions,
	repo storage.Repository,
) *Server {
	s := &Server{
		config:      cfg,
		missions:    manager,
		definitions: definitions,
	}
	if repo != nil {
		s.authMiddleware = NewAuthMiddleware(repo)
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		if s.authMiddleware != nil {
			r.Use(s.authMiddleware.Authenticate)
		}

		r.Route("/definitions", func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.With(s.require(models.PermMissionsRead)).Get("/", s.handleListDefinitions)
			r.With(s.require(models.PermMissionsRead)).Get("/{id}", s.handleGetDefinition)
		})

		r.Route("/players/{playerID}", func(r chi.Router) {
			// Websocket streams are long-lived, keep them out of the timeout.
			r.With(s.require(models.PermMissionsRead)).Get("/events", s.handleEvents)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))
				r.With(s.require(models.PermMissionsRead)).Get("/missions", s.handleGetMissions)
				r.With(s.require(models.PermMissionsWrite)).Post("/progress", s.handleProgress)
				r.With(s.require(models.PermMissionsWrite)).Post("/missions/{slot}/claim", s.handleClaim)
				r.With(s.require(models.PermMissionsWrite)).Put("/level", s.handleSetLevel)
				r.With(s.require(models.PermMissionsAdmin)).Post("/missions/reset", s.handleReassign)
				r.With(s.require(models.PermMissionsAdmin)).Delete("/missions", s.handleClearMissions)
			})
		})
	})

	s.router = r
}

// require checks a permission when authentication is enabled
func (s *Server) require(permission string) func(http.Handler) http.Handler {
	if s.authMiddleware == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.authMiddleware.RequirePermission(permission)
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
