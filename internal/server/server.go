// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency is created and wired here.
//
//	config ─► sqlite.DB ─┬─► SongService ─┐
//	                     └─► SessionStore ─► scs.SessionManager ─┬─► web.Responder ─┤
//	                                                             └─► csrf.Manager ──┴─► SongHandler
//
// Each layer only receives what it needs. The service gets the repository
// interface, the handler gets the service, the responder and the token
// manager, and nothing but this package knows the concrete types.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/song-catalog/internal/config"
	"github.com/sakif/song-catalog/internal/csrf"
	"github.com/sakif/song-catalog/internal/handler"
	"github.com/sakif/song-catalog/internal/middleware"
	sqliteRepo "github.com/sakif/song-catalog/internal/repository/sqlite"
	"github.com/sakif/song-catalog/internal/service"
	"github.com/sakif/song-catalog/internal/web"
)

const sessionCookieName = "songs_session"

// Server represents the HTTP server and all its dependencies. It owns the
// database connection and closes it on shutdown.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	sessions *scs.SessionManager
}

// New opens the database, wires every layer and registers the routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		sessions: newSessionManager(cfg, db.Sessions(), logger),
	}

	if n, err := db.Sessions().DeleteExpired(context.Background()); err != nil {
		logger.Warn("failed to purge expired sessions", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("purged expired sessions", slog.Int64("count", n))
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func newSessionManager(cfg *config.Config, store scs.Store, logger *slog.Logger) *scs.SessionManager {
	m := scs.New()
	m.Store = store
	m.Lifetime = cfg.Security.SessionLifetime
	m.Cookie = scs.SessionCookie{
		Name:     sessionCookieName,
		Path:     "/",
		HttpOnly: true,
		Persist:  true,
		SameSite: http.SameSiteLaxMode,
		Secure:   cfg.Security.SecureCookies,
	}
	m.ErrorFunc = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("session error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	return m
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET       /healthz             → liveness and database check (JSON)
// GET       /static/*            → embedded stylesheet
// GET       /                    → list songs            (song.index)
// GET, POST /create              → create form           (song.create)
// GET, POST /edit/{id}           → edit form             (song.edit)
// POST      /delate/{id}         → delete, CSRF checked  (song.delate)
//
// Only the page routes load the session: health checks and static files
// never touch the sessions table.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/static/*", http.StripPrefix("/static/", web.Static()))

	responder, err := web.NewResponder(s.sessions, s.logger)
	if err != nil {
		return fmt.Errorf("creating responder: %w", err)
	}

	tokens, err := csrf.NewManager(s.config.Security.AppSecret, s.sessions, s.config.Security.CSRFTokenTTL)
	if err != nil {
		return fmt.Errorf("creating csrf manager: %w", err)
	}

	songService := service.NewSongService(s.db, s.logger)
	songHandler := handler.NewSongHandler(songService, responder, tokens, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(s.sessions.LoadAndSave)
		r.Use(middleware.LimitWrites(s.config.Server.WriteRateLimit))

		r.Get("/", songHandler.HandleIndex)
		r.Get("/create", songHandler.HandleCreate)
		r.Post("/create", songHandler.HandleCreate)
		r.Get("/edit/{id:[0-9]+}", songHandler.HandleEdit)
		r.Post("/edit/{id:[0-9]+}", songHandler.HandleEdit)
		r.Post("/delate/{id:[0-9]+}", songHandler.HandleDelete)
	})

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, body := http.StatusOK, map[string]string{"status": "ok", "database": "ok"}
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode health response", slog.String("error", err.Error()))
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully:
//  1. stop accepting new connections
//  2. wait up to 30 seconds for in-flight requests
//  3. close the database
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received", slog.String("cause", context.Cause(ctx).Error()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
