// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects the store, the account
// service, handlers, middleware and routes, and owns the process lifecycle.
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and a logger, then Server.New creates:
//
//	repository.Store (sqlite or filestore)
//	  → session.Tracker
//	  → auth.PasswordHasher
//	  → service.AccountService
//	  → auth.TokenService
//	  → handler.AccountHandler
//
// This is the "composition root" pattern: every dependency is wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/sakif/echo-auth/internal/auth"
	"github.com/sakif/echo-auth/internal/config"
	"github.com/sakif/echo-auth/internal/handler"
	"github.com/sakif/echo-auth/internal/middleware"
	"github.com/sakif/echo-auth/internal/repository"
	"github.com/sakif/echo-auth/internal/repository/filestore"
	sqliteRepo "github.com/sakif/echo-auth/internal/repository/sqlite"
	"github.com/sakif/echo-auth/internal/service"
	"github.com/sakif/echo-auth/internal/session"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. Start closes it after graceful shutdown so the
// SQLite WAL is checkpointed and the file lock released; tests call Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
}

// New creates a Server from cfg.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo to avoid confusion with the
// modernc.org/sqlite driver package.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close() // Clean up the store if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore opens the backend named by cfg.StoreBackend, creating its
// directory first.
func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFile:
		store, err := filestore.Open(cfg.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		return store, nil

	default:
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET   /healthz        → liveness probe
// POST  /api/register   → create account + log in          (rate limited)
// POST  /api/login      → authenticate                     (rate limited)
// POST  /api/logout     → clear session
// GET   /api/me         → current user                     (RequireSession)
// PATCH /api/profile    → edit current user's profile      (RequireSession)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, 2. RealIP (httprate keys on the client IP it extracts),
// 3. Recoverer, 4. request logging.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	hasher, err := auth.NewHasher(s.config.PasswordHash, s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password hasher: %w", err)
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	tracker := session.NewTracker(context.Background(), s.store, s.logger)
	accounts := service.NewAccountService(s.store, tracker, hasher, s.logger)
	accountHandler := handler.NewAccountHandler(accounts, tokens, s.logger, s.config.UnifyLoginErrors)

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	loginLimiter := httprate.LimitByIP(s.config.LoginRateLimit, time.Minute)

	s.router.Route("/api", func(r chi.Router) {
		r.With(loginLimiter).Post("/register", accountHandler.HandleRegister)
		r.With(loginLimiter).Post("/login", accountHandler.HandleLogin)
		r.Post("/logout", accountHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(tokens, tracker))
			r.Get("/me", accountHandler.HandleMe)
			r.Patch("/profile", accountHandler.HandleUpdateProfile)
		})
	})

	users, err := s.store.List(context.Background())
	if err != nil {
		return fmt.Errorf("counting accounts: %w", err)
	}

	s.logger.Info("routes configured",
		slog.String("backend", s.config.StoreBackend),
		slog.String("passwordHash", hasher.Algorithm()),
		slog.Int("accounts", len(users)),
	)
	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
