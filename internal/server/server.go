// Package server wires the store, services, handlers and routes together and
// runs the HTTP server.
//
// This is the composition root: every dependency is built once in New and
// passed down.
//
//	config → Store (memory | sqlite | postgres)
//	       → AuthService, PhotoService → AuthHandler, PhotoHandler
//	       → ws.Hub + amqp.Publisher   → events.Multi → PhotoService
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/photosphere/internal/auth"
	"github.com/sakif/photosphere/internal/config"
	"github.com/sakif/photosphere/internal/events"
	"github.com/sakif/photosphere/internal/events/amqp"
	"github.com/sakif/photosphere/internal/events/ws"
	"github.com/sakif/photosphere/internal/handler"
	"github.com/sakif/photosphere/internal/middleware"
	"github.com/sakif/photosphere/internal/repository"
	"github.com/sakif/photosphere/internal/repository/memory"
	"github.com/sakif/photosphere/internal/repository/postgres"
	sqliteRepo "github.com/sakif/photosphere/internal/repository/sqlite"
	"github.com/sakif/photosphere/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store, the live feed hub and the queue publisher; all
// three are released by Close, which Start calls on shutdown.
type Server struct {
	router chi.Router
	config config.Config
	logger *slog.Logger

	store   repository.Store
	hub     *ws.Hub
	stopHub context.CancelFunc
	queue   *amqp.Publisher // nil unless AMQP_URL is set
}

// New builds a Server from cfg. The hub goroutine is started here so the
// router returned by Handler is immediately usable.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	hub := ws.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	publishers := events.Multi{hub}

	var queue *amqp.Publisher
	if cfg.AMQPURL != "" {
		queue, err = amqp.Dial(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			stopHub()
			store.Close()
			return nil, fmt.Errorf("server: %w", err)
		}
		publishers = append(publishers, queue)
		logger.Info("publishing events to amqp", slog.String("queue", cfg.AMQPQueue))
	}

	authService := service.NewAuthService(store, tokens, auth.NewPasswordService(cfg.BcryptCost), logger)
	photoService := service.NewPhotoService(store, logger,
		service.WithPublisher(publishers),
		service.WithThumbnails(uint(cfg.ThumbnailSize)),
	)

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		hub:     hub,
		queue:   queue,
		stopHub: stopHub,
	}

	if cfg.SeedWelcomePhoto {
		if _, err := photoService.SeedWelcome(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("server: %w", err)
		}
	}

	s.setupRoutes(
		handler.NewAuthHandler(authService, logger),
		handler.NewPhotoHandler(photoService, cfg.MaxUploadBytes, logger),
		handler.NewHealthHandler(),
		tokens,
	)

	return s, nil
}

// openStore picks the backing store named by cfg.StoreDriver.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("server: opening sqlite store: %w", err)
		}
		return db, nil
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("server: opening postgres store: %w", err)
		}
		return db, nil
	case config.DriverMemory, "":
		return memory.New(), nil
	}
	return nil, fmt.Errorf("server: unknown store driver %q", cfg.StoreDriver)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /api/health                   → liveness
// POST   /api/register                 → create account
// POST   /api/login                    → issue bearer token
// GET    /api/photos                   → feed, newest first
// GET    /api/photos/{id}              → one photo
// GET    /api/feed/live                → WebSocket event stream
// GET    /api/me                       → current account               [auth]
// POST   /api/photos                   → upload (creator only)        [auth]
// POST   /api/photos/{id}/react/{type} → increment a reaction          [auth]
// POST   /api/photos/{id}/comment      → append a comment              [auth]
// POST   /api/photos/{id}/share        → increment shares              [auth]
//
// Middleware order: RequestID, RealIP, Logger, Recoverer, CORS.
func (s *Server) setupRoutes(
	authH *handler.AuthHandler,
	photoH *handler.PhotoHandler,
	healthH *handler.HealthHandler,
	tokens auth.Verifier,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthH.HandleHealth)
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.Get("/photos", photoH.HandleList)
		r.Get("/photos/{id}", photoH.HandleGet)
		r.Method(http.MethodGet, "/feed/live", s.hub)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authH.HandleMe)
			r.Post("/photos", photoH.HandleUpload)
			r.Post("/photos/{id}/react/{type}", photoH.HandleReact)
			r.Post("/photos/{id}/comment", photoH.HandleComment)
			r.Post("/photos/{id}/share", photoH.HandleShare)
		})
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store, the queue publisher and the hub. The queue is
// flushed before the store closes.
func (s *Server) Close() error {
	s.stopHub()
	s.hub.Close()

	var errs []error
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing amqp publisher: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, give in-flight requests 30 seconds, then
// Close.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("shutdown cleanup failed", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // uploads up to MAX_UPLOAD_BYTES
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
