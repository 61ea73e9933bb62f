// Package server wires the record store, the model and the HTTP routes, and
// runs the listener until a shutdown signal arrives.
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

	"github.com/sakif/localfeed/internal/app"
	"github.com/sakif/localfeed/internal/config"
	"github.com/sakif/localfeed/internal/handler"
	"github.com/sakif/localfeed/internal/middleware"
	"github.com/sakif/localfeed/internal/repository"
	"github.com/sakif/localfeed/internal/repository/memory"
	redisRepo "github.com/sakif/localfeed/internal/repository/redis"
	sqliteRepo "github.com/sakif/localfeed/internal/repository/sqlite"
)

// Server owns the App and, through it, the record store. Start closes both.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	app    *app.App
}

// New opens the configured backend, restores the session and builds the
// routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store, err)
	}

	a := app.New(repository.New(backend, cfg.Namespace), app.Options{
		Latency:       cfg.Latency,
		MediaMaxBytes: cfg.MediaMaxBytes,
	}, logger)
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return NewWithApp(cfg, a, logger), nil
}

// NewWithApp builds the routes over an existing App.
func NewWithApp(cfg config.Config, a *app.App, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		app:    a,
	}
	s.setupRoutes()
	return s
}

// OpenBackend returns the record store backend named by cfg.Store.
func OpenBackend(ctx context.Context, cfg config.Config) (repository.Backend, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StoreRedis:
		store, err := redisRepo.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Close releases the record store without serving.
func (s *Server) Close() error {
	return s.app.Close()
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Routes:
//
//	GET    /api/session                        session state and user
//	POST   /api/session/{login,signup,logout}
//	PUT    /api/session/{avatar,profile}
//	GET    /api/users                          directory
//	GET    /api/users/{id}                     one user
//	GET    /api/users/{id}/posts               profile page
//	POST   /api/users/{id}/posts/{postID}/like
//	POST   /api/users/{id}/posts/{postID}/comments
//	DELETE /api/users/{id}/posts/{postID}
//	POST   /api/users/{id}/follow              DELETE to unfollow
//	GET    /api/posts                          feed, newest first
//	POST   /api/posts
//	GET    /api/posts/{id}                     detail pane
//	POST   /api/posts/{id}/like
//	POST   /api/posts/{id}/comments
//	DELETE /api/posts/{id}
//	POST   /api/media                          raw upload
//	GET    /media/{id}
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	sessions := handler.NewSessionHandler(s.app, s.logger)
	users := handler.NewUserHandler(s.app, s.logger)
	posts := handler.NewPostHandler(s.app, s.logger)
	uploads := handler.NewMediaHandler(s.app, s.config.MediaMaxBytes, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessions.HandleGet)
			r.Post("/login", sessions.HandleLogin)
			r.Post("/signup", sessions.HandleSignup)
			r.Post("/logout", sessions.HandleLogout)
			r.Put("/avatar", sessions.HandleAvatar)
			r.Put("/profile", sessions.HandleProfile)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", users.HandleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", users.HandleGet)
				r.Get("/posts", users.HandlePosts)
				r.Post("/posts/{postID}/like", posts.HandleProfileLike)
				r.Post("/posts/{postID}/comments", posts.HandleProfileComment)
				r.Delete("/posts/{postID}", posts.HandleProfileDelete)
				r.Post("/follow", users.HandleFollow)
				r.Delete("/follow", users.HandleUnfollow)
			})
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", posts.HandleList)
			r.Post("/", posts.HandleCreate)
			r.Get("/{id}", posts.HandleGet)
			r.Post("/{id}/like", posts.HandleLike)
			r.Post("/{id}/comments", posts.HandleComment)
			r.Delete("/{id}", posts.HandleDelete)
		})

		r.Post("/media", uploads.HandleUpload)
	})

	s.router.Get("/media/{id}", uploads.HandleServe)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests and
// closes the store.
func (s *Server) Start() error {
	defer s.app.Close()

	// Writes must outlast the simulated upload latency.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + s.config.Latency,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.Store),
			slog.String("namespace", s.config.Namespace),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
