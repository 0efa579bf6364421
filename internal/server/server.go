// Package server provides the HTTP server for mudra: corpus browsing and
// upload, live translation control, the camera preview and a WebSocket feed
// of recognized signs.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/go-chi/chi/v5"
)

// Config holds the server configuration. Optional parts left nil disable
// their routes.
type Config struct {
	Addr       string
	StaticDir  string
	Repository corpus.Repository
	Translator api.TranslatorControl
	Hub        *RecognitionHub
	Preview    *capture.Preview
	Logger     *slog.Logger
}

// Server is the mudra HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
	start      time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		logger: logging.WithComponent(config.Logger, "server"),
		start:  time.Now(),
	}
	s.router = s.newRouter(config)
	s.httpServer = &http.Server{
		Addr:        config.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// streams and websockets stay open
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) newRouter(config Config) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		if config.Repository != nil {
			api.NewActionHandler(config.Repository, config.Logger).Routes(r)
		}
		if config.Translator != nil {
			api.NewTranslatorHandler(config.Translator, config.Logger).Routes(r)
		}
		if config.Hub != nil {
			r.Method(http.MethodGet, "/recognitions", config.Hub)
		}
		if config.Preview != nil {
			r.Method(http.MethodGet, "/stream", NewStreamHandler(config.Preview))
		}
	})

	if config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(config.StaticDir)))
	}
	return r
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
