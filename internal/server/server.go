// Package server is the tour persistence service: it stores the tour and
// quest documents, lists panorama images and streams change events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// App carries the dependencies the routes serve.
type App struct {
	Store   Store
	Broker  *Broker
	Catalog *Catalog
	// PublicDir, when it exists, is served for every unmatched path.
	PublicDir string
	// PingInterval is how often idle event streams get a comment line.
	PingInterval time.Duration
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds the server. mount, if non-nil, adds extra routes such as health
// checks owned by the caller.
func New(addr string, logger *slog.Logger, app App, mount func(r chi.Router)) *Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(logger, app, mount),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if app.Broker != nil {
		srv.RegisterOnShutdown(app.Broker.Close)
	}
	return &Server{srv: srv, logger: logger}
}

// NewHandler returns the routed handler New serves.
func NewHandler(logger *slog.Logger, app App, mount func(r chi.Router)) http.Handler {
	if app.PingInterval == 0 {
		app.PingInterval = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	if mount != nil {
		mount(r)
	}
	addRoutes(r, logger, app)
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
