// Package server is a local HTTP harness for the notification handlers. It
// accepts change events over HTTP so a handler can be exercised without the
// Lambda runtime.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaharia-lab/mailhook/internal/changestream"
	"github.com/shaharia-lab/mailhook/internal/notification"
	"github.com/shaharia-lab/mailhook/internal/provider/sandbox"
)

const maxEventBytes = 1 << 20

// Option customizes a Server.
type Option func(*Server)

// WithMetricsRegistry serves reg on GET /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithSandbox exposes the sandbox provider's statistics and outbox.
func WithSandbox(sb *sandbox.Provider) Option {
	return func(s *Server) { s.sandbox = sb }
}

// WithTracerProvider sets the provider used for server spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracerProvider = tp }
}

// Server is the HTTP server of the local harness.
type Server struct {
	handler        notification.Handler
	port           int
	logger         *slog.Logger
	registry       *prometheus.Registry
	sandbox        *sandbox.Provider
	tracerProvider trace.TracerProvider
	httpServer     *http.Server
}

// New creates a Server that feeds POST /invoke bodies to h.
func New(h notification.Handler, port int, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		handler: h,
		port:    port,
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/invoke", s.handleInvoke)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	if s.sandbox != nil {
		r.Route("/sandbox", func(r chi.Router) {
			r.Get("/statistics", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, s.sandbox.SendStatistics())
			})
			r.Get("/outbox", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, s.sandbox.Outbox())
			})
		})
	}

	var otelOpts []otelhttp.Option
	if s.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(s.tracerProvider))
	}
	return otelhttp.NewHandler(r, "mailhook.http", otelOpts...)
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleInvoke runs the handler on the posted change event and replies with
// the handler's response object, using its statusCode as the HTTP status.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		if tooLarge := new(http.MaxBytesError); errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "event too large")
			return
		}
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	event, err := changestream.Decode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.handler.Handle(r.Context(), event)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "handler failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "handler failed")
		return
	}
	writeJSON(w, resp.StatusCode, resp)
}

// requestLogger is a chi middleware that logs each incoming request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
