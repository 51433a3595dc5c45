// Package receiver exposes the relay over HTTP.
package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server represents the receiver HTTP server.
type Server struct {
	config Config
	relay  *Relay
	logger *slog.Logger
	server *http.Server
}

// New creates a new receiver server instance.
func New(config Config, relay *Relay, logger *slog.Logger) *Server {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.TypeParam == "" {
		config.TypeParam = DefaultTypeParam
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: config,
		relay:  relay,
		logger: logger,
	}
}

// Start starts the receiver HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("receiver starting",
		"listen", s.config.Listen,
		"path", s.config.Path,
		"caller_verification", s.config.Secret != "",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("receiver shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("receiver shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("receiver error: %w", err)
	}
}

// writeTimeout outlasts the forward timeout so a slow collector still gets its
// answer back to the caller.
func (s *Server) writeTimeout() time.Duration {
	if t := s.config.ForwardTimeout + writeMargin; t > DefaultWriteTimeout {
		return t
	}
	return DefaultWriteTimeout
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get(HealthPath, s.handleHealthz)
	r.Post(s.config.Path, s.handleWebhook)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and credentials).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes_in", r.ContentLength,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	label := r.URL.Query().Get(s.config.TypeParam)

	if s.config.Secret == "" {
		s.respondText(w, s.relay.Deliver(ctx, r.Body, label, middleware.GetReqID(ctx)))
		return
	}

	// Verification needs the whole body up front.
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondText(w, Response{StatusCode: http.StatusInternalServerError, Body: bodyErrorPrefix + "failed to read request body"})
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondText(w, Response{StatusCode: http.StatusRequestEntityTooLarge, Body: bodyTooLarge})
		return
	}

	if err := VerifySignature(body, r.Header.Get(s.config.SignatureHeader), s.config.Secret); err != nil {
		s.logger.Warn("caller signature rejected",
			"path", r.URL.Path,
			"header", s.config.SignatureHeader,
			"request_id", middleware.GetReqID(ctx),
		)
		s.respondText(w, Response{StatusCode: http.StatusForbidden, Body: bodyForbidden})
		return
	}

	s.respondText(w, s.relay.Deliver(ctx, body, label, middleware.GetReqID(ctx)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) respondText(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}
