// Package api serves the collector's status endpoints. The server is
// optional and read-only: it exposes the pipeline's diagnostics counters
// without touching pipeline state.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/CrashxZ/AF25/internal/pipeline"
)

// Server is the HTTP status layer for the collector.
type Server struct {
	pipe    *pipeline.Pipeline
	mux     *http.ServeMux
	server  *http.Server
	limiter *rate.Limiter
}

// NewServer wires a status server to the pipeline it reports on.
func NewServer(addr string, pipe *pipeline.Pipeline) *Server {
	s := &Server{
		pipe: pipe,
		mux:  http.NewServeMux(),
		// Per-server token bucket; plenty for a diagnostics surface.
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.withRateLimit(s.handleStatus))
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.recoverPanics(s.mux),
	}
	return s
}

// Start begins serving on the configured address in a new goroutine.
func (s *Server) Start() {
	slog.Info("status server listening", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.pipe.Status()
	resp := struct {
		pipeline.Status
		UptimeSeconds int64 `json:"uptime_seconds"`
	}{
		Status:        st,
		UptimeSeconds: int64(time.Since(st.StartedAt).Seconds()),
	}
	writeJSON(w, http.StatusOK, resp)
}

// withRateLimit wraps a handler with the server's token bucket and
// answers 429 when it is exhausted.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limit exceeded"}`)
			return
		}
		next(w, r)
	}
}

// recoverPanics keeps a handler panic from taking down the collector.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic in status handler",
					"error", err,
					"stack", string(debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"error":"internal server error"}`)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding status response", "error", err)
	}
}
