// Package health serves the operational HTTP endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/buildinfo"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
)

// Pinger reports whether a dependency is reachable. state.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stats contributes extra counters to /healthz.
type Stats func() map[string]any

// NewRouter builds the mux for /healthz and /readyz.
func NewRouter(ready Pinger, stats Stats) *mux.Router {
	started := time.Now()
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{
			"status":  "ok",
			"version": buildinfo.Version,
			"commit":  buildinfo.Commit,
			"uptime":  time.Since(started).Round(time.Second).String(),
		}
		if stats != nil {
			for k, v := range stats() {
				body[k] = v
			}
		}
		writeJSON(w, http.StatusOK, body)
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if ready == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := ready.Ping(ctx); err != nil {
			logger.Warn(ctx, logger.CompHealth, "readyz.fail", slog.String("err", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs the router until its context ends.
type Server struct {
	srv *http.Server
}

// NewServer binds h to addr.
func NewServer(addr string, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.CompHealth, "listen", slog.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
