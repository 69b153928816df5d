// Package api provides the HTTP surface of the radbot assistant.
//
// It exposes RESTful endpoints for creating and managing reminders and
// scheduled tasks, the WebSocket upgrade endpoint for delivery pushes,
// and a health check. All mutation of persisted state goes through the
// store; the trigger engine observes the same database, so a created
// reminder needs no further coordination to fire.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/store"
	"github.com/perrymanuk/radbot-sub001/internal/ws"
)

// DefaultShutdownTimeout bounds how long a graceful shutdown waits for
// in-flight requests.
const DefaultShutdownTimeout = 10 * time.Second

// Server handles the HTTP API for reminders and scheduled tasks.
type Server struct {
	st store.Store
	ws *ws.Server
}

// NewServer creates an API server over the given store and WebSocket server.
func NewServer(st store.Store, wsServer *ws.Server) *Server {
	return &Server{st: st, ws: wsServer}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/reminders", s.remindersHandler)
	mux.HandleFunc("/reminders/", s.reminderByIDHandler)
	mux.HandleFunc("/tasks", s.tasksHandler)
	mux.HandleFunc("/tasks/", s.taskByIDHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/ws", s.ws.HandleWebSocket)
	return mux
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		slog.Error("Server.healthHandler: failed to write response", "error", err)
	}
}
