package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Server serves run progress over HTTP.
type Server struct {
	hub   *Hub
	stats Snapshotter
	srv   *http.Server
}

// NewServer creates a progress server on addr. stats supplies /stats
// before the hub has seen its first event.
func NewServer(addr string, hub *Hub, stats Snapshotter) *Server {
	s := &Server{hub: hub, stats: stats}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Cache-Control"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/stats", s.handleStats)
	r.Get("/events", s.handleEvents)
	return r
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats != nil {
		writeJSON(w, http.StatusOK, s.stats.Snapshot())
		return
	}
	if evt, ok := s.hub.Latest(); ok {
		writeJSON(w, http.StatusOK, evt.Stats)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run in progress"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	if evt, ok := s.hub.Latest(); ok {
		writeEvent(w, evt)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			writeEvent(w, evt)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt Event) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, evt.encode())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		zap.L().Info("monitoring: shutting down server")
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("monitoring: serving progress", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "monitoring: listen")
	}
	return nil
}
