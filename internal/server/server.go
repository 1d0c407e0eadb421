// Package server provides the HTTP server of paperbeat: the control API, the
// live note feed and the camera preview.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/paperbeat/internal/dispatch"
	"github.com/ayusman/paperbeat/internal/server/api"
	"github.com/ayusman/paperbeat/internal/store"
)

// Config holds the server configuration. Routes whose dependency is nil are
// not registered.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Calibrator api.Calibrator
	Settings   api.Settings
	Frames     FrameSource
	Notes      *NotesHub
	Bus        *dispatch.Bus
}

// Server represents the HTTP server for the paperbeat application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Calibrator != nil {
		s.mux.Handle("/api/calibration", api.NewCalibrationHandler(s.config.Calibrator))
	}

	if s.config.Store != nil {
		if s.config.Calibrator != nil {
			history := api.NewHistoryHandler(s.config.Store, s.config.Calibrator)
			s.mux.Handle("/api/calibrations", history)
			s.mux.Handle("/api/calibrations/", history)
		}
		s.mux.Handle("/api/notes", api.NewNotesHandler(s.config.Store))
	}

	if s.config.Settings != nil {
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Settings))
	}

	if s.config.Notes != nil {
		s.mux.Handle("/api/notes/live", s.config.Notes)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Calibrator != nil {
		response["calibrated"] = s.config.Calibrator.Current() != nil
	}
	if s.config.Notes != nil {
		response["listeners"] = s.config.Notes.Clients()
		response["live_dropped"] = s.config.Notes.Dropped()
	}
	if s.config.Bus != nil {
		response["bus"] = s.config.Bus.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for active requests.
// Streaming responses end when their request context is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
