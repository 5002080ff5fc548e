// Package server exposes the playback session over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/agleyzer/slidecast/internal/cluster"
	"github.com/agleyzer/slidecast/internal/highlight"
	"github.com/agleyzer/slidecast/internal/player"
	"github.com/agleyzer/slidecast/internal/playlist"
)

// ClusterStatus is the part of the cluster manager the server reports on.
type ClusterStatus interface {
	NodeID() string
	IsLeader() bool
	LeaderAddr() string
	State() string
	GetState() cluster.PresenterState
}

// Server serves the session state and playback controls
type Server struct {
	session    *player.Session
	projection *highlight.Projection
	video      string
	cluster    ClusterStatus
	port       int
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new HTTP server. video is the reference used for chapter
// playlist URIs and may be empty.
func New(session *player.Session, projection *highlight.Projection, video string, port int, logger *slog.Logger) *Server {
	return &Server{
		session:    session,
		projection: projection,
		video:      video,
		port:       port,
		logger:     logger,
	}
}

// SetCluster enables the /cluster endpoint.
func (s *Server) SetCluster(c ClusterStatus) {
	s.cluster = c
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/chapters.m3u8", s.handleChapters)
	mux.HandleFunc("/cluster", s.handleCluster)
	mux.HandleFunc("/view", s.post(s.handleView))
	mux.HandleFunc("/slide", s.post(s.handleSlide))
	mux.HandleFunc("/seek", s.post(s.handleSeek))
	mux.HandleFunc("/next", s.post(s.handleNext))
	mux.HandleFunc("/previous", s.post(s.handlePrevious))
	mux.HandleFunc("/toggle", s.post(s.handleToggle))

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	// Start server in a goroutine
	go func() {
		s.logger.Info("starting HTTP server", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// stateResponse is the session snapshot plus what the highlight renderers
// currently show.
type stateResponse struct {
	player.Snapshot
	Highlight highlight.Frame `json:"highlight"`
}

type actionResponse struct {
	Outcome string        `json:"outcome"`
	State   stateResponse `json:"state"`
}

func (s *Server) state() stateResponse {
	resp := stateResponse{Snapshot: s.session.State()}
	if s.projection != nil {
		resp.Highlight = s.projection.Frame()
	}
	return resp
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"state":  s.state(),
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.state())
}

// handleChapters serves the slide chapters as an HLS VOD playlist
func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	content, err := playlist.Generate(s.session.Index(), s.video, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Set HLS-specific headers
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	if s.cluster == nil {
		http.Error(w, "clustering is not enabled", http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"node":       s.cluster.NodeID(),
		"raftState":  s.cluster.State(),
		"leader":     s.cluster.IsLeader(),
		"leaderAddr": s.cluster.LeaderAddr(),
		"presenter":  s.cluster.GetState(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	mode, err := player.ParseViewMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeOutcome(w, s.session.SwitchView(r.Context(), mode))
}

func (s *Server) handleSlide(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}
	if !s.session.Index().HasSlide(index) {
		http.Error(w, fmt.Sprintf("unknown slide %d", index), http.StatusNotFound)
		return
	}
	s.writeOutcome(w, s.session.NavigateToSlide(r.Context(), index))
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	fraction, err := strconv.ParseFloat(r.URL.Query().Get("fraction"), 64)
	if err != nil {
		http.Error(w, "fraction must be a number", http.StatusBadRequest)
		return
	}
	s.writeOutcome(w, s.session.SeekGlobal(r.Context(), fraction))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.writeOutcome(w, s.session.Next(r.Context()))
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.writeOutcome(w, s.session.Previous(r.Context()))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	playing := s.session.TogglePlayPause()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"playing": playing,
		"state":   s.state(),
	})
}

// post rejects anything but POST.
func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) writeOutcome(w http.ResponseWriter, o player.Outcome) {
	s.writeJSON(w, http.StatusOK, actionResponse{Outcome: o.String(), State: s.state()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
