// Package server exposes the utterance pipeline, playback control and the
// morph frame stream over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/logging"
	"github.com/normanking/cortexlipsync/internal/playback"
	"github.com/normanking/cortexlipsync/internal/store"
	"github.com/normanking/cortexlipsync/internal/voice"
)

// Player is the playback control surface.
type Player interface {
	Stop() bool
	Pause()
	Resume()
	Snapshot() playback.PlaybackState
}

// HealthFunc reports the health of named collaborators; nil means healthy.
type HealthFunc func(ctx context.Context) map[string]error

// Dependencies are the collaborators the handlers call. Store, Logs and
// Health are optional.
type Dependencies struct {
	Assistant *voice.Assistant
	Player    Player
	Hub       *Hub
	Store     store.ContentStore
	Logs      *logging.Logger
	Health    HealthFunc
}

// Server is the HTTP surface.
type Server struct {
	cfg    config.ServerConfig
	deps   Dependencies
	logger zerolog.Logger
	mux    *http.ServeMux
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, deps Dependencies, logger zerolog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /tts", s.handleTTS)
	s.mux.HandleFunc("POST /speech-to-text", s.handleSpeechToText)
	s.mux.HandleFunc("GET /audio/{id}", s.handleAudio)

	s.mux.HandleFunc("GET /playback", s.handlePlayback)
	s.mux.HandleFunc("POST /playback/stop", s.handleStop)
	s.mux.HandleFunc("POST /playback/pause", s.handlePause)
	s.mux.HandleFunc("POST /playback/resume", s.handleResume)

	if s.deps.Hub != nil {
		s.mux.Handle("GET /frames", s.deps.Hub)
	}
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /logs", s.handleLogs)
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
