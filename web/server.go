// Package web serves the setlist page and the JSON routes that drive Live.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/zenibako/cuebridge/live"
	"github.com/zenibako/cuebridge/templates"

	"github.com/charmbracelet/log"
)

const (
	// DefaultListenAddr is where the bridge listens when nothing is configured
	DefaultListenAddr = "0.0.0.0:5000"

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Controller is the Live song surface the routes drive. *live.Song implements it.
type Controller interface {
	CuePoints(ctx context.Context) ([]live.CuePoint, error)
	Play(cues []live.CuePoint, index int) (live.PlayResult, error)
	Stop() error
}

// HealthChecker reports whether Live answers. *live.Client implements it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP bridge. The Live song and the playhead monitor are
// injected so tests can swap them out.
type Server struct {
	song         Controller
	monitor      *live.Monitor
	health       HealthChecker
	title        string
	pollInterval time.Duration
	mux          *http.ServeMux
}

// Option configures a Server
type Option func(*Server)

// WithHealthCheck enables Live reachability checks on /healthz
func WithHealthCheck(h HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithTitle sets the page heading
func WithTitle(title string) Option {
	return func(s *Server) { s.title = title }
}

// WithPollInterval sets the poll interval shown on the page
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.pollInterval = d }
}

// NewServer creates a Server and registers its routes
func NewServer(song Controller, monitor *live.Monitor, opts ...Option) *Server {
	s := &Server{
		song:         song,
		monitor:      monitor,
		pollInterval: live.TickDuration,
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	static := http.StripPrefix("/static/", http.FileServer(http.FS(templates.Static())))

	s.handle("GET /{$}", s.handleIndex)
	s.handle("GET /static/", static.ServeHTTP)
	s.handle("GET /get_cue_points", s.handleGetCuePoints)
	s.handle("POST /play_song", s.handlePlaySong)
	s.handle("POST /monitor_playhead", s.handleMonitorPlayhead)
	s.handle("GET /monitor_playhead", s.handleMonitorStatus)
	s.handle("DELETE /monitor_playhead", s.handleMonitorCancel)
	s.handle("POST /stop_song", s.handleStopSong)
	s.handle("GET /healthz", s.handleHealth)
	s.handle("GET /metrics", s.handleMetrics)
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, loggerMiddleware(routePath(pattern), h))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully. Active playhead watches are cancelled first so long-polling
// requests can finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultListenAddr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	log.Infof("HTTP bridge listening on http://%s", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP bridge")
	s.monitor.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
