// Package api serves synchronized navigation between two rendered TEI
// editions over HTTP and websockets.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/TeiSync/core/library"
	"github.com/FocuswithJustin/TeiSync/internal/logging"
)

// Server is the sync API server.
type Server struct {
	cfg      Config
	lib      *library.Library
	sessions *SessionStore
	hub      *Hub
	upgrader websocket.Upgrader
	limiter  *RateLimiter
	version  string
	started  time.Time
}

// NewServer creates a server loading documents through lib. The websocket
// hub starts immediately; Close stops it.
func NewServer(cfg Config, lib *library.Library, version string) *Server {
	s := &Server{
		cfg:      cfg,
		lib:      lib,
		sessions: NewSessionStore(cfg.MaxSessions),
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		version: version,
		started: time.Now(),
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitBurst)
	}
	go s.hub.Run()
	return s
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// Close stops the websocket hub.
func (s *Server) Close() {
	s.hub.Stop()
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/render", s.handleRender)
	mux.HandleFunc("GET /api/units", s.handleUnits)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /api/sessions/{id}/marker", s.handleMarker)
	mux.HandleFunc("GET /ws/sessions/{id}", s.handleWebSocket)
	return mux
}

// Handler returns the routes wrapped in the middleware chain. From the
// outside in: request logging, CORS, rate limiting, auth, security headers.
func (s *Server) Handler() http.Handler {
	var h http.Handler = securityHeaders(s.routes())
	if s.cfg.Auth.Enabled {
		h = AuthMiddleware(s.cfg.Auth, h)
	}
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = corsMiddleware(s.cfg.AllowedOrigins, h)
	return logging.CombinedMiddleware(h)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	protocol, wsProtocol := "http", "ws"
	if s.cfg.TLS.Enabled {
		protocol, wsProtocol = "https", "wss"
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	port := s.cfg.Port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	logging.ServerStartup("sync_api", protocol, port,
		"websocket_protocol", wsProtocol,
		"corpus_dir", s.lib.Root(),
		"auth", s.cfg.Auth.Enabled,
		"rate_limit", s.cfg.RateLimitRequests)

	go s.janitor(ctx)

	errc := make(chan error, 1)
	go func() {
		if s.cfg.TLS.Enabled {
			errc <- srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			errc <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if serveErr := <-errc; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

// janitor expires idle sessions and stale rate limit buckets.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	if s.cfg.SessionIdle > 0 {
		for _, id := range s.sessions.Expire(s.cfg.SessionIdle) {
			s.hub.CloseRoom(id)
			logging.Info("session_expired", "session_id", id)
		}
	}
	if s.limiter != nil {
		s.limiter.Sweep()
	}
}
