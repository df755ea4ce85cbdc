// Package gateway serves the HTTP API and hosts the relay's WebSocket
// endpoint. Public routes cover health and per-session transcript reads;
// everything else sits behind admin bearer auth.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/programmedstyle/livechat/internal/config"
	"github.com/programmedstyle/livechat/internal/logging"
	"github.com/programmedstyle/livechat/internal/relay"
	"github.com/programmedstyle/livechat/internal/store"
)

// Server is the livechat HTTP server.
type Server struct {
	cfg   config.Config
	store store.MessageStore
	relay *relay.Relay
	auth  *Authenticator
	log   *logging.Logger

	startedAt  time.Time
	httpServer *http.Server
	addr       string
}

// New creates a gateway over the given store and relay. The relay is an
// explicit dependency because the reply handler fans replies out through it.
func New(cfg config.Config, ms store.MessageStore, rl *relay.Relay, log *logging.Logger) *Server {
	l := log.Component("gateway")
	return &Server{
		cfg:   cfg,
		store: ms,
		relay: rl,
		auth:  NewAuthenticator(cfg.Auth.JWTSecret, l),
		log:   l,
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening. It blocks until the context is cancelled or an
// error occurs; cancellation drains HTTP and disconnects relay clients.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", s.addr).
		Str("bind", s.cfg.Server.Bind).
		Msg("server starting")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.relay.Shutdown()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or empty if not started.
func (s *Server) Addr() string { return s.addr }
