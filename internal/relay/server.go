package relay

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/mailer"
)

// shutdownTimeout is the maximum time to wait for in-flight sessions
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// Defaults applied by New when the matching Config field is unset.
const (
	DefaultMaxMessageSize = 25 * 1024 * 1024
	DefaultMaxRecipients  = 100
)

// Config holds the configuration for a relay Server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":2525").
	ListenAddr string

	// Hostname is announced in the greeting and EHLO responses.
	Hostname string

	// Mailer delivers every accepted message.
	Mailer *mailer.Mailer

	// TLSConfig enables STARTTLS. If nil, STARTTLS is not advertised.
	TLSConfig *tls.Config

	// AuthUsername and AuthPassword configure SMTP AUTH.
	// If either is empty, authentication is not required.
	AuthUsername string
	AuthPassword string

	MaxMessageSize int64
	MaxRecipients  int

	Logger *slog.Logger
}

// Server accepts SMTP connections and delivers each message through its
// Mailer.
type Server struct {
	config Config
	auth   *Authenticator
	logger *slog.Logger

	// wg tracks in-flight session goroutines for graceful shutdown.
	wg sync.WaitGroup

	// sendMu serializes deliveries through the shared Mailer.
	sendMu sync.Mutex
}

// New creates a Server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = DefaultMaxRecipients
	}

	return &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword),
		logger: adapter.Logger(cfg.Logger),
	}
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. On cancellation
// it closes ln and waits up to 30 seconds for in-flight sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("relay listening",
		"addr", ln.Addr().String(),
		"adapter", s.config.Mailer.Adapter().Name(),
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
	)

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down relay")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.waitForSessions()
				return nil
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.newSession(conn).Handle(ctx)
		}()
	}
}

func (s *Server) newSession(conn net.Conn) *Session {
	return NewSession(conn, SessionConfig{
		Auth:           s.auth,
		Mailer:         s.config.Mailer,
		Hostname:       s.config.Hostname,
		TLSConfig:      s.config.TLSConfig,
		MaxMessageSize: s.config.MaxMessageSize,
		MaxRecipients:  s.config.MaxRecipients,
		Logger:         s.logger,
		SendMu:         &s.sendMu,
	})
}

// waitForSessions waits for in-flight sessions, giving up after
// shutdownTimeout.
func (s *Server) waitForSessions() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all sessions completed")
	case <-time.After(shutdownTimeout):
		s.logger.Warn("shutdown timeout reached, forcing close")
	}
}
