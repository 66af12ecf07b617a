package relay

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
	"github.com/shineum/mailkit/internal/parser"
	"github.com/shineum/mailkit/mailer"
)

// Session states for the SMTP state machine.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

// idleTimeout is the maximum time a session can remain idle before being closed.
const idleTimeout = 60 * time.Second

// SessionConfig carries the per-connection settings shared by every
// session of a Server.
type SessionConfig struct {
	Auth           *Authenticator
	Mailer         *mailer.Mailer
	Hostname       string
	TLSConfig      *tls.Config
	MaxMessageSize int64
	MaxRecipients  int
	Logger         *slog.Logger

	// SendMu, when set, is held for every delivery through Mailer. Sessions
	// sharing one Mailer share one SendMu: the SMTP adapter is not safe for
	// concurrent use.
	SendMu *sync.Mutex
}

// Session manages the SMTP state machine for one client connection.
type Session struct {
	id     string
	raw    net.Conn
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	state  int
	cfg    SessionConfig
	logger *slog.Logger

	tlsActive bool

	// Current transaction
	mailFrom string
	rcptTo   []string
}

// NewSession creates a session for conn. Each session gets a random ID
// that is attached to every log record it emits.
func NewSession(conn net.Conn, cfg SessionConfig) *Session {
	if cfg.Auth == nil {
		cfg.Auth = NewAuthenticator("", "")
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = DefaultMaxRecipients
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		raw:    conn,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		state:  stateConnected,
		cfg:    cfg,
		logger: adapter.Logger(cfg.Logger).With(
			"session_id", id,
			"remote", conn.RemoteAddr().String(),
		),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Handle runs the session until the client quits, the connection fails,
// or ctx is cancelled.
func (s *Session) Handle(ctx context.Context) {
	defer func() { s.conn.Close() }()

	// Unblock a pending read on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = s.raw.SetReadDeadline(time.Now())
	})
	defer stop()

	s.logger.Debug("session started")
	s.writeLine("220 %s ESMTP mailkit relay", s.cfg.Hostname)

	for {
		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			s.logger.Error("failed to set connection deadline", "error", err)
			return
		}
		// Checked after the deadline is set so a concurrent cancel is
		// never overwritten.
		if ctx.Err() != nil {
			s.writeLine("421 Service shutting down")
			return
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				s.writeLine("421 Service shutting down")
				return
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("connection read error", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		if s.handleCommand(ctx, cmd, arg) {
			return
		}
	}
}

// handleCommand processes one command and reports whether the session
// should end.
func (s *Session) handleCommand(ctx context.Context, cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.handleEHLO(cmd, arg)
	case "STARTTLS":
		s.handleSTARTTLS()
	case "AUTH":
		s.handleAUTH(arg)
	case "MAIL":
		s.handleMAIL(arg)
	case "RCPT":
		s.handleRCPT(arg)
	case "DATA":
		s.handleDATA(ctx)
	case "RSET":
		s.handleRSET()
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

func (s *Session) handleEHLO(cmd, arg string) {
	if arg == "" {
		s.writeLine("501 Syntax: %s hostname", cmd)
		return
	}

	s.resetTransaction()
	if s.state < stateGreeted {
		s.state = stateGreeted
	}
	if cmd == "HELO" {
		s.writeLine("250 %s Hello %s", s.cfg.Hostname, arg)
		return
	}

	s.writeLine("250-%s Hello %s", s.cfg.Hostname, arg)
	if s.cfg.TLSConfig != nil && !s.tlsActive {
		s.writeLine("250-STARTTLS")
	}
	if s.cfg.Auth.Enabled() {
		s.writeLine("250-AUTH PLAIN LOGIN")
	}
	s.writeLine("250-SIZE %d", s.cfg.MaxMessageSize)
	s.writeLine("250 OK")
}

// handleSTARTTLS upgrades the connection. The client must greet again
// afterwards.
func (s *Session) handleSTARTTLS() {
	if s.cfg.TLSConfig == nil {
		s.writeLine("454 TLS not available")
		return
	}
	if s.tlsActive {
		s.writeLine("454 TLS already active")
		return
	}

	s.writeLine("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.cfg.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		s.logger.Error("TLS handshake failed", "error", err)
		return
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	s.resetTransaction()
	s.state = stateConnected
}

// handleAUTH processes AUTH PLAIN and AUTH LOGIN.
func (s *Session) handleAUTH(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if !s.cfg.Auth.Enabled() {
		s.writeLine("503 AUTH not available")
		return
	}
	if s.state >= stateAuthOK {
		s.writeLine("503 Already authenticated")
		return
	}

	mechanism, initial, _ := strings.Cut(arg, " ")
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		s.handleAuthPlain(initial)
	case "LOGIN":
		s.handleAuthLogin()
	default:
		s.writeLine("504 Unrecognized authentication type")
	}
}

func (s *Session) handleAuthPlain(encoded string) {
	if encoded == "" {
		s.writeLine("334")
		line, ok := s.readChallenge("AUTH PLAIN response")
		if !ok {
			return
		}
		encoded = line
	}
	if encoded == "*" {
		s.writeLine("501 Authentication cancelled")
		return
	}

	if err := s.cfg.Auth.VerifyPlain(encoded); err != nil {
		s.logger.Warn("authentication failed", "mechanism", "PLAIN", "error", err)
		s.writeLine("535 Authentication failed")
		return
	}
	s.state = stateAuthOK
	s.writeLine("235 Authentication successful")
}

func (s *Session) handleAuthLogin() {
	// base64 "Username:"
	s.writeLine("334 VXNlcm5hbWU6")
	user, ok := s.readChallenge("AUTH LOGIN username")
	if !ok {
		return
	}
	if user == "*" {
		s.writeLine("501 Authentication cancelled")
		return
	}

	// base64 "Password:"
	s.writeLine("334 UGFzc3dvcmQ6")
	pass, ok := s.readChallenge("AUTH LOGIN password")
	if !ok {
		return
	}
	if pass == "*" {
		s.writeLine("501 Authentication cancelled")
		return
	}

	if err := s.cfg.Auth.VerifyLogin(user, pass); err != nil {
		s.logger.Warn("authentication failed", "mechanism", "LOGIN", "error", err)
		s.writeLine("535 Authentication failed")
		return
	}
	s.state = stateAuthOK
	s.writeLine("235 Authentication successful")
}

func (s *Session) readChallenge(what string) (string, bool) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		s.logger.Error("failed to read "+what, "error", err)
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// handleMAIL processes MAIL FROM, including an optional SIZE parameter.
func (s *Session) handleMAIL(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if s.cfg.Auth.Enabled() && s.state < stateAuthOK {
		s.writeLine("530 Authentication required")
		return
	}
	if s.state >= stateMailFrom {
		s.writeLine("503 Nested MAIL command")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}
	addr, params := splitPath(arg[5:])
	if addr == "" {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}
	if size, ok := sizeParam(params); ok && size > s.cfg.MaxMessageSize {
		s.writeLine("552 Message size exceeds fixed maximum message size")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

// handleRCPT processes RCPT TO.
func (s *Session) handleRCPT(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}
	addr, _ := splitPath(arg[3:])
	if addr == "" {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}
	if len(s.rcptTo) >= s.cfg.MaxRecipients {
		s.writeLine("452 Too many recipients")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

// handleDATA reads the message, parses it and hands it to the mailer.
// Messages larger than the configured maximum are read to the end and
// refused.
func (s *Session) handleDATA(ctx context.Context) {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return
	}

	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	raw, tooBig, err := s.readData()
	if err != nil {
		s.logger.Error("error reading DATA", "error", err)
		return
	}
	defer s.resetTransaction()

	if tooBig {
		s.logger.Warn("message rejected",
			"reason", "size limit",
			"max_size", s.cfg.MaxMessageSize,
		)
		s.writeLine("552 Message size exceeds fixed maximum message size")
		return
	}

	msgID := uuid.NewString()
	logger := s.logger.With("message_id", msgID)

	msg, err := parser.Parse(raw)
	if err != nil {
		logger.Error("failed to parse message", "error", err)
		s.writeLine("550 Failed to process message")
		return
	}
	applyEnvelope(msg, s.mailFrom, s.rcptTo)

	m := s.cfg.Mailer
	if !s.send(ctx, msg) {
		logger.Error("delivery failed", "adapter", m.Adapter().Name())
		s.writeLine("451 Temporary failure, please try again later")
		return
	}

	logger.Info("message accepted",
		"adapter", m.Adapter().Name(),
		"from", s.mailFrom,
		"recipients", len(s.rcptTo),
		"size", len(raw),
	)
	s.writeLine("250 OK queued as %s", msgID)
}

func (s *Session) send(ctx context.Context, msg *email.Message) bool {
	if mu := s.cfg.SendMu; mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	return s.cfg.Mailer.Send(ctx, msg)
}

// readData reads dot-stuffed lines up to the lone "." terminator.
// Once the size limit is passed the rest is discarded.
func (s *Session) readData() ([]byte, bool, error) {
	var buf bytes.Buffer
	tooBig := false
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, false, err
		}

		if strings.TrimRight(line, "\r\n") == "." {
			break
		}
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}

		if tooBig {
			continue
		}
		if int64(buf.Len()+len(line)) > s.cfg.MaxMessageSize {
			tooBig = true
			buf.Reset()
			continue
		}
		buf.WriteString(line)
	}
	return buf.Bytes(), tooBig, nil
}

func (s *Session) handleRSET() {
	s.resetTransaction()
	s.writeLine("250 OK")
}

// resetTransaction clears the current mail transaction without affecting
// the greeting or authentication.
func (s *Session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil

	if s.cfg.Auth.Enabled() && s.state >= stateAuthOK {
		s.state = stateAuthOK
	} else if s.state >= stateGreeted {
		s.state = stateGreeted
	}
}

func (s *Session) writeLine(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if _, err := s.writer.WriteString(line + "\r\n"); err != nil {
		s.logger.Error("failed to write to client", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.logger.Error("failed to flush to client", "error", err)
	}
}

// applyEnvelope fills in what the headers left out. The envelope sender
// becomes the sender when the message has no From. Envelope recipients
// missing from the headers become To recipients when the message has no
// To, and BCC recipients otherwise.
func applyEnvelope(msg *email.Message, from string, rcpts []string) {
	if msg.Sender().Address == "" && from != "" {
		_ = msg.SetSender(email.NewMailBox(from, ""), "")
	}

	role := email.BCC
	if !adapter.HasTo(msg) {
		role = email.To
	}

	seen := make(map[string]bool)
	for _, r := range email.Roles {
		for _, box := range msg.RecipientsFor(r) {
			seen[strings.ToLower(box.Address)] = true
		}
	}
	for _, rcpt := range rcpts {
		key := strings.ToLower(rcpt)
		if seen[key] {
			continue
		}
		seen[key] = true
		_ = msg.AddRecipient(email.NewMailBox(rcpt, ""), role)
	}
}

// parseCommand splits a command line into its upper-cased verb and argument.
func parseCommand(line string) (string, string) {
	cmd, arg, _ := strings.Cut(line, " ")
	return strings.ToUpper(cmd), arg
}

// splitPath extracts the address from a MAIL or RCPT path and returns any
// ESMTP parameters that follow it.
func splitPath(s string) (string, string) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return "", ""
		}
		return s[1:end], strings.TrimSpace(s[end+1:])
	}

	addr, params, _ := strings.Cut(s, " ")
	return addr, strings.TrimSpace(params)
}

// sizeParam returns the value of a SIZE=n parameter.
func sizeParam(params string) (int64, bool) {
	for _, p := range strings.Fields(params) {
		key, value, ok := strings.Cut(p, "=")
		if !ok || !strings.EqualFold(key, "SIZE") {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
