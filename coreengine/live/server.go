package live

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/observability"
)

// Logger is the structured logger interface of this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TokenValidator authorizes a connect request. Returning false rejects the
// session; the client must not retry automatically.
type TokenValidator func(token, deviceID string) bool

// Server owns the session registry and fans updates out to every connected
// renderer. Insert and remove on the registry are mutex-guarded; per-session
// state is owned exclusively by that session's tasks.
type Server struct {
	cfg       Config
	logger    Logger
	validate  TokenValidator
	initialIR func() *ir.IR

	// mu guards the session registry; per-session state is never touched
	// under it.
	mu       sync.Mutex
	sessions map[string]*Session

	upgrader websocket.Upgrader
}

// NewServer creates a live-update server. validate may be nil to accept
// every token; initialIR, when non-nil, supplies the document sent with the
// connected reply.
func NewServer(cfg Config, logger Logger, validate TokenValidator, initialIR func() *ir.IR) *Server {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Server{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		validate:  validate,
		initialIR: initialIR,
		sessions:  make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades an HTTP request to a websocket session channel.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("server_upgrade_failed", "error", err.Error())
		return
	}
	sessionID := r.URL.Query().Get("session")
	go s.HandleConn(NewWSConn(ws), sessionID)
}

// ListenTCP accepts raw-stream connections carrying length-prefixed frames.
// It blocks until the listener closes.
func (s *Server) ListenTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.HandleConn(NewStreamConn(conn), "")
	}
}

// HandleConn performs the session handshake and runs the session tasks.
// The first frame must be a connect message.
func (s *Server) HandleConn(conn FrameConn, sessionID string) {
	env, err := ReadEnvelope(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	if env.Type != TypeConnect {
		s.rejectConn(conn, sessionID, &ErrorPayload{
			Code:        CodeUnknownMessage,
			Message:     "expected connect, got " + env.Type,
			Severity:    SeverityFatal,
			Recoverable: false,
		})
		return
	}
	var connect ConnectPayload
	if err := env.Decode(&connect); err != nil {
		s.rejectConn(conn, sessionID, &ErrorPayload{
			Code:        CodeBadFrame,
			Message:     "malformed connect payload",
			Severity:    SeverityFatal,
			Recoverable: false,
		})
		return
	}
	if s.validate != nil && !s.validate(connect.Token, connect.DeviceID) {
		s.logger.Warn("server_auth_failed", "device_id", connect.DeviceID)
		s.rejectConn(conn, sessionID, &ErrorPayload{
			Code:        CodeAuthFailed,
			Message:     "authentication failed",
			Severity:    SeverityFatal,
			Recoverable: false,
		})
		return
	}

	if sessionID == "" {
		if env.SessionID != "" {
			sessionID = env.SessionID
		} else {
			sessionID, _ = gonanoid.New(12)
		}
	}

	sess := newSession(sessionID, conn, s.cfg, s.logger)
	sess.ConnectionID = uuid.NewString()
	sess.DeviceID = connect.DeviceID
	sess.Platform = connect.Platform
	sess.onClose = s.remove

	s.mu.Lock()
	if prev, ok := s.sessions[sessionID]; ok {
		// Reconnection replaces the previous channel.
		prev.onClose = nil
		s.mu.Unlock()
		prev.Close()
		s.mu.Lock()
	}
	s.sessions[sessionID] = sess
	s.mu.Unlock()
	observability.SessionOpened()

	connected := &ConnectedPayload{
		ConnectionID: sess.ConnectionID,
		Capabilities: serverCapabilities,
		SequenceBase: sess.Sequence(),
	}
	if s.initialIR != nil {
		if doc := s.initialIR(); doc != nil {
			connected.InitialIR = doc
			sess.mu.Lock()
			sess.lastSent = doc
			sess.mu.Unlock()
		}
	}
	reply, err := NewEnvelope(TypeConnected, sessionID, 0, connected)
	if err != nil {
		sess.Close()
		return
	}
	if err := WriteEnvelope(conn, reply); err != nil {
		sess.Close()
		return
	}

	s.logger.Info("session_connected",
		"session_id", sessionID,
		"connection_id", sess.ConnectionID,
		"device_id", connect.DeviceID,
		"platform", connect.Platform,
	)

	go sess.writeLoop()
	sess.readLoop()
}

func (s *Server) rejectConn(conn FrameConn, sessionID string, payload *ErrorPayload) {
	if env, err := NewEnvelope(TypeError, sessionID, 0, payload); err == nil {
		_ = WriteEnvelope(conn, env)
	}
	_ = conn.Close()
}

func (s *Server) remove(sess *Session) {
	s.mu.Lock()
	if current, ok := s.sessions[sess.ID]; ok && current == sess {
		delete(s.sessions, sess.ID)
	}
	s.mu.Unlock()
}

// Broadcast schedules an update on every live session.
func (s *Server) Broadcast(doc *ir.IR, immediate bool) {
	s.mu.Lock()
	targets := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()
	for _, sess := range targets {
		sess.Schedule(doc, immediate)
	}
}

// Session returns a live session by id.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// SessionCount reports the live session count.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	targets := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()
	for _, sess := range targets {
		sess.Close()
	}
	// Give writer tasks a beat to drain; sessions are already closed.
	time.Sleep(10 * time.Millisecond)
}
