package live

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumora-labs/lumora-core/coreengine/delta"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/observability"
)

// Config bounds the timing behavior of sessions. Zero values fall back to
// the protocol defaults.
type Config struct {
	// BatchWindow accumulates update-triggering edits before one net update
	// is emitted.
	BatchWindow time.Duration `json:"batchWindow"`
	// PingInterval is the heartbeat period.
	PingInterval time.Duration `json:"pingInterval"`
	// PongTimeout declares the session dead when no pong arrives within it.
	PongTimeout time.Duration `json:"pongTimeout"`
	// DeltaThreshold prefers a delta over a full update while the change
	// count stays below it.
	DeltaThreshold int `json:"deltaThreshold"`
}

// Defaults per the protocol contract.
const (
	DefaultBatchWindow    = 50 * time.Millisecond
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultDeltaThreshold = 50
)

func (c Config) withDefaults() Config {
	if c.BatchWindow <= 0 {
		c.BatchWindow = DefaultBatchWindow
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.DeltaThreshold <= 0 {
		c.DeltaThreshold = DefaultDeltaThreshold
	}
	return c
}

// Session is one live connection between the compiler service and a
// renderer. Exactly one writer task owns the frame channel's write side.
type Session struct {
	ID           string
	ConnectionID string
	DeviceID     string
	Platform     string

	conn   FrameConn
	cfg    Config
	logger Logger

	// Sequencing.
	seq atomic.Uint64

	// The last IR acknowledged (or sent) on this session; deltas diff
	// against it.
	mu         sync.Mutex
	lastSent   *ir.IR
	pendingDoc *ir.IR
	batchTimer *time.Timer
	resendFull bool

	outbound chan *Envelope
	done     chan struct{}
	closed   atomic.Bool

	lastPong atomic.Int64

	onClose func(*Session)
}

func newSession(id string, conn FrameConn, cfg Config, logger Logger) *Session {
	s := &Session{
		ID:       id,
		conn:     conn,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		outbound: make(chan *Envelope, 64),
		done:     make(chan struct{}),
	}
	s.lastPong.Store(time.Now().UnixMilli())
	return s
}

// Sequence returns the last assigned sequence number.
func (s *Session) Sequence() uint64 {
	return s.seq.Load()
}

// Schedule queues an IR for delivery. Edits within the batch window
// coalesce into one update carrying the net change; immediate pushes bypass
// the window.
func (s *Session) Schedule(doc *ir.IR, immediate bool) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	s.pendingDoc = doc
	if immediate {
		if s.batchTimer != nil {
			s.batchTimer.Stop()
			s.batchTimer = nil
		}
		s.mu.Unlock()
		s.flush()
		return
	}
	if s.batchTimer == nil {
		s.batchTimer = time.AfterFunc(s.cfg.BatchWindow, s.flush)
	}
	s.mu.Unlock()
}

// flush emits the net pending update. The batching timer drives it; no lock
// is held while enqueueing the frame.
func (s *Session) flush() {
	s.mu.Lock()
	doc := s.pendingDoc
	s.pendingDoc = nil
	s.batchTimer = nil
	base := s.lastSent
	forceFull := s.resendFull
	s.resendFull = false
	s.mu.Unlock()

	if doc == nil || s.closed.Load() {
		return
	}

	payload := &UpdatePayload{PreserveState: true}
	if base == nil || forceFull {
		payload.Kind = UpdateFull
		payload.IR = doc
	} else {
		d, err := delta.Diff(base, doc)
		if err != nil {
			s.logger.Error("session_diff_error", "session_id", s.ID, "error", err.Error())
			payload.Kind = UpdateFull
			payload.IR = doc
		} else if d.Empty() {
			return
		} else if delta.PreferDelta(d, s.cfg.DeltaThreshold) {
			payload.Kind = UpdateIncremental
			payload.Delta = d
		} else {
			payload.Kind = UpdateFull
			payload.IR = doc
		}
	}

	seq := s.seq.Add(1)
	env, err := NewEnvelope(TypeUpdate, s.ID, seq, payload)
	if err != nil {
		s.logger.Error("session_encode_error", "session_id", s.ID, "error", err.Error())
		return
	}

	s.mu.Lock()
	s.lastSent = doc
	s.mu.Unlock()

	s.send(env)
	observability.RecordUpdateSent(payload.Kind)
	s.logger.Debug("session_update_queued",
		"session_id", s.ID,
		"sequence", seq,
		"kind", payload.Kind,
	)
}

// send enqueues a frame for the writer task. A full outbound queue drops
// the session rather than blocking the caller.
func (s *Session) send(env *Envelope) {
	select {
	case s.outbound <- env:
	case <-s.done:
	default:
		s.logger.Warn("session_outbound_full", "session_id", s.ID)
		s.Close()
	}
}

// writeLoop is the single writer task for this session's frame channel.
func (s *Session) writeLoop() {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case env := <-s.outbound:
			if err := WriteEnvelope(s.conn, env); err != nil {
				s.logger.Warn("session_write_error", "session_id", s.ID, "error", err.Error())
				s.Close()
				return
			}
		case <-ping.C:
			if s.pongOverdue() {
				s.logger.Warn("session_heartbeat_timeout", "session_id", s.ID)
				s.Close()
				return
			}
			env, err := NewEnvelope(TypePing, s.ID, 0, &HeartbeatPayload{
				SessionID: s.ID,
				Timestamp: time.Now().UnixMilli(),
			})
			if err == nil {
				if err := WriteEnvelope(s.conn, env); err != nil {
					s.Close()
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) pongOverdue() bool {
	last := time.UnixMilli(s.lastPong.Load())
	return time.Since(last) > s.cfg.PongTimeout
}

// readLoop is the single reader task: acks, heartbeats, unknown messages.
func (s *Session) readLoop() {
	for {
		env, err := ReadEnvelope(s.conn)
		if err != nil {
			if perr, ok := err.(*ProtocolError); ok && !perr.Fatal() {
				s.logger.Warn("session_frame_warning", "session_id", s.ID, "error", perr.Error())
				continue
			}
			if !s.closed.Load() {
				s.logger.Info("session_read_closed", "session_id", s.ID, "error", err.Error())
			}
			s.Close()
			return
		}
		switch env.Type {
		case TypeAck:
			var ack AckPayload
			if err := env.Decode(&ack); err != nil {
				s.logger.Warn("session_bad_ack", "session_id", s.ID, "error", err.Error())
				continue
			}
			s.handleAck(ack)

		case TypePing:
			reply, err := NewEnvelope(TypePong, s.ID, 0, &HeartbeatPayload{
				SessionID: s.ID,
				Timestamp: time.Now().UnixMilli(),
			})
			if err == nil {
				s.send(reply)
			}

		case TypePong:
			s.lastPong.Store(time.Now().UnixMilli())

		default:
			s.logger.Warn("session_unknown_message", "session_id", s.ID, "type", env.Type)
			reply, err := NewEnvelope(TypeError, s.ID, 0, &ErrorPayload{
				Code:        CodeUnknownMessage,
				Message:     "unknown message type: " + env.Type,
				Severity:    SeverityWarning,
				Recoverable: true,
			})
			if err == nil {
				s.send(reply)
			}
		}
	}
}

// handleAck records the renderer's apply outcome. A negative ack promotes
// the next cycle to a full update.
func (s *Session) handleAck(ack AckPayload) {
	observability.RecordAck(ack.Success, ack.ApplyMs)
	if ack.Success {
		s.logger.Debug("session_ack",
			"session_id", s.ID,
			"sequence", ack.Sequence,
			"apply_ms", ack.ApplyMs,
		)
		return
	}
	s.logger.Error("session_apply_failed",
		"session_id", s.ID,
		"sequence", ack.Sequence,
		"error", ack.Error,
	)
	s.mu.Lock()
	s.resendFull = true
	s.mu.Unlock()
}

// Close tears the session down. Pending batched updates are dropped, not
// sent. Idempotent.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	if s.batchTimer != nil {
		s.batchTimer.Stop()
		s.batchTimer = nil
	}
	s.pendingDoc = nil
	s.mu.Unlock()
	close(s.done)
	_ = s.conn.Close()
	if s.onClose != nil {
		s.onClose(s)
	}
	observability.SessionClosed()
	s.logger.Info("session_closed", "session_id", s.ID)
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
