package live

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/lumora-labs/lumora-core/coreengine/delta"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// Renderer is the on-device collaborator that instantiates UI from IRs.
// It must preserve per-id node state across deltas.
type Renderer interface {
	ApplyFull(doc *ir.IR) error
	ApplyDelta(d *delta.SchemaDelta) error
	ReportApply(sequence uint64, ok bool, durationMs int)
}

// ErrAuthFailed is returned when the server rejects the token. It is never
// retried automatically; the caller must re-authenticate.
var ErrAuthFailed = errors.New("live: authentication failed")

// ClientConfig identifies and tunes a preview client.
type ClientConfig struct {
	SessionID     string
	Token         string
	DeviceID      string
	Platform      string
	ClientVersion string

	PingInterval time.Duration // default 30s
	PongTimeout  time.Duration // default 60s

	ReconnectBase time.Duration // default 1s
	ReconnectMax  time.Duration // default 30s
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	return c
}

// Dialer opens one frame channel to the server.
type Dialer func(ctx context.Context) (FrameConn, error)

// WebSocketDialer dials a ws:// or wss:// endpoint.
func WebSocketDialer(url string) Dialer {
	return func(ctx context.Context) (FrameConn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return NewWSConn(conn), nil
	}
}

// Client is the renderer-side session endpoint: it applies updates strictly
// in sequence, acknowledges them, monitors heartbeats, and reconnects with
// exponential backoff. Authentication failures stop the retry loop.
type Client struct {
	cfg      ClientConfig
	dial     Dialer
	renderer Renderer
	logger   Logger

	connected atomic.Bool
	// handshakes counts completed connect handshakes; Run uses it to detect
	// that an attempt got through and the backoff interval must restart.
	handshakes atomic.Uint64
	// nextSeq is the next update sequence the renderer may apply.
	nextSeq atomic.Uint64
	// pending holds out-of-order updates until their turn.
	pending map[uint64]*UpdatePayload

	lastPong atomic.Int64
}

// NewClient creates a live-update client.
func NewClient(cfg ClientConfig, dial Dialer, renderer Renderer, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		cfg:      cfg.withDefaults(),
		dial:     dial,
		renderer: renderer,
		logger:   logger,
		pending:  map[uint64]*UpdatePayload{},
	}
}

// Connected reports whether a session is currently live.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run connects and re-connects until the context ends or authentication
// fails. Backoff starts at the base, doubles per attempt, caps at the
// maximum, and resets on the first successful reconnect.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectBase
	bo.Multiplier = 2
	bo.MaxInterval = c.cfg.ReconnectMax
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	bo.Reset()

	for {
		before := c.handshakes.Load()
		err := c.runSession(ctx)
		switch {
		case errors.Is(err, ErrAuthFailed):
			// Surfaced to the caller; requires a re-authentication action.
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}
		if c.handshakes.Load() > before {
			// The attempt reconnected successfully before dying; the next
			// outage starts over at the base interval.
			bo.Reset()
		}

		wait := bo.NextBackOff()
		c.logger.Info("client_reconnect_scheduled",
			"session_id", c.cfg.SessionID,
			"backoff_ms", wait.Milliseconds(),
			"error", errString(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runSession performs one connect handshake and processes frames until the
// session dies. It always returns a non-nil error; a channel that closes
// while ctx is still live yields a recoverable ProtocolError, and the caller
// decides whether to reconnect.
func (c *Client) runSession(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	env, err := NewEnvelope(TypeConnect, c.cfg.SessionID, 0, &ConnectPayload{
		Token:         c.cfg.Token,
		DeviceID:      c.cfg.DeviceID,
		Platform:      c.cfg.Platform,
		ClientVersion: c.cfg.ClientVersion,
	})
	if err != nil {
		return err
	}
	if err := WriteEnvelope(conn, env); err != nil {
		return err
	}

	reply, err := ReadEnvelope(conn)
	if err != nil {
		return err
	}
	switch reply.Type {
	case TypeError:
		var errPayload ErrorPayload
		if decodeErr := reply.Decode(&errPayload); decodeErr == nil && errPayload.Code == CodeAuthFailed {
			return ErrAuthFailed
		}
		return &ProtocolError{
			Code: CodeBadFrame, Severity: SeverityFatal,
			Message: "handshake rejected",
		}
	case TypeConnected:
	default:
		return &ProtocolError{
			Code: CodeUnknownMessage, Severity: SeverityFatal,
			Message: "expected connected, got " + reply.Type,
		}
	}

	var connected ConnectedPayload
	if err := reply.Decode(&connected); err != nil {
		return err
	}
	c.handshakes.Add(1)
	c.nextSeq.Store(connected.SequenceBase + 1)
	c.pending = map[uint64]*UpdatePayload{}
	if connected.InitialIR != nil {
		start := time.Now()
		applyErr := c.renderer.ApplyFull(connected.InitialIR)
		c.renderer.ReportApply(connected.SequenceBase, applyErr == nil, int(time.Since(start).Milliseconds()))
	}
	c.connected.Store(true)
	c.lastPong.Store(time.Now().UnixMilli())
	defer c.connected.Store(false)

	c.logger.Info("client_connected",
		"session_id", c.cfg.SessionID,
		"connection_id", connected.ConnectionID,
	)

	// Single writer task: heartbeats and acks funnel through one channel.
	outbound := make(chan *Envelope, 16)
	writerDone := make(chan struct{})
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(c.cfg.PingInterval)
		defer ping.Stop()
		for {
			select {
			case env := <-outbound:
				if err := WriteEnvelope(conn, env); err != nil {
					cancel()
					return
				}
			case <-ping.C:
				if c.pongOverdue() {
					c.logger.Warn("client_heartbeat_timeout", "session_id", c.cfg.SessionID)
					_ = conn.Close()
					cancel()
					return
				}
				env, err := NewEnvelope(TypePing, c.cfg.SessionID, 0, &HeartbeatPayload{
					SessionID: c.cfg.SessionID,
					Timestamp: time.Now().UnixMilli(),
				})
				if err == nil {
					if err := WriteEnvelope(conn, env); err != nil {
						cancel()
						return
					}
				}
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	for {
		env, err := ReadEnvelope(conn)
		if err != nil {
			cancel()
			<-writerDone
			if sessionCtx.Err() != nil && ctx.Err() == nil {
				return &ProtocolError{Code: CodeTimeout, Severity: SeverityError, Recoverable: true,
					Message: "session channel closed"}
			}
			return err
		}
		switch env.Type {
		case TypeUpdate:
			var update UpdatePayload
			if err := env.Decode(&update); err != nil {
				c.logger.Warn("client_bad_update", "error", err.Error())
				continue
			}
			c.handleUpdate(env.Sequence, &update, outbound)

		case TypePing:
			reply, err := NewEnvelope(TypePong, c.cfg.SessionID, 0, &HeartbeatPayload{
				SessionID: c.cfg.SessionID,
				Timestamp: time.Now().UnixMilli(),
			})
			if err == nil {
				select {
				case outbound <- reply:
				case <-sessionCtx.Done():
				}
			}
			c.lastPong.Store(time.Now().UnixMilli())

		case TypePong:
			c.lastPong.Store(time.Now().UnixMilli())

		case TypeError:
			var errPayload ErrorPayload
			if err := env.Decode(&errPayload); err != nil {
				continue
			}
			if errPayload.Severity == SeverityFatal {
				c.logger.Error("client_fatal_error",
					"code", errPayload.Code, "message", errPayload.Message)
				cancel()
				<-writerDone
				if errPayload.Code == CodeAuthFailed {
					return ErrAuthFailed
				}
				return &ProtocolError{
					Code: errPayload.Code, Message: errPayload.Message,
					Severity: errPayload.Severity, Recoverable: errPayload.Recoverable,
				}
			}
			c.logger.Warn("client_error",
				"code", errPayload.Code, "message", errPayload.Message)

		default:
			c.logger.Warn("client_unknown_message", "type", env.Type)
		}
	}
}

func (c *Client) pongOverdue() bool {
	last := time.UnixMilli(c.lastPong.Load())
	return time.Since(last) > c.cfg.PongTimeout
}

// handleUpdate applies updates strictly in sequence, buffering the ones
// that arrive early. Contiguous pending updates drain in one pass.
func (c *Client) handleUpdate(sequence uint64, update *UpdatePayload, outbound chan *Envelope) {
	expected := c.nextSeq.Load()
	if sequence < expected {
		// Duplicate of an already-applied update: ack again, don't reapply.
		c.ack(outbound, sequence, true, "", 0)
		return
	}
	c.pending[sequence] = update

	for {
		next, ok := c.pending[c.nextSeq.Load()]
		if !ok {
			return
		}
		seq := c.nextSeq.Load()
		delete(c.pending, seq)

		start := time.Now()
		var applyErr error
		switch next.Kind {
		case UpdateFull:
			applyErr = c.renderer.ApplyFull(next.IR)
		case UpdateIncremental:
			applyErr = c.renderer.ApplyDelta(next.Delta)
		default:
			applyErr = &ProtocolError{
				Code: CodeUnknownMessage, Severity: SeverityError, Recoverable: true,
				Message: "unknown update kind " + next.Kind,
			}
		}
		ms := int(time.Since(start).Milliseconds())
		c.renderer.ReportApply(seq, applyErr == nil, ms)
		c.ack(outbound, seq, applyErr == nil, errString(applyErr), ms)
		c.nextSeq.Store(seq + 1)
	}
}

func (c *Client) ack(outbound chan *Envelope, sequence uint64, success bool, errMsg string, ms int) {
	env, err := NewEnvelope(TypeAck, c.cfg.SessionID, sequence, &AckPayload{
		Sequence: sequence,
		Success:  success,
		Error:    errMsg,
		ApplyMs:  ms,
	})
	if err != nil {
		return
	}
	select {
	case outbound <- env:
	default:
	}
}
