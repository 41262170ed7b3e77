// Package live implements the session-oriented live-update transport: the
// framed message channel, session lifecycle, delta batching, heartbeats and
// reconnection.
//
// One task reads from and one task writes to each session's frame channel;
// frame interleaving cannot occur and no lock is held across a suspension
// point.
package live

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumora-labs/lumora-core/coreengine/delta"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// Message types of the wire protocol.
const (
	TypeConnect   = "connect"
	TypeConnected = "connected"
	TypeUpdate    = "update"
	TypeAck       = "ack"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeError     = "error"
)

// Error severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeverityFatal   = "fatal"
)

// Well-known protocol error codes.
const (
	CodeAuthFailed     = "auth_failed"
	CodeUnknownMessage = "unknown_message"
	CodeBadFrame       = "bad_frame"
	CodeTimeout        = "timeout"
)

// Envelope is the textual frame body. Unknown fields are ignored on decode;
// unknown message types produce a warning-severity error.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Sequence  uint64          `json:"sequence,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope stamps an envelope with the current time and a marshaled
// payload.
func NewEnvelope(msgType, sessionID string, sequence uint64, payload any) (*Envelope, error) {
	env := &Envelope{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Sequence:  sequence,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Decode unmarshals the payload into out.
func (e *Envelope) Decode(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s envelope has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, out)
}

// ConnectPayload opens a session.
type ConnectPayload struct {
	Token         string `json:"token"`
	DeviceID      string `json:"deviceId"`
	Platform      string `json:"platform"`
	ClientVersion string `json:"clientVersion"`
}

// ConnectedPayload acknowledges a session.
type ConnectedPayload struct {
	ConnectionID string   `json:"connectionId"`
	Capabilities []string `json:"capabilities"`
	InitialIR    *ir.IR   `json:"initialIr,omitempty"`
	SequenceBase uint64   `json:"sequenceBase"`
}

// Update kinds.
const (
	UpdateFull        = "full"
	UpdateIncremental = "incremental"
)

// UpdatePayload pushes one full IR or one delta.
type UpdatePayload struct {
	Kind          string             `json:"kind"`
	IR            *ir.IR             `json:"ir,omitempty"`
	Delta         *delta.SchemaDelta `json:"delta,omitempty"`
	PreserveState bool               `json:"preserveState"`
}

// AckPayload reports one applied (or failed) update.
type AckPayload struct {
	Sequence uint64 `json:"sequence"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	ApplyMs  int    `json:"applyDurationMs"`
}

// HeartbeatPayload rides ping and pong frames.
type HeartbeatPayload struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorPayload carries a protocol error to the peer.
type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Severity    string `json:"severity"`
	Recoverable bool   `json:"recoverable"`
}

// ProtocolError is the in-process form of a protocol failure. Fatal
// severity terminates the session; a warning is surfaced without teardown.
type ProtocolError struct {
	Code        string
	Message     string
	Severity    string
	Recoverable bool
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s (%s): %s", e.Code, e.Severity, e.Message)
}

// Fatal reports whether the error must terminate the session.
func (e *ProtocolError) Fatal() bool {
	return e.Severity == SeverityFatal
}

// Capabilities advertised by this server.
var serverCapabilities = []string{"incremental-updates", "state-preservation", "heartbeat"}
