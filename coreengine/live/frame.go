package live

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// MaxFrameSize bounds a single frame; larger frames are a framing error.
const MaxFrameSize = 32 << 20

// FrameConn is a bidirectional channel of length-delimited frames. The wire
// format is transport-agnostic: a websocket message or a length-prefixed
// chunk over a raw stream carry the same textual envelope.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// =============================================================================
// Length-prefixed framing over a raw stream
// =============================================================================

// streamConn frames messages as a 4-byte big-endian length followed by the
// body, over any reliable byte stream.
type streamConn struct {
	rw      io.ReadWriteCloser
	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewStreamConn wraps a reliable byte stream in length-prefixed framing.
func NewStreamConn(rw io.ReadWriteCloser) FrameConn {
	return &streamConn{rw: rw}
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	var header [4]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, &ProtocolError{
			Code: CodeBadFrame, Severity: SeverityFatal,
			Message: fmt.Sprintf("frame of %d bytes exceeds limit", size),
		}
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *streamConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if len(data) > MaxFrameSize {
		return &ProtocolError{
			Code: CodeBadFrame, Severity: SeverityFatal,
			Message: fmt.Sprintf("frame of %d bytes exceeds limit", len(data)),
		}
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := c.rw.Write(header[:]); err != nil {
		return err
	}
	_, err := c.rw.Write(data)
	return err
}

func (c *streamConn) Close() error {
	return c.rw.Close()
}

// =============================================================================
// Websocket framing
// =============================================================================

// wsConn adapts a websocket connection: the websocket's own framing carries
// one envelope per text message.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWSConn wraps a websocket connection as a FrameConn.
func NewWSConn(conn *websocket.Conn) FrameConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// =============================================================================
// Envelope codec
// =============================================================================

// ReadEnvelope reads and decodes one envelope from the channel.
func ReadEnvelope(conn FrameConn) (*Envelope, error) {
	data, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{
			Code: CodeBadFrame, Severity: SeverityError, Recoverable: true,
			Message: fmt.Sprintf("malformed envelope: %v", err),
		}
	}
	return &env, nil
}

// WriteEnvelope encodes and writes one envelope to the channel.
func WriteEnvelope(conn FrameConn, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return conn.WriteFrame(data)
}
