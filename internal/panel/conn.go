package panel

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/niivue/niiview/internal/protocol"
)

// Conn is the transport between the host and a rendering surface. ReadMessage
// and WriteMessage are each called from a single goroutine; Close may be called
// concurrently with both.
type Conn interface {
	// ReadMessage returns the next message. Frames that can't be decoded
	// return an error wrapping protocol.ErrMalformed or
	// protocol.ErrInvalidBody and leave the connection usable.
	ReadMessage() (protocol.Message, error)
	WriteMessage(msg protocol.Message) error
	Close() error
}

const (
	closeGracePeriod = time.Second
	// A surface that doesn't take a message in this time is considered gone.
	defaultWriteTimeout = 10 * time.Second
)

type wsConn struct {
	conn         *websocket.Conn
	codec        protocol.Codec
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// NewWebSocketConn wraps an established WebSocket, using the codec of its
// negotiated subprotocol.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	return &wsConn{
		conn:         conn,
		codec:        protocol.CodecFor(conn.Subprotocol()),
		writeTimeout: defaultWriteTimeout,
	}
}

func (c *wsConn) ReadMessage() (protocol.Message, error) {
	_, buf, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	return c.codec.Unmarshal(buf)
}

func (c *wsConn) WriteMessage(msg protocol.Message) error {
	buf, err := c.codec.Marshal(msg)
	if err != nil {
		return err
	}
	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(frameType, buf)
}

// Close sends a close frame and closes the underlying connection.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(closeGracePeriod),
		)
		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
