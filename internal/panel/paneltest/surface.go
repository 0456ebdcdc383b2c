// Package paneltest provides an in-memory rendering surface for tests.
package paneltest

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/niivue/niiview/internal/protocol"
)

// Surface is an in-memory panel.Conn. Messages sent with Send are read by the
// host; messages written by the host are recorded.
type Surface struct {
	in     chan protocol.Message
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	received []protocol.Message
	writeErr error
	stall    chan struct{}
	stalled  int
}

// NewSurface returns an open surface.
func NewSurface() *Surface {
	return &Surface{
		in:     make(chan protocol.Message, 64),
		closed: make(chan struct{}),
	}
}

// ReadMessage implements panel.Conn.
func (s *Surface) ReadMessage() (protocol.Message, error) {
	select {
	case msg := <-s.in:
		return msg, nil
	case <-s.closed:
		return protocol.Message{}, io.EOF
	}
}

// WriteMessage implements panel.Conn.
func (s *Surface) WriteMessage(msg protocol.Message) error {
	s.mu.Lock()
	stall := s.stall
	if stall != nil {
		s.stalled++
	}
	s.mu.Unlock()
	if stall != nil {
		select {
		case <-stall:
		case <-s.closed:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	default:
	}
	s.received = append(s.received, msg)
	return nil
}

// Close implements panel.Conn. It also simulates the user closing the surface.
func (s *Surface) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// Closed reports whether the surface was closed.
func (s *Surface) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// FailWrites makes every following write return err.
func (s *Surface) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// StallWrites makes every following write block until ReleaseWrites is called
// or the surface is closed, like a surface that stopped reading.
func (s *Surface) StallWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stall == nil {
		s.stall = make(chan struct{})
	}
}

// ReleaseWrites unblocks the stalled writes.
func (s *Surface) ReleaseWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stall != nil {
		close(s.stall)
		s.stall = nil
	}
}

// Stalled returns the number of writes that were stalled.
func (s *Surface) Stalled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled
}

// Send delivers msg to the host.
func (s *Surface) Send(msg protocol.Message) {
	s.in <- msg
}

// Received returns the messages written by the host so far.
func (s *Surface) Received() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.received...)
}

// Types returns the types of the received messages.
func (s *Surface) Types() []string {
	msgs := s.Received()
	types := make([]string, len(msgs))
	for i, msg := range msgs {
		types[i] = msg.Type
	}
	return types
}

// WaitFor waits until at least n messages were received and returns them.
func (s *Surface) WaitFor(t testing.TB, n int) []protocol.Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.Received()) >= n
	}, 2*time.Second, time.Millisecond, "expected %d messages", n)
	return s.Received()
}
