package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// ErrSessionClosed is returned when sending to a disconnected session.
var ErrSessionClosed = errors.New("session closed")

// ErrQueueFull is returned when a session cannot accept more frames.
var ErrQueueFull = errors.New("session queue full")

// State is the lifecycle position of a session.
type State int32

// Session states. Disconnected is terminal.
const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is the part of a WebSocket connection a session writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one connected client. Every frame for the client goes through
// its bounded queue and is written by a single goroutine, WritePump.
type Session struct {
	ID       string
	Identity string

	conn      Conn
	send      chan []byte
	state     atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
	logger    types.Logger
}

// NewSession creates a session in the Connecting state with room for
// queueSize pending frames.
func NewSession(id, identity string, conn Conn, queueSize int, logger types.Logger) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Session{
		ID:       id,
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, queueSize),
		closed:   make(chan struct{}),
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) markConnected() {
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected))
}

// Send queues env for this session only.
func (s *Session) Send(env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return s.enqueue(data)
}

// enqueue never blocks.
func (s *Session) enqueue(data []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close moves the session to Disconnected and closes the connection. It is
// safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateDisconnected))
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Done is closed once the session is disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// WritePump writes queued frames in order and pings the client every
// pingPeriod until the session closes or a write fails. A zero pingPeriod
// disables pings.
func (s *Session) WritePump(pingPeriod, writeWait time.Duration) {
	var ping <-chan time.Time
	if pingPeriod > 0 {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer s.Close()

	for {
		select {
		case <-s.closed:
			return
		case data := <-s.send:
			if err := s.write(websocket.TextMessage, data, writeWait); err != nil {
				s.logger.Debug("Write failed, closing session", "session_id", s.ID, "error", err)
				return
			}
		case <-ping:
			if err := s.write(websocket.PingMessage, nil, writeWait); err != nil {
				s.logger.Debug("Ping failed, closing session", "session_id", s.ID, "error", err)
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte, writeWait time.Duration) error {
	if writeWait > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(messageType, data)
}
