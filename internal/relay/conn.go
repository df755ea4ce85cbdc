package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnClosed is returned when sending on a closed connection.
var ErrConnClosed = errors.New("relay connection closed")

// Conn wraps one WebSocket connection. Writes are serialized by a mutex;
// reads happen only from the connection's own read loop.
type Conn struct {
	ID          string
	ConnectedAt time.Time

	sock   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func newConn(sock *websocket.Conn) *Conn {
	return &Conn{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		sock:        sock,
	}
}

// Send writes an envelope to the connection. Thread-safe.
func (c *Conn) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	return c.sock.WriteJSON(env)
}

// SendEvent marshals a payload and sends it as a named event.
func (c *Conn) SendEvent(event string, data any) error {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return c.Send(env)
}

// ReadEnvelope reads the next event envelope from the connection.
func (c *Conn) ReadEnvelope() (Envelope, error) {
	_, msg, err := c.sock.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.sock.Close()
}
