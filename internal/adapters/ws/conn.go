package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrBackpressure = errors.New("backpressure")

type outEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ackEnvelope struct {
	Type  string  `json:"type"`
	Seq   int64   `json:"seq"`
	Error *string `json:"error"`
	Data  any     `json:"data,omitempty"`
}

// Conn wraps one websocket with a buffered outbound queue.
// TrySend never blocks; a full queue drops the frame.
type Conn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(conn *websocket.Conn, buffer int) *Conn {
	return &Conn{
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

func (c *Conn) TrySend(event string, v any) error {
	b, err := json.Marshal(outEnvelope{Type: event, Data: v})
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *Conn) sendAck(seq int64, code string, data any) error {
	env := ackEnvelope{Type: "ack", Seq: seq, Data: data}
	if code != "" {
		env.Error = &code
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *Conn) enqueue(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
