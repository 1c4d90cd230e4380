package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Endpoint wraps one websocket connection for the dispatcher. Gorilla
// allows a single concurrent writer, so every write goes through the mutex;
// senders include the fan-out path, the ping ticker and protocol replies.
type Endpoint struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewEndpoint(id string, conn *websocket.Conn) *Endpoint {
	return &Endpoint{id: id, conn: conn}
}

func (e *Endpoint) ID() string { return e.id }

// Send delivers one frame with a bounded write deadline. Fire and forget:
// an error here means the dispatcher skips this endpoint, nothing retries.
func (e *Endpoint) Send(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return websocket.ErrCloseSent
	}
	e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return e.conn.WriteMessage(websocket.TextMessage, frame)
}

func (e *Endpoint) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Close is idempotent and safe to call from any goroutine.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.conn.Close()
}

// ping writes a protocol-level ping control frame.
func (e *Endpoint) ping() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return websocket.ErrCloseSent
	}
	return e.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
