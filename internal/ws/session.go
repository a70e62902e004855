// Package ws adapts gorilla/websocket connections to the registry's
// Sender interface and implements the viewer and upstream socket
// handlers.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = 2 * time.Second

// Session wraps a *websocket.Conn as a registry.Sender. gorilla/websocket
// permits at most one concurrent writer per connection, so Send is
// serialized with a mutex — the registry may call Send from a fan-out
// loop while the session's own read loop runs concurrently.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewSession wraps conn.
func NewSession(conn *websocket.Conn) *Session {
	return &Session{conn: conn}
}

// Send writes data as a single text frame.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// closeWithReason sends a close frame with the given code and reason,
// then closes the connection. Used for upstream auth failures.
func (s *Session) closeWithReason(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return s.conn.Close()
}
