package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"danmaku-gateway/internal/registry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// RejectTryAgainLater upgrades the request only to immediately close it
// with code 1013 ("try again later"). gorilla requires a completed
// upgrade before a close frame can be sent, so unlike an HTTP-level 429
// this still performs the handshake. Used by the connection manager when
// a caller is over the total or per-IP connection cap.
func RejectTryAgainLater(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := NewSession(conn)
	_ = sess.closeWithReason(websocket.CloseTryAgainLater, "connection limit exceeded")
}

// ServeViewer upgrades the request, registers the connection as a viewer
// of channel, then loops reading frames purely to detect disconnect — all
// received content is discarded. On disconnect it deregisters.
func ServeViewer(reg *registry.Registry, channel string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("viewer upgrade failed", "channel", channel, "err", err)
		return
	}
	sess := NewSession(conn)
	reg.ConnectViewer(channel, sess)
	defer reg.DisconnectViewer(channel, sess)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
