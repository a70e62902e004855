package ws

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"danmaku-gateway/internal/danmaku"
	"danmaku-gateway/internal/pipeline"
	"danmaku-gateway/internal/registry"
)

// errorFrame is the server-to-client reply on packet parse failure. The
// socket stays connected.
type errorFrame struct {
	Error string `json:"error"`
}

// ServeUpstream upgrades the request after validating the token query
// parameter with a constant-time comparison, then reads packets until
// disconnect, dispatching each to the pipeline. A missing or mismatched
// token closes the socket with code 1008 right after the upgrade, since
// gorilla requires a completed upgrade before a close frame can be sent.
func ServeUpstream(pl *pipeline.Pipeline, reg *registry.Registry, token string, w http.ResponseWriter, r *http.Request) {
	supplied := r.URL.Query().Get("token")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upstream upgrade failed", "err", err)
		return
	}
	sess := NewSession(conn)

	if supplied == "" {
		_ = sess.closeWithReason(1008, "Missing authorization token")
		return
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
		_ = sess.closeWithReason(1008, "Invalid token")
		return
	}

	reg.ConnectUpstream(sess)
	defer reg.DisconnectUpstream(sess)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var pkt danmaku.UpstreamPacket
		if err := json.Unmarshal(data, &pkt); err != nil {
			replyError(sess, fmt.Sprintf("invalid JSON: %v", err))
			continue
		}
		if err := pkt.Validate(); err != nil {
			replyError(sess, err.Error())
			continue
		}

		if pkt.Control != nil {
			pl.BroadcastControl(pkt.Channel, *pkt.Control)
			continue
		}
		pkt.Danmaku.IsSpecial = true
		pl.BroadcastMessage(pkt.Channel, pkt.Danmaku)
	}
}

func replyError(sess *Session, detail string) {
	data, err := json.Marshal(errorFrame{Error: "Invalid message format: " + detail})
	if err != nil {
		return
	}
	_ = sess.Send(data)
}
