package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"danmaku-gateway/internal/config"
	"danmaku-gateway/internal/danmaku"
	"danmaku-gateway/internal/pipeline"
)

// bilibiliGatewayURL is the live-room chat gateway. Bilibili's actual
// handshake and binary frame protocol are out of scope; this bridge
// speaks the same generic JSON message-event envelope as SatoriBridge,
// one connection per configured room.
const bilibiliGatewayURL = "wss://broadcastlv.chat.bilibili.com/sub"

type bilibiliEvent struct {
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	IsSpecial  bool   `json:"is_special"`
}

// BilibiliBridge ingests one or more Bilibili live rooms, each mapped to
// a danmaku channel via RoomIDs, authenticating with the session cookie
// for rooms that require it.
type BilibiliBridge struct {
	cfg *config.BilibiliConfig
	pl  *pipeline.Pipeline
}

// NewBilibiliBridge constructs a bridge for cfg, broadcasting through pl.
func NewBilibiliBridge(cfg *config.BilibiliConfig, pl *pipeline.Pipeline) *BilibiliBridge {
	return &BilibiliBridge{cfg: cfg, pl: pl}
}

// Run starts one reconnecting goroutine per configured room and blocks
// until every room's goroutine returns (i.e. until ctx is cancelled).
func (b *BilibiliBridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for roomID, channel := range b.cfg.RoomIDs {
		wg.Add(1)
		go func(roomID, channel string) {
			defer wg.Done()
			b.runRoom(ctx, roomID, channel)
		}(roomID, channel)
	}
	wg.Wait()
}

func (b *BilibiliBridge) runRoom(ctx context.Context, roomID, channel string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := b.connectRoom(ctx, roomID, channel); err != nil {
			slog.Warn("bilibili room disconnected", "room_id", roomID, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (b *BilibiliBridge) connectRoom(ctx context.Context, roomID, channel string) error {
	header := http.Header{}
	if b.cfg.SessData != "" {
		header.Set("Cookie", "SESSDATA="+b.cfg.SessData)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, bilibiliGatewayURL, header)
	if err != nil {
		return fmt.Errorf("dial bilibili room %s: %w", roomID, err)
	}
	defer conn.Close()
	slog.Info("bilibili room connected", "room_id", roomID, "channel", channel)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read bilibili event: %w", err)
		}
		var evt bilibiliEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("bilibili event parse failed", "room_id", roomID, "err", err)
			continue
		}
		b.dispatch(channel, evt)
	}
}

func (b *BilibiliBridge) dispatch(channel string, evt bilibiliEvent) {
	msg := danmaku.Parse(evt.SenderID, evt.SenderName, []danmaku.Element{danmaku.TextElement(evt.Text)}, danmaku.Options{})
	if msg == nil {
		return
	}
	if evt.IsSpecial {
		msg.IsSpecial = true
	}
	b.pl.BroadcastMessage(channel, msg)
}
