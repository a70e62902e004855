package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"danmaku-gateway/internal/config"
	"danmaku-gateway/internal/danmaku"
	"danmaku-gateway/internal/emoji"
	"danmaku-gateway/internal/pipeline"
)

// satoriEvent is the generic message-event envelope read from the chat
// bus: a source channel id, a sender, and an element run.
type satoriEvent struct {
	Channel    string          `json:"channel"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name"`
	Elements   []satoriElement `json:"elements"`
}

type satoriElement struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// SatoriBridge ingests a Satori-style chat bus over a single WebSocket
// connection, remapping each inbound source channel through GroupMap
// before handing the parsed message to the pipeline. A message routed
// through this bridge always treats a trailing "#RRGGBB" as an
// authoritative color directive (the Satori color-suffix convention),
// per the parser's TrailingColorAuthoritative option.
type SatoriBridge struct {
	cfg      *config.SatoriConfig
	pl       *pipeline.Pipeline
	emojiSvc *emoji.Service
}

// NewSatoriBridge constructs a bridge for cfg, broadcasting through pl. An
// emote element is resolved to a cache key via emojiSvc before broadcast.
func NewSatoriBridge(cfg *config.SatoriConfig, pl *pipeline.Pipeline, emojiSvc *emoji.Service) *SatoriBridge {
	return &SatoriBridge{cfg: cfg, pl: pl, emojiSvc: emojiSvc}
}

// Run connects and processes events until ctx is cancelled, reconnecting
// with a fixed backoff after any dial or read failure.
func (s *SatoriBridge) Run(ctx context.Context) {
	target := (&url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port), Path: s.cfg.Path}).String()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.runOnce(ctx, target); err != nil {
			slog.Warn("satori bridge disconnected", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *SatoriBridge) runOnce(ctx context.Context, target string) error {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		return fmt.Errorf("dial satori: %w", err)
	}
	defer conn.Close()
	slog.Info("satori bridge connected", "url", target)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read satori event: %w", err)
		}
		var evt satoriEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("satori event parse failed", "err", err)
			continue
		}
		s.dispatch(ctx, evt)
	}
}

func (s *SatoriBridge) dispatch(ctx context.Context, evt satoriEvent) {
	channel, ok := s.cfg.GroupMap[evt.Channel]
	if !ok {
		return
	}
	elements := make([]danmaku.Element, 0, len(evt.Elements))
	for _, e := range evt.Elements {
		if e.ImageURL != "" {
			elements = append(elements, danmaku.ImageElement(e.ImageURL))
		} else {
			elements = append(elements, danmaku.TextElement(e.Text))
		}
	}
	msg := danmaku.Parse(evt.SenderID, evt.SenderName, elements, danmaku.Options{TrailingColorAuthoritative: true})
	if msg == nil {
		return
	}
	if msg.Type == danmaku.TypeEmote {
		key, err := s.emojiSvc.LoadEmoji(ctx, elements[0].ImageURL, evt.SenderID)
		if err != nil {
			slog.Warn("emote ingest failed", "url", elements[0].ImageURL, "err", err)
			return
		}
		msg.EmoteKey = key
	}
	s.pl.BroadcastMessage(channel, msg)
}
