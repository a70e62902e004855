// Package danmaku defines the normalized message model exchanged between
// upstream adapters, the filter pipeline, and viewer connections.
package danmaku

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators.
const (
	TypePlain     = "plain"
	TypeEmote     = "emote"
	TypeSuperchat = "superchat"
	TypeGift      = "gift"
)

// Position values for a plain message.
const (
	PositionScroll = "scroll"
	PositionTop    = "top"
	PositionBottom = "bottom"
)

// Control type discriminators.
const (
	ControlSetOpacity   = "set_opacity"
	ControlClearDanmaku = "clear_danmaku"
	ControlPauseDanmaku = "pause_danmaku"
	ControlSetFontSize  = "set_font_size"
	ControlHideDanmaku  = "hide_danmaku"
)

// Message is the discriminated envelope broadcast to viewers. Only the
// fields relevant to Type are populated; the rest are left at zero value
// and omitted from JSON.
type Message struct {
	Type string `json:"type"`

	// plain
	Text     string `json:"text,omitempty"`
	Color    string `json:"color,omitempty"`
	Size     int    `json:"size,omitempty"`
	Position string `json:"position,omitempty"`

	// emote
	EmoteKey string `json:"emote_key,omitempty"`

	// superchat
	DurationSeconds int `json:"duration_seconds,omitempty"`

	// gift
	GiftName string `json:"gift_name,omitempty"`
	Quantity int    `json:"quantity,omitempty"`

	// superchat + gift
	CostCents int `json:"cost_cents,omitempty"`

	// common to all variants
	SenderID   string `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	IsSpecial  bool   `json:"is_special,omitempty"`
}

// HasText reports whether this variant carries a text field subject to
// blacklist text matching and dedup keying.
func (m *Message) HasText() bool {
	return m.Type == TypePlain || m.Type == TypeSuperchat
}

// IsMonetary reports whether this variant carries a cost and is therefore
// keyed by sender name (not content alone) for dedup, and checked against
// the blacklist by sender name (a match rewrites the name) before any
// text check.
func (m *Message) IsMonetary() bool {
	return m.Type == TypeSuperchat || m.Type == TypeGift
}

// AppendCrown appends the crown marker used for is_special messages, for
// variants that carry a text field. No-op otherwise.
func (m *Message) AppendCrown() {
	if m.HasText() {
		m.Text += "\U0001F451"
	}
}

// Control is the discriminated control envelope.
type Control struct {
	Type string `json:"type"`

	Value  int  `json:"value,omitempty"`  // set_opacity, clamped [0,100]
	Size   int  `json:"size,omitempty"`   // set_font_size, clamped [1,100]
	Paused bool `json:"paused,omitempty"` // pause_danmaku
	Hidden bool `json:"hidden,omitempty"` // hide_danmaku
}

// ClampOpacity clamps Value into [0, 100]. Only meaningful for set_opacity.
func (c *Control) ClampOpacity() {
	if c.Value < 0 {
		c.Value = 0
	} else if c.Value > 100 {
		c.Value = 100
	}
}

// ClampFontSize clamps Size into [1, 100]. Only meaningful for set_font_size.
func (c *Control) ClampFontSize() {
	if c.Size < 1 {
		c.Size = 1
	} else if c.Size > 100 {
		c.Size = 100
	}
}

// controlFrame is the wire shape for a control broadcast to viewers:
// {"type":"control","control":{...}}.
type controlFrame struct {
	Type    string  `json:"type"`
	Control Control `json:"control"`
}

// EncodeControlFrame wraps a control payload in the viewer-facing envelope.
func EncodeControlFrame(c Control) ([]byte, error) {
	return json.Marshal(controlFrame{Type: "control", Control: c})
}

// UpstreamPacket is the wire shape received on the upstream control socket:
// {"channel": "...", "danmaku": {...}} or {"channel": "...", "control": {...}}.
// Exactly one of Danmaku/Control must be present.
type UpstreamPacket struct {
	Channel string   `json:"channel"`
	Danmaku *Message `json:"danmaku,omitempty"`
	Control *Control `json:"control,omitempty"`
}

// Validate enforces the "exactly one payload" invariant and clamps
// set_opacity/set_font_size control values into their valid ranges, the
// same normalization a pydantic model_validator would run on every
// packet parse.
func (p *UpstreamPacket) Validate() error {
	if p.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if p.Danmaku == nil && p.Control == nil {
		return fmt.Errorf("packet must include danmaku or control payload")
	}
	if p.Danmaku != nil && p.Control != nil {
		return fmt.Errorf("packet must include exactly one of danmaku or control")
	}
	if p.Control != nil {
		switch p.Control.Type {
		case ControlSetOpacity:
			p.Control.ClampOpacity()
		case ControlSetFontSize:
			p.Control.ClampFontSize()
		}
	}
	return nil
}
