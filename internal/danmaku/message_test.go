package danmaku

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	cases := []Message{
		{Type: TypePlain, Text: "hi", Position: PositionScroll, SenderID: "u1", SenderName: "alice"},
		{Type: TypeEmote, EmoteKey: "abc123"},
		{Type: TypeSuperchat, Text: "thanks", DurationSeconds: 10, CostCents: 500, SenderName: "bob"},
		{Type: TypeGift, GiftName: "rose", Quantity: 3, CostCents: 100, SenderName: "carol"},
	}
	for _, want := range cases {
		data, err := json.Marshal(&want)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
		}
	}
}

func TestAppendCrownOnlyOnTextVariants(t *testing.T) {
	plain := Message{Type: TypePlain, Text: "hi"}
	plain.AppendCrown()
	if plain.Text != "hi\U0001F451" {
		t.Fatalf("plain crown: got %q", plain.Text)
	}

	emote := Message{Type: TypeEmote, EmoteKey: "k"}
	emote.AppendCrown()
	if emote.EmoteKey != "k" {
		t.Fatalf("emote should be unaffected by crown")
	}
}

func TestControlClamping(t *testing.T) {
	c := Control{Type: ControlSetOpacity, Value: -5}
	c.ClampOpacity()
	if c.Value != 0 {
		t.Fatalf("want 0, got %d", c.Value)
	}
	c = Control{Type: ControlSetOpacity, Value: 150}
	c.ClampOpacity()
	if c.Value != 100 {
		t.Fatalf("want 100, got %d", c.Value)
	}
	f := Control{Type: ControlSetFontSize, Size: 0}
	f.ClampFontSize()
	if f.Size != 1 {
		t.Fatalf("want 1, got %d", f.Size)
	}
}

func TestUpstreamPacketValidate(t *testing.T) {
	bad := UpstreamPacket{Channel: "a"}
	if bad.Validate() == nil {
		t.Fatal("expected error for packet with no payload")
	}
	both := UpstreamPacket{Channel: "a", Danmaku: &Message{Type: TypePlain}, Control: &Control{Type: ControlClearDanmaku}}
	if both.Validate() == nil {
		t.Fatal("expected error for packet with both payloads")
	}
	ok := UpstreamPacket{Channel: "a", Danmaku: &Message{Type: TypePlain}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpstreamPacketValidateClampsControlValues(t *testing.T) {
	opacity := UpstreamPacket{Channel: "a", Control: &Control{Type: ControlSetOpacity, Value: 150}}
	if err := opacity.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opacity.Control.Value != 100 {
		t.Fatalf("want opacity clamped to 100, got %d", opacity.Control.Value)
	}

	low := UpstreamPacket{Channel: "a", Control: &Control{Type: ControlSetOpacity, Value: -5}}
	if err := low.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low.Control.Value != 0 {
		t.Fatalf("want opacity clamped to 0, got %d", low.Control.Value)
	}

	font := UpstreamPacket{Channel: "a", Control: &Control{Type: ControlSetFontSize, Size: 0}}
	if err := font.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if font.Control.Size != 1 {
		t.Fatalf("want font size clamped to 1, got %d", font.Control.Size)
	}
}
