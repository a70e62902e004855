package danmaku

import (
	"regexp"
	"strconv"
	"strings"
)

// Element is one piece of an upstream element list: either a text run or
// an image reference (an emoji/sticker). Exactly one of Text/ImageURL is
// meaningful, selected by IsImage.
type Element struct {
	IsImage  bool
	Text     string
	ImageURL string
}

// TextElement builds a text element.
func TextElement(text string) Element { return Element{Text: text} }

// ImageElement builds an image element.
func ImageElement(url string) Element { return Element{IsImage: true, ImageURL: url} }

var (
	scPattern   = regexp.MustCompile(`(?i)^/sc(?:\s+(\d+))?\s+(.+)$`)
	giftPattern = regexp.MustCompile(`(?i)^/gift\s+(.+?)(?:\s+(\d+))?\s*$`)

	// Position and color directive tokens, used to find a contiguous
	// prefix/suffix run of directives around the message body.
	positionRe = regexp.MustCompile(`^/(置顶|置底)$`)
	colorRe    = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	// trailingColorRe matches a bare trailing #RRGGBB used by the Satori
	// bridge's color-suffix convention.
	trailingColorRe = regexp.MustCompile(`(?i)#([0-9a-fA-F]{6})\s*$`)
)

const defaultSCDuration = 10
const defaultGiftQty = 1

// Options tunes parser behavior per call site. The zero value matches the
// default behavior everywhere except the Satori bridge.
type Options struct {
	// TrailingColorAuthoritative makes a trailing "#RRGGBB" on a plain
	// message set its color even when it isn't a standalone directive
	// token, matching the Satori bridge's color-suffix convention. Only
	// the Satori bridge sets this to true.
	TrailingColorAuthoritative bool
}

// Classify applies the first-match-wins classification rules. Returns ""
// if the element list cannot be classified.
func Classify(elements []Element) string {
	if len(elements) == 0 {
		return ""
	}
	first := elements[0]
	if first.IsImage {
		if len(elements) != 1 {
			return ""
		}
		return TypeEmote
	}
	for _, e := range elements {
		if e.IsImage {
			return ""
		}
	}

	text := strings.ToLower(joinText(elements))
	switch {
	case scPattern.MatchString(text):
		return TypeSuperchat
	case giftPattern.MatchString(text):
		return TypeGift
	default:
		return TypePlain
	}
}

func joinText(elements []Element) string {
	var b strings.Builder
	for _, e := range elements {
		b.WriteString(e.Text)
	}
	return b.String()
}

// Parse turns an upstream element list plus sender metadata into a
// normalized Message. Returns nil if the elements cannot be classified.
func Parse(senderID, senderName string, elements []Element, opts Options) *Message {
	switch Classify(elements) {
	case TypeEmote:
		return &Message{
			Type:       TypeEmote,
			EmoteKey:   "", // set by the caller after resolving elements[0].ImageURL via the emoji cache
			SenderID:   senderID,
			SenderName: senderName,
		}
	case TypeSuperchat:
		text := strings.TrimSpace(joinText(elements))
		if m := scPattern.FindStringSubmatch(text); m != nil {
			duration := defaultSCDuration
			if m[1] != "" {
				if v, err := strconv.Atoi(m[1]); err == nil && v >= 1 {
					duration = v
				}
			}
			return &Message{
				Type:            TypeSuperchat,
				Text:            m[2],
				DurationSeconds: duration,
				CostCents:       0, // monetary fields are never trusted from text
				SenderID:        senderID,
				SenderName:      senderName,
			}
		}
		return plainFallback(text, senderID, senderName, opts)
	case TypeGift:
		text := strings.TrimSpace(joinText(elements))
		if m := giftPattern.FindStringSubmatch(text); m != nil {
			qty := defaultGiftQty
			if m[2] != "" {
				if v, err := strconv.Atoi(m[2]); err == nil && v >= 1 {
					qty = v
				}
			}
			name := strings.TrimSpace(m[1])
			if name != "" {
				return &Message{
					Type:       TypeGift,
					GiftName:   name,
					Quantity:   qty,
					CostCents:  0,
					SenderID:   senderID,
					SenderName: senderName,
				}
			}
		}
		return plainFallback(text, senderID, senderName, opts)
	case TypePlain:
		text := strings.TrimSpace(joinText(elements))
		return parsePlain(text, senderID, senderName, opts)
	default:
		return nil
	}
}

func plainFallback(text string, senderID, senderName string, opts Options) *Message {
	return parsePlain(text, senderID, senderName, opts)
}

// parsePlain extracts a contiguous prefix or suffix run of directive
// tokens (position, color) around the message body. If the directive
// tokens are not contiguous at one edge, it falls back to a bare plain
// message carrying the original text.
func parsePlain(text string, senderID, senderName string, opts Options) *Message {
	msg := &Message{
		Type:       TypePlain,
		SenderID:   senderID,
		SenderName: senderName,
		Position:   PositionScroll,
	}

	tokens := strings.Fields(text)
	prefixEnd := 0
	for prefixEnd < len(tokens) && isDirectiveToken(tokens[prefixEnd]) {
		prefixEnd++
	}
	suffixStart := len(tokens)
	for suffixStart > prefixEnd && isDirectiveToken(tokens[suffixStart-1]) {
		suffixStart--
	}

	if prefixEnd > 0 || suffixStart < len(tokens) {
		body := strings.TrimSpace(strings.Join(tokens[prefixEnd:suffixStart], " "))
		interior := false
		for _, tok := range tokens[prefixEnd:suffixStart] {
			if isDirectiveToken(tok) {
				interior = true
				break
			}
		}
		if body != "" && !interior {
			applyDirectives(msg, tokens[:prefixEnd])
			applyDirectives(msg, tokens[suffixStart:])
			msg.Text = body
			return msg
		}
	}

	// No contiguous directive prefix/suffix found, a directive token sits
	// in the interior, or directives would consume the whole message: bare
	// plain message with original text.
	msg.Text = text
	if opts.TrailingColorAuthoritative {
		if m := trailingColorRe.FindStringSubmatch(text); m != nil {
			msg.Color = "#" + m[1]
			msg.Text = strings.TrimSpace(strings.TrimSuffix(text, m[0]))
		}
	}
	return msg
}

func isDirectiveToken(tok string) bool {
	return positionRe.MatchString(tok) || colorRe.MatchString(tok)
}

func applyDirectives(msg *Message, tokens []string) {
	for _, tok := range tokens {
		switch {
		case tok == "/置顶":
			msg.Position = PositionTop
		case tok == "/置底":
			msg.Position = PositionBottom
		case colorRe.MatchString(tok):
			msg.Color = tok
		}
	}
}
