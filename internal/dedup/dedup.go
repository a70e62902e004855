// Package dedup implements a two-tier time-windowed deduplicator and
// blacklist-decision cache. Tier 1 suppresses near-duplicate messages
// within a short window; tier 2 memoizes the blacklist verdict for a
// longer window so storms of near-repeated text don't re-run regex
// evaluation.
package dedup

import (
	"log/slog"
	"time"

	"danmaku-gateway/internal/blacklist"
	"danmaku-gateway/internal/danmaku"
)

// key identifies a message for dedup purposes: monetary messages are
// keyed by (sender_name, text); others by (nil, text).
type key struct {
	sender    string
	text      string
	hasSender bool
}

func keyOf(msg *danmaku.Message) key {
	if msg.IsMonetary() {
		return key{sender: msg.SenderName, text: msg.Text, hasSender: true}
	}
	return key{text: msg.Text}
}

// tierEntry is one slot in a tier's map, carrying the timestamp used to
// validate order-slice entries against staleness (see evictExpired) and
// the blacklist verdict that travels with the key from tier 1 to tier 2.
type tierEntry struct {
	ts      time.Time
	verdict blacklist.Verdict
	reason  string
}

type keyStamp struct {
	k  key
	ts time.Time
}

// Channel holds the per-channel two-tier dedup state. Not safe for
// concurrent use by multiple goroutines; callers must serialize access to
// a single channel's Channel. The pipeline does so with its own mutex,
// since several upstream handlers and bridges may target one channel.
//
// The order slices use a bounded-FIFO-via-map-plus-order-slice idiom
// (insertion order for O(1) eviction from the head), generalized here to
// fixed time windows instead of a fixed entry count.
type Channel struct {
	tier1      map[key]tierEntry
	tier1Order []keyStamp
	tier2      map[key]tierEntry
	tier2Order []keyStamp

	dedupWindow     time.Duration
	blacklistWindow time.Duration
}

// NewChannel constructs per-channel dedup state. dedupWindow <= 0 disables
// tier 1 entirely — no duplicate suppression ever occurs, though tier 2
// verdict memoization still runs.
func NewChannel(dedupWindow, blacklistWindow time.Duration) *Channel {
	return &Channel{
		tier1:           map[key]tierEntry{},
		tier2:           map[key]tierEntry{},
		dedupWindow:     dedupWindow,
		blacklistWindow: blacklistWindow,
	}
}

// Add runs the full filter pipeline (tier-1 dedup, tier-2 verdict reuse,
// blacklist evaluation) for msg against this channel's state. It mutates
// msg in place if the blacklist rewrote the sender name, and returns
// whether the message is blocked. Non-text, non-monetary messages (e.g.
// emote) bypass dedup entirely and go straight to the blacklist.
func (c *Channel) Add(now time.Time, msg *danmaku.Message, bl *blacklist.Service) (blocked bool) {
	blocked, _, _ = c.Decide(now, msg, bl)
	return blocked
}

// Decide is Add's full-detail counterpart: it additionally reports the
// blacklist verdict and reason (used by the admin audit log), including
// for duplicates, which carry no verdict/reason of their own — a
// duplicate is reported as VerdictBlock with reason "duplicate".
func (c *Channel) Decide(now time.Time, msg *danmaku.Message, bl *blacklist.Service) (blocked bool, verdict blacklist.Verdict, reason string) {
	c.evictExpired(now)

	if msg.Type == danmaku.TypeEmote {
		v, r := bl.Decide(msg)
		return v == blacklist.VerdictBlock, v, r
	}

	k := keyOf(msg)

	if _, dup := c.tier1[k]; dup {
		return true, blacklist.VerdictBlock, "duplicate"
	}

	if e, ok := c.tier2[k]; ok {
		applyCachedVerdict(msg, e, bl)
		c.insertTier1(k, now, e.verdict, e.reason)
		return e.verdict == blacklist.VerdictBlock, e.verdict, e.reason
	}

	v, r := bl.Decide(msg)
	c.insertTier1(k, now, v, r)
	return v == blacklist.VerdictBlock, v, r
}

// applyCachedVerdict re-applies a previously-cached rewrite verdict to the
// current message. The cache stores only the verdict, not the redacted
// sender name, so a cached rewrite runs the blacklist once more to redact
// this message's sender name in place; cached pass and block verdicts
// skip regex evaluation entirely.
func applyCachedVerdict(msg *danmaku.Message, e tierEntry, bl *blacklist.Service) {
	if e.verdict == blacklist.VerdictRewrite {
		slog.Debug("dedup: reused cached blacklist verdict", "reason", e.reason)
		bl.Decide(msg)
	}
}

func (c *Channel) insertTier1(k key, now time.Time, v blacklist.Verdict, reason string) {
	if c.dedupWindow <= 0 {
		return
	}
	c.tier1[k] = tierEntry{ts: now, verdict: v, reason: reason}
	c.tier1Order = append(c.tier1Order, keyStamp{k: k, ts: now})
}

func (c *Channel) insertTier2(k key, now time.Time, v blacklist.Verdict, reason string) {
	c.tier2[k] = tierEntry{ts: now, verdict: v, reason: reason}
	c.tier2Order = append(c.tier2Order, keyStamp{k: k, ts: now})
}

// evictExpired pops from the head of each tier's order slice while the
// head timestamp falls outside that tier's window, as lazy maintenance
// run on every Add call. A tier-1 entry that expires migrates into tier 2
// with its blacklist verdict attached; order entries superseded by a
// fresher insert for the same key (the key was seen again before its old
// entry aged out) are dropped without touching the map.
func (c *Channel) evictExpired(now time.Time) {
	for len(c.tier1Order) > 0 && now.Sub(c.tier1Order[0].ts) > c.dedupWindow {
		head := c.tier1Order[0]
		c.tier1Order = c.tier1Order[1:]
		if cur, ok := c.tier1[head.k]; ok && cur.ts.Equal(head.ts) {
			delete(c.tier1, head.k)
			// Stamp the tier-2 entry with the moment the tier-1 window
			// ended, so tier 2's window follows tier 1's directly rather
			// than starting whenever this lazy sweep happens to run.
			c.insertTier2(head.k, head.ts.Add(c.dedupWindow), cur.verdict, cur.reason)
		}
	}
	for len(c.tier2Order) > 0 && now.Sub(c.tier2Order[0].ts) > c.blacklistWindow {
		head := c.tier2Order[0]
		c.tier2Order = c.tier2Order[1:]
		if cur, ok := c.tier2[head.k]; ok && cur.ts.Equal(head.ts) {
			delete(c.tier2, head.k)
		}
	}
}
