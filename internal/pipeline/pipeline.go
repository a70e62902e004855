// Package pipeline composes the blacklist, per-channel dedup state, and
// the connection registry into the single broadcast_message operation:
// short-circuit on no viewers, consult the filter, then fan out.
package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"danmaku-gateway/internal/audit"
	"danmaku-gateway/internal/blacklist"
	"danmaku-gateway/internal/danmaku"
	"danmaku-gateway/internal/dedup"
	"danmaku-gateway/internal/registry"
)

// Pipeline is the single entry point upstream handlers call to deliver a
// parsed message or control packet to a channel's viewers.
type Pipeline struct {
	registry  *registry.Registry
	blacklist *blacklist.Service
	audit     *audit.Log

	mu          sync.Mutex
	channels    map[string]*dedup.Channel
	dedupWindow time.Duration
	blWindow    time.Duration

	broadcastCount atomic.Uint64
	blockedCount   atomic.Uint64
}

// New constructs a Pipeline. dedupWindow <= 0 disables tier-1 duplicate
// suppression for every channel.
func New(reg *registry.Registry, bl *blacklist.Service, dedupWindow, blacklistWindow time.Duration) *Pipeline {
	return &Pipeline{
		registry:    reg,
		blacklist:   bl,
		channels:    map[string]*dedup.Channel{},
		dedupWindow: dedupWindow,
		blWindow:    blacklistWindow,
	}
}

// SetAudit attaches an audit log that records block and rewrite verdicts.
// Passing nil (the default) disables audit recording entirely.
func (p *Pipeline) SetAudit(log *audit.Log) {
	p.audit = log
}

// BroadcastMessage implements the connection manager's broadcast_message
// operation: it short-circuits when the channel has no viewers, then
// consults the filter (dedup + blacklist) before handing the message to
// the registry for crown-marking, serialization, and fan-out. A filter
// panic is treated as "pass" with an error log — the system prefers
// delivering over censoring on bugs.
func (p *Pipeline) BroadcastMessage(channel string, msg *danmaku.Message) {
	if p.registry.ViewerCount(channel) == 0 {
		return
	}

	if p.filterBlocks(channel, msg) {
		p.blockedCount.Add(1)
		return
	}

	p.broadcastCount.Add(1)
	p.registry.Broadcast(channel, msg)
}

// Stats returns the number of messages broadcast and blocked since the
// last call, resetting both counters to zero — the same
// swap-and-reset shape as a periodic metrics log line expects.
func (p *Pipeline) Stats() (broadcast, blocked uint64) {
	return p.broadcastCount.Swap(0), p.blockedCount.Swap(0)
}

func (p *Pipeline) filterBlocks(channel string, msg *danmaku.Message) (blocked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("filter panicked, passing message through", "channel", channel, "panic", r)
			blocked = false
		}
	}()

	// Multiple upstream handlers may target the same channel concurrently;
	// a channel's dedup state is not safe for concurrent use, so mutation
	// is serialized here rather than per-upstream.
	p.mu.Lock()
	ch, ok := p.channels[channel]
	if !ok {
		ch = dedup.NewChannel(p.dedupWindow, p.blWindow)
		p.channels[channel] = ch
	}
	blocked, verdict, reason := ch.Decide(time.Now(), msg, p.blacklist)
	p.mu.Unlock()

	p.recordVerdict(channel, verdict, reason)
	return blocked
}

func (p *Pipeline) recordVerdict(channel string, verdict blacklist.Verdict, reason string) {
	if p.audit == nil || verdict == blacklist.VerdictPass {
		return
	}
	action := "rewrite"
	if verdict == blacklist.VerdictBlock {
		action = "block"
	}
	if err := p.audit.Record(action, channel, reason); err != nil {
		slog.Error("failed to record audit entry", "channel", channel, "action", action, "err", err)
	}
}

// BroadcastControl delivers a control packet to channel's viewers,
// bypassing the filter entirely (control packets carry no text/sender
// fields subject to blacklist or dedup evaluation).
func (p *Pipeline) BroadcastControl(channel string, ctrl danmaku.Control) {
	p.registry.BroadcastControl(channel, ctrl)
}
