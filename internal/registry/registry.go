// Package registry owns every live WebSocket session — upstream and
// viewer — and performs channel-keyed fan-out with failure-tolerant
// delivery. Only the registry mutates its own maps; callers serialize
// through it so no separate synchronization is needed inside a single
// process, following the same snapshot-under-lock-then-send shape as the
// teacher's room fan-out, generalized here to collect-then-prune so a
// failed send also deregisters its session.
package registry

import (
	"encoding/json"
	"log/slog"
	"sync"

	"danmaku-gateway/internal/danmaku"
)

// Sender is the minimal interface a WebSocket session must satisfy to
// receive broadcast frames. Using an interface here lets tests inject a
// mock session instead of a real websocket.Conn.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Registry holds all connected clients and performs fan-out.
type Registry struct {
	mu        sync.Mutex
	viewers   map[string]map[Sender]struct{}
	upstreams map[Sender]struct{}

	onShutdown func()
}

// New constructs an empty Registry. onShutdown, if non-nil, is invoked
// once by DisconnectAll after every session has been closed — used to
// release the blacklist watcher's file-system resources.
func New(onShutdown func()) *Registry {
	return &Registry{
		viewers:    map[string]map[Sender]struct{}{},
		upstreams:  map[Sender]struct{}{},
		onShutdown: onShutdown,
	}
}

// ConnectViewer registers s as a viewer of channel.
func (r *Registry) ConnectViewer(channel string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.viewers[channel]
	if !ok {
		set = map[Sender]struct{}{}
		r.viewers[channel] = set
	}
	set[s] = struct{}{}
	slog.Info("viewer connected", "channel", channel, "viewers", len(set))
}

// DisconnectViewer removes s from channel's viewer set. If the channel
// becomes empty, its entry is dropped entirely. A double disconnect of
// the same session is a no-op.
func (r *Registry) DisconnectViewer(channel string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.viewers[channel]
	if !ok {
		return
	}
	if _, present := set[s]; !present {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.viewers, channel)
	}
	slog.Info("viewer disconnected", "channel", channel, "viewers", len(set))
}

// ConnectUpstream registers s as an upstream session.
func (r *Registry) ConnectUpstream(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstreams[s] = struct{}{}
	slog.Info("upstream connected", "upstreams", len(r.upstreams))
}

// DisconnectUpstream removes s from the upstream set. A double
// disconnect of the same session is a no-op.
func (r *Registry) DisconnectUpstream(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, present := r.upstreams[s]; !present {
		return
	}
	delete(r.upstreams, s)
	slog.Info("upstream disconnected", "upstreams", len(r.upstreams))
}

// ViewerCount returns the number of viewers currently on channel.
func (r *Registry) ViewerCount(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers[channel])
}

// UpstreamCount returns the number of connected upstream sessions.
func (r *Registry) UpstreamCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upstreams)
}

// ChannelCount returns the number of channels that currently have at
// least one viewer.
func (r *Registry) ChannelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// ViewerCounts returns a snapshot of viewer count per channel, for the
// admin state endpoint.
func (r *Registry) ViewerCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int, len(r.viewers))
	for ch, set := range r.viewers {
		counts[ch] = len(set)
	}
	return counts
}

// Broadcast delivers msg to every viewer of channel. If msg.IsSpecial,
// a crown marker is appended to its text field before serialization
// (variants without a text field are unaffected). The message is
// serialized once; per-session send failures are collected during
// iteration and the failed sessions are deregistered after iteration so
// removing from the map never invalidates the in-flight range.
func (r *Registry) Broadcast(channel string, msg *danmaku.Message) {
	if msg.IsSpecial {
		msg.AppendCrown()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("broadcast marshal failed", "channel", channel, "err", err)
		return
	}

	r.fanOut(channel, data)
}

// BroadcastControl delivers a control frame to every viewer of channel,
// wrapped in the viewer-facing envelope.
func (r *Registry) BroadcastControl(channel string, ctrl danmaku.Control) {
	data, err := danmaku.EncodeControlFrame(ctrl)
	if err != nil {
		slog.Error("broadcast control marshal failed", "channel", channel, "err", err)
		return
	}
	r.fanOut(channel, data)
}

func (r *Registry) fanOut(channel string, data []byte) {
	r.mu.Lock()
	set := r.viewers[channel]
	if len(set) == 0 {
		r.mu.Unlock()
		return
	}
	targets := make([]Sender, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	var failed []Sender
	for _, s := range targets {
		if err := s.Send(data); err != nil {
			failed = append(failed, s)
		}
	}

	if len(failed) == 0 {
		return
	}
	r.mu.Lock()
	set = r.viewers[channel]
	for _, s := range failed {
		delete(set, s)
	}
	if len(set) == 0 {
		delete(r.viewers, channel)
	}
	r.mu.Unlock()
	slog.Warn("dropped viewers after failed send", "channel", channel, "count", len(failed))
}

// DisconnectAll closes every viewer then every upstream session,
// swallowing per-socket close errors, then runs the shutdown hook (the
// blacklist watcher's bounded stop).
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	var all []Sender
	for _, set := range r.viewers {
		for s := range set {
			all = append(all, s)
		}
	}
	upstreams := make([]Sender, 0, len(r.upstreams))
	for s := range r.upstreams {
		upstreams = append(upstreams, s)
	}
	r.viewers = map[string]map[Sender]struct{}{}
	r.upstreams = map[Sender]struct{}{}
	r.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	for _, s := range upstreams {
		_ = s.Close()
	}

	if r.onShutdown != nil {
		r.onShutdown()
	}
}
