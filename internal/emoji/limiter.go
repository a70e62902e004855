package emoji

import (
	"context"
	"sync"
	"time"
)

// userGate is a per-user counting semaphore plus bookkeeping for lazy
// cleanup of gates nobody has used recently.
type userGate struct {
	sem      chan struct{}
	lastUsed time.Time
}

// Limiter enforces the global and per-user concurrency gates on emoji
// downloads. Acquire always takes the global slot before the per-user
// slot, so one user can never starve the global pool by holding every
// per-user slot while leaving other users unable to even queue.
type Limiter struct {
	global chan struct{}

	mu         sync.Mutex
	perUser    map[string]*userGate
	perUserCap int
}

// NewLimiter constructs a Limiter with the given global and per-user
// concurrency caps.
func NewLimiter(globalCap, perUserCap int) *Limiter {
	return &Limiter{
		global:     make(chan struct{}, globalCap),
		perUser:    map[string]*userGate{},
		perUserCap: perUserCap,
	}
}

// Acquire blocks until both the global and the user's gate have a free
// slot, or ctx is canceled. The returned release function must be called
// exactly once.
func (l *Limiter) Acquire(ctx context.Context, user string) (release func(), err error) {
	select {
	case l.global <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	gate := l.gateFor(user)
	select {
	case gate.sem <- struct{}{}:
	case <-ctx.Done():
		<-l.global
		return nil, ctx.Err()
	}

	return func() {
		<-gate.sem
		<-l.global
		l.mu.Lock()
		gate.lastUsed = time.Now()
		l.mu.Unlock()
	}, nil
}

func (l *Limiter) gateFor(user string) *userGate {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.perUser[user]
	if !ok {
		g = &userGate{sem: make(chan struct{}, l.perUserCap), lastUsed: time.Now()}
		l.perUser[user] = g
	}
	return g
}

// Cleanup drops per-user gates that are fully released (no in-flight
// downloads) and have not been used for at least idleAfter. Called from
// the same maintenance loop that sweeps the emoji cache.
func (l *Limiter) Cleanup(now time.Time, idleAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for user, g := range l.perUser {
		if len(g.sem) == 0 && now.Sub(g.lastUsed) >= idleAfter {
			delete(l.perUser, user)
		}
	}
}
