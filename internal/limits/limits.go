// Package limits enforces connection caps (total and per-IP) for viewer
// and upstream WebSocket sockets, checked at connect time by the HTTP
// layer before upgrading.
package limits

import "sync"

// Manager tracks live connection counts and decides whether a new
// connection from a given IP may proceed. The zero value enforces no
// limits; use New to configure caps from startup flags or config.
type Manager struct {
	mu             sync.Mutex
	maxConnections int // 0 = unlimited
	perIPLimit     int // 0 = unlimited
	total          int
	perIP          map[string]int
}

// New constructs a Manager with the given caps. A zero value for either
// cap means that dimension is unlimited.
func New(maxConnections, perIPLimit int) *Manager {
	return &Manager{
		maxConnections: maxConnections,
		perIPLimit:     perIPLimit,
		perIP:          map[string]int{},
	}
}

// Acquire checks the total and per-IP caps and, if both allow it,
// reserves a connection slot for ip and returns true. Unlike the
// check-then-track split this is guarding against, the check and the
// increment happen under the same lock so two concurrent connects from
// the same IP can't both pass a perIPLimit of 1.
func (m *Manager) Acquire(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxConnections > 0 && m.total >= m.maxConnections {
		return false
	}
	if ip != "" && m.perIPLimit > 0 && m.perIP[ip] >= m.perIPLimit {
		return false
	}

	m.total++
	if ip != "" {
		if m.perIP == nil {
			m.perIP = map[string]int{}
		}
		m.perIP[ip]++
	}
	return true
}

// Release frees the slot reserved by a prior successful Acquire(ip).
func (m *Manager) Release(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.total > 0 {
		m.total--
	}
	if ip == "" {
		return
	}
	if m.perIP[ip] <= 1 {
		delete(m.perIP, ip)
	} else {
		m.perIP[ip]--
	}
}

// Total returns the current number of reserved connection slots.
func (m *Manager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
