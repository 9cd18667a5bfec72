// Package tracker records the raw connections accepted by an http.Server so
// they can be force-closed when the server stops.
package tracker

import (
	"net"
	"net/http"
	"sync"

	"github.com/nowplaying/playerapi/internal/metrics"
)

// Tracker is a concurrency-safe set of live connections.
type Tracker struct {
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closed  bool
	metrics *metrics.Metrics
}

// New creates an empty Tracker. m may be nil.
func New(m *metrics.Metrics) *Tracker {
	return &Tracker{
		conns:   make(map[net.Conn]struct{}),
		metrics: m,
	}
}

// ConnState is installed as http.Server.ConnState. New connections are
// added; closed and hijacked ones are removed.
func (t *Tracker) ConnState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		t.Add(c)
	case http.StateClosed, http.StateHijacked:
		t.Remove(c)
	}
}

// Add starts tracking c. Once CloseAll has run, c is closed instead.
func (t *Tracker) Add(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = c.Close()
		return
	}
	if _, ok := t.conns[c]; ok {
		return
	}
	t.conns[c] = struct{}{}
	t.metrics.ConnectionOpened()
}

// Remove stops tracking c and reports whether it was tracked.
func (t *Tracker) Remove(c net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[c]; !ok {
		return false
	}
	delete(t.conns, c)
	t.metrics.ConnectionsClosed(1)
	return true
}

// Len returns the number of tracked connections.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// CloseAll closes every tracked connection, empties the set and closes any
// connection added later. It returns the number of connections closed.
func (t *Tracker) CloseAll() int {
	t.mu.Lock()
	t.closed = true
	conns := t.conns
	t.conns = make(map[net.Conn]struct{})
	t.mu.Unlock()

	for c := range conns {
		_ = c.Close()
	}
	t.metrics.ConnectionsClosed(len(conns))
	return len(conns)
}
