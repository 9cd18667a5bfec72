// Package broker keeps the set of open player status event streams and fans
// status changes out to them.
package broker

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nowplaying/playerapi/internal/metrics"
	"github.com/nowplaying/playerapi/internal/player"
)

// ErrClosed is returned by Subscribe once the broker has been closed.
var ErrClosed = errors.New("broker closed")

// Broker is the subscriber registry. Every Subscribe call creates a new
// entry; entries leave the registry through Unsubscribe or CloseAll.
type Broker struct {
	mu           sync.Mutex
	subs         map[string]*Subscriber
	closed       bool
	writeTimeout time.Duration
	metrics      *metrics.Metrics
}

// Option configures a Broker.
type Option func(*Broker)

// WithWriteTimeout bounds how long a single write to a subscriber may block.
// Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Broker) {
		b.writeTimeout = d
	}
}

// WithMetrics records subscriber and event counts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// New creates a ready-to-use Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		subs:         make(map[string]*Subscriber),
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers w as a new subscriber and writes the frames returned by
// initial before any broadcast can reach it. initial runs after registration,
// so a change published in between is never lost: it is either part of the
// initial frames or delivered right after them. initial may be nil.
func (b *Broker) Subscribe(w http.ResponseWriter, initial func() player.Delta) (*Subscriber, error) {
	s := &Subscriber{
		ID:           uuid.NewString(),
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: b.writeTimeout,
		metrics:      b.metrics,
		done:         make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[s.ID] = s
	b.mu.Unlock()
	b.metrics.SubscriberAdded()

	if initial != nil {
		if err := s.sendLocked(initial()); err != nil {
			slog.Debug("initial status sync failed",
				slog.String("subscriber_id", s.ID),
				slog.String("error", err.Error()))
		}
	}
	// Commit the stream headers even when there was nothing to send.
	_ = s.rc.Flush()
	return s, nil
}

// Unsubscribe removes s from the registry and closes it. It reports whether
// s was still registered.
func (b *Broker) Unsubscribe(s *Subscriber) bool {
	b.mu.Lock()
	_, ok := b.subs[s.ID]
	delete(b.subs, s.ID)
	b.mu.Unlock()

	if ok {
		b.metrics.SubscribersRemoved(1)
	}
	s.Close()
	return ok
}

// Broadcast writes every change in d to every current subscriber. A failed
// write only affects the subscriber it happened on; that subscriber leaves
// the registry through its own disconnect.
func (b *Broker) Broadcast(d player.Delta) {
	subs := b.snapshot()
	if len(subs) == 0 || len(d) == 0 {
		return
	}

	frames, skipped := encodeDelta(d)
	for _, f := range skipped {
		slog.Warn("dropping unencodable status field", slog.String("field", string(f)))
	}
	if len(frames) == 0 {
		return
	}
	n := len(d) - len(skipped)

	for _, s := range subs {
		if err := s.write(frames, n); err != nil {
			slog.Debug("status event write failed",
				slog.String("subscriber_id", s.ID),
				slog.String("error", err.Error()))
		}
	}
}

// CloseAll closes every subscriber, empties the registry and refuses new
// subscriptions.
func (b *Broker) CloseAll() int {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	b.metrics.SubscribersRemoved(len(subs))
	return len(subs)
}

// Len returns the number of registered subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) snapshot() []*Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	return subs
}
