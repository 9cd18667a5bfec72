package broker

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nowplaying/playerapi/internal/metrics"
	"github.com/nowplaying/playerapi/internal/player"
)

var errSubscriberClosed = errors.New("subscriber closed")

// Subscriber is one open event stream. Writes are serialized and refused once
// the subscriber is closed, so nothing touches the ResponseWriter after the
// owning handler has returned.
type Subscriber struct {
	ID string

	mu           sync.Mutex
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	metrics      *metrics.Metrics
	closed       bool
	done         chan struct{}
	closeOnce    sync.Once
}

// Done is closed when the subscriber is closed by the broker.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscriber. It waits for an in-flight write to finish and
// is safe to call more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscriber) sendLocked(d player.Delta) error {
	frames, skipped := encodeDelta(d)
	if len(frames) == 0 {
		return nil
	}
	return s.writeLocked(frames, len(d)-len(skipped))
}

func (s *Subscriber) write(frames []byte, events int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(frames, events)
}

func (s *Subscriber) writeLocked(frames []byte, events int) error {
	if s.closed {
		return errSubscriberClosed
	}
	if s.writeTimeout > 0 {
		// Not every ResponseWriter supports deadlines; the write still proceeds.
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := s.w.Write(frames); err != nil {
		s.metrics.EventWriteFailed()
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.metrics.EventWriteFailed()
		return err
	}
	s.metrics.EventsWritten(events)
	return nil
}
