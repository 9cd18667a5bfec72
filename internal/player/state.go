package player

import (
	"encoding/json"
	"fmt"
	"sync"
)

// State is an in-memory Source. Hosts push changes through Update or
// ApplyJSON; listeners only hear about fields whose value actually changed.
type State struct {
	// updateMu serializes updates so listeners observe deltas in the order
	// they were applied.
	updateMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	listeners map[uint64]func(Delta)
	nextID    uint64
}

// NewState creates a State seeded with the given snapshot.
func NewState(initial Status) *State {
	return &State{
		status:    initial,
		listeners: make(map[uint64]func(Delta)),
	}
}

// Snapshot returns a copy of the current status.
func (s *State) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribe registers fn for every future delta.
func (s *State) Subscribe(fn func(Delta)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Listeners reports how many listeners are registered.
func (s *State) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Update applies d and notifies listeners with the subset of changes that
// altered the snapshot. Nothing is applied if any change is invalid.
func (s *State) Update(d Delta) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.Lock()
	next := s.status
	for _, c := range d {
		if err := next.set(c.Field, c.Value); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	var changed Delta
	for _, f := range Fields {
		if v := next.Value(f); v != s.status.Value(f) {
			changed = append(changed, Change{Field: f, Value: v})
		}
	}
	s.status = next
	listeners := make([]func(Delta), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	for _, fn := range listeners {
		fn(changed)
	}
	return nil
}

// ApplyJSON decodes a partial status object such as {"progress":42} and
// applies it with Update. Unknown fields are rejected.
func (s *State) ApplyJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode status delta: %w", err)
	}

	known := make(map[Field]bool, len(Fields))
	for _, f := range Fields {
		known[f] = true
	}
	for key := range raw {
		if !known[Field(key)] {
			return fmt.Errorf("unknown status field %q", key)
		}
	}

	var d Delta
	for _, f := range Fields {
		msg, ok := raw[string(f)]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			return fmt.Errorf("decode field %q: %w", f, err)
		}
		d = append(d, Change{Field: f, Value: v})
	}
	return s.Update(d)
}

func (st *Status) set(f Field, v any) error {
	switch f {
	case FieldStatus:
		b, ok := v.(bool)
		if !ok {
			return typeError(f, "bool", v)
		}
		st.Status = b
	case FieldName, FieldSinger, FieldAlbumName, FieldPicURL, FieldLyricLineText, FieldLyric:
		str, ok := v.(string)
		if !ok {
			return typeError(f, "string", v)
		}
		switch f {
		case FieldName:
			st.Name = str
		case FieldSinger:
			st.Singer = str
		case FieldAlbumName:
			st.AlbumName = str
		case FieldPicURL:
			st.PicURL = str
		case FieldLyricLineText:
			st.LyricLineText = str
		case FieldLyric:
			st.Lyric = str
		}
	case FieldDuration, FieldProgress, FieldPlaybackRate:
		n, ok := toFloat(v)
		if !ok {
			return typeError(f, "number", v)
		}
		switch f {
		case FieldDuration:
			st.Duration = n
		case FieldProgress:
			st.Progress = n
		case FieldPlaybackRate:
			st.PlaybackRate = n
		}
	default:
		return fmt.Errorf("unknown status field %q", f)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func typeError(f Field, want string, got any) error {
	return fmt.Errorf("status field %q: want %s, got %T", f, want, got)
}
