package memory

import (
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
)

const DefaultCapacity = 20

// WindowStore holds a bounded, per-sender-key window of conversation messages
// in process memory. Eviction is strictly FIFO by count; keys are never
// expired by time here (see Sweeper). State is lost on restart by design and
// rebuilt by replaying future messages.
//
// Operations on the same key serialize on a per-key mutex; different keys
// proceed in parallel. The store map itself is guarded separately and never
// held across an append.
type WindowStore struct {
	mu       sync.RWMutex
	windows  map[string]*window
	capacity int
	now      func() time.Time
}

type window struct {
	mu        sync.Mutex
	messages  []*schema.Message
	lastTouch time.Time
}

func NewWindowStore(capacity int) *WindowStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &WindowStore{
		windows:  map[string]*window{},
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *WindowStore) window(key string, create bool) *window {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()
	if w != nil || !create {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w = s.windows[key]; w == nil {
		w = &window{}
		s.windows[key] = w
	}
	return w
}

// Append adds a message to the key's window, evicting the oldest entry when
// the window is full.
func (s *WindowStore) Append(key string, msg *schema.Message) {
	if msg == nil {
		return
	}
	w := s.window(key, true)

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.messages) >= s.capacity {
		copy(w.messages, w.messages[1:])
		w.messages = w.messages[:len(w.messages)-1]
	}
	w.messages = append(w.messages, msg)
	w.lastTouch = s.now()
}

// Get returns a copy of the key's window in append order.
func (s *WindowStore) Get(key string) []*schema.Message {
	w := s.window(key, false)
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*schema.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Len returns the number of messages held for the key.
func (s *WindowStore) Len(key string) int {
	w := s.window(key, false)
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// Clear drops the key's window entirely.
func (s *WindowStore) Clear(key string) {
	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()
}

// SweepIdle removes windows untouched for longer than idle and reports how
// many were dropped. Intended for a scheduled collaborator, not the pipeline.
func (s *WindowStore) SweepIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, w := range s.windows {
		w.mu.Lock()
		stale := w.lastTouch.Before(cutoff)
		w.mu.Unlock()
		if stale {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}
