package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds.
const (
	KindEvaluated = "action.evaluated"
	KindResolved  = "approval.resolved"
)

// Event is one gateway state change pushed to live subscribers.
type Event struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Score     int       `json:"riskScore,omitempty"`
	Status    string    `json:"status,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fans events out to all active subscribers (SSE clients).
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	buffer int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan Event), buffer: 16}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out without blocking; slow subscribers miss it.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
