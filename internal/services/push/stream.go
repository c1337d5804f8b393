package push

import (
	"sync"
	"time"
)

const (
	EventConnected    = "connected"
	EventHeartbeat    = "heartbeat"
	EventNotification = "notification"
	EventClose        = "close"
)

// Event is one frame pushed to a client.
type Event struct {
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream is one user's live connection. Events arrive on a buffered
// channel; a consumer that stops draining is treated as dead rather
// than blocking the registry.
type Stream struct {
	userID int64
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func newStream(userID int64, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{
		userID: userID,
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Stream) UserID() int64         { return s.userID }
func (s *Stream) Events() <-chan Event  { return s.ch }
func (s *Stream) Done() <-chan struct{} { return s.done }

// push enqueues without blocking; false means the buffer is full.
func (s *Stream) push(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// close is idempotent: the terminal frame is enqueued at most once and
// closing an already-closed stream is a no-op.
func (s *Stream) close(reason string) {
	s.once.Do(func() {
		select {
		case s.ch <- Event{Event: EventClose, Data: map[string]string{"reason": reason}, Timestamp: time.Now().UTC()}:
		default:
		}
		close(s.done)
	})
}
