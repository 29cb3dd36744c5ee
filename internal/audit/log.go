package audit

import (
	"sync"
	"time"

	"sentra.org/internal/ids"
	"sentra.org/internal/obs"
)

const defaultCapacity = 500

// Event is an immutable record of a security-relevant action.
type Event struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Action   string    `json:"action"`
	Username string    `json:"username,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Log is an append-only, capacity-bounded event buffer. Once full, the oldest
// entry is evicted first; ordering is by arrival only.
type Log struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	emit     bool
}

// NewLog creates a bounded log. Non-positive capacities fall back to the default.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Log{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// WithEmit enables mirroring every recorded event as a JSON log line.
func (l *Log) WithEmit() *Log {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emit = true
	return l
}

// Record appends the event, evicting the oldest entry once capacity is exceeded.
func (l *Log) Record(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = ids.NewAt(ev.At)
	}
	l.mu.Lock()
	l.events = append(l.events, ev)
	if len(l.events) > l.capacity {
		l.events = append(l.events[:0], l.events[1:]...)
	}
	emit := l.emit
	l.mu.Unlock()

	if emit {
		entry := map[string]any{
			"ts":    ev.At.UTC().Format(time.RFC3339Nano),
			"type":  "audit",
			"event": ev.Action,
			"id":    ev.ID,
		}
		if ev.Username != "" {
			entry["username"] = ev.Username
		}
		if ev.Detail != "" {
			entry["detail"] = ev.Detail
		}
		obs.LogJSON(entry)
	}
}

// List returns a snapshot copy; concurrent readers never observe appends in flight.
func (l *Log) List() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
