package eventlog

import (
	"sync"
)

// Sink receives every appended event. Implementations own their failure
// handling; a failing sink must never block or fail the append path.
type Sink interface {
	Append(Event)
}

// Log fans one append out to the ring buffer and all attached sinks.
type Log struct {
	mu    sync.Mutex
	ring  *Ring
	sinks []Sink
}

func New(ringCapacity int) *Log {
	return &Log{ring: NewRing(ringCapacity)}
}

// AddSink attaches a sink. Not safe to call concurrently with Append;
// sinks are attached once during daemon startup.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Log) Append(e Event) {
	l.mu.Lock()
	l.ring.Append(e)
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		s.Append(e)
	}
}

// Snapshot returns the ring contents oldest first.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Snapshot()
}

func (l *Log) RingLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Len()
}
