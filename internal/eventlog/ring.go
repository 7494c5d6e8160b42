package eventlog

// Ring is a fixed-capacity FIFO of events. Appending at capacity evicts the
// oldest entry. Not safe for concurrent use; Log serializes access.
type Ring struct {
	entries []Event
	head    int
	count   int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{entries: make([]Event, capacity)}
}

func (r *Ring) Append(e Event) {
	if r.count < len(r.entries) {
		r.entries[(r.head+r.count)%len(r.entries)] = e
		r.count++
		return
	}
	r.entries[r.head] = e
	r.head = (r.head + 1) % len(r.entries)
}

func (r *Ring) Len() int {
	return r.count
}

func (r *Ring) Cap() int {
	return len(r.entries)
}

// Snapshot returns the buffered events oldest first.
func (r *Ring) Snapshot() []Event {
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.head+i)%len(r.entries)])
	}
	return out
}
