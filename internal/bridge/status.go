package bridge

import (
	"time"

	"github.com/opencontrol/ocbridge/internal/seriallink"
)

// Status is a point-in-time snapshot served to the control plane.
type Status struct {
	State      string `json:"state"`
	Link       string `json:"link"`
	Port       string `json:"port,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	UptimeMS   int64  `json:"uptime_ms"`
	ToHost     uint64 `json:"frames_to_host"`
	ToDevice   uint64 `json:"frames_to_device"`
	BytesHost  uint64 `json:"bytes_to_host"`
	BytesDev   uint64 `json:"bytes_to_device"`
	Dropped    uint64 `json:"frames_dropped"`
	RingEvents int    `json:"ring_events"`
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	state := b.state
	started := b.started
	b.mu.Unlock()

	return Status{
		State:      state.String(),
		Link:       b.link.State().String(),
		Port:       b.link.PortName(),
		LastError:  b.link.LastError(),
		UptimeMS:   time.Since(started).Milliseconds(),
		ToHost:     b.framesToHost.Load(),
		ToDevice:   b.framesToDevice.Load(),
		BytesHost:  b.bytesToHost.Load(),
		BytesDev:   b.bytesToDevice.Load(),
		Dropped:    b.dropped.Load(),
		RingEvents: b.events.RingLen(),
	}
}

// LinkReleased reports whether the serial handle is confirmed closed, the
// condition a pause acknowledgement waits on.
func (b *Bridge) LinkReleased() bool {
	return b.link.State() == seriallink.StateReleased
}
