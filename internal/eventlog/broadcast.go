package eventlog

import (
	"encoding/json"
	"fmt"
	"net"
)

// BroadcastSink publishes events as JSON datagrams on loopback UDP so a
// display client can observe the daemon without touching the file sink.
// Send failures are ignored: broadcast is best effort by contract.
type BroadcastSink struct {
	ch   chan Event
	done chan struct{}
}

func NewBroadcastSink(port int) (*BroadcastSink, error) {
	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("eventlog: broadcast socket: %w", err)
	}

	s := &BroadcastSink{
		ch:   make(chan Event, 256),
		done: make(chan struct{}),
	}
	go s.run(conn)
	return s, nil
}

func (s *BroadcastSink) Append(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

func (s *BroadcastSink) Close() {
	close(s.ch)
	<-s.done
}

func (s *BroadcastSink) run(conn net.Conn) {
	defer close(s.done)
	defer conn.Close()
	for e := range s.ch {
		payload, err := json.Marshal(e)
		if err != nil {
			continue
		}
		payload = append(payload, '\n')
		_, _ = conn.Write(payload)
	}
}
