package hostlink

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// UDPEndpoint binds a local datagram socket and learns its peer from the
// first datagram received. Until then outbound payloads have nowhere to go
// and Send reports ErrNoPeer.
type UDPEndpoint struct {
	conn *net.UDPConn

	mu     sync.Mutex
	peer   *net.UDPAddr
	closed bool
}

// ListenUDP binds 127.0.0.1:port for datagram exchange with the host.
func ListenUDP(port int) (*UDPEndpoint, error) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("hostlink: bind udp %d: %w", port, err)
	}
	return &UDPEndpoint{conn: conn}, nil
}

// LocalPort reports the bound port, useful when port 0 was requested.
func (u *UDPEndpoint) LocalPort() int {
	return u.conn.LocalAddr().(*net.UDPAddr).Port
}

// Send transmits one payload as a single datagram to the learned peer.
func (u *UDPEndpoint) Send(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	u.mu.Lock()
	peer := u.peer
	closed := u.closed
	u.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if peer == nil {
		return ErrNoPeer
	}
	if _, err := u.conn.WriteToUDP(payload, peer); err != nil {
		return fmt.Errorf("hostlink: udp send: %w", err)
	}
	return nil
}

// Recv blocks for the next datagram. The sender of each datagram becomes
// the current peer, so the host can rebind without restarting the daemon.
func (u *UDPEndpoint) Recv() ([]byte, error) {
	buf := make([]byte, MaxPayload+1)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("hostlink: udp recv: %w", err)
		}
		if n > MaxPayload {
			continue
		}
		u.mu.Lock()
		u.peer = addr
		u.mu.Unlock()

		payload := make([]byte, n)
		copy(payload, buf[:n])
		return payload, nil
	}
}

func (u *UDPEndpoint) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()
	return u.conn.Close()
}
