package hostlink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// StreamEndpoint accepts one host connection at a time on a loopback TCP
// listener and exchanges payloads framed by a 4-byte big-endian length
// prefix. A broken connection is dropped and the next accept replaces it.
type StreamEndpoint struct {
	listener *net.TCPListener

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	recvCh chan []byte
	stop   chan struct{}
	done   chan struct{}
}

// ListenStream binds 127.0.0.1:port and starts the accept loop.
func ListenStream(port int) (*StreamEndpoint, error) {
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("hostlink: bind tcp %d: %w", port, err)
	}
	s := &StreamEndpoint{
		listener: listener,
		recvCh:   make(chan []byte, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// LocalPort reports the bound port, useful when port 0 was requested.
func (s *StreamEndpoint) LocalPort() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *StreamEndpoint) acceptLoop() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		s.readConn(conn)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}
}

// readConn decodes length-prefixed payloads until the connection fails.
func (s *StreamEndpoint) readConn(conn net.Conn) {
	var header [4]byte
	for {
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header[:])
		if size == 0 || size > MaxPayload {
			// Framing is unrecoverable mid-stream; drop the connection.
			return
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		// Suspend rather than drop: a slow consumer pushes back on the
		// peer through TCP flow control.
		select {
		case s.recvCh <- payload:
		case <-s.stop:
			return
		}
	}
}

// Send writes one length-prefixed payload to the current connection.
func (s *StreamEndpoint) Send(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.conn == nil {
		return ErrNoPeer
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := s.conn.Write(frame); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("hostlink: stream send: %w", err)
	}
	return nil
}

// Recv blocks for the next decoded payload from any connection.
func (s *StreamEndpoint) Recv() ([]byte, error) {
	select {
	case payload, ok := <-s.recvCh:
		if !ok {
			return nil, ErrClosed
		}
		return payload, nil
	case <-s.done:
		// Drain anything queued before the accept loop exited.
		select {
		case payload := <-s.recvCh:
			return payload, nil
		default:
			return nil, ErrClosed
		}
	}
}

func (s *StreamEndpoint) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	close(s.stop)

	if conn != nil {
		_ = conn.Close()
	}
	err := s.listener.Close()
	<-s.done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
