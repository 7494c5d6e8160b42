// Package hostlink is the network endpoint facing the host application.
// Two transports carry the same payloads: UDP (one payload per datagram)
// and a length-prefixed TCP stream.
package hostlink

import (
	"errors"

	"github.com/opencontrol/ocbridge/internal/codec"
)

var (
	ErrNoPeer          = errors.New("hostlink: no peer connected")
	ErrPayloadTooLarge = errors.New("hostlink: payload exceeds max frame size")
	ErrClosed          = errors.New("hostlink: endpoint closed")
)

// MaxPayload bounds a single relayed payload in either direction.
const MaxPayload = codec.MaxFrameSize

// Endpoint is a bidirectional payload channel to the host application.
// Recv blocks until a payload arrives or the endpoint is closed; Send is
// best effort while no peer is known.
type Endpoint interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
	Close() error
}
