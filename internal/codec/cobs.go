// Package codec implements COBS (Consistent Overhead Byte Stuffing) framing
// for the serial link. Encoding removes every 0x00 from payload data so that
// 0x00 can delimit frames on a continuous byte stream.
package codec

import (
	"errors"
)

const (
	// MaxFrameSize bounds one encoded frame on the wire.
	MaxFrameSize = 4096
	// Delimiter terminates every encoded frame and never appears inside one.
	Delimiter byte = 0x00
)

var (
	ErrFrameTooLarge   = errors.New("codec: frame too large")
	ErrInvalidEncoding = errors.New("codec: invalid COBS encoding")
)

// Encode stuffs data and appends the trailing delimiter.
func Encode(data []byte) ([]byte, error) {
	if len(data) > MaxFrameSize-2 {
		return nil, ErrFrameTooLarge
	}

	out := make([]byte, 0, len(data)+len(data)/254+2)
	codeIdx := 0
	out = append(out, 0)
	code := byte(1)

	for _, b := range data {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}

	out[codeIdx] = code
	out = append(out, Delimiter)
	return out, nil
}

// Decode unstuffs one encoded frame body (without its trailing delimiter).
func Decode(encoded []byte) ([]byte, error) {
	if len(encoded) == 0 {
		return nil, nil
	}

	out := make([]byte, 0, len(encoded))
	i := 0
	for i < len(encoded) {
		code := int(encoded[i])
		if code == 0 {
			return nil, ErrInvalidEncoding
		}
		i++
		n := code - 1
		if i+n > len(encoded) {
			return nil, ErrInvalidEncoding
		}
		out = append(out, encoded[i:i+n]...)
		i += n
		if code < 0xFF && i < len(encoded) {
			out = append(out, 0)
		}
	}
	return out, nil
}

// Accumulator assembles delimiter-terminated frames out of arbitrary read
// chunks. A malformed or oversize run is reported once and the accumulator
// resynchronizes at the next delimiter boundary.
type Accumulator struct {
	buf        []byte
	discarding bool
}

// Feed consumes a chunk and calls emit once per completed frame. A non-nil
// error means the run was dropped; decoding continues with the next frame.
func (a *Accumulator) Feed(p []byte, emit func(payload []byte, err error)) {
	for _, b := range p {
		if b == Delimiter {
			if a.discarding {
				a.discarding = false
				a.buf = a.buf[:0]
				continue
			}
			if len(a.buf) > 0 {
				payload, err := Decode(a.buf)
				emit(payload, err)
				a.buf = a.buf[:0]
			}
			continue
		}
		if a.discarding {
			continue
		}
		if len(a.buf) >= MaxFrameSize {
			emit(nil, ErrFrameTooLarge)
			a.buf = a.buf[:0]
			a.discarding = true
			continue
		}
		a.buf = append(a.buf, b)
	}
}
