package codec

import (
	"strings"
	"unicode/utf8"
)

// The controller firmware shares one USB CDC stream between COBS protocol
// frames (terminated by 0x00) and plain-text debug lines (terminated by
// '\n', conventionally "[NNNms] LEVEL: message" with optional ANSI color).

// FrameKind discriminates units decoded from the mixed serial stream.
type FrameKind int

const (
	KindMessage FrameKind = iota
	KindDebug
)

// DebugLevel is the firmware log level parsed from a debug line.
type DebugLevel int

const (
	LevelNone DebugLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l DebugLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "LOG"
	}
}

// Frame is one unit decoded from the serial stream: either a protocol
// message payload or a firmware debug line.
type Frame struct {
	Kind    FrameKind
	Payload []byte // KindMessage: decoded COBS payload
	Level   DebugLevel
	Text    string // KindDebug
}

const maxStreamBuffer = 16 * 1024

// StreamDecoder splits the mixed serial stream into protocol messages and
// debug lines, decoding COBS bodies as frames complete.
type StreamDecoder struct {
	buf []byte
}

// Feed consumes a read chunk and calls emit per completed unit. Malformed
// COBS runs surface as a nil-payload emit with the decode error.
func (d *StreamDecoder) Feed(p []byte, emit func(Frame, error)) {
	for _, b := range p {
		d.buf = append(d.buf, b)

		switch b {
		case Delimiter:
			body := d.buf[:len(d.buf)-1]
			if len(body) > 0 {
				payload, err := Decode(body)
				emit(Frame{Kind: KindMessage, Payload: payload}, err)
			}
			d.buf = d.buf[:0]
		case '\n':
			line := d.buf[:len(d.buf)-1]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			if len(line) > 0 && utf8.Valid(line) {
				level, text := ParseFirmwareLog(string(line))
				emit(Frame{Kind: KindDebug, Level: level, Text: text}, nil)
			}
			d.buf = d.buf[:0]
		}

		if len(d.buf) > maxStreamBuffer {
			d.buf = d.buf[:0]
		}
	}
}

// Reset discards any partially accumulated unit.
func (d *StreamDecoder) Reset() {
	d.buf = d.buf[:0]
}

// ParseFirmwareLog extracts the level from a "[NNNms] LEVEL: message" line.
// Lines not matching the convention come back unchanged with LevelNone.
func ParseFirmwareLog(text string) (DebugLevel, string) {
	clean := stripANSI(text)

	if !strings.HasPrefix(clean, "[") {
		return LevelNone, clean
	}
	end := strings.IndexByte(clean, ']')
	if end < 0 || !strings.HasSuffix(clean[:end+1], "ms]") {
		return LevelNone, clean
	}
	rest := strings.TrimLeft(clean[end+1:], " ")

	for _, c := range []struct {
		prefix string
		level  DebugLevel
	}{
		{"DEBUG: ", LevelDebug},
		{"INFO: ", LevelInfo},
		{"WARN: ", LevelWarn},
		{"ERROR: ", LevelError},
	} {
		if msg, ok := strings.CutPrefix(rest, c.prefix); ok {
			return c.level, msg
		}
	}
	return LevelNone, clean
}

// stripANSI removes ESC...m color sequences the firmware logger emits.
func stripANSI(text string) string {
	if !strings.ContainsRune(text, '\x1b') {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text))
	skipping := false
	for _, r := range text {
		switch {
		case skipping:
			if r == 'm' {
				skipping = false
			}
		case r == '\x1b':
			skipping = true
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
