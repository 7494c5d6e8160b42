// Package eventlog records the bridge's own operational events: a bounded
// in-memory ring read by the control plane, a rotating file sink, and an
// optional UDP broadcast for external display clients. Forwarded payload
// contents are never persisted, only events about the bridge itself.
package eventlog

import (
	"fmt"
	"time"
)

// Category classifies an event for filtering.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategoryDebug    Category = "debug"
	CategorySystem   Category = "system"
)

// Level is the severity attached to debug-category events.
type Level int

const (
	LevelNone Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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

// Direction marks which way a protocol event travelled.
type Direction string

const (
	DirectionIn  Direction = "in"  // controller -> host
	DirectionOut Direction = "out" // host -> controller
)

// Event is one append-only record.
type Event struct {
	Time      time.Time `json:"time"`
	Category  Category  `json:"category"`
	Level     Level     `json:"level,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Size      int       `json:"size,omitempty"`
	Message   string    `json:"message"`
}

func System(message string) Event {
	return Event{Time: time.Now(), Category: CategorySystem, Message: message}
}

func Systemf(format string, args ...any) Event {
	return System(fmt.Sprintf(format, args...))
}

func Debug(level Level, message string) Event {
	return Event{Time: time.Now(), Category: CategoryDebug, Level: level, Message: message}
}

func Protocol(dir Direction, name string, size int) Event {
	return Event{
		Time:      time.Now(),
		Category:  CategoryProtocol,
		Direction: dir,
		Size:      size,
		Message:   name,
	}
}

// Line renders the event in the persisted one-line format.
func (e Event) Line() string {
	ts := e.Time.Format("15:04:05.000")
	switch e.Category {
	case CategoryProtocol:
		dir := "IN"
		if e.Direction == DirectionOut {
			dir = "OUT"
		}
		return fmt.Sprintf("%s [PROTO] %s %s (%d B)", ts, dir, e.Message, e.Size)
	case CategoryDebug:
		return fmt.Sprintf("%s [%s] %s", ts, e.Level, e.Message)
	default:
		return fmt.Sprintf("%s [SYS] %s", ts, e.Message)
	}
}
