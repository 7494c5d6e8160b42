// Package control is the loopback admin plane: one JSON request per line,
// one JSON response per line, over TCP on 127.0.0.1. It is the only way to
// pause, resume, or stop a running daemon.
package control

import "encoding/json"

const (
	// DefaultPort is the loopback control port.
	DefaultPort = 7999

	CmdStatus   = "status"
	CmdPing     = "ping"
	CmdInfo     = "info"
	CmdPause    = "pause"
	CmdResume   = "resume"
	CmdShutdown = "shutdown"
)

// Request is one control command.
type Request struct {
	Command string `json:"command"`
}

// Response carries the outcome; Data is command-specific JSON.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Info is the payload of the info command.
type Info struct {
	Version     string `json:"version"`
	PID         int    `json:"pid"`
	Transport   string `json:"transport"`
	HostPort    int    `json:"host_port"`
	ControlPort int    `json:"control_port"`
	SerialPort  string `json:"serial_port,omitempty"`
}

func okResponse(data any) Response {
	resp := Response{OK: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err == nil {
			resp.Data = raw
		}
	}
	return resp
}

func errResponse(msg string) Response {
	return Response{OK: false, Error: msg}
}
