package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencontrol/ocbridge/internal/bridge"
	"github.com/opencontrol/ocbridge/internal/eventlog"
)

const (
	// releaseWait bounds how long a pause acknowledgement waits for the
	// serial handle to be confirmed closed.
	releaseWait = 2 * time.Second

	connIdleTimeout = 30 * time.Second
	maxRequestLine  = 4096
	recentEvents    = 10
)

// ServerConfig identifies the daemon to info queries and picks the port.
type ServerConfig struct {
	Port      int
	Version   string
	Transport string
	HostPort  int
}

// Server accepts control connections and dispatches commands against the
// bridge. Shutdown is requested through the supplied cancel function after
// the acknowledgement has been written.
type Server struct {
	cfg      ServerConfig
	bridge   *bridge.Bridge
	events   *eventlog.Log
	logger   zerolog.Logger
	shutdown func()

	listener net.Listener
}

func NewServer(cfg ServerConfig, b *bridge.Bridge, events *eventlog.Log, logger zerolog.Logger, shutdown func()) *Server {
	return &Server{
		cfg:      cfg,
		bridge:   b,
		events:   events,
		logger:   logger,
		shutdown: shutdown,
	}
}

// Listen binds the loopback listener. Separate from Serve so callers can
// learn the bound address before accepting.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("control: bind %d: %w", s.cfg.Port, err)
	}
	s.listener = listener
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("control plane listening")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// handleConn serves any number of request lines on one connection.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxRequestLine), maxRequestLine)
	encoder := json.NewEncoder(conn)

	for {
		_ = conn.SetDeadline(time.Now().Add(connIdleTimeout))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		var resp Response
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			resp = errResponse("malformed request: not valid JSON")
		} else {
			resp = s.dispatch(req)
		}
		if err := encoder.Encode(resp); err != nil {
			return
		}
		if req.Command == CmdShutdown && resp.OK {
			s.shutdown()
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.logger.Debug().Str("command", req.Command).Msg("control request")

	switch req.Command {
	case CmdPing:
		return okResponse(map[string]string{"reply": "pong"})

	case CmdStatus:
		return okResponse(s.statusPayload())

	case CmdInfo:
		return okResponse(Info{
			Version:     s.cfg.Version,
			PID:         os.Getpid(),
			Transport:   s.cfg.Transport,
			HostPort:    s.cfg.HostPort,
			ControlPort: s.cfg.Port,
			SerialPort:  s.bridge.Status().Port,
		})

	case CmdPause:
		s.bridge.Pause()
		if !s.waitReleased() {
			return errResponse("pause: serial handle not released in time")
		}
		return okResponse(nil)

	case CmdResume:
		s.bridge.Resume()
		return okResponse(nil)

	case CmdShutdown:
		s.events.Append(eventlog.System("shutdown requested via control plane"))
		return okResponse(nil)

	default:
		return errResponse(fmt.Sprintf("unknown command %q", req.Command))
	}
}

type statusPayload struct {
	Bridge bridge.Status `json:"bridge"`
	Recent []string      `json:"recent_events,omitempty"`
}

func (s *Server) statusPayload() statusPayload {
	snap := s.events.Snapshot()
	if len(snap) > recentEvents {
		snap = snap[len(snap)-recentEvents:]
	}
	lines := make([]string, 0, len(snap))
	for _, e := range snap {
		lines = append(lines, e.Line())
	}
	return statusPayload{Bridge: s.bridge.Status(), Recent: lines}
}

// waitReleased polls until the serial handle is confirmed closed. Release
// is synchronous today, so this normally succeeds on the first check.
func (s *Server) waitReleased() bool {
	deadline := time.Now().Add(releaseWait)
	for {
		if s.bridge.LinkReleased() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
}
