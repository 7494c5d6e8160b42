package seriallink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/opencontrol/ocbridge/internal/eventlog"
)

// State is the link lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateDiscovering
	StateConnecting
	StateConnected
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "Discovering"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReleased:
		return "Released"
	default:
		return "Disconnected"
	}
}

var (
	ErrReleased     = errors.New("seriallink: link released")
	ErrNotConnected = errors.New("seriallink: not connected")
)

const readTimeout = 100 * time.Millisecond

// Config selects and configures the device.
type Config struct {
	// PortName overrides discovery when set.
	PortName string
	BaudRate int
	Preset   DevicePreset
}

// Manager holds exclusive ownership of the serial handle. At most one OS
// handle is open at a time; Released and Disconnected guarantee it closed,
// which is what lets an external flasher acquire the port during pause.
type Manager struct {
	cfg Config
	log *eventlog.Log

	mu       sync.Mutex
	state    State
	port     serial.Port
	portName string
	lastErr  string
}

func NewManager(cfg Config, log *eventlog.Log) *Manager {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 2_000_000
	}
	return &Manager{cfg: cfg, log: log, state: StateDisconnected}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) PortName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portName
}

// LastError reports the most recent recoverable failure for status queries.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Connect performs one discovery + open attempt. The caller owns retry and
// backoff. Returns ErrReleased without touching the device while paused.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.state == StateReleased {
		m.mu.Unlock()
		return ErrReleased
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateDiscovering
	m.mu.Unlock()

	name := m.cfg.PortName
	if name == "" {
		discovered, err := Discover(m.cfg.Preset)
		if err != nil {
			m.fail(err)
			return err
		}
		name = discovered
	}

	m.mu.Lock()
	if m.state == StateReleased {
		m.mu.Unlock()
		return ErrReleased
	}
	m.state = StateConnecting
	m.mu.Unlock()

	port, err := serial.Open(name, &serial.Mode{BaudRate: m.cfg.BaudRate})
	if err != nil {
		err = fmt.Errorf("seriallink: open %s: %w", name, err)
		m.fail(err)
		return err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		err = fmt.Errorf("seriallink: configure %s: %w", name, err)
		m.fail(err)
		return err
	}

	m.mu.Lock()
	if m.state == StateReleased {
		// Pause raced the open; hand the port straight back.
		m.mu.Unlock()
		_ = port.Close()
		return ErrReleased
	}
	m.port = port
	m.portName = name
	m.state = StateConnected
	m.lastErr = ""
	m.mu.Unlock()

	m.log.Append(eventlog.Systemf("serial connected: %s @ %d baud", name, m.cfg.BaudRate))
	return nil
}

// Read drains available bytes; n == 0 with nil error is an idle timeout.
func (m *Manager) Read(p []byte) (int, error) {
	port, err := m.handle()
	if err != nil {
		return 0, err
	}
	return port.Read(p)
}

func (m *Manager) Write(p []byte) (int, error) {
	port, err := m.handle()
	if err != nil {
		return 0, err
	}
	return port.Write(p)
}

func (m *Manager) handle() (serial.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReleased {
		return nil, ErrReleased
	}
	if m.port == nil {
		return nil, ErrNotConnected
	}
	return m.port, nil
}

// Disconnect closes the handle after an I/O error or device removal. The
// link becomes eligible for reconnection.
func (m *Manager) Disconnect(cause error) {
	m.mu.Lock()
	if m.state == StateReleased {
		m.mu.Unlock()
		return
	}
	m.closeLocked()
	m.state = StateDisconnected
	if cause != nil {
		m.lastErr = cause.Error()
	}
	m.mu.Unlock()

	if cause != nil {
		m.log.Append(eventlog.Systemf("serial disconnected: %v", cause))
	}
}

// Release closes the handle and parks the link until Resume. The OS handle
// is fully closed before Release returns, so a second process can open the
// device immediately afterward.
func (m *Manager) Release() {
	m.mu.Lock()
	already := m.state == StateReleased
	m.closeLocked()
	m.state = StateReleased
	m.mu.Unlock()

	if !already {
		m.log.Append(eventlog.System("serial released"))
	}
}

// Resume makes a released link eligible for discovery again. Idempotent.
func (m *Manager) Resume() {
	m.mu.Lock()
	resumed := m.state == StateReleased
	if resumed {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if resumed {
		m.log.Append(eventlog.System("serial resumed"))
	}
}

func (m *Manager) closeLocked() {
	if m.port != nil {
		_ = m.port.Close()
		m.port = nil
	}
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	if m.state != StateReleased {
		m.state = StateDisconnected
	}
	m.lastErr = err.Error()
	m.mu.Unlock()
}
