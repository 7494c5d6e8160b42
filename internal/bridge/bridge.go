// Package bridge runs the forwarding pipeline between the serial link and
// the host endpoint: one pump per direction, a reconnect runner, and the
// pause/resume/shutdown run-state honored by the control plane.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencontrol/ocbridge/internal/codec"
	"github.com/opencontrol/ocbridge/internal/eventlog"
	"github.com/opencontrol/ocbridge/internal/hostlink"
	"github.com/opencontrol/ocbridge/internal/observability"
	"github.com/opencontrol/ocbridge/internal/seriallink"
)

// State is the pipeline run state.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StatePaused:
		return "Paused"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Running"
	}
}

const (
	dirToHost   = "to_host"
	dirToDevice = "to_device"

	idleWait = 50 * time.Millisecond
)

// Config tunes the pipeline runner.
type Config struct {
	// RetryInterval spaces discovery attempts while the device is absent.
	RetryInterval time.Duration
}

// Bridge owns the two directional pumps. Each direction is a single
// goroutine, so ordering within a direction is preserved by construction.
type Bridge struct {
	cfg    Config
	link   *seriallink.Manager
	host   hostlink.Endpoint
	events *eventlog.Log
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	started time.Time

	framesToHost   atomic.Uint64
	framesToDevice atomic.Uint64
	bytesToHost    atomic.Uint64
	bytesToDevice  atomic.Uint64
	dropped        atomic.Uint64

	everConnected atomic.Bool
}

func New(cfg Config, link *seriallink.Manager, host hostlink.Endpoint, events *eventlog.Log, logger zerolog.Logger) *Bridge {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	return &Bridge{
		cfg:     cfg,
		link:    link,
		host:    host,
		events:  events,
		logger:  logger,
		state:   StateRunning,
		started: time.Now(),
	}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Pause quiesces forwarding and releases the serial handle. The handle is
// closed before Pause returns, so an external tool may open the device
// immediately afterward. Idempotent.
func (b *Bridge) Pause() {
	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return
	}
	b.state = StatePaused
	b.mu.Unlock()

	b.link.Release()
	b.events.Append(eventlog.System("bridge paused"))
	b.logger.Info().Msg("bridge paused, serial handle released")
}

// Resume re-arms discovery after a pause. Idempotent.
func (b *Bridge) Resume() {
	b.mu.Lock()
	if b.state != StatePaused {
		b.mu.Unlock()
		return
	}
	b.state = StateRunning
	b.mu.Unlock()

	b.link.Resume()
	b.events.Append(eventlog.System("bridge resumed"))
	b.logger.Info().Msg("bridge resumed")
}

// Run drives the pumps and the reconnect runner until ctx is cancelled,
// then tears the pipeline down.
func (b *Bridge) Run(ctx context.Context) error {
	b.events.Append(eventlog.System("bridge started"))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		b.reconnectLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.serialPump(ctx)
	}()
	go func() {
		defer wg.Done()
		b.hostPump()
	}()

	<-ctx.Done()

	b.mu.Lock()
	b.state = StateShuttingDown
	b.mu.Unlock()

	// Closing the endpoint unblocks the host pump after it finishes the
	// payload in flight; the serial pump observes ctx directly.
	_ = b.host.Close()
	wg.Wait()

	b.link.Disconnect(nil)
	b.events.Append(eventlog.System("bridge stopped"))
	b.logger.Info().Msg("bridge stopped")
	return nil
}

func (b *Bridge) reconnectLoop(ctx context.Context) {
	for {
		if b.State() == StateRunning && b.link.State() == seriallink.StateDisconnected {
			if err := b.link.Connect(); err != nil {
				b.logger.Debug().Err(err).Msg("serial connect attempt failed")
			} else {
				if b.everConnected.Swap(true) {
					observability.RecordReconnect()
				}
				b.logger.Info().Str("port", b.link.PortName()).Msg("serial link up")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.RetryInterval):
		}
	}
}

// serialPump reads the mixed serial stream and forwards decoded protocol
// frames to the host. Firmware debug lines are captured into the event log.
func (b *Bridge) serialPump(ctx context.Context) {
	var decoder codec.StreamDecoder
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		if b.State() != StateRunning {
			decoder.Reset()
			sleepCtx(ctx, idleWait)
			continue
		}
		n, err := b.link.Read(buf)
		if err != nil {
			if errors.Is(err, seriallink.ErrReleased) || errors.Is(err, seriallink.ErrNotConnected) {
				sleepCtx(ctx, idleWait)
				continue
			}
			b.link.Disconnect(err)
			decoder.Reset()
			continue
		}
		if n == 0 {
			// Idle read timeout; nothing arrived.
			continue
		}
		decoder.Feed(buf[:n], b.handleFrame)
	}
}

func (b *Bridge) handleFrame(f codec.Frame, err error) {
	if err != nil {
		b.dropped.Add(1)
		observability.RecordDrop(dirToHost, "malformed")
		b.events.Append(eventlog.Systemf("malformed frame dropped: %v", err))
		return
	}
	switch f.Kind {
	case codec.KindDebug:
		b.events.Append(eventlog.Debug(debugLevel(f.Level), f.Text))
	default:
		if err := b.host.Send(f.Payload); err != nil {
			b.dropped.Add(1)
			reason := "send_failed"
			if errors.Is(err, hostlink.ErrNoPeer) {
				reason = "no_peer"
			}
			observability.RecordDrop(dirToHost, reason)
			return
		}
		b.framesToHost.Add(1)
		b.bytesToHost.Add(uint64(len(f.Payload)))
		observability.RecordRelay(dirToHost, len(f.Payload))
		b.events.Append(eventlog.Protocol(eventlog.DirectionIn, "frame", len(f.Payload)))
	}
}

// hostPump forwards host payloads to the device, COBS-encoded. While the
// pipeline is paused arrivals are discarded, never queued.
func (b *Bridge) hostPump() {
	for {
		payload, err := b.host.Recv()
		if err != nil {
			return
		}
		b.forwardToDevice(payload)
	}
}

func (b *Bridge) forwardToDevice(payload []byte) {
	if b.State() != StateRunning {
		b.dropped.Add(1)
		observability.RecordDrop(dirToDevice, "paused")
		return
	}
	encoded, err := codec.Encode(payload)
	if err != nil {
		b.dropped.Add(1)
		observability.RecordDrop(dirToDevice, "oversize")
		b.events.Append(eventlog.Systemf("outbound frame rejected: %v", err))
		return
	}
	if _, err := b.link.Write(encoded); err != nil {
		b.dropped.Add(1)
		observability.RecordDrop(dirToDevice, "link_down")
		if !errors.Is(err, seriallink.ErrReleased) && !errors.Is(err, seriallink.ErrNotConnected) {
			b.link.Disconnect(err)
		}
		return
	}
	b.framesToDevice.Add(1)
	b.bytesToDevice.Add(uint64(len(payload)))
	observability.RecordRelay(dirToDevice, len(payload))
	b.events.Append(eventlog.Protocol(eventlog.DirectionOut, "frame", len(payload)))
}

func debugLevel(l codec.DebugLevel) eventlog.Level {
	switch l {
	case codec.LevelDebug:
		return eventlog.LevelDebug
	case codec.LevelInfo:
		return eventlog.LevelInfo
	case codec.LevelWarn:
		return eventlog.LevelWarn
	case codec.LevelError:
		return eventlog.LevelError
	default:
		return eventlog.LevelNone
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
