package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencontrol/ocbridge/internal/codec"
	"github.com/opencontrol/ocbridge/internal/eventlog"
	"github.com/opencontrol/ocbridge/internal/observability"
	"github.com/opencontrol/ocbridge/internal/seriallink"
	"github.com/opencontrol/ocbridge/internal/testutil/testlog"
)

type fakeEndpoint struct {
	mu     sync.Mutex
	sent   [][]byte
	recvCh chan []byte
	closed bool
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{recvCh: make(chan []byte, 16)}
}

func (f *fakeEndpoint) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := make([]byte, len(payload))
	copy(p, payload)
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeEndpoint) Recv() ([]byte, error) {
	payload, ok := <-f.recvCh
	if !ok {
		return nil, errors.New("endpoint closed")
	}
	return payload, nil
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.recvCh)
	}
	return nil
}

func (f *fakeEndpoint) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestBridge(t *testing.T) (*Bridge, *fakeEndpoint, *eventlog.Log) {
	t.Helper()
	testlog.Start(t)
	logger := zerolog.Nop()
	events := eventlog.New(64)
	link := seriallink.NewManager(seriallink.Config{Preset: seriallink.TeensyPreset()}, events)
	host := newFakeEndpoint()
	b := New(Config{RetryInterval: 10 * time.Millisecond}, link, host, events, logger)
	return b, host, events
}

func TestPauseReleasesSerialHandle(t *testing.T) {
	b, _, _ := newTestBridge(t)

	b.Pause()
	if b.State() != StatePaused {
		t.Fatalf("expected Paused, got %v", b.State())
	}
	if !b.LinkReleased() {
		t.Fatalf("serial handle must be released by the time Pause returns")
	}

	b.Resume()
	if b.State() != StateRunning {
		t.Fatalf("expected Running after resume, got %v", b.State())
	}
	if b.LinkReleased() {
		t.Fatalf("link should leave Released on resume")
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	b, _, events := newTestBridge(t)

	b.Pause()
	before := events.RingLen()
	b.Pause()
	if events.RingLen() != before {
		t.Fatalf("second pause must be a no-op")
	}

	b.Resume()
	before = events.RingLen()
	b.Resume()
	if events.RingLen() != before {
		t.Fatalf("second resume must be a no-op")
	}
}

func TestProtocolFramesForwardedInOrder(t *testing.T) {
	b, host, _ := newTestBridge(t)

	want := []string{"first", "second", "third"}
	for _, m := range want {
		b.handleFrame(codec.Frame{Kind: codec.KindMessage, Payload: []byte(m)}, nil)
	}

	got := host.sentFrames()
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got))
	}
	for i, m := range want {
		if string(got[i]) != m {
			t.Fatalf("frame[%d] = %q, want %q", i, got[i], m)
		}
	}
	if s := b.Status(); s.ToHost != 3 || s.BytesHost != uint64(len("firstsecondthird")) {
		t.Fatalf("stats mismatch: %+v", s)
	}
}

func TestMalformedFrameDroppedNotForwarded(t *testing.T) {
	b, host, _ := newTestBridge(t)

	b.handleFrame(codec.Frame{}, codec.ErrInvalidEncoding)
	b.handleFrame(codec.Frame{Kind: codec.KindMessage, Payload: []byte("ok")}, nil)

	got := host.sentFrames()
	if len(got) != 1 || string(got[0]) != "ok" {
		t.Fatalf("only the valid frame should pass: %q", got)
	}
	if s := b.Status(); s.Dropped != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", s.Dropped)
	}
}

func TestFirmwareDebugLinesGoToEventLog(t *testing.T) {
	b, host, events := newTestBridge(t)

	b.handleFrame(codec.Frame{Kind: codec.KindDebug, Level: codec.LevelWarn, Text: "low voltage"}, nil)

	if len(host.sentFrames()) != 0 {
		t.Fatalf("debug lines must not be forwarded to the host")
	}
	snap := events.Snapshot()
	last := snap[len(snap)-1]
	if last.Category != eventlog.CategoryDebug || last.Level != eventlog.LevelWarn {
		t.Fatalf("unexpected event: %+v", last)
	}
	if last.Message != "low voltage" {
		t.Fatalf("message = %q", last.Message)
	}
}

func TestPausedDiscardsHostPayloads(t *testing.T) {
	b, _, _ := newTestBridge(t)

	b.Pause()
	b.forwardToDevice([]byte("while paused"))

	s := b.Status()
	if s.Dropped != 1 {
		t.Fatalf("paused arrival should be discarded, dropped=%d", s.Dropped)
	}
	if s.ToDevice != 0 {
		t.Fatalf("nothing should be queued while paused")
	}
	if !b.LinkReleased() {
		t.Fatalf("discard must not touch the released handle")
	}
}

func TestOversizeHostPayloadRejected(t *testing.T) {
	b, _, _ := newTestBridge(t)

	b.forwardToDevice(make([]byte, codec.MaxFrameSize))

	if s := b.Status(); s.Dropped != 1 || s.ToDevice != 0 {
		t.Fatalf("oversize payload should be dropped: %+v", s)
	}
}

func TestDisconnectedLinkDropsOutbound(t *testing.T) {
	b, _, _ := newTestBridge(t)

	b.forwardToDevice([]byte("no device"))

	if s := b.Status(); s.Dropped != 1 {
		t.Fatalf("expected outbound drop with link down: %+v", s)
	}
	if b.link.State() != seriallink.StateDisconnected {
		t.Fatalf("link state should stay Disconnected: %v", b.link.State())
	}
}

func TestStatusSnapshotFields(t *testing.T) {
	b, _, _ := newTestBridge(t)

	s := b.Status()
	if s.State != "Running" || s.Link != "Disconnected" {
		t.Fatalf("unexpected snapshot: %+v", s)
	}

	b.Pause()
	s = b.Status()
	if s.State != "Paused" || s.Link != "Released" {
		t.Fatalf("pause not reflected: %+v", s)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	observability.RegisterMetrics()
	b, host, _ := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	host.recvCh <- []byte("in flight")
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
	if b.State() != StateShuttingDown {
		t.Fatalf("expected ShuttingDown, got %v", b.State())
	}
}
