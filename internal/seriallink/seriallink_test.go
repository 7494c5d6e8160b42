package seriallink

import (
	"testing"

	"github.com/opencontrol/ocbridge/internal/eventlog"
	"github.com/opencontrol/ocbridge/internal/testutil/testlog"
)

func teensyPorts() []PortInfo {
	return []PortInfo{
		{Name: "/dev/ttyS0", IsUSB: false},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "16C0", PID: "0483", Product: "USB Serial"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R"},
	}
}

func TestMatchPresetSingleMatch(t *testing.T) {
	out := MatchPreset(teensyPorts(), TeensyPreset())
	if out.Matches != 1 || out.Ambiguous {
		t.Fatalf("expected single match, got %+v", out)
	}
	if out.Port != "/dev/ttyACM0" {
		t.Fatalf("wrong port selected: %q", out.Port)
	}
}

func TestMatchPresetNoMatch(t *testing.T) {
	ports := []PortInfo{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
	}
	out := MatchPreset(ports, TeensyPreset())
	if out.Matches != 0 || out.Port != "" {
		t.Fatalf("expected no match, got %+v", out)
	}
}

func TestMatchPresetAmbiguous(t *testing.T) {
	ports := append(teensyPorts(), PortInfo{
		Name: "/dev/ttyACM1", IsUSB: true, VID: "16c0", PID: "0486",
	})
	out := MatchPreset(ports, TeensyPreset())
	if !out.Ambiguous || out.Matches != 2 {
		t.Fatalf("expected ambiguity across 2 ports, got %+v", out)
	}
	if out.Port != "" {
		t.Fatalf("ambiguous match must not select a port: %q", out.Port)
	}
}

func TestMatchPresetCaseInsensitiveIDs(t *testing.T) {
	ports := []PortInfo{
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "16c0", PID: "0489"},
	}
	out := MatchPreset(ports, TeensyPreset())
	if out.Port != "/dev/ttyACM0" {
		t.Fatalf("hex case should not matter: %+v", out)
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "Disconnected",
		StateDiscovering:  "Discovering",
		StateConnecting:   "Connecting",
		StateConnected:    "Connected",
		StateReleased:     "Released",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("State(%d) = %q, want %q", s, s.String(), want)
		}
	}
}

func TestManagerReleaseBlocksConnect(t *testing.T) {
	testlog.Start(t)
	m := NewManager(Config{Preset: TeensyPreset()}, eventlog.New(16))

	m.Release()
	if m.State() != StateReleased {
		t.Fatalf("expected Released, got %v", m.State())
	}
	if err := m.Connect(); err != ErrReleased {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
	if _, err := m.Read(make([]byte, 1)); err != ErrReleased {
		t.Fatalf("read while released: %v", err)
	}
	if _, err := m.Write([]byte{1}); err != ErrReleased {
		t.Fatalf("write while released: %v", err)
	}
}

func TestManagerReleaseAndResumeIdempotent(t *testing.T) {
	testlog.Start(t)
	log := eventlog.New(16)
	m := NewManager(Config{Preset: TeensyPreset()}, log)

	m.Release()
	m.Release()
	if n := log.RingLen(); n != 1 {
		t.Fatalf("double release should log once, got %d events", n)
	}

	m.Resume()
	if m.State() != StateDisconnected {
		t.Fatalf("expected Disconnected after resume, got %v", m.State())
	}
	m.Resume()
	if n := log.RingLen(); n != 2 {
		t.Fatalf("double resume should log once, got %d events", n)
	}
}

func TestManagerDisconnectRecordsCause(t *testing.T) {
	testlog.Start(t)
	m := NewManager(Config{Preset: TeensyPreset()}, eventlog.New(16))

	m.Disconnect(ErrNotConnected)
	if m.State() != StateDisconnected {
		t.Fatalf("expected Disconnected, got %v", m.State())
	}
	if m.LastError() == "" {
		t.Fatalf("expected last error to be recorded")
	}

	if _, err := m.Read(make([]byte, 1)); err != ErrNotConnected {
		t.Fatalf("read while disconnected: %v", err)
	}
}

func TestManagerDisconnectWhileReleasedKeepsPark(t *testing.T) {
	testlog.Start(t)
	m := NewManager(Config{Preset: TeensyPreset()}, eventlog.New(16))

	m.Release()
	m.Disconnect(ErrNotConnected)
	if m.State() != StateReleased {
		t.Fatalf("disconnect must not un-park a released link: %v", m.State())
	}
}
