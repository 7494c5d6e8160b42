package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadKeepsDefaultsForAbsentKeys(t *testing.T) {
	path := writeConfig(t, `host_port = 9100`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HostPort != 9100 {
		t.Fatalf("host_port not applied: %d", cfg.HostPort)
	}
	def := Default()
	if cfg.BaudRate != def.BaudRate || cfg.ControlPort != def.ControlPort {
		t.Fatalf("absent keys must keep defaults: %+v", cfg)
	}
	if cfg.RingCapacity != 200 {
		t.Fatalf("default ring capacity = %d", cfg.RingCapacity)
	}
	if cfg.FileFlushInterval != 250*time.Millisecond {
		t.Fatalf("default flush interval = %v", cfg.FileFlushInterval)
	}
}

func TestLoadOverlaysAllKeys(t *testing.T) {
	path := writeConfig(t, `
serial_port = "/dev/ttyACM3"
baud_rate = 115200
host_transport = "stream"
host_port = 9005
control_port = 8001
log_broadcast_port = 9300
ring_capacity = 500
file_enabled = true
file_path = "/tmp/oc/bridge.log"
file_max_bytes = 2048
file_max_files = 5
file_flush_interval_ms = 100
file_categories = ["protocol", "system"]
debug_http_addr = "127.0.0.1:6060"

[device_preset]
vid = "1A2B"
pids = ["0001", "0002"]
name_hint_linux = "ttyUSB"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SerialPort != "/dev/ttyACM3" || cfg.BaudRate != 115200 {
		t.Fatalf("serial settings: %+v", cfg)
	}
	if cfg.HostTransport != "stream" || cfg.HostPort != 9005 || cfg.ControlPort != 8001 {
		t.Fatalf("endpoint settings: %+v", cfg)
	}
	if cfg.LogBroadcastPort != 9300 || cfg.RingCapacity != 500 {
		t.Fatalf("log settings: %+v", cfg)
	}
	if !cfg.FileEnabled || cfg.FileMaxBytes != 2048 || cfg.FileMaxFiles != 5 {
		t.Fatalf("file settings: %+v", cfg)
	}
	if cfg.FileFlushInterval != 100*time.Millisecond {
		t.Fatalf("flush interval = %v", cfg.FileFlushInterval)
	}
	if !cfg.FileCategories.Protocol || cfg.FileCategories.Debug || !cfg.FileCategories.System {
		t.Fatalf("categories = %+v", cfg.FileCategories)
	}
	if cfg.DebugHTTPAddr != "127.0.0.1:6060" {
		t.Fatalf("debug addr = %q", cfg.DebugHTTPAddr)
	}
	if cfg.Preset.VID != "1A2B" || len(cfg.Preset.PIDs) != 2 || cfg.Preset.NameHintLinux != "ttyUSB" {
		t.Fatalf("preset = %+v", cfg.Preset)
	}
}

func TestLoadAcceptsRingBufferCapacityKey(t *testing.T) {
	path := writeConfig(t, `ring_buffer_capacity = 300`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RingCapacity != 300 {
		t.Fatalf("ring capacity = %d, want 300", cfg.RingCapacity)
	}

	// The canonical key wins when both spellings appear.
	path = writeConfig(t, "ring_capacity = 100\nring_buffer_capacity = 400\n")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RingCapacity != 400 {
		t.Fatalf("ring capacity = %d, want 400", cfg.RingCapacity)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `host_transport = "pigeon"`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "host_transport") {
		t.Fatalf("expected transport validation error, got %v", err)
	}
}

func TestLoadRejectsUnknownCategory(t *testing.T) {
	path := writeConfig(t, `file_categories = ["protocol", "verbose"]`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "verbose") {
		t.Fatalf("expected category validation error, got %v", err)
	}
}

func TestLoadRejectsBadPorts(t *testing.T) {
	path := writeConfig(t, `control_port = 70000`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "control_port") {
		t.Fatalf("expected port validation error, got %v", err)
	}
}

func TestTemplateRoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template must load cleanly: %v", err)
	}
	if cfg.HostTransport != "udp" || cfg.ControlPort != 7999 {
		t.Fatalf("unexpected template values: %+v", cfg)
	}

	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("existing file must not be overwritten without force")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}
