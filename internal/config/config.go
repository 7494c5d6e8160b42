// Package config loads the ocbridged configuration: TOML keys overlaid
// onto built-in defaults, so a partial file only overrides what it names.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/opencontrol/ocbridge/internal/control"
	"github.com/opencontrol/ocbridge/internal/eventlog"
	"github.com/opencontrol/ocbridge/internal/seriallink"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	SerialPort string
	BaudRate   int
	Preset     seriallink.DevicePreset

	HostTransport string // "udp" or "stream"
	HostPort      int
	ControlPort   int

	LogBroadcastPort int // 0 disables the UDP broadcast sink
	RingCapacity     int

	FileEnabled       bool
	FilePath          string
	FileMaxBytes      int64
	FileMaxFiles      int
	FileFlushInterval time.Duration
	FileCategories    eventlog.Filter

	DebugHTTPAddr string // "" disables the debug HTTP listener
}

func Default() Config {
	return Config{
		BaudRate:          2_000_000,
		Preset:            seriallink.TeensyPreset(),
		HostTransport:     "udp",
		HostPort:          9000,
		ControlPort:       control.DefaultPort,
		RingCapacity:      200,
		FilePath:          "bridge.log",
		FileMaxBytes:      1 << 20,
		FileMaxFiles:      3,
		FileFlushInterval: 250 * time.Millisecond,
		FileCategories:    eventlog.Filter{Protocol: true, Debug: true, System: true},
	}
}

// config.toml key mapping.
type fileConfig struct {
	SerialPort          string       `toml:"serial_port"`
	BaudRate            int          `toml:"baud_rate"`
	HostTransport       string       `toml:"host_transport"`
	HostPort            int          `toml:"host_port"`
	ControlPort         int          `toml:"control_port"`
	LogBroadcastPort    int          `toml:"log_broadcast_port"`
	RingCapacity        int          `toml:"ring_capacity"`
	RingBufferCapacity  int          `toml:"ring_buffer_capacity"`
	FileEnabled         bool         `toml:"file_enabled"`
	FilePath            string       `toml:"file_path"`
	FileMaxBytes        int64        `toml:"file_max_bytes"`
	FileMaxFiles        int          `toml:"file_max_files"`
	FileFlushIntervalMS int          `toml:"file_flush_interval_ms"`
	FileCategories      []string     `toml:"file_categories"`
	DebugHTTPAddr       string       `toml:"debug_http_addr"`
	DevicePreset        presetConfig `toml:"device_preset"`
}

type presetConfig struct {
	VID             string   `toml:"vid"`
	PIDs            []string `toml:"pids"`
	NameHintWindows string   `toml:"name_hint_windows"`
	NameHintDarwin  string   `toml:"name_hint_darwin"`
	NameHintLinux   string   `toml:"name_hint_linux"`
}

// Load overlays config file keys onto defaults; keys absent from the file
// keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("serial_port") {
		cfg.SerialPort = strings.TrimSpace(raw.SerialPort)
	}
	if meta.IsDefined("baud_rate") {
		cfg.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("host_transport") {
		cfg.HostTransport = strings.ToLower(strings.TrimSpace(raw.HostTransport))
	}
	if meta.IsDefined("host_port") {
		cfg.HostPort = raw.HostPort
	}
	if meta.IsDefined("control_port") {
		cfg.ControlPort = raw.ControlPort
	}
	if meta.IsDefined("log_broadcast_port") {
		cfg.LogBroadcastPort = raw.LogBroadcastPort
	}
	// ring_buffer_capacity is the canonical key; ring_capacity is accepted
	// as a short form.
	if meta.IsDefined("ring_capacity") {
		cfg.RingCapacity = raw.RingCapacity
	}
	if meta.IsDefined("ring_buffer_capacity") {
		cfg.RingCapacity = raw.RingBufferCapacity
	}
	if meta.IsDefined("file_enabled") {
		cfg.FileEnabled = raw.FileEnabled
	}
	if meta.IsDefined("file_path") {
		cfg.FilePath = strings.TrimSpace(raw.FilePath)
	}
	if meta.IsDefined("file_max_bytes") {
		cfg.FileMaxBytes = raw.FileMaxBytes
	}
	if meta.IsDefined("file_max_files") {
		cfg.FileMaxFiles = raw.FileMaxFiles
	}
	if meta.IsDefined("file_flush_interval_ms") {
		cfg.FileFlushInterval = time.Duration(raw.FileFlushIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("file_categories") {
		filter, err := parseCategories(raw.FileCategories)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg.FileCategories = filter
	}
	if meta.IsDefined("debug_http_addr") {
		cfg.DebugHTTPAddr = strings.TrimSpace(raw.DebugHTTPAddr)
	}
	if meta.IsDefined("device_preset", "vid") {
		cfg.Preset = seriallink.DevicePreset{
			Name:            "custom",
			VID:             strings.TrimSpace(raw.DevicePreset.VID),
			PIDs:            raw.DevicePreset.PIDs,
			NameHintWindows: raw.DevicePreset.NameHintWindows,
			NameHintDarwin:  raw.DevicePreset.NameHintDarwin,
			NameHintLinux:   raw.DevicePreset.NameHintLinux,
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HostTransport != "udp" && c.HostTransport != "stream" {
		return fmt.Errorf("unsupported host_transport %q (expected udp or stream)", c.HostTransport)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.RingCapacity <= 0 {
		return fmt.Errorf("ring_capacity must be positive, got %d", c.RingCapacity)
	}
	if c.HostPort <= 0 || c.HostPort > 65535 {
		return fmt.Errorf("host_port out of range: %d", c.HostPort)
	}
	if c.ControlPort <= 0 || c.ControlPort > 65535 {
		return fmt.Errorf("control_port out of range: %d", c.ControlPort)
	}
	return nil
}

func parseCategories(names []string) (eventlog.Filter, error) {
	var f eventlog.Filter
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "protocol":
			f.Protocol = true
		case "debug":
			f.Debug = true
		case "system":
			f.System = true
		default:
			return eventlog.Filter{}, fmt.Errorf("unknown file category %q", name)
		}
	}
	return f, nil
}
