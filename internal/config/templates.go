package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a commented starter config.toml.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const template = `# ocbridged configuration. Every key is optional; absent keys keep
# their built-in defaults.

# Skip discovery and open this port directly.
# serial_port = "/dev/ttyACM0"
baud_rate = 2000000

# Transport facing the host application: "udp" or "stream".
host_transport = "udp"
host_port = 9000

control_port = 7999

# UDP port for JSON event broadcast; 0 disables it.
log_broadcast_port = 0

ring_buffer_capacity = 200

file_enabled = false
file_path = "bridge.log"
file_max_bytes = 1048576
file_max_files = 3
file_flush_interval_ms = 250
file_categories = ["protocol", "debug", "system"]

# Local HTTP listener for /health, /status, /metrics. Off when empty.
# debug_http_addr = "127.0.0.1:6060"

# Override the built-in Teensy preset.
# [device_preset]
# vid = "16C0"
# pids = ["0483", "0486", "0487", "0489"]
# name_hint_windows = "COM"
# name_hint_darwin = "usbmodem"
# name_hint_linux = "ttyACM"
`
