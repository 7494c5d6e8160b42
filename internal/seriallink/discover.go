// Package seriallink owns the USB serial device: discovery, the link
// lifecycle state machine, and exclusive access to the OS handle.
package seriallink

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"go.bug.st/serial/enumerator"
)

var (
	ErrNoDeviceFound   = errors.New("seriallink: no matching device found")
	ErrAmbiguousDevice = errors.New("seriallink: multiple matching devices found")
)

// DevicePreset describes how to recognize the target controller among
// enumerated serial ports. VID/PID values are upper-case hex as reported
// by the USB descriptor.
type DevicePreset struct {
	Name     string
	VID      string
	PIDs     []string
	// Per-platform port-name fragment used when USB metadata is absent.
	NameHintWindows string
	NameHintDarwin  string
	NameHintLinux   string
}

// TeensyPreset matches the stock controller hardware (PJRC Teensy family).
func TeensyPreset() DevicePreset {
	return DevicePreset{
		Name:            "teensy",
		VID:             "16C0",
		PIDs:            []string{"0483", "0486", "0487", "0489"},
		NameHintWindows: "COM",
		NameHintDarwin:  "usbmodem",
		NameHintLinux:   "ttyACM",
	}
}

func (p DevicePreset) nameHint() string {
	switch runtime.GOOS {
	case "windows":
		return p.NameHintWindows
	case "darwin":
		return p.NameHintDarwin
	case "linux":
		return p.NameHintLinux
	default:
		return ""
	}
}

// PortInfo is one enumerated serial port, decoupled from the enumerator
// types so matching stays testable without hardware.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Product string
}

// MatchOutcome reports the zero-or-one selected port plus ambiguity.
type MatchOutcome struct {
	Port      string
	Matches   int
	Ambiguous bool
}

// MatchPreset selects the port matching the preset: USB VID/PID first,
// name-hint fallback for ports without USB metadata. Pure over its inputs.
func MatchPreset(ports []PortInfo, preset DevicePreset) MatchOutcome {
	hint := preset.nameHint()
	var matched []string
	for _, port := range ports {
		if matchesPreset(port, preset, hint) {
			matched = append(matched, port.Name)
		}
	}

	out := MatchOutcome{Matches: len(matched)}
	switch len(matched) {
	case 0:
	case 1:
		out.Port = matched[0]
	default:
		out.Ambiguous = true
	}
	return out
}

func matchesPreset(port PortInfo, preset DevicePreset, hint string) bool {
	if port.IsUSB {
		if !strings.EqualFold(port.VID, preset.VID) {
			return false
		}
		for _, pid := range preset.PIDs {
			if strings.EqualFold(port.PID, pid) {
				return true
			}
		}
		return false
	}
	return hint != "" && strings.Contains(port.Name, hint)
}

// EnumeratePorts lists system serial ports with USB metadata.
func EnumeratePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("seriallink: enumerate ports: %w", err)
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Product: d.Product,
		})
	}
	return out, nil
}

// Discover enumerates ports and applies the preset match.
func Discover(preset DevicePreset) (string, error) {
	ports, err := EnumeratePorts()
	if err != nil {
		return "", err
	}
	outcome := MatchPreset(ports, preset)
	if outcome.Ambiguous {
		return "", fmt.Errorf("%w: %d candidates", ErrAmbiguousDevice, outcome.Matches)
	}
	if outcome.Port == "" {
		return "", ErrNoDeviceFound
	}
	return outcome.Port, nil
}
