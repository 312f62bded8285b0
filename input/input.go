// Package input opens the platform's pointer capture and injection
// capabilities and adapts them to the macro.Source, macro.Sink and
// macro.Trigger interfaces.
//
// Linux reads evdev nodes under /dev/input and injects through a uinput
// virtual pointer; the user needs read access to the input devices and
// write access to /dev/uinput. Windows polls the cursor position and
// injects with SendInput. Other platforms are unsupported.
package input

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"Retrace/macro"
)

// ErrUnsupported is returned by Open on platforms without a backend.
var ErrUnsupported = errors.New("input capture is not supported on this platform")

// Hotkeys holds the uppercase letters bound to each trigger.
type Hotkeys struct {
	Record   byte
	Playback byte
	Stop     byte
}

// ParseHotkey validates a single-letter key name.
func ParseHotkey(name string) (byte, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	if len(trimmed) != 1 || trimmed[0] < 'A' || trimmed[0] > 'Z' {
		return 0, fmt.Errorf("hotkey %q must be a single letter A-Z", name)
	}
	return trimmed[0], nil
}

// apply marks on t every trigger bound to letter.
func (h Hotkeys) apply(letter byte, t *macro.Triggers) {
	switch letter {
	case 0:
		return
	case h.Record:
		t.Record = true
	case h.Playback:
		t.Playback = true
	case h.Stop:
		t.Stop = true
	}
}

func (h Hotkeys) letters() []byte {
	return []byte{h.Record, h.Playback, h.Stop}
}

// Options select the devices to open.
type Options struct {
	// MouseDevices and KeyboardDevices are glob patterns; empty selects
	// the platform default.
	MouseDevices    string
	KeyboardDevices string
	// VirtualDeviceName names the injected pointer where the platform
	// shows one.
	VirtualDeviceName string
	Hotkeys           Hotkeys
	Logger            *slog.Logger
}

// Devices bundles the opened adapters.
type Devices struct {
	Source  macro.Source
	Sink    macro.Sink
	Hotkeys macro.Trigger
	// GlobalHotkeys reports whether Hotkeys sees key presses outside the
	// application window.
	GlobalHotkeys bool

	closers []io.Closer
}

// Open opens the platform devices described by opts.
func Open(opts Options) (*Devices, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.VirtualDeviceName == "" {
		opts.VirtualDeviceName = "Retrace virtual pointer"
	}
	return openDevices(opts)
}

// Close releases every device.
func (d *Devices) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
