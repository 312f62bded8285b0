package input

import (
	"fmt"
	"path/filepath"
)

const (
	defaultMouseDevices    = "/dev/input/by-id/*-event-mouse"
	defaultKeyboardDevices = "/dev/input/by-id/*-event-kbd"
	uinputPath             = "/dev/uinput"
)

func openDevices(opts Options) (*Devices, error) {
	mousePattern := opts.MouseDevices
	if mousePattern == "" {
		mousePattern = defaultMouseDevices
	}
	keyboardPattern := opts.KeyboardDevices
	if keyboardPattern == "" {
		keyboardPattern = defaultKeyboardDevices
	}

	d := &Devices{}
	mice, err := openMatching(mousePattern)
	if err != nil {
		return nil, fmt.Errorf("pointer devices: %w", err)
	}
	source := newMouseSource(mice)
	d.closers = append(d.closers, source)
	d.Source = source

	keyboards, err := openMatching(keyboardPattern)
	if err != nil {
		// Hotkeys are optional; the window buttons still work.
		opts.Logger.Warn("global hotkeys disabled", "error", err)
	}
	trigger := &keyboardTrigger{devices: keyboards, hotkeys: opts.Hotkeys, logger: opts.Logger}
	d.closers = append(d.closers, trigger)
	d.Hotkeys = trigger
	d.GlobalHotkeys = len(keyboards) > 0

	sink, err := openUinput(uinputPath, opts.VirtualDeviceName)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.closers = append(d.closers, sink)
	d.Sink = sink

	opts.Logger.Info("input devices opened",
		"pointers", len(mice),
		"keyboards", len(keyboards),
		"virtual", opts.VirtualDeviceName)
	return d, nil
}

func openMatching(pattern string) ([]*evdevDevice, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no device matches %q", pattern)
	}

	devices := make([]*evdevDevice, 0, len(paths))
	for _, p := range paths {
		dev, err := openEvdev(p)
		if err != nil {
			for _, opened := range devices {
				_ = opened.Close()
			}
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}
