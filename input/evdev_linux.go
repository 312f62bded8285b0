package input

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"Retrace/macro"
)

// linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02

	synReport  = 0
	synDropped = 3

	relX = 0x00
	relY = 0x01

	keyPressed = 1
)

// inputEvent mirrors struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const eventSize = int(unsafe.Sizeof(inputEvent{}))

func decodeEvents(buf []byte, fn func(inputEvent)) {
	for off := 0; off+eventSize <= len(buf); off += eventSize {
		fn(*(*inputEvent)(unsafe.Pointer(&buf[off])))
	}
}

// letterKeys maps evdev key codes to the letters they type on a US layout.
var letterKeys = map[uint16]byte{
	30: 'A', 48: 'B', 46: 'C', 32: 'D', 18: 'E', 33: 'F', 34: 'G',
	35: 'H', 23: 'I', 36: 'J', 37: 'K', 38: 'L', 50: 'M', 49: 'N',
	24: 'O', 25: 'P', 16: 'Q', 19: 'R', 31: 'S', 20: 'T', 22: 'U',
	47: 'V', 17: 'W', 45: 'X', 21: 'Y', 44: 'Z',
}

// evdevDevice is one non-blocking /dev/input/event* node.
type evdevDevice struct {
	path string
	fd   int
	buf  []byte
}

func openEvdev(path string) (*evdevDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &evdevDevice{path: path, fd: fd, buf: make([]byte, 64*eventSize)}, nil
}

// readPending hands every queued event to fn and returns once the kernel
// queue is empty.
func (d *evdevDevice) readPending(fn func(inputEvent)) error {
	for {
		n, err := unix.Read(d.fd, d.buf)
		switch {
		case errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return fmt.Errorf("read %s: %w", d.path, err)
		case n == 0:
			return fmt.Errorf("read %s: %w", d.path, io.EOF)
		}
		decodeEvents(d.buf[:n], fn)
	}
}

func (d *evdevDevice) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}

// relFrame folds relative axis events into one Movement per SYN_REPORT.
type relFrame struct {
	pending  macro.Movement
	dropping bool
}

func (f *relFrame) feed(ev inputEvent, out []macro.Movement) []macro.Movement {
	switch ev.Type {
	case evRel:
		if f.dropping {
			return out
		}
		switch ev.Code {
		case relX:
			f.pending.DX += ev.Value
		case relY:
			f.pending.DY += ev.Value
		}
	case evSyn:
		switch ev.Code {
		case synDropped:
			// The kernel lost events; discard until the next full report.
			f.pending = macro.Movement{}
			f.dropping = true
		case synReport:
			if !f.dropping && !f.pending.IsZero() {
				out = append(out, f.pending)
			}
			f.pending = macro.Movement{}
			f.dropping = false
		}
	}
	return out
}

// mouseSource reads relative motion from one or more pointer devices.
type mouseSource struct {
	mu      sync.Mutex
	devices []*evdevDevice
	frames  []relFrame
}

func newMouseSource(devices []*evdevDevice) *mouseSource {
	return &mouseSource{devices: devices, frames: make([]relFrame, len(devices))}
}

func (m *mouseSource) Drain() ([]macro.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []macro.Movement
	for i, dev := range m.devices {
		frame := &m.frames[i]
		err := dev.readPending(func(ev inputEvent) {
			out = frame.feed(ev, out)
		})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (m *mouseSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, dev := range m.devices {
		errs = append(errs, dev.Close())
	}
	m.devices = nil
	m.frames = nil
	return errors.Join(errs...)
}

// keyboardTrigger reports hotkey presses seen since the previous poll.
type keyboardTrigger struct {
	mu      sync.Mutex
	devices []*evdevDevice
	hotkeys Hotkeys
	logger  *slog.Logger
}

func (k *keyboardTrigger) feed(ev inputEvent, t *macro.Triggers) {
	if ev.Type != evKey || ev.Value != keyPressed {
		return
	}
	if letter, ok := letterKeys[ev.Code]; ok {
		k.hotkeys.apply(letter, t)
	}
}

func (k *keyboardTrigger) Poll() macro.Triggers {
	k.mu.Lock()
	defer k.mu.Unlock()

	var t macro.Triggers
	kept := k.devices[:0]
	for _, dev := range k.devices {
		err := dev.readPending(func(ev inputEvent) { k.feed(ev, &t) })
		if err != nil {
			// Unplugged keyboards must not take the hotkeys down with them.
			k.logger.Warn("keyboard dropped", "device", dev.path, "error", err)
			_ = dev.Close()
			continue
		}
		kept = append(kept, dev)
	}
	k.devices = kept
	return t
}

func (k *keyboardTrigger) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	for _, dev := range k.devices {
		errs = append(errs, dev.Close())
	}
	k.devices = nil
	return errors.Join(errs...)
}
