package input

import (
	"sync"

	"Retrace/macro"
)

// winuser.h raw input values.
const (
	rimTypeMouse      = 0
	mouseMoveAbsolute = 0x01
)

// rawInputHeader mirrors RAWINPUTHEADER.
type rawInputHeader struct {
	Type   uint32
	Size   uint32
	Device uintptr
	WParam uintptr
}

// rawMouse mirrors RAWMOUSE. The button fields share a ULONG union, which
// puts them at offset 4.
type rawMouse struct {
	Flags            uint16
	_                uint16
	ButtonFlags      uint16
	ButtonData       uint16
	RawButtons       uint32
	LastX            int32
	LastY            int32
	ExtraInformation uint32
}

// rawInput mirrors RAWINPUT for mouse devices.
type rawInput struct {
	Header rawInputHeader
	Mouse  rawMouse
}

// delta returns the relative motion carried by r. Keyboard and HID
// reports and absolute (tablet, remote desktop) positions carry none.
func (r *rawInput) delta() (macro.Movement, bool) {
	if r.Header.Type != rimTypeMouse || r.Mouse.Flags&mouseMoveAbsolute != 0 {
		return macro.Movement{}, false
	}
	return macro.Movement{DX: r.Mouse.LastX, DY: r.Mouse.LastY}, true
}

// motionAccumulator sums deltas pushed by an event thread until the
// recorder drains them. Once failed, every drain reports the error.
type motionAccumulator struct {
	mu  sync.Mutex
	sum macro.Movement
	err error
}

func (a *motionAccumulator) add(m macro.Movement) {
	a.mu.Lock()
	a.sum = a.sum.Add(m)
	a.mu.Unlock()
}

func (a *motionAccumulator) fail(err error) {
	a.mu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.mu.Unlock()
}

func (a *motionAccumulator) drain() ([]macro.Movement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	m := a.sum
	a.sum = macro.Movement{}
	if m.IsZero() {
		return nil, nil
	}
	return []macro.Movement{m}, nil
}
