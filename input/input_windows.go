package input

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"Retrace/macro"
)

var (
	user32                      = windows.NewLazySystemDLL("user32.dll")
	procSendInput               = user32.NewProc("SendInput")
	procGetAsyncKeyState        = user32.NewProc("GetAsyncKeyState")
	procCreateWindowExW         = user32.NewProc("CreateWindowExW")
	procDestroyWindow           = user32.NewProc("DestroyWindow")
	procRegisterRawInputDevices = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData         = user32.NewProc("GetRawInputData")
	procGetMessageW             = user32.NewProc("GetMessageW")
	procDispatchMessageW        = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW      = user32.NewProc("PostThreadMessageW")
)

const (
	inputMouse      = 0
	mouseeventfMove = 0x0001

	wmQuit  = 0x0012
	wmInput = 0x00FF

	ridInput        = 0x10000003
	ridevRemove     = 0x00000001
	ridevInputSink  = 0x00000100
	hidUsagePageGen = 0x01
	hidUsageMouse   = 0x02
)

// hwndMessage is HWND_MESSAGE, the parent of message-only windows.
const hwndMessage = ^uintptr(2)

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd     uintptr
	Message  uint32
	WParam   uintptr
	LParam   uintptr
	Time     uint32
	Pt       point
	LPrivate uint32
}

// rawInputDevice mirrors RAWINPUTDEVICE.
type rawInputDevice struct {
	UsagePage uint16
	Usage     uint16
	Flags     uint32
	Target    uintptr
}

type mouseInput struct {
	Dx, Dy    int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// sendInput mirrors the INPUT structure for the mouse variant.
type sendInput struct {
	Type uint32
	Mi   mouseInput
}

func openDevices(opts Options) (*Devices, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("load user32: %w", err)
	}
	src, err := openRawInputSource()
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("input devices opened", "backend", "win32", "source", "raw input")
	return &Devices{
		Source:  src,
		Sink:    cursorSink{},
		Hotkeys: asyncKeyTrigger{hotkeys: opts.Hotkeys},

		GlobalHotkeys: true,
		closers:       []io.Closer{src},
	}, nil
}

// rawInputSource sums WM_INPUT mouse deltas received by a message-only
// window. Raw counts are unaccelerated and keep flowing when the cursor
// is pinned at a screen edge.
//
// Windows delivers window messages to the thread that created the window,
// so the window lives on a goroutine locked to its OS thread for its whole
// life.
type rawInputSource struct {
	acc      motionAccumulator
	threadID uint32
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func openRawInputSource() (*rawInputSource, error) {
	s := &rawInputSource{done: make(chan struct{})}
	ready := make(chan error, 1)
	go s.pump(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return s, nil
}

func (s *rawInputSource) pump(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	class, err := windows.UTF16PtrFromString("Static")
	if err != nil {
		ready <- err
		return
	}
	hwnd, _, err := procCreateWindowExW.Call(0, uintptr(unsafe.Pointer(class)), 0, 0,
		0, 0, 0, 0, hwndMessage, 0, 0, 0)
	if hwnd == 0 {
		ready <- fmt.Errorf("CreateWindowExW: %w", err)
		return
	}
	defer procDestroyWindow.Call(hwnd)

	dev := rawInputDevice{UsagePage: hidUsagePageGen, Usage: hidUsageMouse, Flags: ridevInputSink, Target: hwnd}
	if r, _, err := procRegisterRawInputDevices.Call(uintptr(unsafe.Pointer(&dev)), 1, unsafe.Sizeof(dev)); r == 0 {
		ready <- fmt.Errorf("RegisterRawInputDevices: %w", err)
		return
	}
	defer func() {
		// RIDEV_REMOVE requires a null target.
		dev := rawInputDevice{UsagePage: hidUsagePageGen, Usage: hidUsageMouse, Flags: ridevRemove}
		procRegisterRawInputDevices.Call(uintptr(unsafe.Pointer(&dev)), 1, unsafe.Sizeof(dev))
	}()

	s.threadID = windows.GetCurrentThreadId()
	ready <- nil

	var m msg
	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case 0:
			return
		case -1:
			s.acc.fail(fmt.Errorf("GetMessageW: %w", err))
			return
		}
		if m.Message == wmInput {
			s.read(m.LParam)
		}
		// The window procedure releases the raw input buffer.
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (s *rawInputSource) read(handle uintptr) {
	var raw rawInput
	size := uint32(unsafe.Sizeof(raw))
	r, _, _ := procGetRawInputData.Call(handle, ridInput, uintptr(unsafe.Pointer(&raw)),
		uintptr(unsafe.Pointer(&size)), unsafe.Sizeof(raw.Header))
	if n := uint32(r); n == 0 || n == ^uint32(0) {
		return
	}
	if m, ok := raw.delta(); ok {
		s.acc.add(m)
	}
}

func (s *rawInputSource) Drain() ([]macro.Movement, error) {
	return s.acc.drain()
}

// Close stops the message loop and waits for the window to go away.
func (s *rawInputSource) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.done:
			return
		default:
		}
		if r, _, err := procPostThreadMessageW.Call(uintptr(s.threadID), wmQuit, 0, 0); r == 0 {
			s.closeErr = fmt.Errorf("PostThreadMessageW: %w", err)
			return
		}
		<-s.done
		s.acc.fail(errors.New("raw input source is closed"))
	})
	return s.closeErr
}

type cursorSink struct{}

func (cursorSink) Inject(m macro.Movement) error {
	if m.IsZero() {
		return nil
	}
	in := sendInput{Type: inputMouse, Mi: mouseInput{Dx: m.DX, Dy: m.DY, Flags: mouseeventfMove}}
	r, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if r != 1 {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

// asyncKeyTrigger relies on the "pressed since last query" bit, so only
// one poller per process sees each press.
type asyncKeyTrigger struct {
	hotkeys Hotkeys
}

func (a asyncKeyTrigger) Poll() macro.Triggers {
	var t macro.Triggers
	for _, letter := range a.hotkeys.letters() {
		if letter == 0 {
			continue
		}
		// Virtual key codes for letters are their uppercase ASCII values.
		r, _, _ := procGetAsyncKeyState.Call(uintptr(letter))
		if r&1 != 0 {
			a.hotkeys.apply(letter, &t)
		}
	}
	return t
}
