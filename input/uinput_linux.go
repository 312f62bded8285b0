package input

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bendahl/uinput"

	"Retrace/macro"
)

// relativePointer is the part of uinput.Mouse the sink drives.
type relativePointer interface {
	Move(x, y int32) error
	Close() error
}

// uinputSink injects relative motion through a virtual mouse.
type uinputSink struct {
	mu      sync.Mutex
	pointer relativePointer
}

func openUinput(path, name string) (*uinputSink, error) {
	mouse, err := uinput.CreateMouse(path, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("create virtual pointer on %s: %w", path, err)
	}
	return &uinputSink{pointer: mouse}, nil
}

func (s *uinputSink) Inject(m macro.Movement) error {
	if m.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer == nil {
		return errors.New("virtual pointer is closed")
	}
	if err := s.pointer.Move(m.DX, m.DY); err != nil {
		return fmt.Errorf("move virtual pointer: %w", err)
	}
	return nil
}

func (s *uinputSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer == nil {
		return nil
	}
	err := s.pointer.Close()
	s.pointer = nil
	if err != nil {
		return fmt.Errorf("destroy virtual pointer: %w", err)
	}
	return nil
}
