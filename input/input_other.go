//go:build !linux && !windows

package input

import (
	"fmt"
	"runtime"
)

func openDevices(Options) (*Devices, error) {
	return nil, fmt.Errorf("%w (%s)", ErrUnsupported, runtime.GOOS)
}
