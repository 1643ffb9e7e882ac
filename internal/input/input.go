// Package input opens evdev input devices for capture and uinput devices for
// replay.
package input

import (
	"github.com/pkg/errors"

	"linuxmacro/internal/engine"
	"linuxmacro/internal/macro"
)

// VirtualPath selects the synthetic replay-only device in place of a device
// node path.
const VirtualPath = "virtual"

// ErrUnsupportedPlatform is returned on systems without evdev and uinput.
var ErrUnsupportedPlatform = errors.New("input devices not supported on this platform")

// DeviceInfo describes an input device node.
type DeviceInfo struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// OpenAny opens the device at path, or the virtual device when path is
// VirtualPath.
func OpenAny(path string) (engine.Device, error) {
	var (
		dev *Device
		err error
	)
	if path == VirtualPath {
		dev, err = OpenVirtual()
	} else {
		dev, err = Open(path)
	}
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func unavailable(err error, format string, args ...any) error {
	return errors.Wrapf(engine.ErrDeviceUnavailable, format+": %v", append(args, err)...)
}

// SynReport is the EV_SYN/SYN_REPORT marker that ends a batch of events.
var SynReport = macro.Triple{Kind: 0, Code: 0, Value: 0}
