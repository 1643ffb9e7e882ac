//go:build !linux

package input

import (
	"fmt"

	"linuxmacro/internal/engine"
	"linuxmacro/internal/macro"
)

// Device is unavailable on this platform.
type Device struct{}

// Open always fails on this platform.
func Open(path string) (*Device, error) {
	return nil, unavailable(ErrUnsupportedPlatform, "open %s", path)
}

// OpenVirtual always fails on this platform.
func OpenVirtual() (*Device, error) {
	return nil, unavailable(ErrUnsupportedPlatform, "create virtual device")
}

func (d *Device) Name() string             { return "" }
func (d *Device) Source() engine.RawSource { return nil }
func (d *Device) Sink() engine.Sink        { return nil }
func (d *Device) Close() error             { return nil }

// List always fails on this platform.
func List() ([]DeviceInfo, error) {
	return nil, ErrUnsupportedPlatform
}

// Describe renders an event with numeric type and code.
func Describe(ev macro.Event) string {
	return fmt.Sprintf("type %d code %d %d +%s", ev.Kind, ev.Code, ev.Value, ev.Delay)
}
