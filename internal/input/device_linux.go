//go:build linux

package input

import (
	"fmt"

	"github.com/holoplot/go-evdev"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"linuxmacro/internal/engine"
	"linuxmacro/internal/macro"
)

// Device is an opened input device. A device opened from a node both
// captures and replays; the virtual device only replays.
type Device struct {
	name   string
	source *rawSource
	sink   *uinputSink
}

// Open opens the evdev node at path for non-blocking capture and creates a
// uinput clone of it with the same capabilities for replay.
func Open(path string) (*Device, error) {
	src, err := evdev.Open(path)
	if err != nil {
		return nil, unavailable(err, "open %s", path)
	}
	defer src.Close()

	name, err := src.Name()
	if err != nil {
		name = path
	}

	clone, err := evdev.CloneDevice(fmt.Sprintf("%s (replay)", name), src)
	if err != nil {
		return nil, unavailable(err, "create uinput clone of %s", path)
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		clone.Close()
		return nil, unavailable(err, "open %s", path)
	}

	return &Device{
		name:   name,
		source: &rawSource{fd: fd},
		sink:   &uinputSink{dev: clone},
	}, nil
}

// OpenVirtual creates a synthetic keyboard and mouse uinput device. It has
// no capture side.
func OpenVirtual() (*Device, error) {
	keys := make([]evdev.EvCode, 0, 256)
	for code := evdev.EvCode(1); code < 256; code++ {
		keys = append(keys, code)
	}
	keys = append(keys, evdev.BTN_LEFT, evdev.BTN_RIGHT, evdev.BTN_MIDDLE)

	dev, err := evdev.CreateDevice(
		virtualName,
		evdev.InputID{
			BusType: 0x03,
			Vendor:  0x4711,
			Product: 0x0816,
			Version: 1,
		},
		map[evdev.EvType][]evdev.EvCode{
			evdev.EV_KEY: keys,
			evdev.EV_REL: {
				evdev.REL_X,
				evdev.REL_Y,
				evdev.REL_WHEEL,
				evdev.REL_HWHEEL,
			},
		},
	)
	if err != nil {
		return nil, unavailable(err, "create virtual device")
	}
	return &Device{name: virtualName, sink: &uinputSink{dev: dev}}, nil
}

const virtualName = "linuxmacro virtual device"

// Name returns the kernel name of the device.
func (d *Device) Name() string {
	return d.name
}

// Source returns the capture side, or nil for the virtual device.
func (d *Device) Source() engine.RawSource {
	if d.source == nil {
		return nil
	}
	return d.source
}

// Sink returns the replay side.
func (d *Device) Sink() engine.Sink {
	if d.sink == nil {
		return nil
	}
	return d.sink
}

// Close releases the capture descriptor and destroys the uinput device.
func (d *Device) Close() error {
	var first error
	if d.source != nil {
		if err := d.source.close(); err != nil {
			first = err
		}
		d.source = nil
	}
	if d.sink != nil {
		if err := d.sink.dev.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "destroy uinput device")
		}
		d.sink = nil
	}
	return first
}

// List returns the evdev nodes that can be opened.
func List() ([]DeviceInfo, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, errors.Wrap(err, "list input devices")
	}
	out := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		out = append(out, DeviceInfo{Path: p.Path, Name: p.Name})
	}
	return out, nil
}

// Describe renders an event with its type and code names.
func Describe(ev macro.Event) string {
	typ := evdev.EvType(ev.Kind)
	return fmt.Sprintf("%s %s %d +%s",
		evdev.TypeName(typ), evdev.CodeName(typ, evdev.EvCode(ev.Code)), ev.Value, ev.Delay)
}

type rawSource struct {
	fd int
}

func (s *rawSource) HasPending() (bool, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if errors.Is(err, unix.EINTR) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "poll")
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return false, errors.Wrap(unix.ENODEV, "poll")
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

func (s *rawSource) ReadEvent() (macro.Triple, error) {
	var buf [eventSize]byte
	n, err := unix.Read(s.fd, buf[:])
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return macro.Triple{}, engine.ErrWouldBlock
	}
	if err != nil {
		return macro.Triple{}, errors.Wrap(err, "read")
	}
	if n != eventSize {
		return macro.Triple{}, errors.Errorf("short read of %d bytes", n)
	}
	return decodeEvent(buf[:]), nil
}

func (s *rawSource) close() error {
	return errors.Wrap(unix.Close(s.fd), "close event device")
}

type uinputSink struct {
	dev *evdev.InputDevice
}

func (s *uinputSink) WriteEvent(kind, code uint16, value int32) error {
	return s.dev.WriteOne(&evdev.InputEvent{
		Type:  evdev.EvType(kind),
		Code:  evdev.EvCode(code),
		Value: value,
	})
}
