//go:build linux

package input

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"

	"linuxmacro/internal/macro"
)

// rawEvent mirrors struct input_event.
type rawEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const (
	eventSize  = int(unsafe.Sizeof(rawEvent{}))
	typeOffset = int(unsafe.Offsetof(rawEvent{}.Type))
)

// decodeEvent extracts the triple from one input_event record.
func decodeEvent(buf []byte) macro.Triple {
	b := buf[typeOffset:]
	return macro.Triple{
		Kind:  binary.NativeEndian.Uint16(b[0:2]),
		Code:  binary.NativeEndian.Uint16(b[2:4]),
		Value: int32(binary.NativeEndian.Uint32(b[4:8])),
	}
}
