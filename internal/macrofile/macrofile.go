// Package macrofile reads and writes recorded sequences as JSON documents.
package macrofile

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"linuxmacro/internal/macro"
)

// ErrInvalidFile is returned for documents that do not describe a sequence.
var ErrInvalidFile = errors.New("invalid macro file")

// File is a saved sequence with its metadata.
type File struct {
	ID      uuid.UUID   `json:"id"`
	Created time.Time   `json:"created"`
	Device  string      `json:"device,omitempty"`
	Events  []FileEvent `json:"events"`
}

// FileEvent is one event as stored on disk. The delay is a nanosecond count.
type FileEvent struct {
	Type    uint16 `json:"type"`
	Code    uint16 `json:"code"`
	Value   int32  `json:"value"`
	DelayNS int64  `json:"delay_ns"`
}

// New builds a file with a fresh identity for events captured on device.
func New(device string, events []macro.Event) File {
	f := File{
		ID:      uuid.New(),
		Created: time.Now().UTC().Truncate(time.Second),
		Device:  device,
		Events:  make([]FileEvent, len(events)),
	}
	for i, ev := range events {
		f.Events[i] = FileEvent{
			Type:    ev.Kind,
			Code:    ev.Code,
			Value:   ev.Value,
			DelayNS: ev.Delay.Nanoseconds(),
		}
	}
	return f
}

// Sequence converts the stored events back to engine events.
func (f File) Sequence() ([]macro.Event, error) {
	out := make([]macro.Event, len(f.Events))
	for i, fe := range f.Events {
		if fe.DelayNS < 0 {
			return nil, errors.Wrapf(ErrInvalidFile, "event %d has negative delay %d", i, fe.DelayNS)
		}
		out[i] = macro.Event{
			Triple: macro.Triple{Kind: fe.Type, Code: fe.Code, Value: fe.Value},
			Delay:  macro.DelayOf(time.Duration(fe.DelayNS)),
		}
	}
	return out, nil
}

// Save encodes f to w.
func Save(w io.Writer, f File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(f), "encode macro file")
}

// Load decodes and validates a document from r.
func Load(r io.Reader) (File, error) {
	var doc struct {
		File
		Events *[]FileEvent `json:"events"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return File{}, errors.Wrapf(ErrInvalidFile, "decode: %v", err)
	}
	if doc.Events == nil {
		return File{}, errors.Wrap(ErrInvalidFile, "missing events")
	}
	f := doc.File
	f.Events = *doc.Events
	if _, err := f.Sequence(); err != nil {
		return File{}, err
	}
	return f, nil
}

// WriteFile saves f to path, replacing it atomically.
func WriteFile(path string, f File) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".macro-*")
	if err != nil {
		return errors.Wrap(err, "create macro file")
	}
	defer os.Remove(tmp.Name())

	if err := Save(tmp, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write macro file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "write macro file")
}

// ReadFile loads the document at path.
func ReadFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, errors.Wrap(err, "open macro file")
	}
	defer fh.Close()
	return Load(fh)
}
