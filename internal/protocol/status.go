package protocol

import "fmt"

// Status is a snapshot of the recorder reported to every front-end.
type Status struct {
	State     string `json:"state"`
	Length    int    `json:"length"`
	Cursor    *int   `json:"cursor,omitempty"`
	Device    string `json:"device,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
}

func (s Status) String() string {
	cursor := "-"
	if s.Cursor != nil {
		cursor = fmt.Sprint(*s.Cursor)
	}
	device := s.Device
	if device == "" {
		device = "no device"
	}
	out := fmt.Sprintf("%s, %d events, cursor %s, %s", s.State, s.Length, cursor, device)
	if s.Skipped > 0 {
		out += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	if s.LastError != "" {
		out += ", last error: " + s.LastError
	}
	return out
}
