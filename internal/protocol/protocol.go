// Package protocol defines the messages exchanged with remote controllers.
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeCommand is sent by a client to run a command line
	TypeCommand MessageType = "command"

	// TypeStatus is sent by the server after every change and in reply to a
	// command
	TypeStatus MessageType = "status"

	// TypeError is sent by the server when a command fails
	TypeError MessageType = "error"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type MessageType `json:"type"`

	// ID is set by clients on commands and echoed on the direct reply.
	// Broadcasts carry no ID.
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandPayload is the payload for TypeCommand
type CommandPayload struct {
	Line string `json:"line"`
}

// ErrorPayload is the payload for TypeError
type ErrorPayload struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// NewMessage wraps payload into a message of type t.
func NewMessage(t MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Wrapf(err, "encode %s payload", t)
	}
	return Message{Type: t, Payload: data}, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return errors.Errorf("%s message has no payload", m.Type)
	}
	return errors.Wrapf(json.Unmarshal(m.Payload, v), "decode %s payload", m.Type)
}
