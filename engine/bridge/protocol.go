package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
)

// MessageKind names a message between the page and the worker.
type MessageKind string

// Page to worker. KindInit carries transferable objects and is never JSON encoded.
const (
	KindInit  MessageKind = "init"
	KindInput MessageKind = "input"
	KindValue MessageKind = "value"
	KindStop  MessageKind = "stop"
)

// Worker to page.
const (
	KindHandshake MessageKind = "handshake"
	KindStopped   MessageKind = "stopped"
	KindError     MessageKind = "error"
)

// Message is the JSON form of every message after the init handoff.
type Message struct {
	Kind  MessageKind  `json:"kind"`
	Event *input.Event `json:"event,omitempty"`
	Name  string       `json:"name,omitempty"`
	Value *input.Value `json:"value,omitempty"`
	Code  int          `json:"code,omitempty"`
	Error string       `json:"error,omitempty"`
}

// InputMessage wraps ev for the worker.
func InputMessage(ev input.Event) Message {
	return Message{Kind: KindInput, Event: &ev}
}

// ValueMessage sets control name to v in the worker.
func ValueMessage(name string, v input.Value) Message {
	return Message{Kind: KindValue, Name: name, Value: &v}
}

// Validate checks that msg carries the fields its kind requires.
//
// Returns:
//   - error: error wrapping common.ErrProtocolViolation
func (m Message) Validate() error {
	switch m.Kind {
	case KindInput:
		if m.Event == nil {
			return fmt.Errorf("%w: input message without event", common.ErrProtocolViolation)
		}
	case KindValue:
		if m.Name == "" || m.Value == nil {
			return fmt.Errorf("%w: value message without name or value", common.ErrProtocolViolation)
		}
	case KindStop, KindHandshake, KindStopped, KindError:
	default:
		return fmt.Errorf("%w: unknown message kind %q", common.ErrProtocolViolation, m.Kind)
	}
	return nil
}

// Encode validates msg and renders it as JSON.
func Encode(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Decode parses and validates a JSON message.
//
// Returns:
//   - Message: the message
//   - error: error wrapping common.ErrProtocolViolation
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", common.ErrProtocolViolation, err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
