// Package protocol defines the JSON frames exchanged over a chat connection.
// Every frame is {"event": name, "data": payload}.
package protocol

import (
	"encoding/json"
	"fmt"

	"roomchat/internal/broker"
)

// Path is where the websocket endpoint is served.
const Path = "/ws"

// Client to server event names.
const (
	EventJoin    = "join"
	EventMessage = "message"
	EventTyping  = "typing"
	EventEdit    = "edit"
	EventDelete  = "delete"
	EventLeave   = "leave"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame from an event name and its payload.
func Encode(event string, data any) ([]byte, error) {
	frame := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data}
	return json.Marshal(frame)
}

func EncodeOutbound(out broker.Outbound) ([]byte, error) {
	return Encode(out.Event, out.Data)
}

// DecodeEvent turns a client frame into a broker event.
func DecodeEvent(raw []byte) (broker.Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Event {
	case EventJoin:
		var e broker.JoinEvent
		if err := decodeData(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventMessage:
		var text string
		if err := decodeData(env, &text); err != nil {
			return nil, err
		}
		return broker.MessageEvent{Text: text}, nil
	case EventTyping:
		var e broker.TypingEvent
		if err := decodeData(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventEdit:
		var e broker.EditEvent
		if err := decodeData(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventDelete:
		return broker.DeleteEvent{}, nil
	case EventLeave:
		return broker.LeaveEvent{}, nil
	default:
		return nil, fmt.Errorf("decode frame: unsupported event %q", env.Event)
	}
}

func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("decode %s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return nil
}

// DecodeData unmarshals the payload of a server frame.
func DecodeData[T any](env Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return v, nil
}
