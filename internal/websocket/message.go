package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AckEvent is the event name the server uses to answer a request.
const AckEvent = "ack"

// Message is the wire envelope in both directions. AckID is set on requests
// that expect an acknowledgement and echoed back on the ack.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID uint64          `json:"ackId,omitempty"`
}

func NewMessage(event string, data any) (Message, error) {
	if data == nil {
		return Message{Event: event}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Message{Event: event, Data: b}, nil
}

// Ack is the common part of every acknowledgement.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

var (
	ErrNotConnected = errors.New("not connected to table server")
	ErrTimeout      = errors.New("timed out waiting for acknowledgement")
)

// ActionRejectedError is returned when the server acks with success=false.
type ActionRejectedError struct {
	Event   string
	Message string
}

func (e *ActionRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected by server", e.Event)
	}
	return fmt.Sprintf("%s rejected by server: %s", e.Event, e.Message)
}
