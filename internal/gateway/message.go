package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Frame is the gateway wire envelope. Three shapes share it: outbound
// requests ({type:"req", id, method, params}), inbound responses
// ({type:"res", id, ok, payload|error}) and inbound events
// ({type:"event", event, payload}).
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

const (
	frameTypeRequest  = "req"
	frameTypeResponse = "res"
	frameTypeEvent    = "event"
)

// ParseFrame parses an inbound envelope.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("parse frame: missing type")
	}
	return &f, nil
}

// newRequestFrame builds an outbound request envelope. A nil params value
// serializes as an empty object, never as JSON null.
func newRequestFrame(id, method string, params any) ([]byte, error) {
	if params == nil {
		params = struct{}{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return json.Marshal(&Frame{
		Type:   frameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	})
}

// newRequestID returns an id unique for the lifetime of the process. Ids are
// never reused while a request is pending.
func newRequestID() string {
	return uuid.New().String()
}

// Event is a server-pushed notification delivered to registered handlers.
type Event struct {
	Name    string
	Payload json.RawMessage
}
