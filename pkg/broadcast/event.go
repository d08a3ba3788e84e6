// Package broadcast carries change notifications from the dashboard to the
// broadcast relay. Publishing is fire-and-forget: a relay that is down or slow
// never fails the operation that triggered the notification.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when an event envelope is not well formed, or when the
// relay rejects a publish request.
var ErrMalformed = errors.New("malformed broadcast event")

// Event is the envelope the relay forwards to every subscriber unchanged.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEvent marshals payload into an envelope named name.
func NewEvent(name string, payload any) (Event, error) {
	if strings.TrimSpace(name) == "" {
		return Event{}, fmt.Errorf("%w: event name is required", ErrMalformed)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Event{Event: name, Data: data}, nil
}

// Validate checks that the envelope names an event and that data, when present, is valid JSON.
// A missing data field is normalised to JSON null.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Event) == "" {
		return fmt.Errorf("%w: event name is required", ErrMalformed)
	}
	if len(e.Data) == 0 {
		e.Data = json.RawMessage("null")
		return nil
	}
	if !json.Valid(e.Data) {
		return fmt.Errorf("%w: data is not valid JSON", ErrMalformed)
	}
	return nil
}
