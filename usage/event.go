package usage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KanavDutta/keyfence/analytics"
)

// Outcome is how an admission attempt ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeRateLimited Outcome = "rateLimited"
)

// Field maps the outcome to the analytics counter it increments.
func (o Outcome) Field() (analytics.Field, bool) {
	switch o {
	case OutcomeSuccess:
		return analytics.FieldSuccessful, true
	case OutcomeFailed:
		return analytics.FieldFailed, true
	case OutcomeRateLimited:
		return analytics.FieldRateLimited, true
	}
	return "", false
}

// Event records one admission attempt for a key. It is immutable once emitted.
type Event struct {
	KeyID     string    `json:"keyId"`
	OwnerID   string    `json:"ownerId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
	Method    string    `json:"method,omitempty"`
	Path      string    `json:"path,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

// Validate reports whether the event can be aggregated.
func (e Event) Validate() error {
	if e.KeyID == "" {
		return fmt.Errorf("%w: empty keyId", ErrInvalidEvent)
	}
	if _, ok := e.Outcome.Field(); !ok {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidEvent, e.Outcome)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}

// Encode serializes the event for the queue.
func (e Event) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses and validates a queue payload.
func Decode(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
