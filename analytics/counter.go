package analytics

import (
	"fmt"
	"time"
)

// Field names one outcome counter of a daily row.
type Field string

const (
	FieldSuccessful  Field = "successfulCalls"
	FieldFailed      Field = "failedCalls"
	FieldRateLimited Field = "rateLimitedCalls"
)

// Valid reports whether f is one of the outcome counters.
func (f Field) Valid() bool {
	switch f {
	case FieldSuccessful, FieldFailed, FieldRateLimited:
		return true
	}
	return false
}

// Counter is the usage of one API key on one UTC day.
// TotalCalls always equals the sum of the three outcome counters.
type Counter struct {
	APIKeyID         string    `json:"apiKeyId" bson:"apiKeyId"`
	OwnerID          string    `json:"ownerId,omitempty" bson:"ownerId,omitempty"`
	Date             time.Time `json:"date" bson:"date"`
	TotalCalls       int64     `json:"totalCalls" bson:"totalCalls"`
	SuccessfulCalls  int64     `json:"successfulCalls" bson:"successfulCalls"`
	FailedCalls      int64     `json:"failedCalls" bson:"failedCalls"`
	RateLimitedCalls int64     `json:"rateLimitedCalls" bson:"rateLimitedCalls"`
	LastUpdated      time.Time `json:"lastUpdated" bson:"lastUpdated"`
}

// add applies one increment of field to c.
func (c *Counter) add(field Field) {
	c.TotalCalls++
	switch field {
	case FieldSuccessful:
		c.SuccessfulCalls++
	case FieldFailed:
		c.FailedCalls++
	case FieldRateLimited:
		c.RateLimitedCalls++
	}
}

// Day truncates t to the start of its UTC day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayString formats the UTC day of t as YYYY-MM-DD.
func DayString(t time.Time) string {
	return Day(t).Format(time.DateOnly)
}

func checkField(field Field) error {
	if !field.Valid() {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidField, field)
	}
	return nil
}
