package keys

import (
	"slices"
	"time"

	"github.com/KanavDutta/keyfence/core"
)

// Status is the lifecycle state of an API key.
type Status string

const (
	StatusActive   Status = "active"
	StatusRevoked  Status = "revoked"
	StatusRotating Status = "rotating"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRevoked, StatusRotating:
		return true
	}
	return false
}

// Record is a stored API key. The secret itself is never stored, only its hash.
type Record struct {
	KeyID      string         `json:"keyId" bson:"keyId"`
	SecretHash string         `json:"-" bson:"secretHash"`
	OwnerID    string         `json:"ownerId" bson:"ownerId"`
	Status     Status         `json:"status" bson:"status"`
	Scopes     []string       `json:"scopes" bson:"scopes"`
	RateLimit  core.RateLimit `json:"rateLimit" bson:"rateLimit"`
	CreatedAt  time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt" bson:"updatedAt"`
	RotatedAt  *time.Time     `json:"rotatedAt,omitempty" bson:"rotatedAt,omitempty"`
}

// Active reports whether the key may authenticate.
func (r *Record) Active() bool {
	return r != nil && r.Status == StatusActive
}

// HasScope reports whether the key was granted scope.
func (r *Record) HasScope(scope string) bool {
	return r != nil && slices.Contains(r.Scopes, scope)
}
