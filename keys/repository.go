package keys

import (
	"context"
	"time"
)

// Store looks up key records. Lookup returns ErrKeyNotFound when keyID is unknown.
type Store interface {
	Lookup(ctx context.Context, keyID string) (*Record, error)
}

// Repository is the writable key store used for issuance and administration.
type Repository interface {
	Store
	Insert(ctx context.Context, rec *Record) error
	UpdateSecret(ctx context.Context, keyID, secretHash string, rotatedAt time.Time) (*Record, error)
	UpdateStatus(ctx context.Context, keyID string, status Status) (*Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
}
