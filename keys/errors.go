package keys

import "errors"

var (
	// ErrUnauthorized is returned when a credential does not authenticate an active key
	ErrUnauthorized = errors.New("unauthorized")

	// ErrKeyNotFound is returned by a Store when no record has the requested key id
	ErrKeyNotFound = errors.New("api key not found")

	// ErrKeyStoreUnavailable is returned when the key store cannot be queried
	ErrKeyStoreUnavailable = errors.New("key store unavailable")

	// ErrKeyExists is returned when inserting a key id that is already taken
	ErrKeyExists = errors.New("api key already exists")

	// ErrInvalidParams is returned when key issuance parameters are invalid
	ErrInvalidParams = errors.New("invalid key parameters")
)

// Reasons carried by AuthError.
const (
	ReasonMissingCredential = "missing credential"
	ReasonInvalidKey        = "invalid or revoked key"
	ReasonInvalidSecret     = "invalid secret"
)

// AuthError describes why authentication failed. It matches ErrUnauthorized
// with errors.Is. KeyID and OwnerID are set only when the credential named a
// stored key, so callers can attribute the failure.
type AuthError struct {
	Reason  string
	KeyID   string
	OwnerID string
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}
