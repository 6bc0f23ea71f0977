package keys

import (
	"context"
	"errors"
	"fmt"
)

// Authenticator resolves a presented credential to an active key record.
// It never modifies the record.
type Authenticator struct {
	store    Store
	verifier Verifier
}

// NewAuthenticator creates an authenticator. A nil verifier means BcryptVerifier.
func NewAuthenticator(store Store, verifier Verifier) *Authenticator {
	if verifier == nil {
		verifier = BcryptVerifier{}
	}
	return &Authenticator{store: store, verifier: verifier}
}

// Authenticate checks credential ("<keyId>.<secret>", optionally prefixed with
// "ApiKey "). Failures are *AuthError values matching ErrUnauthorized; a key
// store fault is returned wrapped in ErrKeyStoreUnavailable instead.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*Record, error) {
	keyID, secret, ok := ParseCredential(credential)
	if !ok {
		return nil, &AuthError{Reason: ReasonMissingCredential}
	}

	rec, err := a.store.Lookup(ctx, keyID)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, &AuthError{Reason: ReasonInvalidKey}
	}
	if err != nil {
		if errors.Is(err, ErrKeyStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	if rec == nil {
		return nil, &AuthError{Reason: ReasonInvalidKey}
	}

	if !rec.Active() {
		return nil, &AuthError{Reason: ReasonInvalidKey, KeyID: rec.KeyID, OwnerID: rec.OwnerID}
	}
	if !a.verifier.Verify(secret, rec.SecretHash) {
		return nil, &AuthError{Reason: ReasonInvalidSecret, KeyID: rec.KeyID, OwnerID: rec.OwnerID}
	}
	return rec, nil
}
