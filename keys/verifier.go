package keys

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks a presented secret against a stored hash.
type Verifier interface {
	Verify(secret, hash string) bool
}

// BcryptVerifier verifies secrets hashed with bcrypt.
type BcryptVerifier struct{}

// Verify implements Verifier.
func (BcryptVerifier) Verify(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HashSecret hashes secret with bcrypt at the given cost.
// Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func HashSecret(secret string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}
