package keys

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/KanavDutta/keyfence/core"
)

type brokenStore struct{}

func (brokenStore) Lookup(context.Context, string) (*Record, error) {
	return nil, errors.New("connection refused")
}

func seedKey(t *testing.T, repo *MemoryRepository, keyID, secret string, status Status) {
	t.Helper()
	hash, err := HashSecret(secret, bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), &Record{
		KeyID:      keyID,
		SecretHash: hash,
		OwnerID:    "owner-1",
		Status:     status,
		RateLimit:  core.RateLimit{Limit: 10, WindowSeconds: 60},
		CreatedAt:  time.Now(),
	}))
}

func TestAuthenticator_Authenticate(t *testing.T) {
	repo := NewMemoryRepository()
	seedKey(t, repo, "k_active1", "secret-with-dots.more", StatusActive)
	seedKey(t, repo, "k_revoked", "s3cret", StatusRevoked)
	seedKey(t, repo, "k_rotate1", "s3cret", StatusRotating)

	auth := NewAuthenticator(repo, nil)

	tests := []struct {
		name       string
		credential string
		wantReason string
		wantKeyID  string
	}{
		{"valid dotted secret", "k_active1.secret-with-dots.more", "", ""},
		{"valid with scheme", "ApiKey k_active1.secret-with-dots.more", "", ""},
		{"missing", "", ReasonMissingCredential, ""},
		{"scheme only", "ApiKey ", ReasonMissingCredential, ""},
		{"bare scheme", "ApiKey", ReasonMissingCredential, ""},
		{"padded scheme", "  ApiKey  ", ReasonMissingCredential, ""},
		{"unknown key", "k_nobody.s3cret", ReasonInvalidKey, ""},
		{"empty key id", ".s3cret", ReasonInvalidKey, ""},
		{"revoked with right secret", "k_revoked.s3cret", ReasonInvalidKey, "k_revoked"},
		{"rotating", "k_rotate1.s3cret", ReasonInvalidKey, "k_rotate1"},
		{"wrong secret", "k_active1.secret-with-dots", ReasonInvalidSecret, "k_active1"},
		{"empty secret", "k_active1.", ReasonInvalidSecret, "k_active1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := auth.Authenticate(context.Background(), tt.credential)
			if tt.wantReason == "" {
				require.NoError(t, err)
				assert.Equal(t, "k_active1", rec.KeyID)
				return
			}

			require.Error(t, err)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, ErrUnauthorized)

			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantReason, authErr.Reason)
			assert.Equal(t, tt.wantKeyID, authErr.KeyID)
		})
	}
}

func TestAuthenticator_DoesNotModifyRecord(t *testing.T) {
	repo := NewMemoryRepository()
	seedKey(t, repo, "k_same", "s3cret", StatusActive)
	before, err := repo.Lookup(context.Background(), "k_same")
	require.NoError(t, err)

	auth := NewAuthenticator(repo, nil)
	_, _ = auth.Authenticate(context.Background(), "k_same.wrong")
	_, _ = auth.Authenticate(context.Background(), "k_same.s3cret")

	after, err := repo.Lookup(context.Background(), "k_same")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAuthenticator_StoreFailure(t *testing.T) {
	auth := NewAuthenticator(brokenStore{}, nil)

	_, err := auth.Authenticate(context.Background(), "k_any.s3cret")

	assert.ErrorIs(t, err, ErrKeyStoreUnavailable)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
