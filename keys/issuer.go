package keys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/core"
)

// KeyIDPrefix starts every generated key id.
const KeyIDPrefix = "k_"

const maxInsertAttempts = 3

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	DefaultLimit core.RateLimit   // Used when CreateParams leaves the limit unset
	HashCost     int              // bcrypt cost (default: bcrypt.DefaultCost)
	Clock        func() time.Time // Time source (default: time.Now)
}

// CreateParams describes a key to issue. Zero Limit or WindowSeconds take the default.
type CreateParams struct {
	OwnerID       string   `json:"ownerId"`
	Limit         int64    `json:"limit,omitempty"`
	WindowSeconds int64    `json:"windowSeconds,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
}

// Issued is returned once when a key is created or rotated. Secret is the full
// "<keyId>.<secret>" credential and is not recoverable afterwards.
type Issued struct {
	KeyID  string  `json:"keyId"`
	Secret string  `json:"secret"`
	Record *Record `json:"-"`
}

// Issuer creates, rotates and revokes API keys.
type Issuer struct {
	repo   Repository
	cfg    IssuerConfig
	logger zerolog.Logger
}

// NewIssuer constructs an issuer on top of repo.
func NewIssuer(repo Repository, cfg IssuerConfig, logger zerolog.Logger) *Issuer {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Issuer{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With().Str("component", "key-issuer").Logger(),
	}
}

// Create issues a new active key for params.OwnerID.
func (i *Issuer) Create(ctx context.Context, params CreateParams) (*Issued, error) {
	ownerID := strings.TrimSpace(params.OwnerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: ownerId is required", ErrInvalidParams)
	}

	limit := i.cfg.DefaultLimit
	if params.Limit != 0 {
		limit.Limit = params.Limit
	}
	if params.WindowSeconds != 0 {
		limit.WindowSeconds = params.WindowSeconds
	}
	if err := limit.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	secret := newSecret()
	hash, err := HashSecret(secret, i.cfg.HashCost)
	if err != nil {
		return nil, err
	}

	now := i.cfg.Clock()
	rec := &Record{
		SecretHash: hash,
		OwnerID:    ownerID,
		Status:     StatusActive,
		Scopes:     append([]string{}, params.Scopes...),
		RateLimit:  limit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for attempt := 1; ; attempt++ {
		rec.KeyID = newKeyID()
		err = i.repo.Insert(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrKeyExists) || attempt == maxInsertAttempts {
			return nil, err
		}
	}

	i.logger.Info().
		Str("key_id", rec.KeyID).
		Str("owner_id", ownerID).
		Int64("limit", limit.Limit).
		Int64("window_seconds", limit.WindowSeconds).
		Msg("api key created")

	return &Issued{KeyID: rec.KeyID, Secret: FormatCredential(rec.KeyID, secret), Record: rec}, nil
}

// Rotate replaces the secret of keyID, reactivates it and records the rotation time.
// The previous secret stops working immediately.
func (i *Issuer) Rotate(ctx context.Context, keyID string) (*Issued, error) {
	secret := newSecret()
	hash, err := HashSecret(secret, i.cfg.HashCost)
	if err != nil {
		return nil, err
	}

	rec, err := i.repo.UpdateSecret(ctx, keyID, hash, i.cfg.Clock())
	if err != nil {
		return nil, err
	}

	i.logger.Info().Str("key_id", keyID).Msg("api key rotated")
	return &Issued{KeyID: keyID, Secret: FormatCredential(keyID, secret), Record: rec}, nil
}

// Revoke marks keyID revoked; it fails authentication from then on.
func (i *Issuer) Revoke(ctx context.Context, keyID string) (*Record, error) {
	rec, err := i.repo.UpdateStatus(ctx, keyID, StatusRevoked)
	if err != nil {
		return nil, err
	}

	i.logger.Info().Str("key_id", keyID).Msg("api key revoked")
	return rec, nil
}

// List returns the keys owned by ownerID.
func (i *Issuer) List(ctx context.Context, ownerID string) ([]Record, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: ownerId is required", ErrInvalidParams)
	}
	return i.repo.ListByOwner(ctx, ownerID)
}

func newKeyID() string {
	return KeyIDPrefix + uuid.NewString()[:8]
}

func newSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + uuid.NewString()[:8]
}
