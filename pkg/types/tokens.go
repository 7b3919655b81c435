package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubjectKind distinguishes device-scoped pairs from user-scoped pairs. The
// kind determines which claim key carries the subject identifier on the wire.
type SubjectKind string

const (
	SubjectDevice SubjectKind = "device"
	SubjectUser   SubjectKind = "user"
)

// ClaimKey returns the JWT claim key that carries the subject identifier.
func (k SubjectKind) ClaimKey() string {
	if k == SubjectUser {
		return "user_id"
	}
	return "device_id"
}

// TokenClaims is the decoded payload shared by the access and refresh token
// of one pair. Value is the opaque pair identity; both halves carry the same
// value so revoking by value covers the pair.
type TokenClaims struct {
	Subject   SubjectKind
	SubjectID uuid.UUID
	Value     string
	ExpiresAt time.Time
}

// TokenPair couples the signed access and refresh tokens minted in one issue
// or rotation. LastRefreshExpiry preserves the superseded refresh token's
// expiry so the renewal grace window can be computed on the next rotation.
type TokenPair struct {
	ID                uuid.UUID
	Subject           SubjectKind
	SubjectID         uuid.UUID
	Value             string
	AccessToken       string
	RefreshToken      string
	AccessExpiresAt   time.Time
	RefreshExpiresAt  time.Time
	LastRefreshExpiry *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TokenPairRepository persists one active pair per subject ("last pair
// wins"). SavePair replaces the subject's current pair atomically; the store
// enforces value uniqueness so issuers can retry on collision.
type TokenPairRepository interface {
	SavePair(ctx context.Context, pair TokenPair) (*TokenPair, error)
	GetPairBySubject(ctx context.Context, subject SubjectKind, subjectID uuid.UUID) (*TokenPair, error)
	GetPairByValue(ctx context.Context, value string) (*TokenPair, error)
	ValueExists(ctx context.Context, value string) (bool, error)
	DeletePairBySubject(ctx context.Context, subject SubjectKind, subjectID uuid.UUID) error
}

// DevicePairRotator atomically persists the trust-counter update and the
// pair replacement of a known-device renewal. Implementations run both
// writes in a single transaction.
type DevicePairRotator interface {
	RotateDevicePair(ctx context.Context, device Device, pair TokenPair) (*TokenPair, error)
}

// RevokedToken is one row of the revocation ledger.
type RevokedToken struct {
	ID          uuid.UUID
	AccessToken string
	RevokedAt   time.Time
}
