package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OTPPurpose scopes a one-time code to the workflow that requested it.
type OTPPurpose string

const (
	OTPPurposePhoneVerification OTPPurpose = "phone_verification"
	OTPPurposeEmailVerification OTPPurpose = "email_verification"
	OTPPurposeLogin             OTPPurpose = "login"
)

// Valid reports whether the purpose is one of the known workflow scopes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposePhoneVerification, OTPPurposeEmailVerification, OTPPurposeLogin:
		return true
	}
	return false
}

// OTPSlot is the singleton per (user, purpose) holder of the current code.
// Code is empty when no code is outstanding. IssuedAt tracks when the
// current code was written and anchors expiry.
type OTPSlot struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Purpose   OTPPurpose
	Code      string
	IssuedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsedCode is one row of the consumed-code ledger.
type UsedCode struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Purpose    OTPPurpose
	Code       string
	ConsumedAt time.Time
}

// OTPRepository persists code slots and the consumed-code ledger.
type OTPRepository interface {
	UpsertSlot(ctx context.Context, slot OTPSlot) (*OTPSlot, error)
	GetSlot(ctx context.Context, userID uuid.UUID, purpose OTPPurpose) (*OTPSlot, error)
	ClearSlot(ctx context.Context, userID uuid.UUID, purpose OTPPurpose) error
	AppendUsedCode(ctx context.Context, used UsedCode) (*UsedCode, error)
	ListUsedCodes(ctx context.Context, userID uuid.UUID, purpose OTPPurpose) ([]UsedCode, error)
}

// VerificationRecord tracks which contact channels an account has proven.
type VerificationRecord struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PhoneVerified bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VerificationRepository persists per-account verification flags.
type VerificationRepository interface {
	GetVerification(ctx context.Context, userID uuid.UUID) (*VerificationRecord, error)
	SetVerified(ctx context.Context, userID uuid.UUID, purpose OTPPurpose, verifiedAt time.Time) error
}
