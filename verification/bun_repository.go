package verification

import (
	"context"
	"errors"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed verification store.
type RepositoryConfig struct {
	DB    *bun.DB
	Clock types.Clock
	IDGen types.IDGenerator
}

// Repository implements types.VerificationRepository using Bun.
type Repository struct {
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default verification repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.DB == nil {
		return nil, errors.New("verification: db required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	return &Repository{db: cfg.DB, clock: clock, idGen: idGen}, nil
}

var _ types.VerificationRepository = (*Repository)(nil)

// GetVerification returns the user's verification flags, or nil when the
// account has never verified a channel.
func (r *Repository) GetVerification(ctx context.Context, userID uuid.UUID) (*types.VerificationRecord, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := &Record{}
	err := r.db.NewSelect().Model(rec).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		mapped := repository.MapDatabaseError(err, repository.DetectDriver(r.db))
		if repository.IsRecordNotFound(mapped) {
			return nil, nil
		}
		return nil, mapped
	}
	return toDomain(rec), nil
}

// SetVerified flips the flag matching the purpose, creating the record when
// the account has none yet. Non-verification purposes are a no-op.
func (r *Repository) SetVerified(ctx context.Context, userID uuid.UUID, purpose types.OTPPurpose, verifiedAt time.Time) error {
	if userID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	var column string
	switch purpose {
	case types.OTPPurposePhoneVerification:
		column = "phone_verified"
	case types.OTPPurposeEmailVerification:
		column = "email_verified"
	default:
		return nil
	}
	rec := &Record{
		ID:        r.idGen.UUID(),
		UserID:    userID,
		CreatedAt: verifiedAt,
		UpdatedAt: verifiedAt,
	}
	if column == "phone_verified" {
		rec.PhoneVerified = true
	} else {
		rec.EmailVerified = true
	}
	_, err := r.db.NewInsert().Model(rec).
		On("CONFLICT (user_id) DO UPDATE").
		Set(column+" = ?", true).
		Set("updated_at = ?", verifiedAt).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

func toDomain(rec *Record) *types.VerificationRecord {
	if rec == nil {
		return nil
	}
	return &types.VerificationRecord{
		ID:            rec.ID,
		UserID:        rec.UserID,
		PhoneVerified: rec.PhoneVerified,
		EmailVerified: rec.EmailVerified,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
