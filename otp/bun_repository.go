package otp

import (
	"context"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed OTP store.
type RepositoryConfig struct {
	DB    *bun.DB
	Clock types.Clock
	IDGen types.IDGenerator
}

// Repository implements types.OTPRepository using Bun.
type Repository struct {
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default OTP repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.DB == nil {
		return nil, errors.New("otp: db required")
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

var _ types.OTPRepository = (*Repository)(nil)

// UpsertSlot writes the user's slot for the purpose, overwriting any
// outstanding code.
func (r *Repository) UpsertSlot(ctx context.Context, slot types.OTPSlot) (*types.OTPSlot, error) {
	if slot.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	now := r.clock.Now()
	rec := slotFromDomain(slot)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.NewInsert().Model(rec).
		On("CONFLICT (user_id, purpose) DO UPDATE").
		Set("code = EXCLUDED.code").
		Set("issued_at = EXCLUDED.issued_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return slotToDomain(rec), nil
}

// GetSlot returns the user's slot for the purpose, or nil when none exists.
func (r *Repository) GetSlot(ctx context.Context, userID uuid.UUID, purpose types.OTPPurpose) (*types.OTPSlot, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := &SlotRecord{}
	err := r.db.NewSelect().Model(rec).
		Where("user_id = ?", userID).
		Where("purpose = ?", string(purpose)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, ignoreNotFound(r.db, err)
	}
	return slotToDomain(rec), nil
}

// ClearSlot nulls the user's outstanding code for the purpose. Clearing a
// missing or already empty slot is a no-op.
func (r *Repository) ClearSlot(ctx context.Context, userID uuid.UUID, purpose types.OTPPurpose) error {
	if userID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	_, err := r.db.NewUpdate().Model((*SlotRecord)(nil)).
		Set("code = ''").
		Set("issued_at = NULL").
		Set("updated_at = ?", r.clock.Now()).
		Where("user_id = ?", userID).
		Where("purpose = ?", string(purpose)).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// AppendUsedCode records one consumed code in the ledger.
func (r *Repository) AppendUsedCode(ctx context.Context, used types.UsedCode) (*types.UsedCode, error) {
	if used.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := &UsedRecord{
		ID:         used.ID,
		UserID:     used.UserID,
		Purpose:    string(used.Purpose),
		Code:       used.Code,
		ConsumedAt: used.ConsumedAt,
	}
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.ConsumedAt.IsZero() {
		rec.ConsumedAt = r.clock.Now()
	}
	_, err := r.db.NewInsert().Model(rec).Exec(ctx)
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return &types.UsedCode{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Purpose:    types.OTPPurpose(rec.Purpose),
		Code:       rec.Code,
		ConsumedAt: rec.ConsumedAt,
	}, nil
}

// ListUsedCodes returns the user's consumed-code ledger, newest first.
func (r *Repository) ListUsedCodes(ctx context.Context, userID uuid.UUID, purpose types.OTPPurpose) ([]types.UsedCode, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	var rows []*UsedRecord
	q := r.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("consumed_at DESC")
	if purpose != "" {
		q = q.Where("purpose = ?", string(purpose))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	out := make([]types.UsedCode, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.UsedCode{
			ID:         row.ID,
			UserID:     row.UserID,
			Purpose:    types.OTPPurpose(row.Purpose),
			Code:       row.Code,
			ConsumedAt: row.ConsumedAt,
		})
	}
	return out, nil
}

func ignoreNotFound(db *bun.DB, err error) error {
	mapped := repository.MapDatabaseError(err, repository.DetectDriver(db))
	if repository.IsRecordNotFound(mapped) {
		return nil
	}
	return mapped
}

func slotFromDomain(slot types.OTPSlot) *SlotRecord {
	return &SlotRecord{
		ID:        slot.ID,
		UserID:    slot.UserID,
		Purpose:   string(slot.Purpose),
		Code:      slot.Code,
		IssuedAt:  slot.IssuedAt,
		CreatedAt: slot.CreatedAt,
		UpdatedAt: slot.UpdatedAt,
	}
}

func slotToDomain(rec *SlotRecord) *types.OTPSlot {
	if rec == nil {
		return nil
	}
	return &types.OTPSlot{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Purpose:   types.OTPPurpose(rec.Purpose),
		Code:      rec.Code,
		IssuedAt:  rec.IssuedAt,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
