package devices

import (
	"context"
	"errors"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PairRepositoryConfig wires the Bun-backed device pair store.
type PairRepositoryConfig struct {
	DB    *bun.DB
	Clock types.Clock
	IDGen types.IDGenerator
}

// PairRepository implements types.TokenPairRepository for device-scoped
// pairs. One row per device, replaced in place on rotation.
type PairRepository struct {
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewPairRepository constructs the device pair store.
func NewPairRepository(cfg PairRepositoryConfig) (*PairRepository, error) {
	if cfg.DB == nil {
		return nil, errors.New("devices: db required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	return &PairRepository{db: cfg.DB, clock: clock, idGen: idGen}, nil
}

var _ types.TokenPairRepository = (*PairRepository)(nil)

// SavePair replaces the device's current pair. The value unique index makes
// a colliding opaque value surface as a conflict the issuer can retry.
func (r *PairRepository) SavePair(ctx context.Context, pair types.TokenPair) (*types.TokenPair, error) {
	if pair.SubjectID == uuid.Nil {
		return nil, types.ErrDeviceIDRequired
	}
	now := r.clock.Now()
	rec := pairFromDomain(pair)
	rec.DeviceID = pair.SubjectID
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := upsertPair(ctx, r.db, rec); err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return pairToDomain(rec), nil
}

// GetPairBySubject returns the device's current pair, or nil when none.
func (r *PairRepository) GetPairBySubject(ctx context.Context, subject types.SubjectKind, subjectID uuid.UUID) (*types.TokenPair, error) {
	if subjectID == uuid.Nil {
		return nil, types.ErrDeviceIDRequired
	}
	rec := &PairRecord{}
	err := r.db.NewSelect().Model(rec).Where("device_id = ?", subjectID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, ignoreNotFound(r.db, err)
	}
	return pairToDomain(rec), nil
}

// GetPairByValue returns the pair holding the opaque value, or nil when none.
func (r *PairRepository) GetPairByValue(ctx context.Context, value string) (*types.TokenPair, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	rec := &PairRecord{}
	err := r.db.NewSelect().Model(rec).Where("value = ?", value).Limit(1).Scan(ctx)
	if err != nil {
		return nil, ignoreNotFound(r.db, err)
	}
	return pairToDomain(rec), nil
}

// ValueExists reports whether any stored pair already holds the value.
func (r *PairRepository) ValueExists(ctx context.Context, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	return r.db.NewSelect().Model((*PairRecord)(nil)).Where("value = ?", value).Exists(ctx)
}

// DeletePairBySubject drops the device's current pair. Missing pairs are
// not an error so revocation stays idempotent.
func (r *PairRepository) DeletePairBySubject(ctx context.Context, subject types.SubjectKind, subjectID uuid.UUID) error {
	if subjectID == uuid.Nil {
		return types.ErrDeviceIDRequired
	}
	_, err := r.db.NewDelete().Model((*PairRecord)(nil)).Where("device_id = ?", subjectID).Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// upsertPair writes the pair row, overwriting the device's previous pair.
func upsertPair(ctx context.Context, db bun.IDB, rec *PairRecord) error {
	_, err := db.NewInsert().Model(rec).
		On("CONFLICT (device_id) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("access_expires_at = EXCLUDED.access_expires_at").
		Set("refresh_expires_at = EXCLUDED.refresh_expires_at").
		Set("last_refresh_expiry = EXCLUDED.last_refresh_expiry").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func ignoreNotFound(db *bun.DB, err error) error {
	mapped := repository.MapDatabaseError(err, repository.DetectDriver(db))
	if repository.IsRecordNotFound(mapped) {
		return nil
	}
	return mapped
}

func pairFromDomain(pair types.TokenPair) *PairRecord {
	return &PairRecord{
		ID:                pair.ID,
		DeviceID:          pair.SubjectID,
		Value:             pair.Value,
		AccessToken:       pair.AccessToken,
		RefreshToken:      pair.RefreshToken,
		AccessExpiresAt:   pair.AccessExpiresAt,
		RefreshExpiresAt:  pair.RefreshExpiresAt,
		LastRefreshExpiry: pair.LastRefreshExpiry,
		CreatedAt:         pair.CreatedAt,
		UpdatedAt:         pair.UpdatedAt,
	}
}

func pairToDomain(rec *PairRecord) *types.TokenPair {
	if rec == nil {
		return nil
	}
	return &types.TokenPair{
		ID:                rec.ID,
		Subject:           types.SubjectDevice,
		SubjectID:         rec.DeviceID,
		Value:             rec.Value,
		AccessToken:       rec.AccessToken,
		RefreshToken:      rec.RefreshToken,
		AccessExpiresAt:   rec.AccessExpiresAt,
		RefreshExpiresAt:  rec.RefreshExpiresAt,
		LastRefreshExpiry: rec.LastRefreshExpiry,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}
