package usertokens

import (
	"context"
	"errors"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed user pair store.
type RepositoryConfig struct {
	DB    *bun.DB
	Clock types.Clock
	IDGen types.IDGenerator
}

// Repository implements types.TokenPairRepository for user-scoped pairs.
type Repository struct {
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the user pair store.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.DB == nil {
		return nil, errors.New("usertokens: db required")
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

var _ types.TokenPairRepository = (*Repository)(nil)

// SavePair replaces the user's current pair. A colliding opaque value
// surfaces as a conflict the issuer can retry.
func (r *Repository) SavePair(ctx context.Context, pair types.TokenPair) (*types.TokenPair, error) {
	if pair.SubjectID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	now := r.clock.Now()
	rec := fromDomain(pair)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.NewInsert().Model(rec).
		On("CONFLICT (user_id) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("access_expires_at = EXCLUDED.access_expires_at").
		Set("refresh_expires_at = EXCLUDED.refresh_expires_at").
		Set("last_refresh_expiry = EXCLUDED.last_refresh_expiry").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return toDomain(rec), nil
}

// GetPairBySubject returns the user's current pair, or nil when none.
func (r *Repository) GetPairBySubject(ctx context.Context, subject types.SubjectKind, subjectID uuid.UUID) (*types.TokenPair, error) {
	if subjectID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := &Record{}
	err := r.db.NewSelect().Model(rec).Where("user_id = ?", subjectID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, ignoreNotFound(r.db, err)
	}
	return toDomain(rec), nil
}

// GetPairByValue returns the pair holding the opaque value, or nil when none.
func (r *Repository) GetPairByValue(ctx context.Context, value string) (*types.TokenPair, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	rec := &Record{}
	err := r.db.NewSelect().Model(rec).Where("value = ?", value).Limit(1).Scan(ctx)
	if err != nil {
		return nil, ignoreNotFound(r.db, err)
	}
	return toDomain(rec), nil
}

// ValueExists reports whether any stored pair already holds the value.
func (r *Repository) ValueExists(ctx context.Context, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	return r.db.NewSelect().Model((*Record)(nil)).Where("value = ?", value).Exists(ctx)
}

// DeletePairBySubject drops the user's current pair. Missing pairs are not
// an error so revocation stays idempotent.
func (r *Repository) DeletePairBySubject(ctx context.Context, subject types.SubjectKind, subjectID uuid.UUID) error {
	if subjectID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	_, err := r.db.NewDelete().Model((*Record)(nil)).Where("user_id = ?", subjectID).Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

func ignoreNotFound(db *bun.DB, err error) error {
	mapped := repository.MapDatabaseError(err, repository.DetectDriver(db))
	if repository.IsRecordNotFound(mapped) {
		return nil
	}
	return mapped
}

func fromDomain(pair types.TokenPair) *Record {
	return &Record{
		ID:                pair.ID,
		UserID:            pair.SubjectID,
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

func toDomain(rec *Record) *types.TokenPair {
	if rec == nil {
		return nil
	}
	return &types.TokenPair{
		ID:                rec.ID,
		Subject:           types.SubjectUser,
		SubjectID:         rec.UserID,
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
