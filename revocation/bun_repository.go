package revocation

import (
	"context"
	"errors"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed revocation ledger.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Repository implements types.RevocationLedger using Bun.
type Repository struct {
	store repository.Repository[*Record]
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default revocation ledger.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("revocation: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
			NewRecord: func() *Record { return &Record{} },
			GetID: func(rec *Record) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *Record, id uuid.UUID) {
				if rec != nil {
					rec.ID = id
				}
			},
		})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	return &Repository{store: repo, db: db, clock: clock, idGen: idGen}, nil
}

var _ types.RevocationLedger = (*Repository)(nil)

// Blacklist appends the access token to the ledger. Re-blacklisting an
// already revoked token is a no-op so rotation retries stay safe.
func (r *Repository) Blacklist(ctx context.Context, accessToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return errors.New("revocation: access token required")
	}
	if r.db == nil {
		return errors.New("revocation: db required for blacklist")
	}
	rec := &Record{
		ID:          r.idGen.UUID(),
		AccessToken: accessToken,
		RevokedAt:   r.clock.Now(),
	}
	_, err := r.db.NewInsert().Model(rec).
		On("CONFLICT (access_token) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// IsBlacklisted reports whether the access token has been revoked.
func (r *Repository) IsBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return false, nil
	}
	_, err := r.store.Get(ctx, selectByToken(accessToken))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func selectByToken(accessToken string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("access_token = ?", accessToken)
	}
}
