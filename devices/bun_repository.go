package devices

import (
	"context"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed device repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type deviceStore interface {
	repository.Repository[*Record]
}

// Repository implements types.DeviceRepository and the transactional pair
// rotation used by known-device renewals.
type Repository struct {
	deviceStore
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default device repository, optionally wrapped
// with the repository cache decorator.
func NewRepository(cfg RepositoryConfig, options ...RepositoryOption) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("devices: db or repository required")
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

	opts := applyRepositoryOptions(options)
	if opts.CacheEnabled {
		if _, ok := repo.(*repositorycache.CachedRepository[*Record]); !ok {
			cacheConfig := cache.DefaultConfig()
			if opts.CacheConfig != nil {
				cacheConfig = *opts.CacheConfig
			}
			cacheService, err := cache.NewCacheService(cacheConfig)
			if err != nil {
				return nil, err
			}
			repo = repositorycache.New(repo, cacheService, cache.NewDefaultKeySerializer())
		}
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
	return &Repository{deviceStore: repo, db: db, clock: clock, idGen: idGen}, nil
}

var (
	_ repository.Repository[*Record] = (*Repository)(nil)
	_ types.DeviceRepository         = (*Repository)(nil)
	_ types.DevicePairRotator        = (*Repository)(nil)
)

// CreateDevice persists a device record.
func (r *Repository) CreateDevice(ctx context.Context, device types.Device) (*types.Device, error) {
	if device.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := fromDomain(device)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	now := r.clock.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.DeviceType == "" {
		rec.DeviceType = string(types.DeviceTypeUndefined)
	}
	created, err := r.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

// GetDevice returns the device by id, or nil when it does not exist.
func (r *Repository) GetDevice(ctx context.Context, id uuid.UUID) (*types.Device, error) {
	if id == uuid.Nil {
		return nil, types.ErrDeviceIDRequired
	}
	rec, err := r.Get(ctx, selectByID(id))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// ListDevicesByUser returns every device registered to the user, oldest first.
func (r *Repository) ListDevicesByUser(ctx context.Context, userID uuid.UUID) ([]types.Device, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rows, _, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID).OrderExpr("created_at ASC")
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.Device, 0, len(rows))
	for _, row := range rows {
		out = append(out, *toDomain(row))
	}
	return out, nil
}

// CountDevicesByUser returns how many devices the user has registered.
func (r *Repository) CountDevicesByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, types.ErrUserIDRequired
	}
	_, total, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// RotateDevicePair persists the trust-counter update and the pair
// replacement of one renewal in a single transaction. A failure rolls both
// writes back, so trust counters never drift from the stored pair.
func (r *Repository) RotateDevicePair(ctx context.Context, device types.Device, pair types.TokenPair) (*types.TokenPair, error) {
	if r.db == nil {
		return nil, errors.New("devices: db required for pair rotation")
	}
	if device.ID == uuid.Nil {
		return nil, types.ErrDeviceIDRequired
	}
	now := r.clock.Now()
	rec := pairFromDomain(pair)
	rec.DeviceID = device.ID
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*Record)(nil)).
			Set("trust_score = ?", device.TrustScore).
			Set("renewal_count = ?", device.RenewalCount).
			Set("updated_at = ?", now).
			Where("id = ?", device.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := repository.SQLExpectedCount(res, 1); err != nil {
			return err
		}
		return upsertPair(ctx, tx, rec)
	})
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return pairToDomain(rec), nil
}

func selectByID(id uuid.UUID) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", id)
	}
}

func fromDomain(device types.Device) *Record {
	return &Record{
		ID:            device.ID,
		UserID:        device.UserID,
		Name:          device.Name,
		DeviceType:    string(device.Type),
		ClientVersion: device.ClientVersion,
		OSVersion:     device.OSVersion,
		UserAgent:     device.UserAgent,
		Signature:     device.Signature,
		TrustScore:    device.TrustScore,
		RenewalCount:  device.RenewalCount,
		CreatedAt:     device.CreatedAt,
		UpdatedAt:     device.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.Device {
	if rec == nil {
		return nil
	}
	return &types.Device{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Name:          rec.Name,
		Type:          types.DeviceType(rec.DeviceType),
		ClientVersion: rec.ClientVersion,
		OSVersion:     rec.OSVersion,
		UserAgent:     rec.UserAgent,
		Signature:     rec.Signature,
		TrustScore:    rec.TrustScore,
		RenewalCount:  rec.RenewalCount,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
