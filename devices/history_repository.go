package devices

import (
	"context"
	"errors"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// HistoryRepositoryConfig wires the Bun-backed login history store.
type HistoryRepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*HistoryRecord]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type historyStore interface {
	repository.Repository[*HistoryRecord]
}

// HistoryRepository implements types.LoginHistoryRepository using Bun.
type HistoryRepository struct {
	historyStore
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewHistoryRepository constructs the default login history repository.
func NewHistoryRepository(cfg HistoryRepositoryConfig) (*HistoryRepository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("devices: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*HistoryRecord]{
			NewRecord: func() *HistoryRecord { return &HistoryRecord{} },
			GetID: func(rec *HistoryRecord) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *HistoryRecord, id uuid.UUID) {
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
	return &HistoryRepository{historyStore: repo, db: db, clock: clock, idGen: idGen}, nil
}

var (
	_ repository.Repository[*HistoryRecord] = (*HistoryRepository)(nil)
	_ types.LoginHistoryRepository          = (*HistoryRepository)(nil)
)

// AppendLogin records one login event for a device.
func (r *HistoryRepository) AppendLogin(ctx context.Context, entry types.LoginHistoryEntry) (*types.LoginHistoryEntry, error) {
	if entry.DeviceID == uuid.Nil {
		return nil, types.ErrDeviceIDRequired
	}
	rec := historyFromDomain(entry)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.LoginAt.IsZero() {
		rec.LoginAt = r.clock.Now()
	}
	created, err := r.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return historyToDomain(created), nil
}

// CloseActiveSession stamps the logout time on the device's open session.
// Devices with no open session are left untouched.
func (r *HistoryRepository) CloseActiveSession(ctx context.Context, deviceID uuid.UUID, logoutAt time.Time) error {
	if deviceID == uuid.Nil {
		return types.ErrDeviceIDRequired
	}
	if r.db == nil {
		return errors.New("devices: db required for updates")
	}
	_, err := r.db.NewUpdate().Model((*HistoryRecord)(nil)).
		Set("logout_at = ?", logoutAt).
		Where("device_id = ?", deviceID).
		Where("logout_at IS NULL").
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// ListIPsByDevice returns every recorded login IP for the device, oldest
// first. Duplicates are kept: repeat logins from one address weight the
// fingerprint score.
func (r *HistoryRepository) ListIPsByDevice(ctx context.Context, deviceID uuid.UUID) ([]string, error) {
	if deviceID == uuid.Nil {
		return nil, types.ErrDeviceIDRequired
	}
	rows, _, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("device_id = ?", deviceID).
			Where("ip IS NOT NULL AND ip != ''").
			OrderExpr("login_at ASC")
	})
	if err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(rows))
	for _, row := range rows {
		ips = append(ips, row.IP)
	}
	return ips, nil
}

// ListHistoryByDevice returns the device's login feed, newest first.
func (r *HistoryRepository) ListHistoryByDevice(ctx context.Context, deviceID uuid.UUID, pagination types.Pagination) ([]types.LoginHistoryEntry, int, error) {
	if deviceID == uuid.Nil {
		return nil, 0, types.ErrDeviceIDRequired
	}
	pagination = normalizePagination(pagination, 50, 200)
	rows, total, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("device_id = ?", deviceID).
			OrderExpr("login_at DESC").
			Limit(pagination.Limit).
			Offset(pagination.Offset)
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]types.LoginHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, *historyToDomain(row))
	}
	return out, total, nil
}

func historyFromDomain(entry types.LoginHistoryEntry) *HistoryRecord {
	return &HistoryRecord{
		ID:       entry.ID,
		DeviceID: entry.DeviceID,
		IP:       entry.IP,
		Location: entry.Location,
		LoginAt:  entry.LoginAt,
		LogoutAt: entry.LogoutAt,
	}
}

func historyToDomain(rec *HistoryRecord) *types.LoginHistoryEntry {
	if rec == nil {
		return nil
	}
	return &types.LoginHistoryEntry{
		ID:       rec.ID,
		DeviceID: rec.DeviceID,
		IP:       rec.IP,
		Location: rec.Location,
		LoginAt:  rec.LoginAt,
		LogoutAt: rec.LogoutAt,
	}
}

func normalizePagination(p types.Pagination, def, max int) types.Pagination {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
