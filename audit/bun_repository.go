package audit

import (
	"context"
	"errors"

	"github.com/goliatone/go-masker"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed audit trail.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*LogEntry]
	Clock      types.Clock
	IDGen      types.IDGenerator
	Masker     *masker.Masker
}

type auditStore interface {
	repository.Repository[*LogEntry]
}

// Repository persists audit records and exposes the read side. Every write
// passes through the sanitizer first.
type Repository struct {
	auditStore
	clock types.Clock
	idGen types.IDGenerator
	mask  *masker.Masker
}

// NewRepository constructs a repository implementing both AuditSink and
// AuditRepository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("audit: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*LogEntry]{
			NewRecord: func() *LogEntry { return &LogEntry{} },
			GetID: func(entry *LogEntry) uuid.UUID {
				if entry == nil {
					return uuid.Nil
				}
				return entry.ID
			},
			SetID: func(entry *LogEntry, id uuid.UUID) {
				if entry != nil {
					entry.ID = id
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
	mask := cfg.Masker
	if mask == nil {
		mask = DefaultMasker()
	}
	return &Repository{auditStore: repo, clock: clock, idGen: idGen, mask: mask}, nil
}

var (
	_ repository.Repository[*LogEntry] = (*Repository)(nil)
	_ types.AuditSink                  = (*Repository)(nil)
	_ types.AuditRepository            = (*Repository)(nil)
)

// Log sanitizes and persists an audit record.
func (r *Repository) Log(ctx context.Context, record types.AuditRecord) error {
	record = SanitizeRecord(r.mask, record)
	entry := toLogEntry(record)
	if entry.ID == uuid.Nil {
		entry.ID = r.idGen.UUID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	_, err := r.Create(ctx, entry)
	return err
}

// ListAudit returns a paginated audit feed, newest first.
func (r *Repository) ListAudit(ctx context.Context, filter types.AuditFilter) ([]types.AuditRecord, int, error) {
	pagination := normalizePagination(filter.Pagination, 50, 200)
	rows, total, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.OrderExpr("created_at DESC").
			Limit(pagination.Limit).
			Offset(pagination.Offset)
		return applyAuditFilter(q, filter)
	})
	if err != nil {
		return nil, 0, err
	}
	records := make([]types.AuditRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toAuditRecord(row))
	}
	return records, total, nil
}

func applyAuditFilter(q *bun.SelectQuery, filter types.AuditFilter) *bun.SelectQuery {
	if filter.UserID != uuid.Nil {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.DeviceID != uuid.Nil {
		q = q.Where("device_id = ?", filter.DeviceID)
	}
	if len(filter.Verbs) > 0 {
		q = q.Where("verb IN (?)", bun.In(filter.Verbs))
	}
	if filter.Since != nil && !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Until != nil && !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	return q
}

func toLogEntry(record types.AuditRecord) *LogEntry {
	return &LogEntry{
		ID:        record.ID,
		UserID:    record.UserID,
		DeviceID:  record.DeviceID,
		ActorID:   record.ActorID,
		Verb:      record.Verb,
		IP:        record.IP,
		Data:      cloneStringMap(record.Data),
		CreatedAt: record.OccurredAt,
	}
}

func toAuditRecord(entry *LogEntry) types.AuditRecord {
	if entry == nil {
		return types.AuditRecord{}
	}
	return types.AuditRecord{
		ID:         entry.ID,
		UserID:     entry.UserID,
		DeviceID:   entry.DeviceID,
		ActorID:    entry.ActorID,
		Verb:       entry.Verb,
		IP:         entry.IP,
		Data:       cloneStringMap(entry.Data),
		OccurredAt: entry.CreatedAt,
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
