package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/pkg/types"
)

// AuditTrailPage is one page of audit records, newest first.
type AuditTrailPage struct {
	Items []types.AuditRecord
	Total int
}

// AuditTrailQuery exposes the auth audit trail to admin surfaces.
type AuditTrailQuery struct {
	repo   types.AuditRepository
	logger types.Logger
}

// NewAuditTrailQuery constructs the query helper.
func NewAuditTrailQuery(repo types.AuditRepository, logger types.Logger) *AuditTrailQuery {
	return &AuditTrailQuery{repo: repo, logger: safeLogger(logger)}
}

var _ gocommand.Querier[types.AuditFilter, AuditTrailPage] = (*AuditTrailQuery)(nil)

// Query delegates to the configured repository after normalizing pagination.
func (q *AuditTrailQuery) Query(ctx context.Context, filter types.AuditFilter) (AuditTrailPage, error) {
	if q.repo == nil {
		return AuditTrailPage{}, types.ErrMissingAuditSink
	}
	filter.Pagination = normalizePagination(filter.Pagination)
	items, total, err := q.repo.ListAudit(ctx, filter)
	if err != nil {
		return AuditTrailPage{}, err
	}
	return AuditTrailPage{Items: items, Total: total}, nil
}
