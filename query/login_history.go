package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// LoginHistoryFilter selects a device's login trail.
type LoginHistoryFilter struct {
	DeviceID   uuid.UUID
	Actor      types.ActorRef
	Pagination types.Pagination
}

// Validate checks the filter's required fields.
func (f LoginHistoryFilter) Validate() error {
	if f.DeviceID == uuid.Nil {
		return types.ErrDeviceIDRequired
	}
	return nil
}

// LoginHistoryPage is one page of a device's login events, newest first.
type LoginHistoryPage struct {
	Items []types.LoginHistoryEntry
	Total int
}

// LoginHistoryQuery exposes a device's recorded logins.
type LoginHistoryQuery struct {
	repo   types.LoginHistoryRepository
	logger types.Logger
}

// NewLoginHistoryQuery constructs the query helper.
func NewLoginHistoryQuery(repo types.LoginHistoryRepository, logger types.Logger) *LoginHistoryQuery {
	return &LoginHistoryQuery{repo: repo, logger: safeLogger(logger)}
}

var _ gocommand.Querier[LoginHistoryFilter, LoginHistoryPage] = (*LoginHistoryQuery)(nil)

// Query delegates to the configured repository.
func (q *LoginHistoryQuery) Query(ctx context.Context, filter LoginHistoryFilter) (LoginHistoryPage, error) {
	if q.repo == nil {
		return LoginHistoryPage{}, types.ErrMissingLoginHistoryRepository
	}
	if err := filter.Validate(); err != nil {
		return LoginHistoryPage{}, err
	}
	items, total, err := q.repo.ListHistoryByDevice(ctx, filter.DeviceID, normalizePagination(filter.Pagination))
	if err != nil {
		return LoginHistoryPage{}, err
	}
	return LoginHistoryPage{Items: items, Total: total}, nil
}
