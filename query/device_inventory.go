package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// DeviceInventoryFilter selects a user's devices for admin dashboards.
type DeviceInventoryFilter struct {
	UserID     uuid.UUID
	Actor      types.ActorRef
	Pagination types.Pagination
}

// Validate checks the filter's required fields.
func (f DeviceInventoryFilter) Validate() error {
	if f.UserID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	return nil
}

// DeviceInventoryPage is one page of a user's devices.
type DeviceInventoryPage struct {
	Items []types.Device
	Total int
}

// DeviceInventoryQuery lists a user's enrolled devices. Per-user device
// counts are small so pagination is applied over the full listing.
type DeviceInventoryQuery struct {
	repo   types.DeviceRepository
	logger types.Logger
}

// NewDeviceInventoryQuery constructs the query helper.
func NewDeviceInventoryQuery(repo types.DeviceRepository, logger types.Logger) *DeviceInventoryQuery {
	return &DeviceInventoryQuery{repo: repo, logger: safeLogger(logger)}
}

var _ gocommand.Querier[DeviceInventoryFilter, DeviceInventoryPage] = (*DeviceInventoryQuery)(nil)

// Query delegates to the configured repository after normalizing pagination.
func (q *DeviceInventoryQuery) Query(ctx context.Context, filter DeviceInventoryFilter) (DeviceInventoryPage, error) {
	if q.repo == nil {
		return DeviceInventoryPage{}, types.ErrMissingDeviceRepository
	}
	if err := filter.Validate(); err != nil {
		return DeviceInventoryPage{}, err
	}
	devices, err := q.repo.ListDevicesByUser(ctx, filter.UserID)
	if err != nil {
		return DeviceInventoryPage{}, err
	}
	pagination := normalizePagination(filter.Pagination)
	return DeviceInventoryPage{
		Items: pageOf(devices, pagination),
		Total: len(devices),
	}, nil
}

func normalizePagination(p types.Pagination) types.Pagination {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func pageOf[T any](items []T, p types.Pagination) []T {
	if p.Offset >= len(items) {
		return nil
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}
