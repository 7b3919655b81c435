package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/goliatone/go-device-auth/trust"
	"github.com/google/uuid"
)

// TrustStatusFilter selects one device's trust posture.
type TrustStatusFilter struct {
	DeviceID uuid.UUID
	Actor    types.ActorRef
}

// Validate checks the filter's required fields.
func (f TrustStatusFilter) Validate() error {
	if f.DeviceID == uuid.Nil {
		return types.ErrDeviceIDRequired
	}
	return nil
}

// TrustStatus reports whether a device clears the trust threshold and
// whether its next renewal would land inside the grace window.
type TrustStatus struct {
	Device       types.Device
	Trusted      bool
	Threshold    int
	InWindow     bool
	RenewalCount int
}

// TrustStatusQuery combines the device record, its stored pair and the
// scorer into one admin-facing view.
type TrustStatusQuery struct {
	devices types.DeviceRepository
	pairs   types.TokenPairRepository
	scorer  *trust.Scorer
	logger  types.Logger
}

// NewTrustStatusQuery constructs the query helper.
func NewTrustStatusQuery(devices types.DeviceRepository, pairs types.TokenPairRepository, scorer *trust.Scorer, logger types.Logger) *TrustStatusQuery {
	return &TrustStatusQuery{
		devices: devices,
		pairs:   pairs,
		scorer:  scorer,
		logger:  safeLogger(logger),
	}
}

var _ gocommand.Querier[TrustStatusFilter, TrustStatus] = (*TrustStatusQuery)(nil)

// Query resolves the device and evaluates it against the scorer.
func (q *TrustStatusQuery) Query(ctx context.Context, filter TrustStatusFilter) (TrustStatus, error) {
	if q.devices == nil {
		return TrustStatus{}, types.ErrMissingDeviceRepository
	}
	if q.scorer == nil {
		return TrustStatus{}, types.ErrServiceNotReady
	}
	if err := filter.Validate(); err != nil {
		return TrustStatus{}, err
	}
	device, err := q.devices.GetDevice(ctx, filter.DeviceID)
	if err != nil {
		return TrustStatus{}, err
	}
	if device == nil {
		return TrustStatus{}, goerrors.New("device not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	inWindow := true
	if q.pairs != nil {
		pair, pairErr := q.pairs.GetPairBySubject(ctx, types.SubjectDevice, device.ID)
		if pairErr != nil {
			return TrustStatus{}, pairErr
		}
		if pair != nil {
			inWindow = q.scorer.InWindow(&pair.RefreshExpiresAt)
		}
	}
	return TrustStatus{
		Device:       *device,
		Trusted:      q.scorer.Trusted(*device),
		Threshold:    q.scorer.Threshold(),
		InWindow:     inWindow,
		RenewalCount: device.RenewalCount,
	}, nil
}
