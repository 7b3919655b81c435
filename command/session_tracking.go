package command

import (
	"context"
	"time"

	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// backgroundRunner is the slice of the task runner login commands need.
type backgroundRunner interface {
	Submit(name string, fn func(context.Context) error) bool
}

// trackLogin records the login event off the request path: geolocation
// lookup first (best-effort), then the history append. When no runner is
// configured the append happens inline, still without failing the login.
func trackLogin(ctx context.Context, runner backgroundRunner, history types.LoginHistoryRepository, geo types.GeoResolver, logger types.Logger, deviceID uuid.UUID, ip string, loginAt time.Time) {
	if history == nil || deviceID == uuid.Nil {
		return
	}
	record := func(taskCtx context.Context) error {
		entry := types.LoginHistoryEntry{
			DeviceID: deviceID,
			IP:       ip,
			LoginAt:  loginAt,
		}
		if geo != nil && ip != "" {
			location, err := geo.Lookup(taskCtx, ip)
			if err != nil {
				logger.Error("geolocation lookup failed", err, "device_id", deviceID.String())
			} else {
				entry.Location = location
			}
		}
		_, err := history.AppendLogin(taskCtx, entry)
		return err
	}
	if runner == nil {
		if err := record(context.WithoutCancel(ctx)); err != nil {
			logger.Error("login history append failed", err, "device_id", deviceID.String())
		}
		return
	}
	runner.Submit("device.login.history", record)
}
