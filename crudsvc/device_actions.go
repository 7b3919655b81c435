package crudsvc

import (
	"net/http"

	"github.com/goliatone/go-crud"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/crudguard"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// DeviceRevokeConfig wires the collaborators the revoke action touches.
type DeviceRevokeConfig struct {
	Guard   GuardAdapter
	Devices types.DeviceRepository
	Pairs   types.TokenPairRepository
	Ledger  types.RevocationLedger
	History types.LoginHistoryRepository
	Emitter AuditEmitter
	Clock   types.Clock
}

type deviceRevokePayload struct {
	DeviceID string `json:"device_id"`
}

// DeviceRevokeAction registers POST /devices/revoke to invalidate a device's
// stored token pair from admin surfaces, without requiring the raw token.
func DeviceRevokeAction(cfg DeviceRevokeConfig) crud.Action[*types.Device] {
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	return crud.Action[*types.Device]{
		Name:   "revoke",
		Method: http.MethodPost,
		Target: crud.ActionTargetCollection,
		Path:   "/devices/revoke",
		Handler: func(ctx crud.ActionContext[*types.Device]) error {
			if cfg.Devices == nil || cfg.Pairs == nil || cfg.Ledger == nil {
				return goerrors.New("device revoke action not configured", goerrors.CategoryInternal).WithCode(goerrors.CodeInternal)
			}
			var payload deviceRevokePayload
			if err := ctx.BodyParser(&payload); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid revoke payload").WithCode(goerrors.CodeBadRequest)
			}
			deviceID, err := uuid.Parse(payload.DeviceID)
			if err != nil {
				return goerrors.New("invalid device id", goerrors.CategoryValidation).WithCode(goerrors.CodeBadRequest)
			}
			res, err := cfg.Guard.Enforce(crudguard.GuardInput{
				Context:   ctx,
				Operation: crud.OpRead,
			})
			if err != nil {
				return err
			}

			reqCtx := ctx.UserContext()
			device, err := cfg.Devices.GetDevice(reqCtx, deviceID)
			if err != nil {
				return err
			}
			if device == nil {
				return goerrors.New("device not found", goerrors.CategoryNotFound).WithCode(goerrors.CodeNotFound)
			}
			if err := crudguard.EnforceOwnership(res.Actor, device.UserID); err != nil {
				return err
			}

			pair, err := cfg.Pairs.GetPairBySubject(reqCtx, types.SubjectDevice, deviceID)
			if err != nil {
				return err
			}
			if pair != nil {
				if err := cfg.Ledger.Blacklist(reqCtx, pair.AccessToken); err != nil {
					return err
				}
				if err := cfg.Pairs.DeletePairBySubject(reqCtx, types.SubjectDevice, deviceID); err != nil {
					return err
				}
			}
			occurredAt := clock.Now()
			if cfg.History != nil {
				if err := cfg.History.CloseActiveSession(reqCtx, deviceID, occurredAt); err != nil {
					return err
				}
			}
			if cfg.Emitter != nil {
				_ = cfg.Emitter.Emit(reqCtx, types.AuditRecord{
					UserID:     device.UserID,
					DeviceID:   deviceID,
					ActorID:    res.Actor.ID,
					Verb:       "device.revoke",
					Data:       map[string]any{"had_pair": pair != nil},
					OccurredAt: occurredAt,
				})
			}
			return ctx.Status(http.StatusOK).JSON(map[string]any{
				"device_id": deviceID.String(),
				"revoked":   pair != nil,
			})
		},
	}
}
