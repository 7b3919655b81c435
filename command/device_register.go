package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/issuer"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/goliatone/go-device-auth/trust"
	"github.com/google/uuid"
)

// DeviceRegisterInput enrolls a new device for a user who just cleared a
// verification challenge.
type DeviceRegisterInput struct {
	UserID    uuid.UUID
	Name      string
	Metadata  types.DeviceMetadata
	Signature []byte
	Actor     types.ActorRef
	Result    *DeviceRegisterResult
}

// Type implements gocommand.Message.
func (DeviceRegisterInput) Type() string {
	return "command.device.register"
}

// Validate implements gocommand.Message.
func (input DeviceRegisterInput) Validate() error {
	if input.UserID == uuid.Nil {
		return ErrUserIDRequired
	}
	return nil
}

// DeviceRegisterResult exposes the created device and its first pair.
type DeviceRegisterResult struct {
	Device     *types.Device
	DevicePair *types.TokenPair
	Trusted    bool
}

// DeviceRegisterCommand creates the device record and mints its first token
// pair. A user's first device starts fully trusted; later devices start at
// the stranger score and earn trust through renewals.
type DeviceRegisterCommand struct {
	devices    types.DeviceRepository
	deviceAuth *issuer.Issuer
	scorer     *trust.Scorer
	history    types.LoginHistoryRepository
	geo        types.GeoResolver
	runner     backgroundRunner
	clock      types.Clock
	sink       types.AuditSink
	hooks      types.Hooks
	logger     types.Logger
}

// DeviceRegisterCommandConfig wires the registration handler.
type DeviceRegisterCommandConfig struct {
	Devices      types.DeviceRepository
	DeviceIssuer *issuer.Issuer
	Scorer       *trust.Scorer
	History      types.LoginHistoryRepository
	Geo          types.GeoResolver
	Runner       backgroundRunner
	Clock        types.Clock
	Audit        types.AuditSink
	Hooks        types.Hooks
	Logger       types.Logger
}

// NewDeviceRegisterCommand builds the handler.
func NewDeviceRegisterCommand(cfg DeviceRegisterCommandConfig) *DeviceRegisterCommand {
	return &DeviceRegisterCommand{
		devices:    cfg.Devices,
		deviceAuth: cfg.DeviceIssuer,
		scorer:     cfg.Scorer,
		history:    cfg.History,
		geo:        cfg.Geo,
		runner:     cfg.Runner,
		clock:      safeClock(cfg.Clock),
		sink:       safeAuditSink(cfg.Audit),
		hooks:      safeHooks(cfg.Hooks),
		logger:     safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[DeviceRegisterInput] = (*DeviceRegisterCommand)(nil)

// Execute creates the device, assigns its starting trust score and issues
// its first token pair.
func (c *DeviceRegisterCommand) Execute(ctx context.Context, input DeviceRegisterInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if c.devices == nil {
		return types.ErrMissingDeviceRepository
	}
	if c.deviceAuth == nil || c.scorer == nil {
		return types.ErrServiceNotReady
	}

	count, err := c.devices.CountDevicesByUser(ctx, input.UserID)
	if err != nil {
		return err
	}
	score := c.scorer.InitialStrangerScore()
	if count == 0 {
		score = types.TrustScoreMax
	}

	device, err := c.devices.CreateDevice(ctx, types.Device{
		UserID:        input.UserID,
		Name:          input.Name,
		Type:          types.NormalizeDeviceType(string(input.Metadata.DeviceType)),
		ClientVersion: input.Metadata.ClientVersion,
		OSVersion:     input.Metadata.OSVersion,
		UserAgent:     input.Metadata.UserAgent,
		Signature:     input.Signature,
		TrustScore:    score,
	})
	if err != nil {
		return err
	}

	pair, err := c.deviceAuth.Issue(ctx, device.ID)
	if err != nil {
		return err
	}

	occurredAt := now(c.clock)
	trackLogin(ctx, c.runner, c.history, c.geo, c.logger, device.ID, input.Metadata.IP, occurredAt)

	record := types.AuditRecord{
		UserID:   input.UserID,
		DeviceID: device.ID,
		ActorID:  input.Actor.ID,
		Verb:     "device.register",
		IP:       input.Metadata.IP,
		Data: map[string]any{
			"device_type": string(device.Type),
			"trust_score": device.TrustScore,
			"first":       count == 0,
		},
		OccurredAt: occurredAt,
	}
	logAudit(ctx, c.sink, record)
	emitAuditHook(ctx, c.hooks, record)
	emitIssueHook(ctx, c.hooks, types.IssueEvent{
		Subject:    types.SubjectDevice,
		SubjectID:  device.ID,
		OccurredAt: occurredAt,
	})

	if input.Result != nil {
		input.Result.Device = device
		input.Result.DevicePair = pair
		input.Result.Trusted = device.Trusted(c.scorer.Threshold())
	}
	return nil
}
