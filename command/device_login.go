package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/issuer"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// DeviceLoginInput logs a user in from a client presenting a device access
// token alongside their primary credentials.
type DeviceLoginInput struct {
	UserID      uuid.UUID
	AccessToken string
	Metadata    types.DeviceMetadata
	Actor       types.ActorRef
	Result      *DeviceLoginResult
}

// Type implements gocommand.Message.
func (DeviceLoginInput) Type() string {
	return "command.device.login"
}

// Validate implements gocommand.Message.
func (input DeviceLoginInput) Validate() error {
	switch {
	case input.UserID == uuid.Nil:
		return ErrUserIDRequired
	case strings.TrimSpace(input.AccessToken) == "":
		return ErrAccessTokenRequired
	default:
		return nil
	}
}

// DeviceLoginResult exposes the recognized device and the fresh user pair.
type DeviceLoginResult struct {
	Device   *types.Device
	UserPair *types.TokenPair
	Trusted  bool
}

// DeviceLoginCommand verifies a presented device credential, mints a fresh
// user-scoped pair, and records the login event off the request path.
type DeviceLoginCommand struct {
	devices    types.DeviceRepository
	deviceAuth *issuer.Issuer
	userAuth   *issuer.Issuer
	history    types.LoginHistoryRepository
	geo        types.GeoResolver
	runner     backgroundRunner
	threshold  int
	clock      types.Clock
	sink       types.AuditSink
	hooks      types.Hooks
	logger     types.Logger
}

// DeviceLoginCommandConfig wires the login handler.
type DeviceLoginCommandConfig struct {
	Devices        types.DeviceRepository
	DeviceIssuer   *issuer.Issuer
	UserIssuer     *issuer.Issuer
	History        types.LoginHistoryRepository
	Geo            types.GeoResolver
	Runner         backgroundRunner
	TrustThreshold int
	Clock          types.Clock
	Audit          types.AuditSink
	Hooks          types.Hooks
	Logger         types.Logger
}

// NewDeviceLoginCommand builds the handler.
func NewDeviceLoginCommand(cfg DeviceLoginCommandConfig) *DeviceLoginCommand {
	return &DeviceLoginCommand{
		devices:    cfg.Devices,
		deviceAuth: cfg.DeviceIssuer,
		userAuth:   cfg.UserIssuer,
		history:    cfg.History,
		geo:        cfg.Geo,
		runner:     cfg.Runner,
		threshold:  cfg.TrustThreshold,
		clock:      safeClock(cfg.Clock),
		sink:       safeAuditSink(cfg.Audit),
		hooks:      safeHooks(cfg.Hooks),
		logger:     safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[DeviceLoginInput] = (*DeviceLoginCommand)(nil)

// Execute validates the device credential, checks device ownership, and
// mints the session pair for the user.
func (c *DeviceLoginCommand) Execute(ctx context.Context, input DeviceLoginInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if c.devices == nil {
		return types.ErrMissingDeviceRepository
	}
	if c.deviceAuth == nil || c.userAuth == nil {
		return types.ErrServiceNotReady
	}

	claims, err := c.deviceAuth.VerifyAccess(ctx, input.AccessToken)
	if err != nil {
		return err
	}
	device, err := c.devices.GetDevice(ctx, claims.SubjectID)
	if err != nil {
		return err
	}
	if device == nil || device.UserID != input.UserID {
		return errNoCandidateDevice()
	}

	userPair, err := c.userAuth.Issue(ctx, input.UserID)
	if err != nil {
		return err
	}

	occurredAt := now(c.clock)
	trackLogin(ctx, c.runner, c.history, c.geo, c.logger, device.ID, input.Metadata.IP, occurredAt)

	record := types.AuditRecord{
		UserID:   input.UserID,
		DeviceID: device.ID,
		ActorID:  input.Actor.ID,
		Verb:     "device.login",
		IP:       input.Metadata.IP,
		Data: map[string]any{
			"device_type": string(device.Type),
			"trusted":     device.Trusted(c.threshold),
		},
		OccurredAt: occurredAt,
	}
	logAudit(ctx, c.sink, record)
	emitAuditHook(ctx, c.hooks, record)
	emitIssueHook(ctx, c.hooks, types.IssueEvent{
		Subject:    types.SubjectUser,
		SubjectID:  input.UserID,
		OccurredAt: occurredAt,
	})

	if input.Result != nil {
		input.Result.Device = device
		input.Result.UserPair = userPair
		input.Result.Trusted = device.Trusted(c.threshold)
	}
	return nil
}
