package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-device-auth/fingerprint"
	"github.com/goliatone/go-device-auth/issuer"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// MatchLoginInput attempts a passwordless login by matching the incoming
// request's classification against the user's known devices.
type MatchLoginInput struct {
	UserID   uuid.UUID
	Metadata types.DeviceMetadata
	// RequireMatch makes an unmatched request fail instead of falling back
	// to the OTP path.
	RequireMatch bool
	Actor        types.ActorRef
	Result       *MatchLoginResult
}

// Type implements gocommand.Message.
func (MatchLoginInput) Type() string {
	return "command.device.match_login"
}

// Validate implements gocommand.Message.
func (input MatchLoginInput) Validate() error {
	switch {
	case input.UserID == uuid.Nil:
		return ErrUserIDRequired
	case input.Metadata == (types.DeviceMetadata{}):
		return ErrMetadataRequired
	default:
		return nil
	}
}

// MatchLoginResult reports the matching outcome. When no device clears the
// gates RequiresOTP is set and the token fields stay nil.
type MatchLoginResult struct {
	Device      *types.Device
	DevicePair  *types.TokenPair
	UserPair    *types.TokenPair
	IPScore     float64
	MetaScore   float64
	InWindow    bool
	Trusted     bool
	RequiresOTP bool
}

// MatchLoginCommand scores known devices against the incoming request and,
// on a match, rotates the device pair and mints a user session without a
// presented credential.
type MatchLoginCommand struct {
	devices    types.DeviceRepository
	matcher    *fingerprint.Matcher
	deviceAuth *issuer.Issuer
	userAuth   *issuer.Issuer
	history    types.LoginHistoryRepository
	geo        types.GeoResolver
	runner     backgroundRunner
	gate       featuregate.FeatureGate
	threshold  int
	clock      types.Clock
	sink       types.AuditSink
	hooks      types.Hooks
	logger     types.Logger
}

// MatchLoginCommandConfig wires the match-login handler.
type MatchLoginCommandConfig struct {
	Devices        types.DeviceRepository
	Matcher        *fingerprint.Matcher
	DeviceIssuer   *issuer.Issuer
	UserIssuer     *issuer.Issuer
	History        types.LoginHistoryRepository
	Geo            types.GeoResolver
	Runner         backgroundRunner
	Gate           featuregate.FeatureGate
	TrustThreshold int
	Clock          types.Clock
	Audit          types.AuditSink
	Hooks          types.Hooks
	Logger         types.Logger
}

// NewMatchLoginCommand builds the handler.
func NewMatchLoginCommand(cfg MatchLoginCommandConfig) *MatchLoginCommand {
	return &MatchLoginCommand{
		devices:    cfg.Devices,
		matcher:    cfg.Matcher,
		deviceAuth: cfg.DeviceIssuer,
		userAuth:   cfg.UserIssuer,
		history:    cfg.History,
		geo:        cfg.Geo,
		runner:     cfg.Runner,
		gate:       cfg.Gate,
		threshold:  cfg.TrustThreshold,
		clock:      safeClock(cfg.Clock),
		sink:       safeAuditSink(cfg.Audit),
		hooks:      safeHooks(cfg.Hooks),
		logger:     safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[MatchLoginInput] = (*MatchLoginCommand)(nil)

// Execute scores the user's devices, rotates the best match's pair and
// reports whether an OTP challenge is still required.
func (c *MatchLoginCommand) Execute(ctx context.Context, input MatchLoginInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if c.devices == nil {
		return types.ErrMissingDeviceRepository
	}
	if c.matcher == nil || c.deviceAuth == nil || c.userAuth == nil {
		return types.ErrServiceNotReady
	}

	devices, err := c.devices.ListDevicesByUser(ctx, input.UserID)
	if err != nil {
		return err
	}
	match, err := c.matcher.MostSimilar(ctx, input.Metadata, devices)
	if err != nil {
		return err
	}
	if match == nil {
		if input.RequireMatch {
			return errNoCandidateDevice()
		}
		if input.Result != nil {
			input.Result.RequiresOTP = true
		}
		c.logger.Info("no device matched, falling back to challenge",
			"user_id", input.UserID.String(),
			"candidates", len(devices),
		)
		emitMatchHook(ctx, c.hooks, types.MatchEvent{
			UserID:     input.UserID,
			Matched:    false,
			OccurredAt: now(c.clock),
		})
		return nil
	}

	renewed, err := c.deviceAuth.RenewForDevice(ctx, match.Device)
	if err != nil {
		return err
	}
	userPair, err := c.userAuth.Issue(ctx, input.UserID)
	if err != nil {
		return err
	}

	trusted := renewed.Device.Trusted(c.threshold)
	requiresOTP := !trusted
	if trusted {
		skip, gateErr := featureEnabled(ctx, c.gate, featureMatchSkipOTP, input.UserID)
		if gateErr != nil {
			c.logger.Error("feature gate lookup failed", gateErr, "feature", featureMatchSkipOTP)
			skip = false
		}
		requiresOTP = !skip
	}

	occurredAt := now(c.clock)
	trackLogin(ctx, c.runner, c.history, c.geo, c.logger, renewed.Device.ID, input.Metadata.IP, occurredAt)

	record := types.AuditRecord{
		UserID:   input.UserID,
		DeviceID: renewed.Device.ID,
		ActorID:  input.Actor.ID,
		Verb:     "device.match",
		IP:       input.Metadata.IP,
		Data: map[string]any{
			"ip_score":       match.IPScore,
			"metadata_score": match.MetadataScore,
			"in_window":      renewed.InWindow,
			"trusted":        trusted,
			"requires_otp":   requiresOTP,
		},
		OccurredAt: occurredAt,
	}
	logAudit(ctx, c.sink, record)
	emitAuditHook(ctx, c.hooks, record)
	emitMatchHook(ctx, c.hooks, types.MatchEvent{
		UserID:     input.UserID,
		DeviceID:   renewed.Device.ID,
		Score:      match.Combined,
		Matched:    true,
		OccurredAt: occurredAt,
	})

	if input.Result != nil {
		device := renewed.Device
		input.Result.Device = &device
		input.Result.DevicePair = renewed.Pair
		input.Result.UserPair = userPair
		input.Result.IPScore = match.IPScore
		input.Result.MetaScore = match.MetadataScore
		input.Result.InWindow = renewed.InWindow
		input.Result.Trusted = trusted
		input.Result.RequiresOTP = requiresOTP
	}
	return nil
}
