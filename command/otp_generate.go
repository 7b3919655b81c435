package command

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/otp"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// OTPGenerateInput mints a verification code and dispatches it to the user's
// preferred contact channel.
type OTPGenerateInput struct {
	UserID  uuid.UUID
	Purpose types.OTPPurpose
	// Channel overrides the automatic channel selection when set.
	Channel types.DeliveryChannel
	Actor   types.ActorRef
	Result  *OTPGenerateResult
}

// Type implements gocommand.Message.
func (OTPGenerateInput) Type() string {
	return "command.otp.generate"
}

// Validate implements gocommand.Message.
func (input OTPGenerateInput) Validate() error {
	switch {
	case input.UserID == uuid.Nil:
		return ErrUserIDRequired
	case input.Purpose == "":
		return ErrOTPPurposeRequired
	default:
		return nil
	}
}

// OTPGenerateResult reports where the code went. The code itself never
// crosses the command boundary.
type OTPGenerateResult struct {
	Channel     types.DeliveryChannel
	Destination string
	Dispatched  bool
}

// OTPGenerateCommand produces a code via the lifecycle manager, resolves the
// destination from the account store and hands delivery to the sink off the
// request path.
type OTPGenerateCommand struct {
	manager  *otp.Manager
	accounts types.AccountRepository
	delivery types.DeliverySink
	links    types.VerifyLinkManager
	runner   backgroundRunner
	clock    types.Clock
	sink     types.AuditSink
	hooks    types.Hooks
	logger   types.Logger
}

// OTPGenerateCommandConfig wires the generation handler. Links is optional;
// when present, email deliveries carry a signed verification deep link.
type OTPGenerateCommandConfig struct {
	Manager  *otp.Manager
	Accounts types.AccountRepository
	Delivery types.DeliverySink
	Links    types.VerifyLinkManager
	Runner   backgroundRunner
	Clock    types.Clock
	Audit    types.AuditSink
	Hooks    types.Hooks
	Logger   types.Logger
}

// NewOTPGenerateCommand builds the handler.
func NewOTPGenerateCommand(cfg OTPGenerateCommandConfig) *OTPGenerateCommand {
	return &OTPGenerateCommand{
		manager:  cfg.Manager,
		accounts: cfg.Accounts,
		delivery: cfg.Delivery,
		links:    cfg.Links,
		runner:   cfg.Runner,
		clock:    safeClock(cfg.Clock),
		sink:     safeAuditSink(cfg.Audit),
		hooks:    safeHooks(cfg.Hooks),
		logger:   safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[OTPGenerateInput] = (*OTPGenerateCommand)(nil)

// Execute mints the code and dispatches it. Email wins when the account has
// both channels; phone verification forces SMS.
func (c *OTPGenerateCommand) Execute(ctx context.Context, input OTPGenerateInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if c.manager == nil {
		return types.ErrMissingOTPRepository
	}
	if c.accounts == nil {
		return types.ErrMissingAccountRepository
	}

	account, err := c.accounts.GetByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	if account == nil {
		return errNoAccount()
	}
	channel, destination, err := resolveChannel(input, *account)
	if err != nil {
		return err
	}

	slot, err := c.manager.Generate(ctx, input.UserID, input.Purpose)
	if err != nil {
		return err
	}

	delivery := types.Delivery{
		Channel:     channel,
		Destination: destination,
		Code:        slot.Code,
	}
	if channel == types.DeliveryChannelEmail && c.links != nil {
		link, linkErr := c.links.GenerateVerify(input.UserID, input.Purpose)
		if linkErr != nil {
			c.logger.Error("verification link generation failed", linkErr, "user_id", input.UserID.String())
		} else {
			delivery.Link = link
		}
	}
	dispatched := c.dispatch(ctx, delivery, input.UserID)

	occurredAt := now(c.clock)
	record := types.AuditRecord{
		UserID:  input.UserID,
		ActorID: input.Actor.ID,
		Verb:    "otp.generate",
		Data: map[string]any{
			"purpose": string(input.Purpose),
			"channel": string(channel),
		},
		OccurredAt: occurredAt,
	}
	logAudit(ctx, c.sink, record)
	emitAuditHook(ctx, c.hooks, record)
	emitOTPHook(ctx, c.hooks, types.OTPEvent{
		UserID:     input.UserID,
		Purpose:    input.Purpose,
		Action:     "generated",
		OccurredAt: occurredAt,
	})

	if input.Result != nil {
		input.Result.Channel = channel
		input.Result.Destination = destination
		input.Result.Dispatched = dispatched
	}
	return nil
}

// dispatch hands the delivery to the sink, through the runner when one is
// configured so provider latency stays off the request path.
func (c *OTPGenerateCommand) dispatch(ctx context.Context, delivery types.Delivery, userID uuid.UUID) bool {
	if c.delivery == nil {
		c.logger.Info("otp generated without delivery sink", "user_id", userID.String())
		return false
	}
	send := func(taskCtx context.Context) error {
		return c.delivery.Deliver(taskCtx, delivery)
	}
	if c.runner == nil {
		if err := send(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("otp delivery failed", err, "user_id", userID.String())
			return false
		}
		return true
	}
	return c.runner.Submit("otp.delivery", send)
}

// resolveChannel decides where the code goes. Verification purposes pin the
// channel to the contact being verified; login prefers email.
func resolveChannel(input OTPGenerateInput, account types.Account) (types.DeliveryChannel, string, error) {
	switch input.Channel {
	case types.DeliveryChannelEmail:
		if account.Email == "" {
			return "", "", errNoDestination(types.DeliveryChannelEmail)
		}
		return types.DeliveryChannelEmail, account.Email, nil
	case types.DeliveryChannelSMS:
		if account.Phone == "" {
			return "", "", errNoDestination(types.DeliveryChannelSMS)
		}
		return types.DeliveryChannelSMS, account.Phone, nil
	}
	if input.Purpose == types.OTPPurposePhoneVerification {
		if account.Phone == "" {
			return "", "", errNoDestination(types.DeliveryChannelSMS)
		}
		return types.DeliveryChannelSMS, account.Phone, nil
	}
	if account.Email != "" {
		return types.DeliveryChannelEmail, account.Email, nil
	}
	if account.Phone != "" {
		return types.DeliveryChannelSMS, account.Phone, nil
	}
	return "", "", errNoDestination(types.DeliveryChannelEmail)
}
