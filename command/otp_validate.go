package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/otp"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// OTPValidateInput checks a submitted verification code. DryRun leaves the
// slot untouched so the same code can be presented again on the commit step.
type OTPValidateInput struct {
	UserID  uuid.UUID
	Purpose types.OTPPurpose
	Code    string
	DryRun  bool
	Actor   types.ActorRef
	Result  *OTPValidateResult
}

// Type implements gocommand.Message.
func (OTPValidateInput) Type() string {
	return "command.otp.validate"
}

// Validate implements gocommand.Message.
func (input OTPValidateInput) Validate() error {
	switch {
	case input.UserID == uuid.Nil:
		return ErrUserIDRequired
	case input.Purpose == "":
		return ErrOTPPurposeRequired
	case strings.TrimSpace(input.Code) == "":
		return ErrOTPCodeRequired
	default:
		return nil
	}
}

// OTPValidateResult reports whether the code was consumed.
type OTPValidateResult struct {
	Consumed bool
}

// OTPValidateCommand validates a code through the lifecycle manager and
// audits the attempt either way.
type OTPValidateCommand struct {
	manager *otp.Manager
	clock   types.Clock
	sink    types.AuditSink
	hooks   types.Hooks
	logger  types.Logger
}

// OTPValidateCommandConfig wires the validation handler.
type OTPValidateCommandConfig struct {
	Manager *otp.Manager
	Clock   types.Clock
	Audit   types.AuditSink
	Hooks   types.Hooks
	Logger  types.Logger
}

// NewOTPValidateCommand builds the handler.
func NewOTPValidateCommand(cfg OTPValidateCommandConfig) *OTPValidateCommand {
	return &OTPValidateCommand{
		manager: cfg.Manager,
		clock:   safeClock(cfg.Clock),
		sink:    safeAuditSink(cfg.Audit),
		hooks:   safeHooks(cfg.Hooks),
		logger:  safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[OTPValidateInput] = (*OTPValidateCommand)(nil)

// Execute validates the code. Failed attempts are audited with the failure
// class before the error surfaces.
func (c *OTPValidateCommand) Execute(ctx context.Context, input OTPValidateInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if c.manager == nil {
		return types.ErrMissingOTPRepository
	}

	validateErr := c.manager.Validate(ctx, input.UserID, input.Purpose, input.Code, input.DryRun)

	occurredAt := now(c.clock)
	record := types.AuditRecord{
		UserID:  input.UserID,
		ActorID: input.Actor.ID,
		Verb:    "otp.validate",
		Data: map[string]any{
			"purpose": string(input.Purpose),
			"dry_run": input.DryRun,
			"outcome": validateOutcome(validateErr),
		},
		OccurredAt: occurredAt,
	}
	logAudit(ctx, c.sink, record)
	emitAuditHook(ctx, c.hooks, record)

	if validateErr != nil {
		return validateErr
	}

	if !input.DryRun {
		emitOTPHook(ctx, c.hooks, types.OTPEvent{
			UserID:     input.UserID,
			Purpose:    input.Purpose,
			Action:     "consumed",
			OccurredAt: occurredAt,
		})
	}
	if input.Result != nil {
		input.Result.Consumed = !input.DryRun
	}
	return nil
}

func validateOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case otp.IsSlotMissing(err):
		return "missing"
	case otp.IsExpired(err):
		return "expired"
	case otp.IsMismatch(err):
		return "mismatch"
	default:
		return "error"
	}
}
