package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/issuer"
	"github.com/goliatone/go-device-auth/pkg/types"
)

// TokenRenewInput rotates a token pair identified by its refresh token.
// RenewExpired opts in to accepting an expired refresh token, in which case
// the rotation becomes a fresh issue for the same subject.
type TokenRenewInput struct {
	Subject      types.SubjectKind
	RefreshToken string
	RenewExpired bool
	Actor        types.ActorRef
	Result       *TokenRenewResult
}

// Type implements gocommand.Message.
func (TokenRenewInput) Type() string {
	return "command.token.renew"
}

// Validate implements gocommand.Message.
func (input TokenRenewInput) Validate() error {
	if strings.TrimSpace(input.RefreshToken) == "" {
		return ErrRefreshTokenRequired
	}
	return nil
}

// TokenRenewResult carries the rotated pair.
type TokenRenewResult struct {
	Pair *types.TokenPair
}

// TokenRenewCommand dispatches a refresh-token rotation to the issuer for
// the requested subject kind.
type TokenRenewCommand struct {
	deviceAuth *issuer.Issuer
	userAuth   *issuer.Issuer
	clock      types.Clock
	sink       types.AuditSink
	hooks      types.Hooks
	logger     types.Logger
}

// TokenRenewCommandConfig wires the renewal handler.
type TokenRenewCommandConfig struct {
	DeviceIssuer *issuer.Issuer
	UserIssuer   *issuer.Issuer
	Clock        types.Clock
	Audit        types.AuditSink
	Hooks        types.Hooks
	Logger       types.Logger
}

// NewTokenRenewCommand builds the handler.
func NewTokenRenewCommand(cfg TokenRenewCommandConfig) *TokenRenewCommand {
	return &TokenRenewCommand{
		deviceAuth: cfg.DeviceIssuer,
		userAuth:   cfg.UserIssuer,
		clock:      safeClock(cfg.Clock),
		sink:       safeAuditSink(cfg.Audit),
		hooks:      safeHooks(cfg.Hooks),
		logger:     safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[TokenRenewInput] = (*TokenRenewCommand)(nil)

func (c *TokenRenewCommand) issuerFor(subject types.SubjectKind) *issuer.Issuer {
	if subject == types.SubjectUser {
		return c.userAuth
	}
	return c.deviceAuth
}

// Execute rotates the pair and reports the renewal through audit and hooks.
func (c *TokenRenewCommand) Execute(ctx context.Context, input TokenRenewInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	auth := c.issuerFor(input.Subject)
	if auth == nil {
		return types.ErrServiceNotReady
	}

	pair, err := auth.Renew(ctx, input.RefreshToken, input.RenewExpired)
	if err != nil {
		return err
	}

	occurredAt := now(c.clock)
	record := types.AuditRecord{
		ActorID:    input.Actor.ID,
		Verb:       "token.renew",
		Data:       map[string]any{"subject": string(pair.Subject)},
		OccurredAt: occurredAt,
	}
	if pair.Subject == types.SubjectUser {
		record.UserID = pair.SubjectID
	} else {
		record.DeviceID = pair.SubjectID
	}
	logAudit(ctx, c.sink, record)
	emitAuditHook(ctx, c.hooks, record)
	emitIssueHook(ctx, c.hooks, types.IssueEvent{
		Subject:    pair.Subject,
		SubjectID:  pair.SubjectID,
		Renewed:    true,
		OccurredAt: occurredAt,
	})

	if input.Result != nil {
		input.Result.Pair = pair
	}
	return nil
}
