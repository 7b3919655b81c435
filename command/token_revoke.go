package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-device-auth/codec"
	"github.com/goliatone/go-device-auth/issuer"
	"github.com/goliatone/go-device-auth/pkg/types"
)

// TokenRevokeInput invalidates the pair a token belongs to. The token may be
// either half of the pair and may already be expired.
type TokenRevokeInput struct {
	Token  string
	Actor  types.ActorRef
	Result *TokenRevokeResult
}

// Type implements gocommand.Message.
func (TokenRevokeInput) Type() string {
	return "command.token.revoke"
}

// Validate implements gocommand.Message.
func (input TokenRevokeInput) Validate() error {
	if strings.TrimSpace(input.Token) == "" {
		return ErrTokenRequired
	}
	return nil
}

// TokenRevokeResult reports which subject lost its pair.
type TokenRevokeResult struct {
	Subject   types.SubjectKind
	SubjectID string
}

// TokenRevokeCommand revokes a pair and, for device subjects, closes the
// device's active login session.
type TokenRevokeCommand struct {
	codec      *codec.Codec
	deviceAuth *issuer.Issuer
	userAuth   *issuer.Issuer
	history    types.LoginHistoryRepository
	clock      types.Clock
	sink       types.AuditSink
	hooks      types.Hooks
	logger     types.Logger
}

// TokenRevokeCommandConfig wires the revocation handler.
type TokenRevokeCommandConfig struct {
	Codec        *codec.Codec
	DeviceIssuer *issuer.Issuer
	UserIssuer   *issuer.Issuer
	History      types.LoginHistoryRepository
	Clock        types.Clock
	Audit        types.AuditSink
	Hooks        types.Hooks
	Logger       types.Logger
}

// NewTokenRevokeCommand builds the handler.
func NewTokenRevokeCommand(cfg TokenRevokeCommandConfig) *TokenRevokeCommand {
	return &TokenRevokeCommand{
		codec:      cfg.Codec,
		deviceAuth: cfg.DeviceIssuer,
		userAuth:   cfg.UserIssuer,
		history:    cfg.History,
		clock:      safeClock(cfg.Clock),
		sink:       safeAuditSink(cfg.Audit),
		hooks:      safeHooks(cfg.Hooks),
		logger:     safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[TokenRevokeInput] = (*TokenRevokeCommand)(nil)

// Execute decodes the token to learn its subject, revokes through the
// matching issuer and closes the login session for device subjects.
func (c *TokenRevokeCommand) Execute(ctx context.Context, input TokenRevokeInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if c.codec == nil {
		return types.ErrMissingSigningSecret
	}

	claims, err := c.codec.Decode(input.Token, true)
	if err != nil {
		return err
	}
	auth := c.deviceAuth
	if claims.Subject == types.SubjectUser {
		auth = c.userAuth
	}
	if auth == nil {
		return types.ErrServiceNotReady
	}
	if err := auth.Revoke(ctx, input.Token); err != nil {
		return err
	}

	occurredAt := now(c.clock)
	if claims.Subject == types.SubjectDevice && c.history != nil {
		if err := c.history.CloseActiveSession(ctx, claims.SubjectID, occurredAt); err != nil {
			c.logger.Error("login session close failed", err, "device_id", claims.SubjectID.String())
		}
	}

	record := types.AuditRecord{
		ActorID:    input.Actor.ID,
		Verb:       "token.revoke",
		Data:       map[string]any{"subject": string(claims.Subject)},
		OccurredAt: occurredAt,
	}
	if claims.Subject == types.SubjectUser {
		record.UserID = claims.SubjectID
	} else {
		record.DeviceID = claims.SubjectID
	}
	logAudit(ctx, c.sink, record)
	emitAuditHook(ctx, c.hooks, record)
	emitRevocationHook(ctx, c.hooks, types.RevocationEvent{
		Subject:    claims.Subject,
		SubjectID:  claims.SubjectID,
		OccurredAt: occurredAt,
	})

	if input.Result != nil {
		input.Result.Subject = claims.Subject
		input.Result.SubjectID = claims.SubjectID.String()
	}
	return nil
}
