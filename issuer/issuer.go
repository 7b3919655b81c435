package issuer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-device-auth/codec"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/goliatone/go-device-auth/trust"
	"github.com/google/uuid"
)

const (
	textCodeTokenRevoked       = "TOKEN_REVOKED"
	textCodeTokenInvalid       = "TOKEN_INVALID"
	textCodeRefreshExpired     = "REFRESH_TOKEN_EXPIRED"
	textCodeRetryExhausted     = "UNIQUENESS_RETRY_EXHAUSTED"
	textCodePersistenceFailure = "DEVICE_PERSISTENCE_FAILURE"
)

// DefaultRetryLimit bounds the opaque-value uniqueness loop.
const DefaultRetryLimit = 20

// Config wires one issuer for one subject kind. Rotator and Scorer are only
// consulted for device-scoped renewals; user issuers leave them nil.
type Config struct {
	Subject    types.SubjectKind
	Codec      *codec.Codec
	Pairs      types.TokenPairRepository
	Ledger     types.RevocationLedger
	Rotator    types.DevicePairRotator
	Scorer     *trust.Scorer
	RetryLimit int
	Clock      types.Clock
	Logger     types.Logger
}

func normalizeConfig(cfg Config) Config {
	if cfg.Subject == "" {
		cfg.Subject = types.SubjectDevice
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	return cfg
}

// Issuer mints, rotates, verifies and revokes token pairs for one subject
// kind. Every pair carries a globally unique opaque value shared by both
// halves; revoking by value therefore covers the pair.
type Issuer struct {
	subject    types.SubjectKind
	codec      *codec.Codec
	pairs      types.TokenPairRepository
	ledger     types.RevocationLedger
	rotator    types.DevicePairRotator
	scorer     *trust.Scorer
	retryLimit int
	clock      types.Clock
	logger     types.Logger
}

// New builds an Issuer, failing when a required collaborator is missing.
func New(cfg Config) (*Issuer, error) {
	if cfg.Codec == nil {
		return nil, types.ErrMissingSigningSecret
	}
	if cfg.Pairs == nil {
		return nil, types.ErrMissingPairStore
	}
	if cfg.Ledger == nil {
		return nil, types.ErrMissingRevocationLedger
	}
	cfg = normalizeConfig(cfg)
	return &Issuer{
		subject:    cfg.Subject,
		codec:      cfg.Codec,
		pairs:      cfg.Pairs,
		ledger:     cfg.Ledger,
		rotator:    cfg.Rotator,
		scorer:     cfg.Scorer,
		retryLimit: cfg.RetryLimit,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}, nil
}

// Subject exposes the subject kind this issuer serves.
func (i *Issuer) Subject() types.SubjectKind { return i.subject }

// Issue mints a fresh pair for the subject, replacing any stored one. The
// superseded access token is blacklisted best-effort.
func (i *Issuer) Issue(ctx context.Context, subjectID uuid.UUID) (*types.TokenPair, error) {
	old, err := i.pairs.GetPairBySubject(ctx, i.subject, subjectID)
	if err != nil {
		return nil, err
	}
	saved, err := i.mintAndSave(ctx, subjectID, nil, "token pair persistence failed", i.pairs.SavePair)
	if err != nil {
		return nil, err
	}
	if old != nil {
		i.blacklistQuietly(ctx, old.AccessToken)
	}
	return saved, nil
}

// Renew rotates the pair identified by a refresh token. The new pair records
// the superseded refresh expiry so the next grace-window check has its
// anchor. With renewExpired set, an expired but authentic refresh token is
// accepted and treated as a fresh issue; otherwise expiry is terminal.
func (i *Issuer) Renew(ctx context.Context, refreshToken string, renewExpired bool) (*types.TokenPair, error) {
	claims, err := i.codec.Verify(refreshToken)
	if err != nil {
		if codec.IsExpired(err) {
			if renewExpired {
				return i.reissueExpired(ctx, refreshToken)
			}
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "refresh token expired").
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(textCodeRefreshExpired)
		}
		return nil, err
	}
	old, err := i.pairs.GetPairByValue(ctx, claims.Value)
	if err != nil {
		return nil, err
	}
	if old == nil || old.RefreshToken != refreshToken {
		return nil, goerrors.New("refresh token does not match stored pair", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}

	saved, err := i.mintAndSave(ctx, old.SubjectID, &old.RefreshExpiresAt, "token pair persistence failed", i.pairs.SavePair)
	if err != nil {
		return nil, err
	}
	i.blacklistQuietly(ctx, old.AccessToken)
	return saved, nil
}

// reissueExpired handles the opt-in renew-expired path. The signature still
// has to check out and the token must match the stored pair, so a forged or
// already-superseded token cannot reopen a session. The replacement pair is
// a fresh issue with no grace-window anchor.
func (i *Issuer) reissueExpired(ctx context.Context, refreshToken string) (*types.TokenPair, error) {
	claims, err := i.codec.Decode(refreshToken, true)
	if err != nil {
		return nil, err
	}
	old, err := i.pairs.GetPairByValue(ctx, claims.Value)
	if err != nil {
		return nil, err
	}
	if old == nil || old.RefreshToken != refreshToken {
		return nil, goerrors.New("refresh token does not match stored pair", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}
	return i.Issue(ctx, old.SubjectID)
}

// RenewResult reports a known-device renewal outcome.
type RenewResult struct {
	Pair     *types.TokenPair
	Device   types.Device
	InWindow bool
}

// RenewForDevice rotates a fingerprint-matched device's pair without a
// presented credential. The trust-counter update and the pair replacement
// commit in one transaction; the superseded access token is blacklisted
// best-effort afterwards.
func (i *Issuer) RenewForDevice(ctx context.Context, device types.Device) (*RenewResult, error) {
	if i.rotator == nil || i.scorer == nil {
		return nil, types.ErrServiceNotReady
	}
	old, err := i.pairs.GetPairBySubject(ctx, types.SubjectDevice, device.ID)
	if err != nil {
		return nil, err
	}
	var anchor *time.Time
	if old != nil {
		anchor = &old.RefreshExpiresAt
	}
	inWindow := i.scorer.Apply(&device, anchor)

	saved, err := i.mintAndSave(ctx, device.ID, anchor, "device renewal persistence failed",
		func(ctx context.Context, pair types.TokenPair) (*types.TokenPair, error) {
			return i.rotator.RotateDevicePair(ctx, device, pair)
		})
	if err != nil {
		return nil, err
	}
	if old != nil {
		i.blacklistQuietly(ctx, old.AccessToken)
	}
	return &RenewResult{Pair: saved, Device: device, InWindow: inWindow}, nil
}

// VerifyAccess validates a presented access token against the codec, the
// revocation ledger and the stored pair. Expired access tokens are pushed
// onto the ledger before the expiry error surfaces.
func (i *Issuer) VerifyAccess(ctx context.Context, accessToken string) (*types.TokenClaims, error) {
	claims, err := i.codec.Verify(accessToken)
	if err != nil {
		if codec.IsExpired(err) {
			i.blacklistQuietly(ctx, accessToken)
		}
		return nil, err
	}
	revoked, err := i.ledger.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, goerrors.New("token revoked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenRevoked)
	}
	pair, err := i.pairs.GetPairByValue(ctx, claims.Value)
	if err != nil {
		return nil, err
	}
	if pair == nil || pair.AccessToken != accessToken {
		return nil, goerrors.New("token superseded", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}
	return claims, nil
}

// Revoke invalidates the pair a token belongs to, regardless of the token's
// expiry state. The ledger write here is mandatory, unlike rotation paths.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	claims, err := i.codec.Decode(token, true)
	if err != nil {
		return err
	}
	pair, err := i.pairs.GetPairByValue(ctx, claims.Value)
	if err != nil {
		return err
	}
	if pair == nil {
		return goerrors.New("token does not match a stored pair", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}
	if err := i.ledger.Blacklist(ctx, pair.AccessToken); err != nil {
		return err
	}
	return i.pairs.DeletePairBySubject(ctx, pair.Subject, pair.SubjectID)
}

// mintAndSave mints a pair and persists it through save, re-minting when the
// store reports a unique-constraint conflict on the opaque value. The
// pre-insert existence check in mint keeps collisions rare; the conflict
// retry closes the race left between concurrent mints of the same value.
func (i *Issuer) mintAndSave(ctx context.Context, subjectID uuid.UUID, lastRefreshExpiry *time.Time, failMsg string, save func(context.Context, types.TokenPair) (*types.TokenPair, error)) (*types.TokenPair, error) {
	for attempt := 0; attempt < i.retryLimit; attempt++ {
		pair, err := i.mint(ctx, subjectID, lastRefreshExpiry)
		if err != nil {
			return nil, err
		}
		saved, err := save(ctx, *pair)
		if err == nil {
			return saved, nil
		}
		if isValueConflict(err) {
			i.logger.Debug("token value conflict on save, re-minting", "attempt", attempt+1)
			continue
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, failMsg).
			WithCode(goerrors.CodeInternal).
			WithTextCode(textCodePersistenceFailure)
	}
	return nil, goerrors.New("token value uniqueness retries exhausted", goerrors.CategoryInternal).
		WithCode(goerrors.CodeInternal).
		WithTextCode(textCodeRetryExhausted).
		WithMetadata(map[string]any{"retry_limit": i.retryLimit})
}

// isValueConflict recognizes a unique-constraint violation both in its raw
// driver form and after repository.MapDatabaseError has categorized it.
func isValueConflict(err error) bool {
	if repository.IsDuplicatedKey(err) {
		return true
	}
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.Category == goerrors.CategoryConflict
}

// mint builds an unsaved pair with a unique opaque value. The value is the
// hex sha256 of the subject id and a nanosecond timestamp; collisions are
// retried with a fresh preimage up to the configured bound.
func (i *Issuer) mint(ctx context.Context, subjectID uuid.UUID, lastRefreshExpiry *time.Time) (*types.TokenPair, error) {
	var value string
	for attempt := 0; ; attempt++ {
		if attempt >= i.retryLimit {
			return nil, goerrors.New("token value uniqueness retries exhausted", goerrors.CategoryInternal).
				WithCode(goerrors.CodeInternal).
				WithTextCode(textCodeRetryExhausted).
				WithMetadata(map[string]any{"retry_limit": i.retryLimit})
		}
		value = opaqueValue(subjectID, i.clock.Now().UnixNano(), attempt)
		exists, err := i.pairs.ValueExists(ctx, value)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		i.logger.Debug("token value collision, retrying", "attempt", attempt+1)
	}

	signed, err := i.codec.SignPair(i.subject, subjectID, value)
	if err != nil {
		return nil, err
	}
	return &types.TokenPair{
		Subject:           i.subject,
		SubjectID:         subjectID,
		Value:             value,
		AccessToken:       signed.AccessToken,
		RefreshToken:      signed.RefreshToken,
		AccessExpiresAt:   signed.AccessExpiresAt,
		RefreshExpiresAt:  signed.RefreshExpiresAt,
		LastRefreshExpiry: lastRefreshExpiry,
	}, nil
}

func (i *Issuer) blacklistQuietly(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	if err := i.ledger.Blacklist(ctx, accessToken); err != nil {
		i.logger.Error("superseded token blacklist failed", err)
	}
}

func opaqueValue(subjectID uuid.UUID, nanos int64, attempt int) string {
	preimage := fmt.Sprintf("%s-%d", subjectID.String(), nanos)
	if attempt > 0 {
		preimage = fmt.Sprintf("%s-%d", preimage, attempt)
	}
	sum := sha256.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:])
}

// IsRevoked reports whether the error carries the token-revoked text code.
func IsRevoked(err error) bool { return hasTextCode(err, textCodeTokenRevoked) }

// IsRefreshExpired reports whether the error carries the refresh-expired
// text code.
func IsRefreshExpired(err error) bool { return hasTextCode(err, textCodeRefreshExpired) }

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == code
}
