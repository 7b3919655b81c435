package otp

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

const (
	textCodeSlotMissing = "OTP_SLOT_MISSING"
	textCodeExpired     = "OTP_EXPIRED"
	textCodeMismatch    = "OTP_MISMATCH"
)

// DefaultDigits and DefaultLifetime bound generated codes.
const (
	DefaultDigits   = 6
	DefaultLifetime = 10 * time.Minute
)

// ManagerConfig wires the OTP lifecycle manager.
type ManagerConfig struct {
	Store        types.OTPRepository
	Verification types.VerificationRepository
	Digits       int
	Lifetime     time.Duration
	Clock        types.Clock
	IDGen        types.IDGenerator
	Logger       types.Logger
}

func normalizeManagerConfig(cfg ManagerConfig) ManagerConfig {
	if cfg.Digits <= 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.IDGen == nil {
		cfg.IDGen = types.UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	return cfg
}

// Manager owns the OTP state machine: one outstanding code per
// (user, purpose), consumed exactly once, expiring after the lifetime.
type Manager struct {
	store        types.OTPRepository
	verification types.VerificationRepository
	digits       int
	lifetime     time.Duration
	clock        types.Clock
	idGen        types.IDGenerator
	logger       types.Logger
}

// NewManager builds a Manager, failing when no slot store was supplied.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, types.ErrMissingOTPRepository
	}
	cfg = normalizeManagerConfig(cfg)
	return &Manager{
		store:        cfg.Store,
		verification: cfg.Verification,
		digits:       cfg.Digits,
		lifetime:     cfg.Lifetime,
		clock:        cfg.Clock,
		idGen:        cfg.IDGen,
		logger:       cfg.Logger,
	}, nil
}

// Lifetime exposes the configured code lifetime.
func (m *Manager) Lifetime() time.Duration { return m.lifetime }

// Generate mints a fresh numeric code for the user and purpose, overwriting
// any outstanding code in the slot.
func (m *Manager) Generate(ctx context.Context, userID uuid.UUID, purpose types.OTPPurpose) (*types.OTPSlot, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	if !purpose.Valid() {
		return nil, goerrors.New("unknown otp purpose", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	code, err := m.randomCode()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "otp code generation failed").
			WithCode(goerrors.CodeInternal)
	}
	now := m.clock.Now()
	slot, err := m.store.UpsertSlot(ctx, types.OTPSlot{
		UserID:   userID,
		Purpose:  purpose,
		Code:     code,
		IssuedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// Validate checks the supplied code against the user's slot. A successful
// non-dry-run consumes the code: the ledger gets a row, the slot is
// cleared, and verification purposes flip the matching account flag.
func (m *Manager) Validate(ctx context.Context, userID uuid.UUID, purpose types.OTPPurpose, code string, dryRun bool) error {
	if userID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	slot, err := m.store.GetSlot(ctx, userID, purpose)
	if err != nil {
		return err
	}
	if slot == nil || slot.Code == "" || slot.IssuedAt == nil {
		return goerrors.New("no outstanding verification code", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeSlotMissing)
	}
	if m.clock.Now().Sub(*slot.IssuedAt) > m.lifetime {
		if err := m.store.ClearSlot(ctx, userID, purpose); err != nil {
			m.logger.Error("otp slot expiry clear failed", err, "user_id", userID.String())
		}
		return goerrors.New("verification code expired", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeExpired)
	}
	if slot.Code != code {
		return goerrors.New("verification code mismatch", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeMismatch)
	}
	if dryRun {
		return nil
	}
	return m.consume(ctx, slot)
}

func (m *Manager) consume(ctx context.Context, slot *types.OTPSlot) error {
	now := m.clock.Now()
	if _, err := m.store.AppendUsedCode(ctx, types.UsedCode{
		UserID:     slot.UserID,
		Purpose:    slot.Purpose,
		Code:       slot.Code,
		ConsumedAt: now,
	}); err != nil {
		return err
	}
	if err := m.store.ClearSlot(ctx, slot.UserID, slot.Purpose); err != nil {
		return err
	}
	switch slot.Purpose {
	case types.OTPPurposePhoneVerification, types.OTPPurposeEmailVerification:
		if m.verification == nil {
			return nil
		}
		if err := m.verification.SetVerified(ctx, slot.UserID, slot.Purpose, now); err != nil {
			return err
		}
	}
	return nil
}

// randomCode draws a uniformly random numeric string of the configured
// width from crypto/rand.
func (m *Manager) randomCode() (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < m.digits; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	out := n.String()
	for len(out) < m.digits {
		out = "0" + out
	}
	return out, nil
}

// IsSlotMissing reports whether the error carries the slot-missing code.
func IsSlotMissing(err error) bool { return hasTextCode(err, textCodeSlotMissing) }

// IsExpired reports whether the error carries the expired code.
func IsExpired(err error) bool { return hasTextCode(err, textCodeExpired) }

// IsMismatch reports whether the error carries the mismatch code.
func IsMismatch(err error) bool { return hasTextCode(err, textCodeMismatch) }

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == code
}
