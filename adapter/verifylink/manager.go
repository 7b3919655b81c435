package verifylink

import (
	"errors"
	"time"

	urlkit "github.com/goliatone/go-urlkit/securelink"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// RouteVerify is the route key email OTP deep links are generated against.
const RouteVerify = "account.verify"

// Manager adapts go-urlkit securelink managers to the verification link
// interface embedded in OTP email delivery.
type Manager struct {
	inner urlkit.Manager
}

// NewManager builds a verifylink adapter using the configurator interface.
func NewManager(cfg types.VerifyLinkConfigurator) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("verifylink configurator required")
	}
	inner, err := urlkit.NewManagerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: inner}, nil
}

// WrapManager wraps an existing go-urlkit manager.
func WrapManager(inner urlkit.Manager) *Manager {
	if inner == nil {
		return nil
	}
	return &Manager{inner: inner}
}

var _ types.VerifyLinkManager = (*Manager)(nil)

// Generate produces a signed verification link.
func (m *Manager) Generate(route string, payloads ...types.VerifyLinkPayload) (string, error) {
	if m == nil || m.inner == nil {
		return "", errors.New("verifylink manager not configured")
	}
	return m.inner.Generate(route, toPayloads(payloads)...)
}

// GenerateVerify builds the deep link a user follows from a verification
// email, binding the link to the user and OTP purpose.
func (m *Manager) GenerateVerify(userID uuid.UUID, purpose types.OTPPurpose) (string, error) {
	return m.Generate(RouteVerify, types.VerifyLinkPayload{
		"user_id": userID.String(),
		"purpose": string(purpose),
	})
}

// Validate checks a verification link token and returns the decoded payload.
func (m *Manager) Validate(token string) (map[string]any, error) {
	if m == nil || m.inner == nil {
		return nil, errors.New("verifylink manager not configured")
	}
	return m.inner.Validate(token)
}

// GetAndValidate extracts a token from the provided function and validates it.
func (m *Manager) GetAndValidate(fn func(string) string) (types.VerifyLinkPayload, error) {
	if m == nil || m.inner == nil {
		return nil, errors.New("verifylink manager not configured")
	}
	payload, err := m.inner.GetAndValidate(fn)
	if err != nil {
		return nil, err
	}
	return types.VerifyLinkPayload(payload), nil
}

// GetExpiration exposes the manager's expiration duration.
func (m *Manager) GetExpiration() time.Duration {
	if m == nil || m.inner == nil {
		return 0
	}
	return m.inner.GetExpiration()
}

func toPayloads(payloads []types.VerifyLinkPayload) []urlkit.Payload {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]urlkit.Payload, 0, len(payloads))
	for _, payload := range payloads {
		out = append(out, urlkit.Payload(payload))
	}
	return out
}
