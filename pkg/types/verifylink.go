package types

import (
	"time"

	"github.com/google/uuid"
)

// VerifyLinkManager mirrors the external securelink manager interface used
// to build and check signed verification deep links.
type VerifyLinkManager interface {
	Generate(route string, payloads ...VerifyLinkPayload) (string, error)
	GenerateVerify(userID uuid.UUID, purpose OTPPurpose) (string, error)
	Validate(token string) (map[string]any, error)
	GetAndValidate(fn func(string) string) (VerifyLinkPayload, error)
	GetExpiration() time.Duration
}

// VerifyLinkPayload carries data to embed in a verification link token.
type VerifyLinkPayload map[string]any

// VerifyLinkConfigurator mirrors the external securelink configurator
// interface.
type VerifyLinkConfigurator interface {
	GetSigningKey() string
	GetExpiration() time.Duration
	GetBaseURL() string
	GetQueryKey() string
	GetRoutes() map[string]string
	GetAsQuery() bool
}
