package devicectx

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

const (
	textCodeCredentialMissing = "DEVICE_CREDENTIAL_MISSING"
	textCodeCredentialInvalid = "DEVICE_CREDENTIAL_INVALID"
	textCodeActorInvalid      = "ACTOR_CONTEXT_INVALID"
)

// DefaultScheme is the expected prefix of the Device-Authorization header.
const DefaultScheme = "Device"

// HeaderName is the header clients present device credentials in.
const HeaderName = "Device-Authorization"

type claimsKey struct{}

// WithClaims stores verified device token claims on the context.
func WithClaims(ctx context.Context, claims *types.TokenClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the verified claims a middleware stored, if any.
func ClaimsFromContext(ctx context.Context) (*types.TokenClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsKey{}).(*types.TokenClaims)
	return claims, ok
}

// ClaimsFromRouterContext mirrors ClaimsFromContext for router transports.
func ClaimsFromRouterContext(ctx router.Context) (*types.TokenClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	return ClaimsFromContext(ctx.Context())
}

// ParseAuthorization splits a "<scheme> <token>" header value and returns
// the bare token. The scheme must match one of the accepted names, compared
// case-insensitively; with no schemes given, DefaultScheme is accepted.
func ParseAuthorization(header string, schemes ...string) (string, error) {
	if len(schemes) == 0 {
		schemes = []string{DefaultScheme}
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("go-device-auth: device credential missing", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeCredentialMissing)
	}
	parts := strings.Fields(header)
	if len(parts) == 2 {
		for _, scheme := range schemes {
			if scheme == "" {
				scheme = DefaultScheme
			}
			if strings.EqualFold(parts[0], scheme) {
				return parts[1], nil
			}
		}
	}
	return "", errors.New("go-device-auth: malformed device credential header", errors.CategoryAuth).
		WithCode(errors.CodeUnauthorized).
		WithTextCode(textCodeCredentialInvalid)
}

// ResolveActor returns the acting principal recorded by go-auth middleware,
// reduced to the reference commands attach to audit records.
func ResolveActor(ctx context.Context) (types.ActorRef, error) {
	if ctx == nil {
		return types.ActorRef{}, errors.New("go-device-auth: missing request context", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeActorInvalid)
	}
	actor, ok := auth.ActorFromContext(ctx)
	if !ok || actor == nil {
		if claims, ok := auth.GetClaims(ctx); ok && claims != nil {
			actor = auth.ActorContextFromClaims(claims)
		}
	}
	if actor == nil || actor.ActorID == "" {
		return types.ActorRef{}, errors.New("go-device-auth: auth actor context not found on request", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeActorInvalid)
	}
	actorID, err := uuid.Parse(actor.ActorID)
	if err != nil {
		return types.ActorRef{}, errors.Wrap(err, errors.CategoryAuth, "go-device-auth: invalid actor_id on auth context").
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeActorInvalid)
	}
	ref := types.ActorRef{ID: actorID, Type: actor.Role}
	if ref.Type == "" && actor.Subject != "" {
		ref.Type = actor.Subject
	}
	return ref, nil
}
