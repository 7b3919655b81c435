package codec

import (
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

const (
	textCodeTokenExpired = "TOKEN_EXPIRED"
	textCodeTokenInvalid = "TOKEN_INVALID"
)

// DefaultAccessTTL and DefaultRefreshTTL mirror the short-lived access /
// long-lived refresh split the engine was designed around.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// Config carries the signing material and lifetimes for the codec.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      types.Clock
}

func normalizeConfig(cfg Config) Config {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	return cfg
}

// Codec signs and verifies the HS256 token pairs the issuer mints. Both
// halves of a pair carry the same opaque value claim so revocation by value
// covers the pair.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      types.Clock
}

// New builds a Codec, failing when no signing secret was supplied.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, types.ErrMissingSigningSecret
	}
	cfg = normalizeConfig(cfg)
	return &Codec{
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      cfg.Clock,
	}, nil
}

// AccessTTL exposes the configured access lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL exposes the configured refresh lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

type wireClaims struct {
	DeviceID string `json:"device_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Value    string `json:"token"`
	jwt.RegisteredClaims
}

func (w wireClaims) subject() (types.SubjectKind, string) {
	if w.UserID != "" {
		return types.SubjectUser, w.UserID
	}
	return types.SubjectDevice, w.DeviceID
}

// SignedPair couples the two signed tokens minted in one call.
type SignedPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// SignPair mints an access and a refresh token for the subject, both bound
// to the same opaque pair value.
func (c *Codec) SignPair(subject types.SubjectKind, subjectID uuid.UUID, value string) (*SignedPair, error) {
	now := c.clock.Now()
	accessExp := now.Add(c.accessTTL)
	refreshExp := now.Add(c.refreshTTL)

	access, err := c.sign(subject, subjectID, value, accessExp)
	if err != nil {
		return nil, err
	}
	refresh, err := c.sign(subject, subjectID, value, refreshExp)
	if err != nil {
		return nil, err
	}
	return &SignedPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (c *Codec) sign(subject types.SubjectKind, subjectID uuid.UUID, value string, expiresAt time.Time) (string, error) {
	claims := wireClaims{
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if subject == types.SubjectUser {
		claims.UserID = subjectID.String()
	} else {
		claims.DeviceID = subjectID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "token signing failed").
			WithCode(goerrors.CodeInternal)
	}
	return signed, nil
}

// Verify parses and validates a signed token, distinguishing expiry from
// every other failure mode.
func (c *Codec) Verify(token string) (*types.TokenClaims, error) {
	return c.decode(token, false)
}

// Decode parses a signed token, optionally skipping expiry validation so
// revocation paths can still identify the pair an expired token belongs to.
func (c *Codec) Decode(token string, ignoreExpiry bool) (*types.TokenClaims, error) {
	return c.decode(token, ignoreExpiry)
}

func (c *Codec) decode(token string, ignoreExpiry bool) (*types.TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if ignoreExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &wireClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "token expired").
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(textCodeTokenExpired)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "token invalid").
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}
	if !ignoreExpiry && !parsed.Valid {
		return nil, goerrors.New("token invalid", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}

	kind, rawID := claims.subject()
	subjectID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "token subject malformed").
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}
	if claims.Value == "" {
		return nil, goerrors.New("token missing pair value", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(textCodeTokenInvalid)
	}

	out := &types.TokenClaims{
		Subject:   kind,
		SubjectID: subjectID,
		Value:     claims.Value,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// IsExpired reports whether the error carries the token-expired text code.
func IsExpired(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == textCodeTokenExpired
}

// IsInvalid reports whether the error carries the token-invalid text code.
func IsInvalid(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == textCodeTokenInvalid
}
