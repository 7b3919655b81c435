package types

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceType classifies the physical client a session originates from.
type DeviceType string

const (
	DeviceTypeMobile    DeviceType = "MOBILE"
	DeviceTypePC        DeviceType = "PC"
	DeviceTypeTablet    DeviceType = "TABLET"
	DeviceTypeOther     DeviceType = "OTHER"
	DeviceTypeUndefined DeviceType = "UNDEFINED"
)

// NormalizeDeviceType maps free-form client classifications onto the known set.
func NormalizeDeviceType(raw string) DeviceType {
	switch DeviceType(strings.ToUpper(strings.TrimSpace(raw))) {
	case DeviceTypeMobile:
		return DeviceTypeMobile
	case DeviceTypePC:
		return DeviceTypePC
	case DeviceTypeTablet:
		return DeviceTypeTablet
	case DeviceTypeOther:
		return DeviceTypeOther
	default:
		return DeviceTypeUndefined
	}
}

// Device is a persisted record representing one client instance a user has
// authenticated from. The canonical trust representation is TrustScore, an
// integer percentage 0-100; the boolean view is derived via Trusted().
type Device struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Name          string
	Type          DeviceType
	ClientVersion string
	OSVersion     string
	UserAgent     string
	Signature     []byte
	TrustScore    int
	RenewalCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TrustScoreMax is the score assigned to the first device of a freshly
// verified login/registration.
const TrustScoreMax = 100

// DefaultTrustThreshold is the score at or above which a device is treated
// as trusted. Matches the legacy ">30 percent" rule.
const DefaultTrustThreshold = 30

// Trusted reports whether the device clears the supplied trust threshold.
// A non-positive threshold falls back to DefaultTrustThreshold.
func (d Device) Trusted(threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultTrustThreshold
	}
	return d.TrustScore >= threshold
}

// DeviceMetadata carries the request-classification fields an upstream
// collaborator extracts for fingerprint matching. This package never parses
// raw HTTP headers itself.
type DeviceMetadata struct {
	IP            string
	DeviceType    DeviceType
	OSVersion     string
	ClientVersion string
	UserAgent     string
}

// LoginHistoryEntry records one login event for a device. The most recent
// entry without a logout timestamp denotes the active session.
type LoginHistoryEntry struct {
	ID       uuid.UUID
	DeviceID uuid.UUID
	IP       string
	Location map[string]any
	LoginAt  time.Time
	LogoutAt *time.Time
}

// Active reports whether the entry represents a session that has not been
// logged out (or whose logout predates the login, which the legacy data
// treats as still active).
func (e LoginHistoryEntry) Active() bool {
	return e.LogoutAt == nil || e.LogoutAt.Before(e.LoginAt)
}

// Account is the slice of the external user store this subsystem needs:
// identity plus the contact channels OTP delivery can target.
type Account struct {
	ID       uuid.UUID
	Email    string
	Phone    string
	Username string
}

// DeviceRepository persists device records.
type DeviceRepository interface {
	CreateDevice(ctx context.Context, device Device) (*Device, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*Device, error)
	ListDevicesByUser(ctx context.Context, userID uuid.UUID) ([]Device, error)
	CountDevicesByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// LoginHistoryRepository persists login events and exposes the IP history the
// fingerprint matcher consumes.
type LoginHistoryRepository interface {
	AppendLogin(ctx context.Context, entry LoginHistoryEntry) (*LoginHistoryEntry, error)
	CloseActiveSession(ctx context.Context, deviceID uuid.UUID, logoutAt time.Time) error
	ListIPsByDevice(ctx context.Context, deviceID uuid.UUID) ([]string, error)
	ListHistoryByDevice(ctx context.Context, deviceID uuid.UUID, pagination Pagination) ([]LoginHistoryEntry, int, error)
}

// RevocationLedger is the append-only store of invalidated access tokens.
// Blacklist must be idempotent; rotation paths treat write failures as
// non-fatal and only log them.
type RevocationLedger interface {
	Blacklist(ctx context.Context, accessToken string) error
	IsBlacklisted(ctx context.Context, accessToken string) (bool, error)
}

// AccountRepository looks up accounts in the external user store.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
}

// GeoResolver resolves a coarse physical location for an IP address. The
// lookup runs on the background runner and must never block a login response.
type GeoResolver interface {
	Lookup(ctx context.Context, ip string) (map[string]any, error)
}

// DeliveryChannel selects how an OTP code reaches the user.
type DeliveryChannel string

const (
	DeliveryChannelEmail DeliveryChannel = "email"
	DeliveryChannelSMS   DeliveryChannel = "sms"
)

// Delivery is the payload handed to the external dispatch collaborator.
type Delivery struct {
	Channel     DeliveryChannel
	Destination string
	Code        string
	Link        string
}

// DeliverySink dispatches OTP codes. Implementations talk to the actual
// email/SMS providers; this subsystem only decides channel and destination.
type DeliverySink interface {
	Deliver(ctx context.Context, delivery Delivery) error
}

// Pagination supports query pagination across admin panels.
type Pagination struct {
	Limit  int
	Offset int
}

// ActorRef identifies who triggered a command, for audit attribution.
type ActorRef struct {
	ID   uuid.UUID
	Type string
}

// IsSystemAdmin reports whether the actor is a global administrator.
func (a ActorRef) IsSystemAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(a.Type), "system_admin")
}

// AuditRecord describes one auth event emitted through the audit sink.
type AuditRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	DeviceID   uuid.UUID
	ActorID    uuid.UUID
	Verb       string
	IP         string
	Data       map[string]any
	OccurredAt time.Time
}

// AuditSink is the minimal DI contract for emitting audit records. Keep it
// stable and limited to Log so hosts can swap sinks without breaking changes.
type AuditSink interface {
	Log(context.Context, AuditRecord) error
}

// AuditRepository exposes read-side access to the audit trail.
type AuditRepository interface {
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditRecord, int, error)
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	UserID     uuid.UUID
	DeviceID   uuid.UUID
	Verbs      []string
	Since      *time.Time
	Until      *time.Time
	Pagination Pagination
}

// IssueEvent is emitted after a token pair is minted or rotated.
type IssueEvent struct {
	Subject    SubjectKind
	SubjectID  uuid.UUID
	Renewed    bool
	OccurredAt time.Time
}

// RevocationEvent is emitted after a refresh token is revoked.
type RevocationEvent struct {
	Subject    SubjectKind
	SubjectID  uuid.UUID
	OccurredAt time.Time
}

// OTPEvent is emitted after an OTP is generated or consumed.
type OTPEvent struct {
	UserID     uuid.UUID
	Purpose    OTPPurpose
	Action     string
	OccurredAt time.Time
}

// MatchEvent is emitted after a fingerprint match attempt.
type MatchEvent struct {
	UserID     uuid.UUID
	DeviceID   uuid.UUID
	Score      float64
	Matched    bool
	OccurredAt time.Time
}

// Hooks groups optional callbacks invoked after key workflows complete.
type Hooks struct {
	AfterIssue      func(context.Context, IssueEvent)
	AfterRevocation func(context.Context, RevocationEvent)
	AfterOTP        func(context.Context, OTPEvent)
	AfterMatch      func(context.Context, MatchEvent)
	AfterAudit      func(context.Context, AuditRecord)
}

// Clock abstracts time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID creation.
type IDGenerator interface {
	UUID() uuid.UUID
}

// Logger captures basic logging hooks used by the engine.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Error(msg string, err error, fields ...any)
}

// SystemClock defers to time.Now for production usage.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator produces UUIDv4 identifiers.
type UUIDGenerator struct{}

// UUID returns a randomly generated UUID.
func (UUIDGenerator) UUID() uuid.UUID { return uuid.New() }

// NopLogger discards all log lines.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, error, ...any) {}

var (
	// ErrUserIDRequired indicates a user identifier was omitted.
	ErrUserIDRequired = errors.New("go-device-auth: user id required")
	// ErrDeviceIDRequired indicates a device identifier was omitted.
	ErrDeviceIDRequired = errors.New("go-device-auth: device id required")
	// ErrServiceNotReady indicates the engine has not been fully configured.
	ErrServiceNotReady = errors.New("go-device-auth: service not ready")
	// ErrMissingDeviceRepository occurs when device persistence is unavailable.
	ErrMissingDeviceRepository = errors.New("go-device-auth: missing device repository")
	// ErrMissingPairStore occurs when token pair persistence is unavailable.
	ErrMissingPairStore = errors.New("go-device-auth: missing token pair store")
	// ErrMissingRevocationLedger occurs when no revocation ledger was supplied.
	ErrMissingRevocationLedger = errors.New("go-device-auth: missing revocation ledger")
	// ErrMissingLoginHistoryRepository occurs when login history persistence is unavailable.
	ErrMissingLoginHistoryRepository = errors.New("go-device-auth: missing login history repository")
	// ErrMissingOTPRepository occurs when OTP persistence is unavailable.
	ErrMissingOTPRepository = errors.New("go-device-auth: missing otp repository")
	// ErrMissingVerificationRepository occurs when verification flags lack storage.
	ErrMissingVerificationRepository = errors.New("go-device-auth: missing verification repository")
	// ErrMissingAccountRepository occurs when no account lookup was supplied.
	ErrMissingAccountRepository = errors.New("go-device-auth: missing account repository")
	// ErrMissingAuditSink occurs when no audit sink was supplied.
	ErrMissingAuditSink = errors.New("go-device-auth: missing audit sink")
	// ErrMissingSigningSecret occurs when the codec lacks a signing secret.
	ErrMissingSigningSecret = errors.New("go-device-auth: missing signing secret")
)
