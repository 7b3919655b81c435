package devices

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted devices row.
type Record struct {
	bun.BaseModel `bun:"table:devices"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid"`
	Name          string    `bun:"name"`
	DeviceType    string    `bun:"device_type,notnull"`
	ClientVersion string    `bun:"client_version"`
	OSVersion     string    `bun:"os_version"`
	UserAgent     string    `bun:"user_agent"`
	Signature     []byte    `bun:"signature,nullzero"`
	TrustScore    int       `bun:"trust_score,notnull"`
	RenewalCount  int       `bun:"renewal_count,notnull"`
	CreatedAt     time.Time `bun:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at"`
}

// PairRecord models the persisted device_token_pairs row. One row per
// device; replacing the pair overwrites the row in place.
type PairRecord struct {
	bun.BaseModel `bun:"table:device_token_pairs"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid"`
	DeviceID          uuid.UUID  `bun:"device_id,notnull,unique,type:uuid"`
	Value             string     `bun:"value,notnull,unique"`
	AccessToken       string     `bun:"access_token,notnull"`
	RefreshToken      string     `bun:"refresh_token,notnull"`
	AccessExpiresAt   time.Time  `bun:"access_expires_at,notnull"`
	RefreshExpiresAt  time.Time  `bun:"refresh_expires_at,notnull"`
	LastRefreshExpiry *time.Time `bun:"last_refresh_expiry,nullzero"`
	CreatedAt         time.Time  `bun:"created_at"`
	UpdatedAt         time.Time  `bun:"updated_at"`
}

// HistoryRecord models the persisted device_login_history row.
type HistoryRecord struct {
	bun.BaseModel `bun:"table:device_login_history"`

	ID       uuid.UUID      `bun:"id,pk,type:uuid"`
	DeviceID uuid.UUID      `bun:"device_id,notnull,type:uuid"`
	IP       string         `bun:"ip"`
	Location map[string]any `bun:"location,type:jsonb"`
	LoginAt  time.Time      `bun:"login_at,notnull"`
	LogoutAt *time.Time     `bun:"logout_at,nullzero"`
}
