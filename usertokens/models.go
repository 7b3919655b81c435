package usertokens

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted user_token_pairs row. One row per user;
// replacing the pair overwrites the row in place.
type Record struct {
	bun.BaseModel `bun:"table:user_token_pairs"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID            uuid.UUID  `bun:"user_id,notnull,unique,type:uuid"`
	Value             string     `bun:"value,notnull,unique"`
	AccessToken       string     `bun:"access_token,notnull"`
	RefreshToken      string     `bun:"refresh_token,notnull"`
	AccessExpiresAt   time.Time  `bun:"access_expires_at,notnull"`
	RefreshExpiresAt  time.Time  `bun:"refresh_expires_at,notnull"`
	LastRefreshExpiry *time.Time `bun:"last_refresh_expiry,nullzero"`
	CreatedAt         time.Time  `bun:"created_at"`
	UpdatedAt         time.Time  `bun:"updated_at"`
}
