package revocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted revoked_tokens row.
type Record struct {
	bun.BaseModel `bun:"table:revoked_tokens"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	AccessToken string    `bun:"access_token,notnull,unique"`
	RevokedAt   time.Time `bun:"revoked_at,notnull"`
}
