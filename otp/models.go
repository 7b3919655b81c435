package otp

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SlotRecord models the persisted otp_slots row, the singleton holder of a
// user's current code for one purpose.
type SlotRecord struct {
	bun.BaseModel `bun:"table:otp_slots"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Purpose   string     `bun:"purpose,notnull"`
	Code      string     `bun:"code"`
	IssuedAt  *time.Time `bun:"issued_at,nullzero"`
	CreatedAt time.Time  `bun:"created_at"`
	UpdatedAt time.Time  `bun:"updated_at"`
}

// UsedRecord models the persisted otp_used_codes ledger row.
type UsedRecord struct {
	bun.BaseModel `bun:"table:otp_used_codes"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	UserID     uuid.UUID `bun:"user_id,notnull,type:uuid"`
	Purpose    string    `bun:"purpose,notnull"`
	Code       string    `bun:"code,notnull"`
	ConsumedAt time.Time `bun:"consumed_at,notnull"`
}
