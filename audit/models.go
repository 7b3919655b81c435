package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LogEntry models the persisted auth_audit row.
type LogEntry struct {
	bun.BaseModel `bun:"table:auth_audit"`

	ID        uuid.UUID      `bun:"id,pk,type:uuid"`
	UserID    uuid.UUID      `bun:"user_id,nullzero,type:uuid"`
	DeviceID  uuid.UUID      `bun:"device_id,nullzero,type:uuid"`
	ActorID   uuid.UUID      `bun:"actor_id,nullzero,type:uuid"`
	Verb      string         `bun:"verb,notnull"`
	IP        string         `bun:"ip"`
	Data      map[string]any `bun:"data,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at"`
}
