package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// InventoryEntry is a per-profile item stack. Entries are created on first
// grant, incremented and decremented in place, and deleted the moment the
// quantity reaches zero; a zero-quantity row is never left behind.
type InventoryEntry struct {
	bun.BaseModel `bun:"table:inventory,alias:inv"`

	ID        int64           `bun:"id,pk,autoincrement"`
	ProfileID int64           `bun:"profile_id,notnull,unique:inventory_profile_item"`
	ItemKey   string          `bun:"item_key,notnull,unique:inventory_profile_item"`
	Quantity  int64           `bun:"quantity,notnull"`
	Metadata  json.RawMessage `bun:"metadata,type:jsonb,default:'{}'"`
	CreatedAt time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}
