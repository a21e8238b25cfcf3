package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// MarketItem is an admin-managed catalog row. Volatility and EventModifier are
// stored for richer pricing models but not consumed by the tick simulation.
type MarketItem struct {
	bun.BaseModel `bun:"table:market_items,alias:mi"`

	MarketItemKey string    `bun:"market_item_key,pk"`
	DisplayName   string    `bun:"display_name,notnull"`
	DisplayNameEn string    `bun:"display_name_en"`
	Category      string    `bun:"category,notnull"`
	BasePrice     int64     `bun:"base_price,notnull"`
	MinPrice      int64     `bun:"min_price,notnull"`
	MaxPrice      int64     `bun:"max_price,notnull"`
	DailyDeltaMin int64     `bun:"daily_delta_min,notnull"`
	DailyDeltaMax int64     `bun:"daily_delta_max,notnull"`
	Volatility    float64   `bun:"volatility,notnull,default:0"`
	EventModifier string    `bun:"event_modifier"`
	Notes         string    `bun:"notes"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// MarketTick is one append-only price history row. The current price of an
// item is its most recent tick, or the catalog base price when none exists.
type MarketTick struct {
	bun.BaseModel `bun:"table:market_ticks,alias:mt"`

	ID            int64     `bun:"id,pk,autoincrement"`
	MarketItemKey string    `bun:"market_item_key,notnull"`
	Price         int64     `bun:"price,notnull"`
	Delta         int64     `bun:"delta,notnull"`
	OccurredAt    time.Time `bun:"occurred_at,notnull,default:current_timestamp"`
}

// AdminLog records administrative actions such as manually triggered market
// ticks, with a JSON payload summarizing the outcome.
type AdminLog struct {
	bun.BaseModel `bun:"table:admin_logs,alias:al"`

	ID        int64           `bun:"id,pk,autoincrement"`
	AccountID int64           `bun:"account_id,notnull"`
	Action    string          `bun:"action,notnull"`
	Metadata  json.RawMessage `bun:"metadata,type:jsonb"`
	CreatedAt time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}
