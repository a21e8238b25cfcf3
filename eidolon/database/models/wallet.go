package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Wallet direction values for currency transactions.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Well-known currency keys. Currencies themselves are catalog rows; these two
// are the ones the market settlement paths reference directly.
const (
	CurrencyCoin = "coin"
	CurrencySoul = "soul"
)

type Currency struct {
	bun.BaseModel `bun:"table:currencies,alias:cur"`

	Key           string    `bun:"key,pk"`
	DisplayName   string    `bun:"display_name,notnull"`
	DisplayNameEn string    `bun:"display_name_en"`
	Description   string    `bun:"description"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type Wallet struct {
	bun.BaseModel `bun:"table:wallets,alias:w"`

	ID           int64     `bun:"id,pk,autoincrement"`
	OwnerType    string    `bun:"owner_type,notnull,default:'profile',unique:wallets_owner_currency"`
	OwnerID      int64     `bun:"owner_id,notnull,unique:wallets_owner_currency"`
	CurrencyKey  string    `bun:"currency_key,notnull,unique:wallets_owner_currency"`
	Balance      int64     `bun:"balance,notnull,default:0"`
	LockedAmount int64     `bun:"locked_amount,notnull,default:0"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

const OwnerTypeProfile = "profile"

// CurrencyTransaction is the immutable audit row appended once per balance
// adjustment. Amount is always the absolute magnitude; Direction records sign.
type CurrencyTransaction struct {
	bun.BaseModel `bun:"table:currency_transactions,alias:ct"`

	ID              int64     `bun:"id,pk,autoincrement"`
	WalletID        int64     `bun:"wallet_id,notnull"`
	CurrencyKey     string    `bun:"currency_key,notnull"`
	Amount          int64     `bun:"amount,notnull"`
	Direction       string    `bun:"direction,notnull"`
	SourceType      string    `bun:"source_type,notnull"`
	SourceReference string    `bun:"source_reference,nullzero"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type CurrencyRate struct {
	bun.BaseModel `bun:"table:currency_rates,alias:cr"`

	ID            int64     `bun:"id,pk,autoincrement"`
	BaseCurrency  string    `bun:"base_currency,notnull,unique:currency_rates_pair"`
	QuoteCurrency string    `bun:"quote_currency,notnull,unique:currency_rates_pair"`
	Rate          float64   `bun:"rate,notnull"`
	Notes         string    `bun:"notes"`
	EffectiveAt   time.Time `bun:"effective_at,notnull,default:current_timestamp"`
}

type CurrencyExchangeLog struct {
	bun.BaseModel `bun:"table:currency_exchange_logs,alias:cel"`

	ID           int64     `bun:"id,pk,autoincrement"`
	ProfileID    int64     `bun:"profile_id,notnull"`
	FromCurrency string    `bun:"from_currency,notnull"`
	ToCurrency   string    `bun:"to_currency,notnull"`
	FromAmount   int64     `bun:"from_amount,notnull"`
	ToAmount     int64     `bun:"to_amount,notnull"`
	RateApplied  float64   `bun:"rate_applied,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
