package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	"github.com/uptrace/bun"
)

var ErrRateNotFound = errors.New("currency rate not found")

type WalletRepository interface {
	// EnsureWalletForUpdate returns the wallet row for (profile, currency),
	// creating it lazily if absent, locked for the duration of the enclosing
	// transaction.
	EnsureWalletForUpdate(ctx context.Context, idb bun.IDB, profileID int64, currencyKey string) (*models.Wallet, error)
	SetBalance(ctx context.Context, idb bun.IDB, walletID int64, newBalance int64) error
	InsertTransaction(ctx context.Context, idb bun.IDB, txRow *models.CurrencyTransaction) error
	GetByOwner(ctx context.Context, profileID int64) ([]*models.Wallet, error)
	GetRate(ctx context.Context, idb bun.IDB, base, quote string) (float64, error)
	InsertExchangeLog(ctx context.Context, idb bun.IDB, logRow *models.CurrencyExchangeLog) error
}

type walletRepository struct {
	db *bun.DB
}

func NewWalletRepository(db *bun.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) EnsureWalletForUpdate(ctx context.Context, idb bun.IDB, profileID int64, currencyKey string) (*models.Wallet, error) {
	now := time.Now()
	wallet := &models.Wallet{
		OwnerType:   models.OwnerTypeProfile,
		OwnerID:     profileID,
		CurrencyKey: currencyKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := idb.NewInsert().
		Model(wallet).
		On("CONFLICT (owner_type, owner_id, currency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	var locked models.Wallet
	err = idb.NewSelect().
		Model(&locked).
		Where("owner_type = ? AND owner_id = ? AND currency_key = ?",
			models.OwnerTypeProfile, profileID, currencyKey).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	return &locked, nil
}

func (r *walletRepository) SetBalance(ctx context.Context, idb bun.IDB, walletID int64, newBalance int64) error {
	result, err := idb.NewUpdate().
		Model((*models.Wallet)(nil)).
		Set("balance = ?", newBalance).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", walletID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("wallet %d not found when updating balance", walletID)
	}

	return nil
}

func (r *walletRepository) InsertTransaction(ctx context.Context, idb bun.IDB, txRow *models.CurrencyTransaction) error {
	if _, err := idb.NewInsert().Model(txRow).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert currency transaction: %w", err)
	}
	return nil
}

func (r *walletRepository) GetByOwner(ctx context.Context, profileID int64) ([]*models.Wallet, error) {
	var wallets []*models.Wallet
	err := r.db.NewSelect().
		Model(&wallets).
		Where("owner_type = ? AND owner_id = ?", models.OwnerTypeProfile, profileID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

func (r *walletRepository) GetRate(ctx context.Context, idb bun.IDB, base, quote string) (float64, error) {
	if idb == nil {
		idb = r.db
	}

	var rate models.CurrencyRate
	err := idb.NewSelect().
		Model(&rate).
		Where("base_currency = ? AND quote_currency = ?", base, quote).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s/%s", ErrRateNotFound, base, quote)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get currency rate: %w", err)
	}

	return rate.Rate, nil
}

func (r *walletRepository) InsertExchangeLog(ctx context.Context, idb bun.IDB, logRow *models.CurrencyExchangeLog) error {
	if _, err := idb.NewInsert().Model(logRow).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert exchange log: %w", err)
	}
	return nil
}
