// Package ledger owns per-profile, per-currency balances: every balance
// change goes through AdjustBalance, which enforces the non-negative
// invariant and appends one immutable audit row per adjustment.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	"github.com/eidolonworld/eidolon/eidolon/database/repositories"
	"github.com/eidolonworld/eidolon/eidolon/economy/utils"
	"github.com/uptrace/bun"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRateNotFound      = repositories.ErrRateNotFound
)

// Balance is one currency position of a profile.
type Balance struct {
	Balance      int64 `json:"balance"`
	LockedAmount int64 `json:"lockedAmount"`
}

type Service struct {
	tm      utils.TxManager
	wallets repositories.WalletRepository
}

func NewService(tm utils.TxManager, wallets repositories.WalletRepository) *Service {
	return &Service{tm: tm, wallets: wallets}
}

// AdjustBalance applies a signed amount to the (profile, currency) wallet
// inside the caller's transaction. The wallet row is created lazily and
// locked for the duration of the transaction, so concurrent adjustments to
// one wallet serialize. A negative result aborts with ErrInsufficientFunds
// before anything is written.
func (s *Service) AdjustBalance(ctx context.Context, idb bun.IDB, profileID int64, currencyKey string, amount int64, reason, source string) error {
	wallet, err := s.wallets.EnsureWalletForUpdate(ctx, idb, profileID, currencyKey)
	if err != nil {
		return err
	}

	newBalance := wallet.Balance + amount
	if newBalance < 0 {
		return fmt.Errorf("%w: %s (has %d, needs %d)", ErrInsufficientFunds, currencyKey, wallet.Balance, -amount)
	}

	if err := s.wallets.SetBalance(ctx, idb, wallet.ID, newBalance); err != nil {
		return err
	}

	direction := models.DirectionCredit
	magnitude := amount
	if amount < 0 {
		direction = models.DirectionDebit
		magnitude = -amount
	}

	return s.wallets.InsertTransaction(ctx, idb, &models.CurrencyTransaction{
		WalletID:        wallet.ID,
		CurrencyKey:     currencyKey,
		Amount:          magnitude,
		Direction:       direction,
		SourceType:      reason,
		SourceReference: source,
		CreatedAt:       time.Now(),
	})
}

// Adjust runs a single balance adjustment in its own transaction.
func (s *Service) Adjust(ctx context.Context, profileID int64, currencyKey string, amount int64, reason, source string) error {
	return s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.AdjustBalance(ctx, tx, profileID, currencyKey, amount, reason, source)
	})
}

// GetBalances returns every currency position the profile has ever touched.
// A profile with no wallets yields an empty map, not an error.
func (s *Service) GetBalances(ctx context.Context, profileID int64) (map[string]Balance, error) {
	wallets, err := s.wallets.GetByOwner(ctx, profileID)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]Balance, len(wallets))
	for _, w := range wallets {
		balances[w.CurrencyKey] = Balance{Balance: w.Balance, LockedAmount: w.LockedAmount}
	}
	return balances, nil
}

// GetRate looks up the configured rate for the exact ordered currency pair.
func (s *Service) GetRate(ctx context.Context, idb bun.IDB, base, quote string) (float64, error) {
	return s.wallets.GetRate(ctx, idb, base, quote)
}
