// Package exchange converts between currencies at the admin-configured rate
// table. Both ledger legs and the exchange log commit in one transaction.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	"github.com/eidolonworld/eidolon/eidolon/database/repositories"
	"github.com/eidolonworld/eidolon/eidolon/economy/ledger"
	"github.com/eidolonworld/eidolon/eidolon/economy/utils"
	"github.com/eidolonworld/eidolon/eidolon/logger"
	"github.com/uptrace/bun"
)

var (
	ErrInvalidAmount = errors.New("exchange amount must be positive")
	ErrSameCurrency  = errors.New("cannot exchange a currency for itself")
)

type Result struct {
	FromAmount  int64   `json:"fromAmount"`
	ToAmount    int64   `json:"toAmount"`
	RateApplied float64 `json:"rateApplied"`
}

type Service struct {
	tm      utils.TxManager
	ledger  *ledger.Service
	wallets repositories.WalletRepository
}

func NewService(tm utils.TxManager, ledgerSvc *ledger.Service, wallets repositories.WalletRepository) *Service {
	return &Service{tm: tm, ledger: ledgerSvc, wallets: wallets}
}

// Quote computes the destination amount for a given source amount and rate.
// Value is conserved up to floor rounding.
func Quote(amount int64, rate float64) int64 {
	return int64(math.Floor(float64(amount) * rate))
}

// Exchange debits amount of fromCurrency and credits floor(amount*rate) of
// toCurrency atomically. An insufficient-funds failure on the debit leg
// aborts the whole exchange with no partial ledger change visible.
func (s *Service) Exchange(ctx context.Context, profileID int64, fromCurrency, toCurrency string, amount int64) (*Result, error) {
	start := time.Now()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromCurrency == toCurrency {
		return nil, ErrSameCurrency
	}

	var result *Result
	err := s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rate, err := s.ledger.GetRate(ctx, tx, fromCurrency, toCurrency)
		if err != nil {
			return err
		}

		quoteAmount := Quote(amount, rate)
		source := fmt.Sprintf("%s->%s", fromCurrency, toCurrency)

		if err := s.ledger.AdjustBalance(ctx, tx, profileID, fromCurrency, -amount, "exchange", source); err != nil {
			return err
		}
		if err := s.ledger.AdjustBalance(ctx, tx, profileID, toCurrency, quoteAmount, "exchange", source); err != nil {
			return err
		}

		if err := s.wallets.InsertExchangeLog(ctx, tx, &models.CurrencyExchangeLog{
			ProfileID:    profileID,
			FromCurrency: fromCurrency,
			ToCurrency:   toCurrency,
			FromAmount:   amount,
			ToAmount:     quoteAmount,
			RateApplied:  rate,
			CreatedAt:    time.Now(),
		}); err != nil {
			return err
		}

		result = &Result{FromAmount: amount, ToAmount: quoteAmount, RateApplied: rate}
		return nil
	})

	logger.LogEconomy("exchange", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}
