package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	"github.com/eidolonworld/eidolon/eidolon/database/repositories"
	"github.com/eidolonworld/eidolon/eidolon/economy/utils"
	"github.com/uptrace/bun"
)

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, _ *utils.TransactionOptions, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

type fakeWalletRepo struct {
	wallets      map[string]*models.Wallet
	nextID       int64
	transactions []*models.CurrencyTransaction
	rates        map[string]float64
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{
		wallets: map[string]*models.Wallet{},
		rates:   map[string]float64{},
	}
}

func walletKey(profileID int64, currencyKey string) string {
	return fmt.Sprintf("%d/%s", profileID, currencyKey)
}

func (f *fakeWalletRepo) EnsureWalletForUpdate(_ context.Context, _ bun.IDB, profileID int64, currencyKey string) (*models.Wallet, error) {
	key := walletKey(profileID, currencyKey)
	if wallet, ok := f.wallets[key]; ok {
		return wallet, nil
	}
	f.nextID++
	wallet := &models.Wallet{
		ID:          f.nextID,
		OwnerType:   models.OwnerTypeProfile,
		OwnerID:     profileID,
		CurrencyKey: currencyKey,
	}
	f.wallets[key] = wallet
	return wallet, nil
}

func (f *fakeWalletRepo) SetBalance(_ context.Context, _ bun.IDB, walletID, newBalance int64) error {
	for _, wallet := range f.wallets {
		if wallet.ID == walletID {
			wallet.Balance = newBalance
			return nil
		}
	}
	return fmt.Errorf("wallet %d not found", walletID)
}

func (f *fakeWalletRepo) InsertTransaction(_ context.Context, _ bun.IDB, txRow *models.CurrencyTransaction) error {
	f.transactions = append(f.transactions, txRow)
	return nil
}

func (f *fakeWalletRepo) GetByOwner(_ context.Context, profileID int64) ([]*models.Wallet, error) {
	var out []*models.Wallet
	for _, wallet := range f.wallets {
		if wallet.OwnerID == profileID {
			out = append(out, wallet)
		}
	}
	return out, nil
}

func (f *fakeWalletRepo) GetRate(_ context.Context, _ bun.IDB, base, quote string) (float64, error) {
	rate, ok := f.rates[base+"/"+quote]
	if !ok {
		return 0, repositories.ErrRateNotFound
	}
	return rate, nil
}

func (f *fakeWalletRepo) InsertExchangeLog(_ context.Context, _ bun.IDB, _ *models.CurrencyExchangeLog) error {
	return nil
}

func (f *fakeWalletRepo) balance(profileID int64, currencyKey string) int64 {
	if wallet, ok := f.wallets[walletKey(profileID, currencyKey)]; ok {
		return wallet.Balance
	}
	return 0
}

func TestAdjustBalanceInsufficientFunds(t *testing.T) {
	wallets := newFakeWalletRepo()
	svc := NewService(fakeTxManager{}, wallets)
	ctx := context.Background()

	if err := svc.Adjust(ctx, 1, models.CurrencyCoin, 100, "test", "seed"); err != nil {
		t.Fatalf("seed credit failed: %v", err)
	}

	err := svc.Adjust(ctx, 1, models.CurrencyCoin, -150, "test", "overdraft")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if got := wallets.balance(1, models.CurrencyCoin); got != 100 {
		t.Errorf("balance after failed debit = %d, want 100", got)
	}
	if len(wallets.transactions) != 1 {
		t.Errorf("got %d transaction rows, want only the seed credit", len(wallets.transactions))
	}
}

func TestAdjustBalanceDirections(t *testing.T) {
	wallets := newFakeWalletRepo()
	svc := NewService(fakeTxManager{}, wallets)
	ctx := context.Background()

	if err := svc.Adjust(ctx, 1, models.CurrencyCoin, 50, "test", "credit"); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if err := svc.Adjust(ctx, 1, models.CurrencyCoin, -30, "test", "debit"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	if got := wallets.balance(1, models.CurrencyCoin); got != 20 {
		t.Errorf("balance = %d, want 20", got)
	}
	if len(wallets.transactions) != 2 {
		t.Fatalf("got %d transaction rows, want 2", len(wallets.transactions))
	}

	credit, debit := wallets.transactions[0], wallets.transactions[1]
	if credit.Direction != models.DirectionCredit || credit.Amount != 50 {
		t.Errorf("credit row = %s/%d, want credit/50", credit.Direction, credit.Amount)
	}
	if debit.Direction != models.DirectionDebit || debit.Amount != 30 {
		t.Errorf("debit row = %s/%d, want debit/30 (absolute magnitude)", debit.Direction, debit.Amount)
	}
}

func TestGetBalancesEmptyProfile(t *testing.T) {
	svc := NewService(fakeTxManager{}, newFakeWalletRepo())

	balances, err := svc.GetBalances(context.Background(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 0 {
		t.Errorf("got %d balances for untouched profile, want 0", len(balances))
	}
}
