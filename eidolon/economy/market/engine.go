package market

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	"github.com/eidolonworld/eidolon/eidolon/database/repositories"
	"github.com/eidolonworld/eidolon/eidolon/economy/events"
	"github.com/eidolonworld/eidolon/eidolon/economy/ledger"
	"github.com/eidolonworld/eidolon/eidolon/economy/utils"
	"github.com/eidolonworld/eidolon/eidolon/logger"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMarketItemNotFound = repositories.ErrMarketItemNotFound
	ErrInvalidQuantity    = errors.New("trade quantity must be positive")
	ErrUnsupportedPayment = errors.New("unsupported payment currency")
)

// ItemQuote is one row of the market overview.
type ItemQuote struct {
	MarketItemKey string    `json:"marketItemKey"`
	DisplayName   string    `json:"displayName"`
	Category      string    `json:"category"`
	CurrentPrice  int64     `json:"currentPrice"`
	BasePrice     int64     `json:"basePrice"`
	MinPrice      int64     `json:"minPrice"`
	MaxPrice      int64     `json:"maxPrice"`
	LastDelta     int64     `json:"lastDelta"`
	LastTickAt    time.Time `json:"lastTickAt,omitempty"`
}

// TickOutcome reports one item's movement from a simulated tick.
type TickOutcome struct {
	MarketItemKey string `json:"marketItemKey"`
	PreviousPrice int64  `json:"previousPrice"`
	NewPrice      int64  `json:"newPrice"`
	Delta         int64  `json:"delta"`
}

// TradeReceipt summarizes an executed buy or sell.
type TradeReceipt struct {
	MarketItemKey string `json:"marketItemKey"`
	Quantity      int64  `json:"quantity"`
	UnitPrice     int64  `json:"unitPrice"`
	TotalCoin     int64  `json:"totalCoin"`
	Currency      string `json:"currency"`
	// CurrencyAmount is the amount moved in the payment currency. For soul
	// trades ChangeBackCoin carries the coin-denominated rounding remainder.
	CurrencyAmount int64 `json:"currencyAmount"`
	ChangeBackCoin int64 `json:"changeBackCoin"`
}

type Engine struct {
	tm        utils.TxManager
	repo      repositories.MarketRepository
	inventory repositories.InventoryRepository
	ledger    *ledger.Service
	publisher events.Publisher
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(tm utils.TxManager, repo repositories.MarketRepository, inventory repositories.InventoryRepository, ledgerSvc *ledger.Service, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		tm:        tm,
		repo:      repo,
		inventory: inventory,
		ledger:    ledgerSvc,
		publisher: publisher,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Overview returns a quote per catalog item. Catalog and tick history are
// fetched concurrently and joined in memory.
func (e *Engine) Overview(ctx context.Context) ([]ItemQuote, error) {
	var (
		items []*models.MarketItem
		ticks map[string]*models.MarketTick
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = e.repo.ListItems(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		ticks, err = e.repo.LatestTicks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quotes := make([]ItemQuote, 0, len(items))
	for _, item := range items {
		quote := ItemQuote{
			MarketItemKey: item.MarketItemKey,
			DisplayName:   item.DisplayName,
			Category:      item.Category,
			CurrentPrice:  item.BasePrice,
			BasePrice:     item.BasePrice,
			MinPrice:      item.MinPrice,
			MaxPrice:      item.MaxPrice,
		}
		if tick, ok := ticks[item.MarketItemKey]; ok {
			quote.CurrentPrice = tick.Price
			quote.LastDelta = tick.Delta
			quote.LastTickAt = tick.OccurredAt
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// CurrentPrice resolves an item's effective price: its latest tick, or the
// catalog base price when the item has never ticked.
func (e *Engine) CurrentPrice(ctx context.Context, itemKey string) (int64, error) {
	item, err := e.repo.GetItem(ctx, itemKey)
	if err != nil {
		return 0, err
	}
	tick, err := e.repo.LatestTick(ctx, nil, itemKey)
	if err != nil {
		return 0, err
	}
	if tick == nil {
		return item.BasePrice, nil
	}
	return tick.Price, nil
}

// SimulateTick rolls one price movement for every catalog item inside a
// single transaction. When actorID is nonzero the run is recorded as an admin
// action with a per-item outcome payload.
func (e *Engine) SimulateTick(ctx context.Context, actorID int64) ([]TickOutcome, error) {
	start := time.Now()
	var outcomes []TickOutcome
	occurredAt := e.now()

	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		items, err := e.repo.ListItems(ctx, tx)
		if err != nil {
			return err
		}

		outcomes = make([]TickOutcome, 0, len(items))
		for _, item := range items {
			latest, err := e.repo.LatestTick(ctx, tx, item.MarketItemKey)
			if err != nil {
				return err
			}
			currentPrice := item.BasePrice
			if latest != nil {
				currentPrice = latest.Price
			}

			e.rngMu.Lock()
			price, delta := nextTick(item, currentPrice, e.rng)
			e.rngMu.Unlock()

			if err := e.repo.InsertTick(ctx, tx, &models.MarketTick{
				MarketItemKey: item.MarketItemKey,
				Price:         price,
				Delta:         delta,
				OccurredAt:    occurredAt,
			}); err != nil {
				return err
			}
			outcomes = append(outcomes, TickOutcome{
				MarketItemKey: item.MarketItemKey,
				PreviousPrice: currentPrice,
				NewPrice:      price,
				Delta:         delta,
			})
		}

		if actorID != 0 {
			return e.repo.InsertAdminLog(ctx, tx, actorID, "market_tick", outcomes)
		}
		return nil
	})

	logger.LogEconomy("market_tick", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]int64, len(outcomes))
	for _, outcome := range outcomes {
		prices[outcome.MarketItemKey] = outcome.NewPrice
	}
	e.publisher.PublishTickApplied(ctx, events.TickApplied{
		OccurredAt: occurredAt,
		Prices:     prices,
	})
	return outcomes, nil
}

// Buy purchases quantity units at the current price, paying in coin or soul.
// Soul payments round the cost up to whole souls and credit the overpayment
// back in coin. Balance debits, inventory credit, and ledger rows commit
// atomically.
func (e *Engine) Buy(ctx context.Context, profileID int64, itemKey string, quantity int64, payCurrency string) (*TradeReceipt, error) {
	start := time.Now()
	receipt, err := e.trade(ctx, profileID, itemKey, quantity, payCurrency, true)
	logger.LogEconomy("market_buy", time.Since(start), err)
	return receipt, err
}

// Sell disposes quantity units from inventory at the current price, paid out
// in coin or soul. Soul payouts round down to whole souls with the remainder
// credited in coin.
func (e *Engine) Sell(ctx context.Context, profileID int64, itemKey string, quantity int64, payCurrency string) (*TradeReceipt, error) {
	start := time.Now()
	receipt, err := e.trade(ctx, profileID, itemKey, quantity, payCurrency, false)
	logger.LogEconomy("market_sell", time.Since(start), err)
	return receipt, err
}

func (e *Engine) trade(ctx context.Context, profileID int64, itemKey string, quantity int64, payCurrency string, isBuy bool) (*TradeReceipt, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if payCurrency != models.CurrencyCoin && payCurrency != models.CurrencySoul {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPayment, payCurrency)
	}

	receipt := &TradeReceipt{
		MarketItemKey: itemKey,
		Quantity:      quantity,
		Currency:      payCurrency,
	}

	side := "sell"
	reasonPrefix := "market_sell"
	if isBuy {
		side = "buy"
		reasonPrefix = "market_buy"
	}
	source := fmt.Sprintf("%s:%s", reasonPrefix, itemKey)

	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Price resolves inside the transaction, uncached, so the debit and
		// the quoted price come from the same snapshot.
		item, err := e.repo.GetItemTx(ctx, tx, itemKey)
		if err != nil {
			return err
		}
		tick, err := e.repo.LatestTick(ctx, tx, itemKey)
		if err != nil {
			return err
		}
		unitPrice := item.BasePrice
		if tick != nil {
			unitPrice = tick.Price
		}
		totalCoin := unitPrice * quantity
		receipt.UnitPrice = unitPrice
		receipt.TotalCoin = totalCoin

		if isBuy {
			switch payCurrency {
			case models.CurrencyCoin:
				receipt.CurrencyAmount = totalCoin
				if err := e.ledger.AdjustBalance(ctx, tx, profileID, models.CurrencyCoin, -totalCoin, reasonPrefix, source); err != nil {
					return err
				}
			case models.CurrencySoul:
				rate, err := e.ledger.GetRate(ctx, tx, models.CurrencySoul, models.CurrencyCoin)
				if err != nil {
					return err
				}
				soulCost, changeBack := BuySoulQuote(totalCoin, rate)
				receipt.CurrencyAmount = soulCost
				receipt.ChangeBackCoin = changeBack
				if err := e.ledger.AdjustBalance(ctx, tx, profileID, models.CurrencySoul, -soulCost, reasonPrefix, source); err != nil {
					return err
				}
				if changeBack > 0 {
					if err := e.ledger.AdjustBalance(ctx, tx, profileID, models.CurrencyCoin, changeBack, reasonPrefix+"_change", source); err != nil {
						return err
					}
				}
			}
			return e.inventory.Grant(ctx, tx, profileID, itemKey, quantity)
		}

		if err := e.inventory.Deduct(ctx, tx, profileID, itemKey, quantity); err != nil {
			return err
		}
		switch payCurrency {
		case models.CurrencyCoin:
			receipt.CurrencyAmount = totalCoin
			return e.ledger.AdjustBalance(ctx, tx, profileID, models.CurrencyCoin, totalCoin, reasonPrefix, source)
		case models.CurrencySoul:
			rate, err := e.ledger.GetRate(ctx, tx, models.CurrencySoul, models.CurrencyCoin)
			if err != nil {
				return err
			}
			soulGain, remainder := SellSoulQuote(totalCoin, rate)
			receipt.CurrencyAmount = soulGain
			receipt.ChangeBackCoin = remainder
			if soulGain > 0 {
				if err := e.ledger.AdjustBalance(ctx, tx, profileID, models.CurrencySoul, soulGain, reasonPrefix, source); err != nil {
					return err
				}
			}
			if remainder > 0 {
				return e.ledger.AdjustBalance(ctx, tx, profileID, models.CurrencyCoin, remainder, reasonPrefix+"_remainder", source)
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publisher.PublishTradeExecuted(ctx, events.TradeExecuted{
		ProfileID: profileID,
		ItemKey:   itemKey,
		Quantity:  quantity,
		Currency:  payCurrency,
		Side:      side,
		CoinValue: receipt.TotalCoin,
	})
	return receipt, nil
}
