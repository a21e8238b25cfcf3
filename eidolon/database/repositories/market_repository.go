package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"
)

var ErrMarketItemNotFound = errors.New("market item not found")

const itemCacheSize = 1024

type MarketRepository interface {
	ListItems(ctx context.Context, idb bun.IDB) ([]*models.MarketItem, error)
	GetItem(ctx context.Context, itemKey string) (*models.MarketItem, error)
	// GetItemTx reads a catalog item through idb, bypassing the read cache,
	// so trades resolve prices against the row state their transaction sees.
	GetItemTx(ctx context.Context, idb bun.IDB, itemKey string) (*models.MarketItem, error)
	// LatestTick returns the most recent tick for an item, or nil when no
	// tick has ever been recorded.
	LatestTick(ctx context.Context, idb bun.IDB, itemKey string) (*models.MarketTick, error)
	// LatestTicks returns the most recent tick per item key across the whole
	// catalog.
	LatestTicks(ctx context.Context) (map[string]*models.MarketTick, error)
	InsertTick(ctx context.Context, idb bun.IDB, tick *models.MarketTick) error
	InsertAdminLog(ctx context.Context, idb bun.IDB, accountID int64, action string, metadata any) error
}

type marketRepository struct {
	db        *bun.DB
	itemCache *lru.Cache
	cacheTTL  time.Duration
}

type cachedItem struct {
	item      *models.MarketItem
	expiresAt time.Time
}

func NewMarketRepository(db *bun.DB) MarketRepository {
	cache, _ := lru.New(itemCacheSize)
	return &marketRepository{
		db:        db,
		itemCache: cache,
		cacheTTL:  5 * time.Minute,
	}
}

func (r *marketRepository) ListItems(ctx context.Context, idb bun.IDB) ([]*models.MarketItem, error) {
	if idb == nil {
		idb = r.db
	}

	var items []*models.MarketItem
	err := idb.NewSelect().
		Model(&items).
		Order("market_item_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list market items: %w", err)
	}
	return items, nil
}

func (r *marketRepository) GetItem(ctx context.Context, itemKey string) (*models.MarketItem, error) {
	if entry, ok := r.itemCache.Get(itemKey); ok {
		cached := entry.(cachedItem)
		if time.Now().Before(cached.expiresAt) {
			return cached.item, nil
		}
		r.itemCache.Remove(itemKey)
	}

	var item models.MarketItem
	err := r.db.NewSelect().
		Model(&item).
		Where("market_item_key = ?", itemKey).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMarketItemNotFound, itemKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market item: %w", err)
	}

	r.itemCache.Add(itemKey, cachedItem{item: &item, expiresAt: time.Now().Add(r.cacheTTL)})
	return &item, nil
}

func (r *marketRepository) GetItemTx(ctx context.Context, idb bun.IDB, itemKey string) (*models.MarketItem, error) {
	if idb == nil {
		idb = r.db
	}

	var item models.MarketItem
	err := idb.NewSelect().
		Model(&item).
		Where("market_item_key = ?", itemKey).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMarketItemNotFound, itemKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market item: %w", err)
	}
	return &item, nil
}

func (r *marketRepository) LatestTick(ctx context.Context, idb bun.IDB, itemKey string) (*models.MarketTick, error) {
	if idb == nil {
		idb = r.db
	}

	var tick models.MarketTick
	err := idb.NewSelect().
		Model(&tick).
		Where("market_item_key = ?", itemKey).
		Order("occurred_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest tick: %w", err)
	}
	return &tick, nil
}

func (r *marketRepository) LatestTicks(ctx context.Context) (map[string]*models.MarketTick, error) {
	var ticks []*models.MarketTick
	err := r.db.NewSelect().
		Model(&ticks).
		DistinctOn("market_item_key").
		OrderExpr("market_item_key, occurred_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest ticks: %w", err)
	}

	latest := make(map[string]*models.MarketTick, len(ticks))
	for _, tick := range ticks {
		latest[tick.MarketItemKey] = tick
	}
	return latest, nil
}

func (r *marketRepository) InsertTick(ctx context.Context, idb bun.IDB, tick *models.MarketTick) error {
	if _, err := idb.NewInsert().Model(tick).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert market tick: %w", err)
	}
	return nil
}

func (r *marketRepository) InsertAdminLog(ctx context.Context, idb bun.IDB, accountID int64, action string, metadata any) error {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal admin log metadata: %w", err)
	}

	logRow := &models.AdminLog{
		AccountID: accountID,
		Action:    action,
		Metadata:  payload,
		CreatedAt: time.Now(),
	}
	if _, err := idb.NewInsert().Model(logRow).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert admin log: %w", err)
	}
	return nil
}
