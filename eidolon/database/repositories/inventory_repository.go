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

var ErrInsufficientInventory = errors.New("insufficient inventory")

type InventoryRepository interface {
	// Grant adds quantity to a profile's stack, creating the row on first
	// grant.
	Grant(ctx context.Context, idb bun.IDB, profileID int64, itemKey string, quantity int64) error
	// Deduct removes quantity from a profile's stack under a row lock. The
	// row is deleted outright when the stack reaches exactly zero.
	Deduct(ctx context.Context, idb bun.IDB, profileID int64, itemKey string, quantity int64) error
	GetByProfile(ctx context.Context, profileID int64) ([]*models.InventoryEntry, error)
	GetQuantity(ctx context.Context, profileID int64, itemKey string) (int64, error)
}

type inventoryRepository struct {
	db *bun.DB
}

func NewInventoryRepository(db *bun.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) Grant(ctx context.Context, idb bun.IDB, profileID int64, itemKey string, quantity int64) error {
	now := time.Now()
	entry := &models.InventoryEntry{
		ProfileID: profileID,
		ItemKey:   itemKey,
		Quantity:  quantity,
		Metadata:  []byte("{}"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := idb.NewInsert().
		Model(entry).
		On("CONFLICT (profile_id, item_key) DO UPDATE").
		Set("quantity = inventory.quantity + EXCLUDED.quantity").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to grant inventory: %w", err)
	}
	return nil
}

func (r *inventoryRepository) Deduct(ctx context.Context, idb bun.IDB, profileID int64, itemKey string, quantity int64) error {
	var entry models.InventoryEntry
	err := idb.NewSelect().
		Model(&entry).
		Where("profile_id = ? AND item_key = ?", profileID, itemKey).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrInsufficientInventory, itemKey)
	}
	if err != nil {
		return fmt.Errorf("failed to lock inventory entry: %w", err)
	}

	if entry.Quantity < quantity {
		return fmt.Errorf("%w: %s (has %d, needs %d)", ErrInsufficientInventory, itemKey, entry.Quantity, quantity)
	}

	remaining := entry.Quantity - quantity
	if remaining == 0 {
		if _, err := idb.NewDelete().
			Model((*models.InventoryEntry)(nil)).
			Where("id = ?", entry.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete emptied inventory entry: %w", err)
		}
		return nil
	}

	if _, err := idb.NewUpdate().
		Model((*models.InventoryEntry)(nil)).
		Set("quantity = ?", remaining).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", entry.ID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to update inventory quantity: %w", err)
	}
	return nil
}

func (r *inventoryRepository) GetByProfile(ctx context.Context, profileID int64) ([]*models.InventoryEntry, error) {
	var entries []*models.InventoryEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("profile_id = ?", profileID).
		Order("item_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	return entries, nil
}

func (r *inventoryRepository) GetQuantity(ctx context.Context, profileID int64, itemKey string) (int64, error) {
	var entry models.InventoryEntry
	err := r.db.NewSelect().
		Model(&entry).
		Where("profile_id = ? AND item_key = ?", profileID, itemKey).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get inventory quantity: %w", err)
	}
	return entry.Quantity, nil
}
