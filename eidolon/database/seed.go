package database

import (
	"context"
	"fmt"
	"log/slog"
)

// SeedCatalogData upserts the admin-managed catalogs the economy reads:
// currencies, the default exchange rate, gather nodes, and market items.
// Existing rows are refreshed in place so tuning changes roll out on restart.
func (db *DB) SeedCatalogData(ctx context.Context) error {
	if err := db.seedCurrencies(ctx); err != nil {
		return err
	}
	if err := db.seedCurrencyRates(ctx); err != nil {
		return err
	}
	if err := db.seedGatherNodes(ctx); err != nil {
		return err
	}
	if err := db.seedMarketItems(ctx); err != nil {
		return err
	}
	return nil
}

func (db *DB) seedCurrencies(ctx context.Context) error {
	currencies := []struct {
		Key           string
		DisplayName   string
		DisplayNameEn string
		Description   string
	}{
		{"coin", "金幣", "Gold Coin", "The common circulating currency of the world."},
		{"soul", "魂幣", "Soul Coin", "A rare currency earned through patronage and high-risk challenges."},
	}

	insertSQL := `
        INSERT INTO currencies (key, display_name, display_name_en, description, created_at)
        VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
        ON CONFLICT (key) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            display_name_en = EXCLUDED.display_name_en,
            description = EXCLUDED.description;
    `

	for _, c := range currencies {
		if _, err := db.ExecWithLog(ctx, insertSQL, c.Key, c.DisplayName, c.DisplayNameEn, c.Description); err != nil {
			return fmt.Errorf("failed to upsert currency %s: %w", c.Key, err)
		}
	}

	return nil
}

func (db *DB) seedCurrencyRates(ctx context.Context) error {
	insertSQL := `
        INSERT INTO currency_rates (base_currency, quote_currency, rate, notes, effective_at)
        VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
        ON CONFLICT (base_currency, quote_currency) DO NOTHING;
    `

	// Default 1 soul = 100 coin. Admin adjustments survive restarts, so the
	// seed never overwrites an existing rate.
	if _, err := db.ExecWithLog(ctx, insertSQL, "soul", "coin", 100.0, "default rate: 1 soul = 100 coin"); err != nil {
		return fmt.Errorf("failed to seed soul/coin rate: %w", err)
	}
	return nil
}

func (db *DB) seedGatherNodes(ctx context.Context) error {
	type nodeSeed struct {
		NodeKey             string
		DisplayName         string
		DisplayNameEn       string
		Scene               string
		SkillType           string
		MinLevel            int
		BaseDurationSeconds int64
		MaxParallelJobs     int
		EnergyCost          int
		SuccessRate         float64
		OutputItemKey       string
		OutputMin           int
		OutputMax           int
		RespawnSeconds      int
		SeasonEventBonus    string
		Notes               string
	}

	nodes := []nodeSeed{
		{
			NodeKey:             "tent_honey_harvest",
			DisplayName:         "蜜泉林採集",
			DisplayNameEn:       "Honey Spring Harvest",
			Scene:               "traveling_tent",
			SkillType:           "harvesting",
			MinLevel:            1,
			BaseDurationSeconds: 120,
			MaxParallelJobs:     2,
			EnergyCost:          5,
			SuccessRate:         0.95,
			OutputItemKey:       "tent_honey_nectar",
			OutputMin:           2,
			OutputMax:           4,
			RespawnSeconds:      60,
			SeasonEventBonus:    "nectar season: +2 yield",
			Notes:               "starter node; unlocks advanced gathering",
		},
		{
			NodeKey:             "tent_ice_mine",
			DisplayName:         "冰晶礦脈",
			DisplayNameEn:       "Crystalized Ice Mine",
			Scene:               "traveling_tent",
			SkillType:           "mining",
			MinLevel:            5,
			BaseDurationSeconds: 180,
			MaxParallelJobs:     1,
			EnergyCost:          6,
			SuccessRate:         0.9,
			OutputItemKey:       "tent_ice_shard",
			OutputMin:           1,
			OutputMax:           3,
			RespawnSeconds:      90,
			SeasonEventBonus:    "blizzard event: +10% success",
			Notes:               "requires steel pickaxe",
		},
	}

	insertSQL := `
        INSERT INTO gather_nodes (
            node_key, display_name, display_name_en, scene, skill_type,
            min_level, base_duration_seconds, max_parallel_jobs, energy_cost,
            success_rate, output_item_key, output_min, output_max,
            respawn_seconds, season_event_bonus, notes, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11, $12, $13,
            $14, $15, $16, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
        ) ON CONFLICT (node_key) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            display_name_en = EXCLUDED.display_name_en,
            scene = EXCLUDED.scene,
            skill_type = EXCLUDED.skill_type,
            min_level = EXCLUDED.min_level,
            base_duration_seconds = EXCLUDED.base_duration_seconds,
            max_parallel_jobs = EXCLUDED.max_parallel_jobs,
            energy_cost = EXCLUDED.energy_cost,
            success_rate = EXCLUDED.success_rate,
            output_item_key = EXCLUDED.output_item_key,
            output_min = EXCLUDED.output_min,
            output_max = EXCLUDED.output_max,
            respawn_seconds = EXCLUDED.respawn_seconds,
            season_event_bonus = EXCLUDED.season_event_bonus,
            notes = EXCLUDED.notes,
            updated_at = CURRENT_TIMESTAMP;
    `

	for _, n := range nodes {
		if _, err := db.ExecWithLog(ctx, insertSQL,
			n.NodeKey, n.DisplayName, n.DisplayNameEn, n.Scene, n.SkillType,
			n.MinLevel, n.BaseDurationSeconds, n.MaxParallelJobs, n.EnergyCost,
			n.SuccessRate, n.OutputItemKey, n.OutputMin, n.OutputMax,
			n.RespawnSeconds, n.SeasonEventBonus, n.Notes,
		); err != nil {
			return fmt.Errorf("failed to upsert gather node %s: %w", n.NodeKey, err)
		}
	}

	slog.Info("Gather node catalog seeded", slog.Int("count", len(nodes)))
	return nil
}

func (db *DB) seedMarketItems(ctx context.Context) error {
	type itemSeed struct {
		MarketItemKey string
		DisplayName   string
		DisplayNameEn string
		Category      string
		BasePrice     int64
		MinPrice      int64
		MaxPrice      int64
		DailyDeltaMin int64
		DailyDeltaMax int64
		Volatility    float64
		EventModifier string
		Notes         string
	}

	items := []itemSeed{
		{
			MarketItemKey: "market_honey_extract",
			DisplayName:   "冬蜜濃縮液",
			DisplayNameEn: "Winter Nectar Extract",
			Category:      "consumable",
			BasePrice:     320,
			MinPrice:      200,
			MaxPrice:      540,
			DailyDeltaMin: -40,
			DailyDeltaMax: 60,
			Volatility:    0.12,
			EventModifier: "season:harvest_festival=1.2",
			Notes:         "base gathering material; rises during the harvest festival",
		},
		{
			MarketItemKey: "market_ice_shard",
			DisplayName:   "冰晶碎片",
			DisplayNameEn: "Ice Shard",
			Category:      "material",
			BasePrice:     480,
			MinPrice:      260,
			MaxPrice:      720,
			DailyDeltaMin: -60,
			DailyDeltaMax: 80,
			Volatility:    0.18,
			EventModifier: "event:blizzard_week=1.4",
			Notes:         "raid demand; doubles during blizzard events",
		},
		{
			MarketItemKey: "market_war_bond",
			DisplayName:   "戰亂軍票",
			DisplayNameEn: "War Bond",
			Category:      "currency",
			BasePrice:     1500,
			MinPrice:      800,
			MaxPrice:      2600,
			DailyDeltaMin: -150,
			DailyDeltaMax: 220,
			Volatility:    0.25,
			EventModifier: "event:warcry_week=1.5",
			Notes:         "redeemable for quartermaster gear",
		},
		{
			MarketItemKey: "market_soul_fragment",
			DisplayName:   "魂幣碎片",
			DisplayNameEn: "Soul Fragment",
			Category:      "currency",
			BasePrice:     1200,
			MinPrice:      600,
			MaxPrice:      2000,
			DailyDeltaMin: -100,
			DailyDeltaMax: 150,
			Volatility:    0.2,
			EventModifier: "event:any=1.0",
			Notes:         "fuses into soul coins; tracks the soul rate",
		},
	}

	insertSQL := `
        INSERT INTO market_items (
            market_item_key, display_name, display_name_en, category,
            base_price, min_price, max_price,
            daily_delta_min, daily_delta_max, volatility,
            event_modifier, notes, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4,
            $5, $6, $7,
            $8, $9, $10,
            $11, $12, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
        ) ON CONFLICT (market_item_key) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            display_name_en = EXCLUDED.display_name_en,
            category = EXCLUDED.category,
            base_price = EXCLUDED.base_price,
            min_price = EXCLUDED.min_price,
            max_price = EXCLUDED.max_price,
            daily_delta_min = EXCLUDED.daily_delta_min,
            daily_delta_max = EXCLUDED.daily_delta_max,
            volatility = EXCLUDED.volatility,
            event_modifier = EXCLUDED.event_modifier,
            notes = EXCLUDED.notes,
            updated_at = CURRENT_TIMESTAMP;
    `

	for _, it := range items {
		if _, err := db.ExecWithLog(ctx, insertSQL,
			it.MarketItemKey, it.DisplayName, it.DisplayNameEn, it.Category,
			it.BasePrice, it.MinPrice, it.MaxPrice,
			it.DailyDeltaMin, it.DailyDeltaMax, it.Volatility,
			it.EventModifier, it.Notes,
		); err != nil {
			return fmt.Errorf("failed to upsert market item %s: %w", it.MarketItemKey, err)
		}
	}

	slog.Info("Market item catalog seeded", slog.Int("count", len(items)))
	return nil
}
