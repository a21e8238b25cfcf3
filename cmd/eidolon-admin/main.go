// eidolon-admin runs one-off administrative tasks: schema initialization with
// catalog seeding, and manually triggered market price ticks recorded in the
// admin log.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/eidolonworld/eidolon/eidolon"
	"github.com/eidolonworld/eidolon/eidolon/economy/events"
	"github.com/eidolonworld/eidolon/eidolon/logger"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	path := flag.String("config", "config.toml", "path to config")
	tick := flag.Bool("tick", false, "simulate one market price tick")
	actorID := flag.Int64("actor", 0, "admin account id recorded for the tick")
	grantProfile := flag.Int64("grant-profile", 0, "profile id to credit or debit")
	grantCurrency := flag.String("grant-currency", "coin", "currency key for -grant-profile")
	grantAmount := flag.Int64("grant-amount", 0, "signed amount for -grant-profile")
	inventoryProfile := flag.Int64("inventory", 0, "profile id whose inventory to print")
	inventoryItem := flag.String("item", "", "restrict -inventory to a single item key")
	flag.Parse()

	cfg, err := eidolon.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	app := eidolon.New(*cfg, "admin", "")
	if err := app.Setup(ctx, events.NopPublisher{}); err != nil {
		slog.Error("Failed to set up application", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("Schema initialized and catalogs seeded",
		slog.String("database", cfg.DB.Database))

	if *grantProfile != 0 && *grantAmount != 0 {
		err := app.Ledger.Adjust(ctx, *grantProfile, *grantCurrency, *grantAmount, "admin_grant", "eidolon-admin")
		if err != nil {
			slog.Error("Grant failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("Balance adjusted",
			slog.Int64("profile", *grantProfile),
			slog.String("currency", *grantCurrency),
			slog.Int64("amount", *grantAmount))
	}

	if *inventoryProfile != 0 {
		if *inventoryItem != "" {
			quantity, err := app.InventoryRepository.GetQuantity(ctx, *inventoryProfile, *inventoryItem)
			if err != nil {
				slog.Error("Inventory lookup failed", slog.Any("error", err))
				os.Exit(1)
			}
			slog.Info("Inventory entry",
				slog.String("item", *inventoryItem),
				slog.Int64("quantity", quantity))
		} else {
			entries, err := app.InventoryRepository.GetByProfile(ctx, *inventoryProfile)
			if err != nil {
				slog.Error("Inventory lookup failed", slog.Any("error", err))
				os.Exit(1)
			}
			for _, entry := range entries {
				slog.Info("Inventory entry",
					slog.String("item", entry.ItemKey),
					slog.Int64("quantity", entry.Quantity))
			}
		}
	}

	if *tick {
		outcomes, err := app.MarketEngine.SimulateTick(ctx, *actorID)
		if err != nil {
			slog.Error("Market tick failed", slog.Any("error", err))
			os.Exit(1)
		}
		for _, outcome := range outcomes {
			slog.Info("Price moved",
				slog.String("item", outcome.MarketItemKey),
				slog.Int64("from", outcome.PreviousPrice),
				slog.Int64("to", outcome.NewPrice),
				slog.Int64("delta", outcome.Delta))
		}
	}
}
