// Package eidolon wires configuration, storage, and the economy engines into
// a single application object.
package eidolon

import (
	"context"

	"github.com/eidolonworld/eidolon/eidolon/database"
	"github.com/eidolonworld/eidolon/eidolon/database/repositories"
	"github.com/eidolonworld/eidolon/eidolon/economy/events"
	"github.com/eidolonworld/eidolon/eidolon/economy/exchange"
	"github.com/eidolonworld/eidolon/eidolon/economy/gathering"
	"github.com/eidolonworld/eidolon/eidolon/economy/ledger"
	"github.com/eidolonworld/eidolon/eidolon/economy/market"
	"github.com/eidolonworld/eidolon/eidolon/economy/utils"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

type App struct {
	Cfg     Config
	Version string
	Commit  string
	DB      *database.DB

	WalletRepository    repositories.WalletRepository
	GatherRepository    repositories.GatherRepository
	InventoryRepository repositories.InventoryRepository
	MarketRepository    repositories.MarketRepository

	Ledger          *ledger.Service
	Exchange        *exchange.Service
	GatherEngine    *gathering.Engine
	MarketEngine    *market.Engine
	MarketScheduler *market.Scheduler
}

// Setup connects storage, initializes the schema and seed catalogs, and
// constructs every repository and engine. The app is fully usable once Setup
// returns.
func (a *App) Setup(ctx context.Context, publisher events.Publisher) error {
	db, err := database.New(ctx, database.DBConfig{
		Host:     a.Cfg.DB.Host,
		Port:     a.Cfg.DB.Port,
		User:     a.Cfg.DB.User,
		Password: a.Cfg.DB.Password,
		Database: a.Cfg.DB.Database,
		PoolSize: a.Cfg.DB.PoolSize,
	})
	if err != nil {
		return err
	}
	a.DB = db

	if err := db.InitializeSchema(ctx); err != nil {
		db.Close()
		return err
	}

	bunDB := db.BunDB()
	tm := utils.NewTransactionManager(bunDB)

	a.WalletRepository = repositories.NewWalletRepository(bunDB)
	a.GatherRepository = repositories.NewGatherRepository(bunDB)
	a.InventoryRepository = repositories.NewInventoryRepository(bunDB)
	a.MarketRepository = repositories.NewMarketRepository(bunDB)

	a.Ledger = ledger.NewService(tm, a.WalletRepository)
	a.Exchange = exchange.NewService(tm, a.Ledger, a.WalletRepository)
	a.GatherEngine = gathering.NewEngine(tm, a.GatherRepository, a.InventoryRepository, publisher)
	a.MarketEngine = market.NewEngine(tm, a.MarketRepository, a.InventoryRepository, a.Ledger, publisher)
	a.MarketScheduler = market.NewScheduler(a.MarketEngine, a.Cfg.Market.TickInterval())

	return nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
