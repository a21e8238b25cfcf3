// Package events defines the publishing capability the economy engines call
// after a successful mutation. It replaces an implicit broadcast registry
// with an explicit dependency injected at construction time; implementations
// deliver to whatever transport the deployment wires up.
package events

import (
	"context"
	"log/slog"
	"time"
)

type JobSettled struct {
	JobID      int64
	ProfileID  int64
	NodeKey    string
	Experience int64
	Items      map[string]int64
	SettledAt  time.Time
}

type TradeExecuted struct {
	ProfileID int64
	ItemKey   string
	Quantity  int64
	Currency  string
	Side      string // "buy" or "sell"
	CoinValue int64
}

type TickApplied struct {
	OccurredAt time.Time
	Prices     map[string]int64
}

type Publisher interface {
	PublishJobSettled(ctx context.Context, evt JobSettled)
	PublishTradeExecuted(ctx context.Context, evt TradeExecuted)
	PublishTickApplied(ctx context.Context, evt TickApplied)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) PublishJobSettled(context.Context, JobSettled)       {}
func (NopPublisher) PublishTradeExecuted(context.Context, TradeExecuted) {}
func (NopPublisher) PublishTickApplied(context.Context, TickApplied)     {}

// LogPublisher writes each event to the structured log; the default sink for
// deployments without a realtime transport.
type LogPublisher struct{}

func (LogPublisher) PublishJobSettled(_ context.Context, evt JobSettled) {
	slog.Info("Gather job settled",
		slog.String("type", "eco"),
		slog.Int64("job_id", evt.JobID),
		slog.Int64("profile_id", evt.ProfileID),
		slog.String("node_key", evt.NodeKey),
		slog.Int64("experience", evt.Experience),
	)
}

func (LogPublisher) PublishTradeExecuted(_ context.Context, evt TradeExecuted) {
	slog.Info("Market trade executed",
		slog.String("type", "eco"),
		slog.Int64("profile_id", evt.ProfileID),
		slog.String("item_key", evt.ItemKey),
		slog.Int64("quantity", evt.Quantity),
		slog.String("side", evt.Side),
		slog.String("currency", evt.Currency),
		slog.Int64("coin_value", evt.CoinValue),
	)
}

func (LogPublisher) PublishTickApplied(_ context.Context, evt TickApplied) {
	slog.Info("Market tick applied",
		slog.String("type", "eco"),
		slog.Int("items", len(evt.Prices)),
	)
}
