// Package market simulates randomized per-item price movement and executes
// buy/sell trades against the wallet ledger and inventory.
package market

import (
	"math"
	"math/rand"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
)

// nextTick rolls a uniform delta in [DailyDeltaMin, DailyDeltaMax] and applies
// it to the current price, clamping the result to the item's [min, max] band.
// The returned delta is the rolled value, not the clamped movement, so the
// history preserves what the roll was even at the band edge.
func nextTick(item *models.MarketItem, currentPrice int64, rng *rand.Rand) (price, delta int64) {
	delta = item.DailyDeltaMin + rng.Int63n(item.DailyDeltaMax-item.DailyDeltaMin+1)
	price = currentPrice + delta
	if price < item.MinPrice {
		price = item.MinPrice
	}
	if price > item.MaxPrice {
		price = item.MaxPrice
	}
	return price, delta
}

// BuySoulQuote converts a coin cost into whole souls, rounding the soul cost
// up and returning the overpayment as coin change.
func BuySoulQuote(totalCoinCost int64, rate float64) (soulCost, changeBack int64) {
	soulCost = int64(math.Ceil(float64(totalCoinCost) / rate))
	changeBack = int64(math.Round(float64(soulCost)*rate)) - totalCoinCost
	return soulCost, changeBack
}

// SellSoulQuote converts a coin sale value into whole souls, rounding the soul
// payout down and returning the unconvertible remainder as coin.
func SellSoulQuote(totalCoinValue int64, rate float64) (soulGain, remainder int64) {
	soulGain = int64(math.Floor(float64(totalCoinValue) / rate))
	remainder = totalCoinValue - int64(math.Round(float64(soulGain)*rate))
	return soulGain, remainder
}
