package market

import (
	"math/rand"
	"testing"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
)

func TestNextTickStaysWithinBand(t *testing.T) {
	item := &models.MarketItem{
		MarketItemKey: "market_honey_extract",
		BasePrice:     320,
		MinPrice:      200,
		MaxPrice:      540,
		DailyDeltaMin: -40,
		DailyDeltaMax: 60,
	}
	rng := rand.New(rand.NewSource(42))

	price := item.BasePrice
	for i := 0; i < 10_000; i++ {
		var delta int64
		price, delta = nextTick(item, price, rng)
		if price < item.MinPrice || price > item.MaxPrice {
			t.Fatalf("price %d escaped band [%d, %d] at iteration %d", price, item.MinPrice, item.MaxPrice, i)
		}
		if delta < item.DailyDeltaMin || delta > item.DailyDeltaMax {
			t.Fatalf("delta %d outside [%d, %d]", delta, item.DailyDeltaMin, item.DailyDeltaMax)
		}
	}
}

func TestNextTickClampsAtEdges(t *testing.T) {
	item := &models.MarketItem{
		MarketItemKey: "pinned",
		MinPrice:      100,
		MaxPrice:      110,
		DailyDeltaMin: -500,
		DailyDeltaMax: -500,
	}
	rng := rand.New(rand.NewSource(1))

	price, delta := nextTick(item, 105, rng)
	if price != item.MinPrice {
		t.Errorf("price = %d, want clamp to %d", price, item.MinPrice)
	}
	if delta != -500 {
		t.Errorf("delta = %d, want the unclamped roll -500", delta)
	}
}

func TestBuySoulQuote(t *testing.T) {
	tests := []struct {
		name          string
		totalCoinCost int64
		rate          float64
		wantSouls     int64
		wantChange    int64
	}{
		{"exact multiple", 300, 100, 3, 0},
		{"rounds up with change", 250, 100, 3, 50},
		{"single coin", 1, 100, 1, 99},
		{"zero cost", 0, 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			souls, change := BuySoulQuote(tt.totalCoinCost, tt.rate)
			if souls != tt.wantSouls || change != tt.wantChange {
				t.Errorf("BuySoulQuote(%d, %v) = (%d, %d), want (%d, %d)",
					tt.totalCoinCost, tt.rate, souls, change, tt.wantSouls, tt.wantChange)
			}
		})
	}
}

func TestSellSoulQuote(t *testing.T) {
	tests := []struct {
		name           string
		totalCoinValue int64
		rate           float64
		wantSouls      int64
		wantRemainder  int64
	}{
		{"exact multiple", 300, 100, 3, 0},
		{"rounds down with remainder", 250, 100, 2, 50},
		{"below one soul", 99, 100, 0, 99},
		{"zero value", 0, 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			souls, remainder := SellSoulQuote(tt.totalCoinValue, tt.rate)
			if souls != tt.wantSouls || remainder != tt.wantRemainder {
				t.Errorf("SellSoulQuote(%d, %v) = (%d, %d), want (%d, %d)",
					tt.totalCoinValue, tt.rate, souls, remainder, tt.wantSouls, tt.wantRemainder)
			}
		})
	}
}

func TestSoulQuotesConserveValue(t *testing.T) {
	rate := 100.0
	for value := int64(0); value < 1000; value++ {
		souls, change := BuySoulQuote(value, rate)
		if souls*100-change != value {
			t.Fatalf("buy: %d souls minus %d change != %d coin", souls, change, value)
		}
		souls, remainder := SellSoulQuote(value, rate)
		if souls*100+remainder != value {
			t.Fatalf("sell: %d souls plus %d remainder != %d coin", souls, remainder, value)
		}
	}
}
