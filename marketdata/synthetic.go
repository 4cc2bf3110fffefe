package marketdata

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"
)

// HistorySource produces the OHLCV candle series for a token. The contract is
// fixed: an ordered series, oldest first, of exactly the configured number of
// hourly candles. Swapping in a real OHLCV backend only requires another
// implementation of this interface.
type HistorySource interface {
	Candles(ctx context.Context, address string) ([]Candle, error)
}

// SeedPriceFn resolves the price a synthetic series is anchored to.
type SeedPriceFn func(ctx context.Context, address string) float64

// Synthetic generates a placeholder candle series from a bounded random walk
// seeded by the last known price. It exists because the provider has no
// reliable OHLCV coverage for this chain yet; it is NOT a market feed and
// must be replaced once a real candle source is available.
type Synthetic struct {
	points  int
	seed    SeedPriceFn
	now     func() time.Time
	uniform func() float64
}

// HistoryPoints is the fixed series length: one candle per hour over a day.
const HistoryPoints = 24

// Seed price used when no live price exists at all.
const fallbackSeedPrice = 0.0001

// NewSynthetic constructs the placeholder source. now and uniform may be nil;
// tests inject both for determinism.
func NewSynthetic(seed SeedPriceFn, now func() time.Time, uniform func() float64) *Synthetic {
	if now == nil {
		now = time.Now
	}
	if uniform == nil {
		uniform = rand.Float64
	}
	return &Synthetic{points: HistoryPoints, seed: seed, now: now, uniform: uniform}
}

// Candles walks a bounded random path around the seed price: per-step drift
// within ±5%, open/close perturbed within ±2.5%, high/low within 3% beyond
// the open/close envelope. Price fields carry eight fractional digits,
// volume two.
func (s *Synthetic) Candles(ctx context.Context, address string) ([]Candle, error) {
	base := fallbackSeedPrice
	if s.seed != nil {
		if p := s.seed(ctx, address); p > 0 {
			base = p
		}
	}

	now := s.now()
	series := make([]Candle, 0, s.points)
	price := base
	for i := s.points - 1; i >= 0; i-- {
		ts := now.Add(-time.Duration(i) * time.Hour).UTC()

		drift := (s.uniform() - 0.5) * 0.1
		price = price * (1 + drift)

		open := price
		cl := price * (1 + (s.uniform()-0.5)*0.05)
		hi, lo := open, cl
		if lo > hi {
			hi, lo = lo, hi
		}
		high := hi * (1 + s.uniform()*0.03)
		low := lo * (1 - s.uniform()*0.03)

		series = append(series, Candle{
			Timestamp: ts.Format(time.RFC3339),
			Open:      fixed(open, 8),
			High:      fixed(high, 8),
			Low:       fixed(low, 8),
			Close:     fixed(cl, 8),
			Volume:    fixed(s.uniform()*1_000_000, 2),
		})
	}
	return series, nil
}

func fixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}
