package simadapter

import (
	"math"
	"sync"
)

const (
	baseDailyVol = 0.02
	ticksPerDay  = 86400
)

// instrument is a simulated pair's price parameters, trimmed from the
// teacher's symbol.Symbol down to what GBM price generation needs — no
// locate codes, sectors, or ETF classification, since the reference
// adapter produces one flat pair namespace rather than a listed market.
type instrument struct {
	pair       string
	tickSize   float64
	volatility float64
}

// market drives GBM price movement per pair, grounded on the teacher's
// engine.MarketEngine with the sector-correlated shock blending dropped:
// a reference adapter has no need for cross-instrument correlation, only
// a plausible per-pair random walk.
type market struct {
	mu     sync.Mutex
	rng    *rng
	prices map[string]float64
}

func newMarket(r *rng, instruments []instrument) *market {
	prices := make(map[string]float64, len(instruments))
	for _, in := range instruments {
		prices[in.pair] = 0 // set later via seed, from the basePrices table
	}
	return &market{rng: r, prices: prices}
}

func (m *market) seed(pair string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[pair] = price
}

// tick advances price for one instrument using S(t+1) = S(t)*exp(vol*Z).
func (m *market) tick(in instrument) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	price := m.prices[in.pair]
	tickVol := baseDailyVol / math.Sqrt(ticksPerDay) * in.volatility
	z := m.rng.gaussian()

	price *= math.Exp(tickVol * z)
	price = math.Round(price/in.tickSize) * in.tickSize
	if price < in.tickSize {
		price = in.tickSize
	}

	m.prices[in.pair] = price
	return price
}
