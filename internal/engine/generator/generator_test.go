package generator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"OTCPulse/internal/domain/models"
)

func testConfig() models.InstrumentConfig {
	return models.InstrumentConfig{
		Symbol:               "OTC_EURUSD",
		Class:                models.ClassSession,
		PipSize:              0.0001,
		DefaultPrice:         1.085,
		BaseVolatility:       0.0004,
		VolatilityMultiplier: 1.0,
		MomentumFactor:       0.15,
		GarchAlpha:           0.08,
		GarchBeta:            0.90,
		GarchOmega:           2e-7,
		MeanReversion:        0.02,
		MaxDeviationPercent:  0.02,
		AnchorWindow:         30 * time.Minute,
	}
}

func TestNextTickStaysWithinDeviationBand(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))

	lo := cfg.DefaultPrice * (1 - cfg.MaxDeviationPercent)
	hi := cfg.DefaultPrice * (1 + cfg.MaxDeviationPercent)
	now := time.Now()
	for i := 0; i < 10000; i++ {
		tick := g.NextTick(now)
		if tick.Price < lo || tick.Price > hi {
			t.Fatalf("step %d: price %v outside [%v, %v]", i, tick.Price, lo, hi)
		}
	}
}

func TestNextTickPrecision(t *testing.T) {
	g := New(testConfig(), rand.New(rand.NewSource(2)))
	now := time.Now()
	for i := 0; i < 100; i++ {
		tick := g.NextTick(now)
		scaled := tick.Price * 1e5
		if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Fatalf("price %v not rounded to 5 decimals", tick.Price)
		}
	}
}

func TestReseedContinuity(t *testing.T) {
	g := New(testConfig(), rand.New(rand.NewSource(3)))

	g.Reseed(1.09123, 2.5e-7)
	if got := g.Price(); math.Abs(got-1.09123) > 1e-9 {
		t.Fatalf("expected reseeded price 1.09123, got %v", got)
	}
	if got := g.Variance(); got != 2.5e-7 {
		t.Fatalf("expected reseeded variance 2.5e-7, got %v", got)
	}

	// first step after reseed must stay near the seed, never jump to default
	tick := g.NextTick(time.Now())
	if math.Abs(tick.Price-1.09123) > 1.09123*0.02 {
		t.Fatalf("first tick %v jumped away from seed", tick.Price)
	}
}

func TestReseedFallsBackToDefaultPrice(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(4)))
	g.Reseed(0, 0)
	if got := g.Price(); got != cfg.DefaultPrice {
		t.Fatalf("expected default price %v, got %v", cfg.DefaultPrice, got)
	}
	if got := g.Variance(); got != cfg.BaseVolatility*cfg.BaseVolatility {
		t.Fatalf("expected base variance, got %v", got)
	}
}

func TestRealBasedTickAppliesOffset(t *testing.T) {
	cfg := testConfig()
	cfg.PriceOffsetPips = 3
	g := New(cfg, rand.New(rand.NewSource(5)))

	tick := g.RealBasedTick(time.Now(), 1.08)
	want := 1.08 + 3*cfg.PipSize
	if math.Abs(tick.Price-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, tick.Price)
	}
	if tick.Mode != models.ModeReal {
		t.Fatalf("expected REAL mode, got %s", tick.Mode)
	}
}

func TestBlendedTickEndpoints(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(6)))

	// w=1 pins to the real price, regardless of synthetic drift
	tick := g.BlendedTick(time.Now(), 1.08, 1)
	if math.Abs(tick.Price-1.08) > 1e-9 {
		t.Fatalf("w=1 expected 1.08, got %v", tick.Price)
	}
	if tick.Mode != models.ModeBlended {
		t.Fatalf("expected BLENDED mode, got %s", tick.Mode)
	}

	// weights outside [0,1] are clamped
	tick = g.BlendedTick(time.Now(), 1.08, 2.5)
	if math.Abs(tick.Price-1.08) > 1e-9 {
		t.Fatalf("w>1 should clamp to 1, got %v", tick.Price)
	}
}

func TestBlendedWeightRampIsContinuous(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	// two generators from the same seed: one blending toward 1.08, one not
	a := New(cfg, rand.New(rand.NewSource(7)))
	b := New(cfg, rand.New(rand.NewSource(7)))

	synth := b.NextTick(now).Price
	blended := a.BlendedTick(now, 1.08, 0.5).Price
	mid := synth*0.5 + 1.08*0.5
	if math.Abs(blended-mid) > cfg.PipSize {
		t.Fatalf("blend at w=0.5 expected near %v, got %v", mid, blended)
	}
}

func TestCandleAccumulation(t *testing.T) {
	g := New(testConfig(), rand.New(rand.NewSource(8)))

	if _, ok := g.CandleSnapshot(); ok {
		t.Fatalf("fresh reset candle should be empty")
	}

	now := time.Now()
	var first, last float64
	for i := 0; i < 50; i++ {
		tick := g.NextTick(now)
		if i == 0 {
			first = tick.Price
		}
		last = tick.Price
	}

	c, ok := g.CandleSnapshot()
	if !ok {
		t.Fatalf("expected candle data after ticks")
	}
	if c.Ticks != 50 {
		t.Fatalf("expected 50 ticks, got %d", c.Ticks)
	}
	if c.Open != first || c.Close != last {
		t.Fatalf("open/close mismatch: open=%v first=%v close=%v last=%v", c.Open, first, c.Close, last)
	}
	if c.High < c.Low || c.High < c.Close || c.Low > c.Open {
		t.Fatalf("inconsistent candle: %+v", c)
	}

	g.ResetCandle()
	if _, ok := g.CandleSnapshot(); ok {
		t.Fatalf("candle should be empty after reset")
	}
}

func TestMergeCandleAfterFailedFlush(t *testing.T) {
	g := New(testConfig(), rand.New(rand.NewSource(9)))
	now := time.Now()

	for i := 0; i < 10; i++ {
		g.NextTick(now)
	}
	snap, ok := g.CandleSnapshot()
	if !ok {
		t.Fatalf("expected candle data")
	}
	g.ResetCandle()

	// new interval accumulates while the failed snapshot is pending
	for i := 0; i < 5; i++ {
		g.NextTick(now)
	}
	cur, _ := g.CandleSnapshot()

	g.MergeCandle(snap)
	merged, ok := g.CandleSnapshot()
	if !ok {
		t.Fatalf("expected merged candle")
	}
	if merged.Open != snap.Open {
		t.Fatalf("merged open should come from the failed interval: %v != %v", merged.Open, snap.Open)
	}
	if merged.Close != cur.Close {
		t.Fatalf("merged close should come from the live interval: %v != %v", merged.Close, cur.Close)
	}
	if merged.Ticks != snap.Ticks+cur.Ticks {
		t.Fatalf("merged tick count %d != %d+%d", merged.Ticks, snap.Ticks, cur.Ticks)
	}
	if merged.High < snap.High || merged.High < cur.High {
		t.Fatalf("merged high %v lost range", merged.High)
	}
	if merged.Low > snap.Low || merged.Low > cur.Low {
		t.Fatalf("merged low %v lost range", merged.Low)
	}
}

func TestSetConfigKeepsPrice(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(10)))
	for i := 0; i < 20; i++ {
		g.NextTick(time.Now())
	}
	before := g.Price()

	cfg.BaseVolatility = 0.001
	cfg.VolatilityMultiplier = 2
	g.SetConfig(cfg)

	if g.Price() != before {
		t.Fatalf("config swap moved the price: %v -> %v", before, g.Price())
	}
	if g.Variance() != cfg.BaseVolatility*cfg.BaseVolatility {
		t.Fatalf("variance should restart from new base volatility")
	}
}

func TestBidAskSpread(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(11)))
	tick := g.NextTick(time.Now())
	if tick.Bid >= tick.Ask {
		t.Fatalf("bid %v should be below ask %v", tick.Bid, tick.Ask)
	}
	if spread := tick.Ask - tick.Bid; math.Abs(spread-cfg.PipSize) > 1e-9 {
		t.Fatalf("expected one-pip spread, got %v", spread)
	}
}
