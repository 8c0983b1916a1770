package generator

import (
	"math"
	"math/rand"
	"time"

	"OTCPulse/internal/domain/models"
)

// varianceFloor keeps the GARCH recurrence strictly positive.
const varianceFloor = 1e-10

// historyWindow bounds the rolling price ring used for change /
// change-percent computation on outgoing ticks.
const historyWindow = 60

// CandleState is the in-progress candle accumulated between flushes.
type CandleState struct {
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Ticks   int
	HasData bool
}

func (c *CandleState) add(price float64) {
	if !c.HasData {
		c.Open, c.High, c.Low = price, price, price
		c.HasData = true
	} else {
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
	}
	c.Close = price
	c.Ticks++
}

// Generator runs the stochastic price process for one instrument.
// It performs no I/O and is not safe for concurrent use; the
// orchestrator serializes access through the instrument's own lock.
type Generator struct {
	cfg models.InstrumentConfig
	rng *rand.Rand

	price      float64
	variance   float64
	lastReturn float64
	anchor     float64

	// rolling price ring, oldest at head
	ring    []float64
	ringPos int
	ringLen int

	candle CandleState
}

// New creates a generator seeded from the instrument's default price.
// Pass a deterministic rand.Source in tests.
func New(cfg models.InstrumentConfig, rng *rand.Rand) *Generator {
	g := &Generator{cfg: cfg, rng: rng, ring: make([]float64, historyWindow)}
	g.Reseed(cfg.DefaultPrice, 0)
	return g
}

// Reseed resets the process from an anchor price, typically the last
// durable close after a restart. A non-positive anchor falls back to
// the configured default price. A non-positive variance reinitializes
// the regime to baseVolatility squared.
func (g *Generator) Reseed(anchor, variance float64) {
	if anchor <= 0 {
		anchor = g.cfg.DefaultPrice
	}
	g.price = g.round(anchor)
	g.anchor = anchor
	if variance > 0 {
		g.variance = variance
	} else {
		g.variance = g.cfg.BaseVolatility * g.cfg.BaseVolatility
	}
	g.lastReturn = 0
	g.ringPos, g.ringLen = 0, 0
	g.pushRing(g.price)
	g.ResetCandle()
}

// SetConfig swaps tuning parameters in place, keeping the current price
// so a config update never causes a discontinuous jump. The volatility
// regime restarts from the new base volatility.
func (g *Generator) SetConfig(cfg models.InstrumentConfig) {
	g.cfg = cfg
	g.variance = cfg.BaseVolatility * cfg.BaseVolatility
	g.lastReturn = 0
}

// SetAnchor admits a new reference price the process reverts toward and
// is bounded against.
func (g *Generator) SetAnchor(price float64) {
	if price > 0 {
		g.anchor = price
	}
}

// Anchor returns the current reference price.
func (g *Generator) Anchor() float64 { return g.anchor }

// Price returns the current process price.
func (g *Generator) Price() float64 { return g.price }

// Variance returns the current variance regime value.
func (g *Generator) Variance() float64 { return g.variance }

// NextTick advances the stochastic process one step and returns the
// resulting tick in SYNTHETIC mode.
func (g *Generator) NextTick(now time.Time) *models.Tick {
	price := g.step()
	g.apply(price)
	return g.tick(now, price, models.ModeSynthetic)
}

// RealBasedTick derives the tick from an externally supplied real price
// plus the configured fixed offset. The variance regime is untouched.
func (g *Generator) RealBasedTick(now time.Time, real float64) *models.Tick {
	price := g.round(real + g.cfg.PriceOffsetPips*g.cfg.PipSize)
	g.lastReturn = 0
	g.apply(price)
	return g.tick(now, price, models.ModeReal)
}

// BlendedTick mixes one synthetic step with the real price at weight w
// in [0,1]: w=0 is fully synthetic, w=1 fully real.
func (g *Generator) BlendedTick(now time.Time, real float64, w float64) *models.Tick {
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}
	synth := g.step()
	target := g.round(real + g.cfg.PriceOffsetPips*g.cfg.PipSize)
	price := g.round(synth*(1-w) + target*w)
	g.apply(price)
	return g.tick(now, price, models.ModeBlended)
}

// CandleSnapshot returns the in-progress candle. ok is false when no
// tick has landed since the last reset.
func (g *Generator) CandleSnapshot() (CandleState, bool) {
	return g.candle, g.candle.HasData
}

// ResetCandle clears the in-progress candle after a successful flush.
func (g *Generator) ResetCandle() {
	g.candle = CandleState{}
}

// MergeCandle folds a previously snapshotted candle back into the live
// one after a failed flush, so the next successful flush absorbs the
// missed interval's range instead of losing it.
func (g *Generator) MergeCandle(prev CandleState) {
	if !prev.HasData {
		return
	}
	cur := g.candle
	if !cur.HasData {
		g.candle = prev
		return
	}
	merged := prev
	if cur.High > merged.High {
		merged.High = cur.High
	}
	if cur.Low < merged.Low {
		merged.Low = cur.Low
	}
	merged.Close = cur.Close
	merged.Ticks += cur.Ticks
	g.candle = merged
}

// step computes the next synthetic price without mutating candle/ring
// state. It advances the variance regime and lastReturn.
func (g *Generator) step() float64 {
	cfg := &g.cfg
	anchor := g.anchor
	if anchor <= 0 {
		anchor = cfg.DefaultPrice
	}

	// GARCH(1,1) variance recurrence on the raw innovation.
	z := g.rng.NormFloat64()
	variance := cfg.GarchOmega + cfg.GarchAlpha*z*z + cfg.GarchBeta*g.variance
	if variance < varianceFloor {
		variance = varianceFloor
	}

	ret := z*math.Sqrt(variance)*cfg.BaseVolatility*cfg.VolatilityMultiplier +
		cfg.MomentumFactor*g.lastReturn +
		cfg.MeanReversion*(anchor-g.price)/anchor

	price := g.price*(1+ret) + cfg.PriceOffsetPips*cfg.PipSize

	lo := anchor * (1 - cfg.MaxDeviationPercent)
	hi := anchor * (1 + cfg.MaxDeviationPercent)
	if price > hi {
		// re-enter partially inside the rail instead of pinning at it
		price = hi - g.rng.Float64()*(hi-lo)*0.1
	} else if price < lo {
		price = lo + g.rng.Float64()*(hi-lo)*0.1
	}

	g.variance = variance
	g.lastReturn = ret

	price = g.round(price)
	// rounding must not push the price back over the rails
	pow := math.Pow10(g.cfg.PricePrecision())
	if price > hi {
		price = math.Floor(hi*pow) / pow
	} else if price < lo {
		price = math.Ceil(lo*pow) / pow
	}
	return price
}

// apply commits a new price to process, ring, and candle state.
func (g *Generator) apply(price float64) {
	g.price = price
	g.pushRing(price)
	g.candle.add(price)
}

func (g *Generator) tick(now time.Time, price float64, mode models.PriceMode) *models.Tick {
	halfPip := g.cfg.PipSize / 2
	change, changePct := g.changeFromRing(price)
	return &models.Tick{
		Instrument:    g.cfg.Symbol,
		Price:         price,
		Bid:           g.round(price - halfPip),
		Ask:           g.round(price + halfPip),
		Timestamp:     now.Unix(),
		Mode:          mode,
		Change:        change,
		ChangePercent: changePct,
	}
}

func (g *Generator) pushRing(price float64) {
	g.ring[g.ringPos] = price
	g.ringPos = (g.ringPos + 1) % len(g.ring)
	if g.ringLen < len(g.ring) {
		g.ringLen++
	}
}

func (g *Generator) changeFromRing(price float64) (float64, float64) {
	if g.ringLen == 0 {
		return 0, 0
	}
	oldestIdx := g.ringPos
	if g.ringLen < len(g.ring) {
		oldestIdx = 0
	}
	base := g.ring[oldestIdx]
	if base == 0 {
		return 0, 0
	}
	change := price - base
	return change, change / base * 100
}

func (g *Generator) round(price float64) float64 {
	pow := math.Pow10(g.cfg.PricePrecision())
	return math.Round(price*pow) / pow
}
