package engine

import (
	"context"
	"fmt"
	"time"

	"OTCPulse/internal/domain/models"
	"OTCPulse/internal/engine/candle"
	applogger "OTCPulse/pkg/logger"
	xutil "OTCPulse/pkg/util"
)

// UpdateRealPrice admits an opportunistic reference price from the
// market-data feed. Admissions are throttled per instrument so the
// synthetic process does not end up tracking every real tick; rejected
// updates are dropped silently.
func (e *MarketEngine) UpdateRealPrice(realSymbol string, price float64) {
	if price <= 0 {
		return
	}
	e.mu.RLock()
	symbols := e.realIndex[realSymbol]
	e.mu.RUnlock()

	refill := 1 / e.cfg.RealPriceMinInterval.Seconds()
	for _, sym := range symbols {
		if !e.limiter.Allow("real:"+sym, 1, refill) {
			continue
		}
		in := e.instrument(sym)
		if in == nil {
			continue
		}
		in.mu.Lock()
		in.realPrice = price
		in.realPriceAt = time.Now()
		in.gen.SetAnchor(price)
		in.mu.Unlock()
		e.l.Debug("real price admitted",
			applogger.String("instrument", sym), applogger.Float64("price", price))
	}
}

// OpenPosition begins tracking a position's directional exposure.
// Malformed positions are rejected here so neither intake path (HTTP
// or the Kafka events topic) can skew the book.
func (e *MarketEngine) OpenPosition(pos *models.Position) error {
	if err := pos.Validate(); err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	if e.instrument(pos.Instrument) == nil {
		return fmt.Errorf("unknown instrument: %s", pos.Instrument)
	}
	if pos.EntryPrice <= 0 {
		if t := e.LatestTick(pos.Instrument); t != nil {
			pos.EntryPrice = t.Price
		}
	}
	return e.risk.Track(pos)
}

// ClosePosition settles a position against the latest tick, applying
// any exposure intervention, and stops tracking it. If the risk engine
// cannot compute an adjustment the unmodified market price is returned.
func (e *MarketEngine) ClosePosition(instrument, positionID string) (*models.Settlement, error) {
	in := e.instrument(instrument)
	if in == nil {
		return nil, fmt.Errorf("unknown instrument: %s", instrument)
	}
	in.mu.Lock()
	price := in.gen.Price()
	in.mu.Unlock()

	pos, ok := e.risk.Lookup(instrument, positionID)
	if !ok {
		return nil, fmt.Errorf("position %s not tracked on %s", positionID, instrument)
	}

	exit, intervened, rate := e.risk.Settle(pos, price)
	e.risk.Remove(instrument, positionID)

	s := &models.Settlement{
		PositionID:  positionID,
		Instrument:  instrument,
		ExitPrice:   exit,
		Intervened:  intervened,
		AppliedRate: rate,
		Timestamp:   time.Now().Unix(),
	}
	if err := e.pub.PublishSettlement(context.Background(), s); err != nil {
		e.metrics.RecordError("settlement_publish")
		e.l.Warn("settlement publish failed",
			applogger.String("position", positionID), applogger.Error(err))
	}
	return s, nil
}

// ApplyPatch merges a typed partial config update. Validation failures
// reject the whole patch with no state change; on success the
// instrument's generator and risk parameters are reinitialized.
func (e *MarketEngine) ApplyPatch(symbol string, patch *models.InstrumentPatch) (*models.InstrumentConfig, error) {
	in := e.instrument(symbol)
	if in == nil {
		return nil, fmt.Errorf("unknown instrument: %s", symbol)
	}
	if patch == nil || patch.Empty() {
		return nil, fmt.Errorf("empty patch")
	}

	in.mu.Lock()
	merged := patch.Merge(in.cfg)
	if err := merged.Validate(); err != nil {
		in.mu.Unlock()
		return nil, err
	}
	oldReal := in.cfg.RealSymbol
	in.cfg = merged
	in.gen.SetConfig(merged)
	in.mu.Unlock()

	if oldReal != merged.RealSymbol {
		e.reindexReal(symbol, oldReal, merged.RealSymbol)
	}
	e.risk.Configure(merged)
	e.activity.Record(models.ActivityEntry{
		Instrument: symbol,
		Event:      models.ActivityConfigChanged,
		Success:    true,
		Timestamp:  time.Now(),
	})
	e.l.Info("instrument reconfigured", applogger.String("instrument", symbol))
	out := merged
	return &out, nil
}

// DisableInstrument removes an instrument from the active set. It
// fails while the instrument still has open positions.
func (e *MarketEngine) DisableInstrument(symbol string) error {
	in := e.instrument(symbol)
	if in == nil {
		return fmt.Errorf("unknown instrument: %s", symbol)
	}
	if err := e.risk.Drop(symbol); err != nil {
		return err
	}
	in.mu.Lock()
	realSym := in.cfg.RealSymbol
	in.mu.Unlock()
	e.mu.Lock()
	delete(e.instruments, symbol)
	e.mu.Unlock()
	e.reindexReal(symbol, realSym, "")
	e.l.Info("instrument disabled", applogger.String("instrument", symbol))
	return nil
}

func (e *MarketEngine) reindexReal(symbol, oldReal, newReal string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if oldReal != "" {
		syms := e.realIndex[oldReal][:0]
		for _, s := range e.realIndex[oldReal] {
			if s != symbol {
				syms = append(syms, s)
			}
		}
		if len(syms) == 0 {
			delete(e.realIndex, oldReal)
		} else {
			e.realIndex[oldReal] = syms
		}
	}
	if newReal != "" {
		e.realIndex[newReal] = append(e.realIndex[newReal], symbol)
	}
}

// Subscribe registers an in-process tick listener. The returned cancel
// function removes the subscription and closes the channel.
func (e *MarketEngine) Subscribe() (<-chan *models.Tick, func()) {
	ch := make(chan *models.Tick, e.cfg.SubscriberBuffer)
	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subsMu.Unlock()

	return ch, func() {
		e.subsMu.Lock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
		e.subsMu.Unlock()
	}
}

// LatestTick returns the most recent tick for an instrument, or nil.
func (e *MarketEngine) LatestTick(symbol string) *models.Tick {
	in := e.instrument(symbol)
	if in == nil {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastTick
}

// GetBars aggregates persisted history into resolution-bucketed bars,
// most recent limit bars in chronological order. Zero from/to default
// to the window covering limit bars ending now; from is aligned down to
// a bucket boundary so the first bar is never partial.
func (e *MarketEngine) GetBars(ctx context.Context, symbol string, resolutionSec, limit int, from, to time.Time) ([]models.Candle, error) {
	if e.instrument(symbol) == nil {
		return nil, fmt.Errorf("unknown instrument: %s", symbol)
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-time.Duration(resolutionSec*limit) * time.Second)
	}
	from, _ = xutil.AlignRange(from, to, resolutionSec)
	rows, err := e.store.Rows(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return candle.Aggregate(rows, resolutionSec, limit), nil
}

// GetExposure returns the exposure snapshot for one instrument.
func (e *MarketEngine) GetExposure(symbol string) (models.ExposureSnapshot, bool) {
	return e.risk.Snapshot(symbol)
}

// GetAllExposures returns exposure snapshots for every instrument.
func (e *MarketEngine) GetAllExposures() []models.ExposureSnapshot {
	return e.risk.Snapshots()
}

// Instruments returns a copy of every active instrument config.
func (e *MarketEngine) Instruments() []models.InstrumentConfig {
	out := make([]models.InstrumentConfig, 0)
	for _, in := range e.active() {
		in.mu.Lock()
		out = append(out, in.cfg)
		in.mu.Unlock()
	}
	return out
}

// Status summarizes the engine for diagnostics consumers.
func (e *MarketEngine) Status() models.EngineStatus {
	e.mu.RLock()
	st := models.EngineStatus{Running: e.running, StartedAt: e.startedAt}
	e.mu.RUnlock()

	for _, in := range e.active() {
		in.mu.Lock()
		is := models.InstrumentStatus{
			Symbol: in.cfg.Symbol,
			Price:  in.gen.Price(),
			Mode:   models.ModeSynthetic,
		}
		if in.lastTick != nil {
			is.Mode = in.lastTick.Mode
		}
		in.mu.Unlock()
		if snap, ok := e.risk.Snapshot(is.Symbol); ok {
			is.ExposureRatio = snap.Ratio
			is.OpenPositions = snap.OpenPositions
		}
		st.Instruments = append(st.Instruments, is)
	}
	return st
}
