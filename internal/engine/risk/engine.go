package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"OTCPulse/internal/domain/models"
	"OTCPulse/internal/domain/repository"
)

// Engine maintains per-instrument aggregate exposure and perturbs
// settlement prices when the book is imbalanced past its threshold.
type Engine struct {
	mu    sync.RWMutex
	books map[string]*book
	// owner instrument per open position id, so one id can never be
	// tracked under two instruments
	owners map[string]string

	rngMu sync.Mutex
	rng   *rand.Rand

	log     repository.ActivityLog
	metrics repository.Metrics
}

// New creates the risk engine. Pass a deterministic rand.Source in tests.
func New(log repository.ActivityLog, metrics repository.Metrics, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		books:   make(map[string]*book),
		owners:  make(map[string]string),
		rng:     rng,
		log:     log,
		metrics: metrics,
	}
}

// Configure creates or replaces the risk parameters for an instrument.
// Open positions survive a reconfiguration.
func (e *Engine) Configure(cfg models.InstrumentConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.books[cfg.Symbol]; ok {
		b.mu.Lock()
		b.cfg = cfg
		b.mu.Unlock()
		return
	}
	e.books[cfg.Symbol] = newBook(cfg)
}

// Drop removes an instrument's book. It refuses while positions remain
// open, matching the rule that configs are never deleted while
// referenced by open positions.
func (e *Engine) Drop(instrument string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[instrument]
	if !ok {
		return nil
	}
	b.mu.Lock()
	open := len(b.positions)
	b.mu.Unlock()
	if open > 0 {
		return fmt.Errorf("instrument %s has %d open positions", instrument, open)
	}
	delete(e.books, instrument)
	return nil
}

// Track inserts an opened position into its instrument's book.
func (e *Engine) Track(pos *models.Position) error {
	if pos == nil || pos.ID == "" {
		return fmt.Errorf("position id required")
	}
	e.mu.Lock()
	if owner, dup := e.owners[pos.ID]; dup {
		e.mu.Unlock()
		return fmt.Errorf("position %s already tracked on %s", pos.ID, owner)
	}
	b, ok := e.books[pos.Instrument]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("unknown instrument: %s", pos.Instrument)
	}
	e.owners[pos.ID] = pos.Instrument
	e.mu.Unlock()

	b.mu.Lock()
	b.track(pos)
	ratio := b.ratio()
	b.mu.Unlock()

	e.metrics.RecordExposure(pos.Instrument, ratio)
	e.log.Record(models.ActivityEntry{
		Instrument: pos.Instrument,
		Event:      models.ActivityPositionTracked,
		PositionID: pos.ID,
		Value:      pos.Notional,
		Success:    true,
		Timestamp:  time.Now(),
	})
	return nil
}

// Remove drops a closed position from its book. Unknown ids are
// ignored; the position may already have been swept as an orphan.
func (e *Engine) Remove(instrument, positionID string) bool {
	b := e.book(instrument)
	if b == nil {
		return false
	}
	b.mu.Lock()
	pos, ok := b.remove(positionID)
	ratio := b.ratio()
	b.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	delete(e.owners, positionID)
	e.mu.Unlock()

	e.metrics.RecordExposure(instrument, ratio)
	e.log.Record(models.ActivityEntry{
		Instrument: instrument,
		Event:      models.ActivityPositionRemoved,
		PositionID: positionID,
		Value:      pos.Notional,
		Success:    true,
		Timestamp:  time.Now(),
	})
	return true
}

// CleanupExpired sweeps positions whose expiry passed without an
// explicit Remove and logs them as orphan removals. Returns the number
// removed.
func (e *Engine) CleanupExpired(now time.Time) int {
	e.mu.RLock()
	books := make([]*book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()

	removed := 0
	for _, b := range books {
		b.mu.Lock()
		orphans := b.expired(now)
		ratio := b.ratio()
		instrument := b.cfg.Symbol
		b.mu.Unlock()

		if len(orphans) == 0 {
			continue
		}
		removed += len(orphans)
		e.mu.Lock()
		for _, pos := range orphans {
			delete(e.owners, pos.ID)
		}
		e.mu.Unlock()
		e.metrics.RecordExposure(instrument, ratio)
		for _, pos := range orphans {
			e.log.Record(models.ActivityEntry{
				Instrument: instrument,
				Event:      models.ActivityOrphanRemoved,
				PositionID: pos.ID,
				Value:      pos.Notional,
				Success:    true,
				Timestamp:  now,
			})
		}
	}
	return removed
}

// Lookup returns a tracked position by id.
func (e *Engine) Lookup(instrument, positionID string) (*models.Position, bool) {
	b := e.book(instrument)
	if b == nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[positionID]
	return pos, ok
}

// Ratio returns the current exposure ratio for an instrument.
func (e *Engine) Ratio(instrument string) float64 {
	b := e.book(instrument)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ratio()
}

// Snapshot returns the exposure view for one instrument.
func (e *Engine) Snapshot(instrument string) (models.ExposureSnapshot, bool) {
	b := e.book(instrument)
	if b == nil {
		return models.ExposureSnapshot{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot(), true
}

// Snapshots returns exposure views for all instruments.
func (e *Engine) Snapshots() []models.ExposureSnapshot {
	e.mu.RLock()
	books := make([]*book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()

	out := make([]models.ExposureSnapshot, 0, len(books))
	for _, b := range books {
		b.mu.Lock()
		out = append(out, b.snapshot())
		b.mu.Unlock()
	}
	return out
}

// Settle decides the exit price for a closing position given the
// current market price. When the book is imbalanced past the exposure
// threshold, an intervention may fire with probability scaling linearly
// from MinIntervention at the threshold to MaxIntervention at full
// exposure. A fired intervention moves the exit price against the side
// the house is over-exposed to, by at most SpreadMultiplier pips and
// never by more value than the position's payout would award.
func (e *Engine) Settle(pos *models.Position, price float64) (float64, bool, float64) {
	b := e.book(pos.Instrument)
	if b == nil {
		return price, false, 0
	}

	b.mu.Lock()
	cfg := b.cfg
	ratio := b.ratio()
	b.mu.Unlock()

	if !cfg.RiskEnabled {
		return price, false, 0
	}
	imbalance := math.Abs(ratio)
	if imbalance <= cfg.ExposureThreshold {
		return price, false, 0
	}

	span := 1 - cfg.ExposureThreshold
	prob := cfg.MinIntervention
	if span > 0 {
		prob += (imbalance - cfg.ExposureThreshold) / span * (cfg.MaxIntervention - cfg.MinIntervention)
	}
	if prob > cfg.MaxIntervention {
		prob = cfg.MaxIntervention
	}

	e.rngMu.Lock()
	fired := e.rng.Float64() < prob
	e.rngMu.Unlock()

	if !fired {
		e.log.Record(models.ActivityEntry{
			Instrument: pos.Instrument,
			Event:      models.ActivityIntervention,
			PositionID: pos.ID,
			Value:      prob,
			Success:    false,
			Timestamp:  time.Now(),
		})
		return price, false, prob
	}

	adj := cfg.SpreadMultiplier * cfg.PipSize
	// the adjustment cannot move more value than the configured payout
	if maxAdj := cfg.PayoutPercent / 100 * price; adj > maxAdj {
		adj = maxAdj
	}

	exit := price
	if ratio > 0 {
		exit -= adj // traders net long: push the exit down
	} else {
		exit += adj
	}
	pow := math.Pow10(cfg.PricePrecision())
	exit = math.Round(exit*pow) / pow

	e.metrics.RecordIntervention(pos.Instrument)
	e.log.Record(models.ActivityEntry{
		Instrument: pos.Instrument,
		Event:      models.ActivityIntervention,
		PositionID: pos.ID,
		Value:      prob,
		Success:    true,
		Timestamp:  time.Now(),
	})
	return exit, true, prob
}

func (e *Engine) book(instrument string) *book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[instrument]
}
