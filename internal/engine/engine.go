package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"OTCPulse/internal/domain/models"
	"OTCPulse/internal/domain/repository"
	"OTCPulse/internal/engine/generator"
	"OTCPulse/internal/engine/risk"
	"OTCPulse/internal/engine/schedule"
	"OTCPulse/internal/service/ratelimit"
	applogger "OTCPulse/pkg/logger"
)

// Config tunes the orchestrator's periodic loops and feed admission.
type Config struct {
	TickInterval         time.Duration
	FlushInterval        time.Duration
	CleanupInterval      time.Duration
	DiagnosticsInterval  time.Duration
	RealPriceMinInterval time.Duration
	SubscriberBuffer     int
	Instruments          []models.InstrumentConfig
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.DiagnosticsInterval <= 0 {
		c.DiagnosticsInterval = 30 * time.Second
	}
	if c.RealPriceMinInterval <= 0 {
		c.RealPriceMinInterval = 5 * time.Minute
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 256
	}
}

// instrument is one arena slot. Its mutex is the single-writer gate for
// the generator state and the latest tick; no periodic task touches two
// instruments under one lock.
type instrument struct {
	mu       sync.Mutex
	cfg      models.InstrumentConfig
	gen      *generator.Generator
	lastTick *models.Tick

	realPrice   float64
	realPriceAt time.Time
}

// freshReal returns the last admitted reference price. Caller holds mu.
func (in *instrument) freshReal() (float64, bool) {
	return in.realPrice, in.realPrice > 0
}

// MarketEngine owns instrument state and drives the tick, flush,
// cleanup, and diagnostics loops. It is the composition root's single
// handle onto the OTC market subsystem.
type MarketEngine struct {
	cfg Config

	mu          sync.RWMutex
	instruments map[string]*instrument
	realIndex   map[string][]string // real feed symbol -> instrument symbols

	sched    *schedule.Scheduler
	risk     *risk.Engine
	store    repository.HistoryStore
	activity repository.ActivityLog
	pub      repository.TickPublisher
	metrics  repository.Metrics
	limiter  *ratelimit.Limiter
	l        *applogger.Logger
	rng      func() *rand.Rand

	subsMu sync.RWMutex
	subs   map[int]chan *models.Tick
	nextID int

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	running   bool
	startedAt time.Time
}

// New builds the orchestrator. Initialize must be called before Start.
func New(
	cfg Config,
	sched *schedule.Scheduler,
	riskEngine *risk.Engine,
	store repository.HistoryStore,
	activity repository.ActivityLog,
	pub repository.TickPublisher,
	metrics repository.Metrics,
	l *applogger.Logger,
) *MarketEngine {
	cfg.defaults()
	return &MarketEngine{
		cfg:         cfg,
		instruments: make(map[string]*instrument),
		realIndex:   make(map[string][]string),
		sched:       sched,
		risk:        riskEngine,
		store:       store,
		activity:    activity,
		pub:         pub,
		metrics:     metrics,
		limiter:     ratelimit.New(),
		l:           l,
		rng: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		subs:   make(map[int]chan *models.Tick),
		stopCh: make(chan struct{}),
	}
}

// Initialize validates configured instruments and seeds each generator
// from the most recent durable close so a restart never jumps the
// price. It fails outright when no instrument can be loaded.
func (e *MarketEngine) Initialize(ctx context.Context) error {
	if len(e.cfg.Instruments) == 0 {
		return fmt.Errorf("no instruments configured")
	}
	for i := range e.cfg.Instruments {
		cfg := e.cfg.Instruments[i]
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("instrument config: %w", err)
		}
		if err := e.activate(ctx, cfg); err != nil {
			return fmt.Errorf("activate %s: %w", cfg.Symbol, err)
		}
	}
	e.l.Info("engine initialized", applogger.Int("instruments", len(e.cfg.Instruments)))
	return nil
}

// activate seeds one instrument and persists its initial candle row.
func (e *MarketEngine) activate(ctx context.Context, cfg models.InstrumentConfig) error {
	gen := generator.New(cfg, e.rng())

	anchor := cfg.DefaultPrice
	variance := 0.0
	if price, v, ok, err := e.store.LastClose(ctx, cfg.Symbol); err != nil {
		// continuity seeding is best-effort; fall back to default price
		e.l.Warn("history seed unavailable",
			applogger.String("instrument", cfg.Symbol), applogger.Error(err))
	} else if ok {
		anchor, variance = price, v
	}
	gen.Reseed(anchor, variance)

	e.risk.Configure(cfg)

	e.mu.Lock()
	e.instruments[cfg.Symbol] = &instrument{cfg: cfg, gen: gen}
	if cfg.RealSymbol != "" {
		e.realIndex[cfg.RealSymbol] = append(e.realIndex[cfg.RealSymbol], cfg.Symbol)
	}
	e.mu.Unlock()

	seed := &models.HistoryRow{
		Instrument: cfg.Symbol,
		Bucket:     time.Now().Truncate(e.cfg.FlushInterval),
		Open:       gen.Price(),
		High:       gen.Price(),
		Low:        gen.Price(),
		Close:      gen.Price(),
		Mode:       models.ModeSynthetic,
		Variance:   gen.Variance(),
	}
	if err := e.store.Append(ctx, seed); err != nil {
		// non-fatal: the first flush will write the row instead
		e.l.Warn("initial candle persist failed",
			applogger.String("instrument", cfg.Symbol), applogger.Error(err))
		e.metrics.RecordError("seed_persist")
	}
	return nil
}

// Start launches the four periodic loops.
func (e *MarketEngine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.loop("tick", e.cfg.TickInterval, e.tickAll)
	e.loop("flush", e.cfg.FlushInterval, e.flushAll)
	e.loop("cleanup", e.cfg.CleanupInterval, e.cleanup)
	e.loop("diagnostics", e.cfg.DiagnosticsInterval, e.diagnostics)
	e.l.Info("engine started",
		applogger.Duration("tick_interval", e.cfg.TickInterval),
		applogger.Duration("flush_interval", e.cfg.FlushInterval))
}

// Stop halts all loops, runs a final candle flush, and closes
// subscriber channels. Persistence clients are closed by the caller
// after Stop returns.
func (e *MarketEngine) Stop(ctx context.Context) {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.flushAll(time.Now())
	if err := e.activity.Flush(ctx); err != nil {
		e.l.Warn("activity log flush", applogger.Error(err))
	}

	e.subsMu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.subsMu.Unlock()
	e.l.Info("engine stopped")
}

// loop runs fn on a fixed interval until Stop. A firing that arrives
// while fn is still running is skipped, not queued, so a slow pass is
// never followed by an immediate catch-up pass.
func (e *MarketEngine) loop(name string, interval time.Duration, fn func(time.Time)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-e.stopCh:
				return
			case now := <-t.C:
				start := time.Now()
				fn(now)
				e.metrics.RecordLatency("loop_"+name, time.Since(start).Seconds())
				// A firing that lands mid-pass is skipped, not queued.
				select {
				case <-t.C:
				default:
				}
			}
		}
	}()
}

// tickAll produces one tick per instrument and broadcasts it.
// Instruments are independent; one failing never aborts the rest.
func (e *MarketEngine) tickAll(now time.Time) {
	for _, in := range e.active() {
		t := e.tickInstrument(in, now)
		if t == nil {
			continue
		}
		e.metrics.RecordTick(t.Instrument, t.Mode)
		e.metrics.RecordLastPrice(t.Instrument, t.Price)
		e.broadcast(t)
		if err := e.pub.PublishTick(context.Background(), t); err != nil {
			e.metrics.RecordError("tick_publish")
			e.l.Warn("tick publish failed",
				applogger.String("instrument", t.Instrument), applogger.Error(err))
		}
	}
}

// tickInstrument picks the mode and advances the generator. When the
// scheduler selects REAL or BLENDED but no admitted real price exists,
// the tick degrades to SYNTHETIC for this tick only.
func (e *MarketEngine) tickInstrument(in *instrument, now time.Time) *models.Tick {
	in.mu.Lock()
	defer in.mu.Unlock()

	d := e.sched.Decide(&in.cfg, now)
	var t *models.Tick
	switch d.Mode {
	case models.ModeReal:
		if rp, ok := in.freshReal(); ok {
			t = in.gen.RealBasedTick(now, rp)
		} else {
			t = in.gen.NextTick(now)
		}
	case models.ModeBlended:
		if rp, ok := in.freshReal(); ok {
			t = in.gen.BlendedTick(now, rp, d.Weight)
		} else {
			t = in.gen.NextTick(now)
		}
	default:
		t = in.gen.NextTick(now)
	}
	in.lastTick = t
	return t
}

// flushAll persists the in-progress candle of every instrument. The
// snapshot and reset happen atomically under the instrument lock; on a
// failed write the snapshot is merged back so the next successful flush
// absorbs the missed interval's range.
func (e *MarketEngine) flushAll(now time.Time) {
	bucket := now.Truncate(e.cfg.FlushInterval)
	for _, in := range e.active() {
		in.mu.Lock()
		snap, ok := in.gen.CandleSnapshot()
		if !ok {
			in.mu.Unlock()
			continue
		}
		in.gen.ResetCandle()
		mode := models.ModeSynthetic
		if in.lastTick != nil {
			mode = in.lastTick.Mode
		}
		row := &models.HistoryRow{
			Instrument: in.cfg.Symbol,
			Bucket:     bucket,
			Open:       snap.Open,
			High:       snap.High,
			Low:        snap.Low,
			Close:      snap.Close,
			Volume:     float64(snap.Ticks),
			Mode:       mode,
			Variance:   in.gen.Variance(),
		}
		in.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FlushInterval)
		err := e.store.Append(ctx, row)
		cancel()
		if err != nil {
			e.metrics.RecordError("candle_flush")
			e.l.Error("candle flush failed",
				applogger.String("instrument", row.Instrument), applogger.Error(err))
			in.mu.Lock()
			in.gen.MergeCandle(snap)
			in.mu.Unlock()
		}
	}
}

// cleanup sweeps expired positions that were never explicitly removed.
func (e *MarketEngine) cleanup(now time.Time) {
	if n := e.risk.CleanupExpired(now); n > 0 {
		e.l.Info("orphan positions removed", applogger.Int("count", n))
	}
}

// diagnostics logs a per-instrument status line and refreshes gauges.
func (e *MarketEngine) diagnostics(time.Time) {
	for _, st := range e.Status().Instruments {
		e.metrics.RecordExposure(st.Symbol, st.ExposureRatio)
		e.l.Debug("instrument status",
			applogger.String("instrument", st.Symbol),
			applogger.String("mode", string(st.Mode)),
			applogger.Float64("price", st.Price),
			applogger.Float64("exposure", st.ExposureRatio),
			applogger.Int("open_positions", st.OpenPositions))
	}
}

// active snapshots the instrument arena for lock-free iteration.
func (e *MarketEngine) active() []*instrument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*instrument, 0, len(e.instruments))
	for _, in := range e.instruments {
		out = append(out, in)
	}
	return out
}

func (e *MarketEngine) instrument(symbol string) *instrument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.instruments[symbol]
}

// broadcast fans a tick out to in-process subscribers without blocking;
// a slow subscriber loses ticks rather than delaying the loop.
func (e *MarketEngine) broadcast(t *models.Tick) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- t:
		default:
		}
	}
}
