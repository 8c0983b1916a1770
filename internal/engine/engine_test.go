package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"OTCPulse/internal/domain/models"
	"OTCPulse/internal/engine/risk"
	"OTCPulse/internal/engine/schedule"
	applogger "OTCPulse/pkg/logger"
)

type memStore struct {
	mu   sync.Mutex
	rows []*models.HistoryRow
	fail bool
	seed *models.HistoryRow
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Append(_ context.Context, row *models.HistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *memStore) AppendBatch(ctx context.Context, rows []*models.HistoryRow) error {
	for _, r := range rows {
		if err := s.Append(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Rows(_ context.Context, instrument string, from, to time.Time) ([]*models.HistoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.HistoryRow
	for _, r := range s.rows {
		if r.Instrument == instrument && !r.Bucket.Before(from) && !r.Bucket.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) LastClose(context.Context, string) (float64, float64, bool, error) {
	if s.seed == nil {
		return 0, 0, false, nil
	}
	return s.seed.Close, s.seed.Variance, true, nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memActivity struct{}

func (memActivity) Record(models.ActivityEntry) {}
func (memActivity) Flush(context.Context) error { return nil }
func (memActivity) Close() error                { return nil }

type memPublisher struct {
	mu          sync.Mutex
	ticks       []*models.Tick
	settlements []*models.Settlement
}

func (p *memPublisher) PublishTick(_ context.Context, t *models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, t)
	return nil
}

func (p *memPublisher) PublishSettlement(_ context.Context, s *models.Settlement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settlements = append(p.settlements, s)
	return nil
}

func (p *memPublisher) Close() error { return nil }

type memMetrics struct{}

func (memMetrics) RecordTick(string, models.PriceMode) {}
func (memMetrics) RecordLastPrice(string, float64)     {}
func (memMetrics) RecordExposure(string, float64)      {}
func (memMetrics) RecordIntervention(string)           {}
func (memMetrics) RecordError(string)                  {}
func (memMetrics) RecordLatency(string, float64)       {}

func engineInstrument() models.InstrumentConfig {
	return models.InstrumentConfig{
		Symbol:               "OTC_EURUSD",
		RealSymbol:           "EUR_USD",
		Class:                models.ClassSession,
		AlwaysSynthetic:      true,
		PipSize:              0.0001,
		DefaultPrice:         1.085,
		BaseVolatility:       0.0004,
		VolatilityMultiplier: 1.0,
		GarchAlpha:           0.08,
		GarchBeta:            0.90,
		GarchOmega:           2e-7,
		MeanReversion:        0.02,
		MaxDeviationPercent:  0.02,
		AnchorWindow:         30 * time.Minute,
		RiskEnabled:          true,
		ExposureThreshold:    0.6,
		MinIntervention:      0.05,
		MaxIntervention:      0.75,
		SpreadMultiplier:     2.0,
		PayoutPercent:        85,
	}
}

func newTestEngine(t *testing.T, store *memStore, pub *memPublisher, cfgs ...models.InstrumentConfig) *MarketEngine {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	activity := memActivity{}
	m := memMetrics{}
	e := New(Config{
		RealPriceMinInterval: time.Hour,
		Instruments:          cfgs,
	}, schedule.New(nil), risk.New(activity, m, nil), store, activity, pub, m, l)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return e
}

func TestInitializeRequiresInstruments(t *testing.T) {
	l, _ := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	activity := memActivity{}
	m := memMetrics{}
	e := New(Config{}, schedule.New(nil), risk.New(activity, m, nil), &memStore{}, activity, &memPublisher{}, m, l)
	if err := e.Initialize(context.Background()); err == nil {
		t.Fatalf("expected error with no instruments")
	}
}

func TestInitializeSeedsFromLastClose(t *testing.T) {
	store := &memStore{seed: &models.HistoryRow{Close: 1.092, Variance: 2.5e-7}}
	e := newTestEngine(t, store, &memPublisher{}, engineInstrument())

	st := e.Status()
	if len(st.Instruments) != 1 {
		t.Fatalf("expected 1 instrument, got %d", len(st.Instruments))
	}
	if got := st.Instruments[0].Price; math.Abs(got-1.092) > 1e-9 {
		t.Fatalf("expected seeded price 1.092, got %v", got)
	}
	// the seed row is re-persisted so history has no gap
	if store.count() != 1 {
		t.Fatalf("expected 1 seed row, got %d", store.count())
	}
}

func TestTickAllBroadcastsAndPublishes(t *testing.T) {
	pub := &memPublisher{}
	e := newTestEngine(t, &memStore{}, pub, engineInstrument())

	ch, cancel := e.Subscribe()
	defer cancel()

	e.tickAll(time.Now())

	select {
	case tick := <-ch:
		if tick.Instrument != "OTC_EURUSD" {
			t.Fatalf("unexpected instrument %s", tick.Instrument)
		}
		if tick.Mode != models.ModeSynthetic {
			t.Fatalf("always-synthetic instrument must tick SYNTHETIC, got %s", tick.Mode)
		}
	default:
		t.Fatalf("subscriber received no tick")
	}

	if len(pub.ticks) != 1 {
		t.Fatalf("expected 1 published tick, got %d", len(pub.ticks))
	}
	if lt := e.LatestTick("OTC_EURUSD"); lt == nil || lt.Price != pub.ticks[0].Price {
		t.Fatalf("latest tick not recorded")
	}
}

func TestFlushMergesCandleBackOnFailure(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(t, store, &memPublisher{}, engineInstrument())
	baseline := store.count() // seed row

	now := time.Now()
	for i := 0; i < 5; i++ {
		e.tickAll(now)
	}

	store.fail = true
	e.flushAll(now)
	if store.count() != baseline {
		t.Fatalf("failed flush should write nothing")
	}

	// ticks from the next interval join the recovered candle
	for i := 0; i < 3; i++ {
		e.tickAll(now)
	}
	store.fail = false
	e.flushAll(now)

	if store.count() != baseline+1 {
		t.Fatalf("expected 1 recovered row, got %d", store.count()-baseline)
	}
	row := store.rows[store.count()-1]
	if row.Volume != 8 {
		t.Fatalf("recovered row should count all 8 ticks, got %v", row.Volume)
	}
	if row.High < row.Low || row.Open == 0 || row.Close == 0 {
		t.Fatalf("inconsistent recovered row: %+v", row)
	}

	// nothing left to flush
	e.flushAll(now)
	if store.count() != baseline+1 {
		t.Fatalf("empty candle must not flush")
	}
}

func TestUpdateRealPriceThrottle(t *testing.T) {
	cfg := engineInstrument()
	cfg.AlwaysSynthetic = false
	cfg.Class = models.ClassContinuous
	e := newTestEngine(t, &memStore{}, &memPublisher{}, cfg)

	e.UpdateRealPrice("EUR_USD", 1.5)
	e.UpdateRealPrice("EUR_USD", 1.7) // inside the throttle window, dropped

	e.tickAll(time.Now())
	lt := e.LatestTick("OTC_EURUSD")
	if lt == nil {
		t.Fatalf("no tick produced")
	}
	if lt.Mode != models.ModeReal {
		t.Fatalf("continuous instrument with real price must tick REAL, got %s", lt.Mode)
	}
	if math.Abs(lt.Price-1.5) > 1e-9 {
		t.Fatalf("price should follow the first admitted update: got %v", lt.Price)
	}
}

func TestRealModeDegradesWithoutRealPrice(t *testing.T) {
	cfg := engineInstrument()
	cfg.AlwaysSynthetic = false
	cfg.Class = models.ClassContinuous
	e := newTestEngine(t, &memStore{}, &memPublisher{}, cfg)

	e.tickAll(time.Now())
	lt := e.LatestTick("OTC_EURUSD")
	if lt == nil || lt.Mode != models.ModeSynthetic {
		t.Fatalf("expected SYNTHETIC degradation, got %+v", lt)
	}
}

func TestOpenAndClosePosition(t *testing.T) {
	pub := &memPublisher{}
	e := newTestEngine(t, &memStore{}, pub, engineInstrument())
	e.tickAll(time.Now())

	pos := &models.Position{
		ID:         "p1",
		Instrument: "OTC_EURUSD",
		Direction:  models.DirectionUp,
		Notional:   100,
		UserID:     "u1",
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	if err := e.OpenPosition(pos); err != nil {
		t.Fatalf("open: %v", err)
	}
	if pos.EntryPrice <= 0 {
		t.Fatalf("entry price should default to the latest tick")
	}

	snap, ok := e.GetExposure("OTC_EURUSD")
	if !ok || snap.OpenPositions != 1 {
		t.Fatalf("position not tracked: %+v", snap)
	}

	s, err := e.ClosePosition("OTC_EURUSD", "p1")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.ExitPrice <= 0 {
		t.Fatalf("settlement missing exit price: %+v", s)
	}
	if len(pub.settlements) != 1 {
		t.Fatalf("settlement not published")
	}

	if _, err := e.ClosePosition("OTC_EURUSD", "p1"); err == nil {
		t.Fatalf("double close must fail")
	}
}

func TestLoopSkipsFiringDuringSlowPass(t *testing.T) {
	e := newTestEngine(t, &memStore{}, &memPublisher{}, engineInstrument())

	const interval = 40 * time.Millisecond
	var mu sync.Mutex
	var calls []time.Time
	e.loop("slow", interval, func(time.Time) {
		mu.Lock()
		calls = append(calls, time.Now())
		first := len(calls) == 1
		mu.Unlock()
		if first {
			// Outlast two further firings.
			time.Sleep(3 * interval)
		}
	})

	time.Sleep(6 * interval)
	e.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(calls) < 2 {
		t.Fatalf("loop ran %d times, want at least 2", len(calls))
	}
	// The firing buffered during the slow pass must be dropped. If it
	// were consumed the second pass would start right as the first
	// ends, at about 3 intervals; skipping pushes it to about 4.
	gap := calls[1].Sub(calls[0])
	if gap < 3*interval+interval/2 {
		t.Fatalf("second pass started %v after first, queued firing was not skipped", gap)
	}
}

func TestOpenPositionRejectsMalformed(t *testing.T) {
	e := newTestEngine(t, &memStore{}, &memPublisher{}, engineInstrument())
	e.tickAll(time.Now())

	base := models.Position{
		Instrument: "OTC_EURUSD",
		Notional:   100,
		UserID:     "u1",
		ExpiresAt:  time.Now().Add(time.Hour),
	}

	bad := []models.Position{}
	sideways := base
	sideways.ID = "m1"
	sideways.Direction = models.Direction("SIDEWAYS")
	bad = append(bad, sideways)

	empty := base
	empty.ID = "m2"
	bad = append(bad, empty)

	zeroNotional := base
	zeroNotional.ID = "m3"
	zeroNotional.Direction = models.DirectionUp
	zeroNotional.Notional = 0
	bad = append(bad, zeroNotional)

	negNotional := base
	negNotional.ID = "m4"
	negNotional.Direction = models.DirectionDown
	negNotional.Notional = -50
	bad = append(bad, negNotional)

	noID := base
	noID.Direction = models.DirectionUp
	bad = append(bad, noID)

	for i := range bad {
		if err := e.OpenPosition(&bad[i]); err == nil {
			t.Fatalf("position %q accepted: %+v", bad[i].ID, bad[i])
		}
	}

	// None of the rejects may have touched the book. An unknown
	// direction must never count as short exposure.
	snap, ok := e.GetExposure("OTC_EURUSD")
	if !ok {
		t.Fatalf("exposure snapshot missing")
	}
	if snap.OpenPositions != 0 || snap.UpNotional != 0 || snap.DownNotional != 0 {
		t.Fatalf("book corrupted by rejected positions: %+v", snap)
	}
}

func TestApplyPatchRejectsInvalid(t *testing.T) {
	e := newTestEngine(t, &memStore{}, &memPublisher{}, engineInstrument())

	bad := -1.0
	if _, err := e.ApplyPatch("OTC_EURUSD", &models.InstrumentPatch{BaseVolatility: &bad}); err == nil {
		t.Fatalf("expected validation rejection")
	}
	if got := e.Instruments()[0].BaseVolatility; got != 0.0004 {
		t.Fatalf("failed patch must leave config untouched, got %v", got)
	}

	if _, err := e.ApplyPatch("OTC_EURUSD", &models.InstrumentPatch{}); err == nil {
		t.Fatalf("expected empty patch rejection")
	}

	good := 0.001
	out, err := e.ApplyPatch("OTC_EURUSD", &models.InstrumentPatch{BaseVolatility: &good})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if out.BaseVolatility != good {
		t.Fatalf("patch not applied: %+v", out)
	}
}

func TestDisableInstrumentRefusedWithOpenPositions(t *testing.T) {
	e := newTestEngine(t, &memStore{}, &memPublisher{}, engineInstrument())
	e.tickAll(time.Now())

	pos := &models.Position{
		ID:         "p1",
		Instrument: "OTC_EURUSD",
		Direction:  models.DirectionUp,
		Notional:   100,
		UserID:     "u1",
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	if err := e.OpenPosition(pos); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := e.DisableInstrument("OTC_EURUSD"); err == nil {
		t.Fatalf("disable must refuse with open positions")
	}

	if _, err := e.ClosePosition("OTC_EURUSD", "p1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.DisableInstrument("OTC_EURUSD"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if len(e.Instruments()) != 0 {
		t.Fatalf("instrument still active after disable")
	}
}

// Exercised under the race detector: patching an instrument's real
// symbol while another goroutine disables it must not race on the
// config read.
func TestDisableInstrumentConcurrentWithPatch(t *testing.T) {
	e := newTestEngine(t, &memStore{}, &memPublisher{}, engineInstrument())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			rs := fmt.Sprintf("BINANCE:EURUSDT%d", i)
			// Errors once the instrument is gone; only the absence of
			// a data race matters here.
			_, _ = e.ApplyPatch("OTC_EURUSD", &models.InstrumentPatch{RealSymbol: &rs})
		}
	}()

	if err := e.DisableInstrument("OTC_EURUSD"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	<-done

	if len(e.Instruments()) != 0 {
		t.Fatalf("instrument still active after disable")
	}
}
