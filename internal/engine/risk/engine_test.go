package risk

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"OTCPulse/internal/domain/models"
)

type nopActivityLog struct {
	entries []models.ActivityEntry
}

func (l *nopActivityLog) Record(e models.ActivityEntry)  { l.entries = append(l.entries, e) }
func (l *nopActivityLog) Flush(context.Context) error    { return nil }
func (l *nopActivityLog) Close() error                   { return nil }

type nopMetrics struct {
	interventions int
}

func (m *nopMetrics) RecordTick(string, models.PriceMode) {}
func (m *nopMetrics) RecordLastPrice(string, float64)     {}
func (m *nopMetrics) RecordExposure(string, float64)      {}
func (m *nopMetrics) RecordIntervention(string)           { m.interventions++ }
func (m *nopMetrics) RecordError(string)                  {}
func (m *nopMetrics) RecordLatency(string, float64)       {}

func riskConfig() models.InstrumentConfig {
	return models.InstrumentConfig{
		Symbol:              "OTC_EURUSD",
		Class:               models.ClassSession,
		PipSize:             0.0001,
		DefaultPrice:        1.085,
		BaseVolatility:      0.0004,
		MaxDeviationPercent: 0.02,
		RiskEnabled:         true,
		ExposureThreshold:   0.6,
		MinIntervention:     0.05,
		MaxIntervention:     0.75,
		SpreadMultiplier:    2.0,
		PayoutPercent:       85,
	}
}

func pos(id string, dir models.Direction, notional float64) *models.Position {
	return &models.Position{
		ID:         id,
		Instrument: "OTC_EURUSD",
		Direction:  dir,
		Notional:   notional,
		EntryPrice: 1.085,
		UserID:     "u1",
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func newTestEngine(seed int64) (*Engine, *nopActivityLog, *nopMetrics) {
	log := &nopActivityLog{}
	m := &nopMetrics{}
	e := New(log, m, rand.New(rand.NewSource(seed)))
	e.Configure(riskConfig())
	return e, log, m
}

func TestTrackAndRemoveKeepExposureConsistent(t *testing.T) {
	e, _, _ := newTestEngine(1)

	if err := e.Track(pos("p1", models.DirectionUp, 300)); err != nil {
		t.Fatalf("track p1: %v", err)
	}
	if err := e.Track(pos("p2", models.DirectionDown, 100)); err != nil {
		t.Fatalf("track p2: %v", err)
	}

	snap, ok := e.Snapshot("OTC_EURUSD")
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if snap.OpenPositions != 2 || snap.UpNotional != 300 || snap.DownNotional != 100 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if want := 0.5; math.Abs(snap.Ratio-want) > 1e-9 {
		t.Fatalf("expected ratio %v, got %v", want, snap.Ratio)
	}

	if !e.Remove("OTC_EURUSD", "p1") {
		t.Fatalf("remove p1 failed")
	}
	if want := -1.0; math.Abs(e.Ratio("OTC_EURUSD")-want) > 1e-9 {
		t.Fatalf("expected ratio %v after remove, got %v", want, e.Ratio("OTC_EURUSD"))
	}

	if e.Remove("OTC_EURUSD", "p1") {
		t.Fatalf("second remove of p1 should be a no-op")
	}
}

func TestTrackRejectsDuplicateID(t *testing.T) {
	e, _, _ := newTestEngine(2)

	if err := e.Track(pos("p1", models.DirectionUp, 100)); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := e.Track(pos("p1", models.DirectionDown, 50)); err == nil {
		t.Fatalf("expected duplicate id rejection")
	}

	// the failed insert must not touch the book
	snap, _ := e.Snapshot("OTC_EURUSD")
	if snap.OpenPositions != 1 || snap.DownNotional != 0 {
		t.Fatalf("duplicate insert leaked into book: %+v", snap)
	}
}

func TestTrackUnknownInstrument(t *testing.T) {
	e, _, _ := newTestEngine(3)
	p := pos("p1", models.DirectionUp, 100)
	p.Instrument = "OTC_NOPE"
	if err := e.Track(p); err == nil {
		t.Fatalf("expected unknown instrument error")
	}
}

func TestCleanupExpiredSweepsOrphans(t *testing.T) {
	e, log, _ := newTestEngine(4)

	expired := pos("old", models.DirectionUp, 100)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	live := pos("live", models.DirectionDown, 100)

	if err := e.Track(expired); err != nil {
		t.Fatalf("track expired: %v", err)
	}
	if err := e.Track(live); err != nil {
		t.Fatalf("track live: %v", err)
	}

	if n := e.CleanupExpired(time.Now()); n != 1 {
		t.Fatalf("expected 1 orphan swept, got %d", n)
	}
	snap, _ := e.Snapshot("OTC_EURUSD")
	if snap.OpenPositions != 1 || snap.UpNotional != 0 {
		t.Fatalf("orphan not removed from book: %+v", snap)
	}

	found := false
	for _, entry := range log.entries {
		if entry.Event == models.ActivityOrphanRemoved && entry.PositionID == "old" {
			found = true
		}
	}
	if !found {
		t.Fatalf("orphan removal not logged")
	}

	// a swept id can be reused
	if err := e.Track(pos("old", models.DirectionUp, 50)); err != nil {
		t.Fatalf("retrack swept id: %v", err)
	}
}

func TestDropRefusedWithOpenPositions(t *testing.T) {
	e, _, _ := newTestEngine(5)

	if err := e.Track(pos("p1", models.DirectionUp, 100)); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := e.Drop("OTC_EURUSD"); err == nil {
		t.Fatalf("drop should refuse with open positions")
	}

	e.Remove("OTC_EURUSD", "p1")
	if err := e.Drop("OTC_EURUSD"); err != nil {
		t.Fatalf("drop after remove: %v", err)
	}
}

func TestSettleBelowThresholdNeverIntervenes(t *testing.T) {
	e, _, _ := newTestEngine(6)

	// balanced book: ratio 0
	e.Track(pos("u", models.DirectionUp, 100))
	e.Track(pos("d", models.DirectionDown, 100))

	p, _ := e.Lookup("OTC_EURUSD", "u")
	for i := 0; i < 1000; i++ {
		exit, intervened, _ := e.Settle(p, 1.085)
		if intervened || exit != 1.085 {
			t.Fatalf("balanced book must settle at market: exit=%v intervened=%v", exit, intervened)
		}
	}
}

func TestSettleDisabledRisk(t *testing.T) {
	e, _, _ := newTestEngine(7)
	cfg := riskConfig()
	cfg.RiskEnabled = false
	e.Configure(cfg)

	for i := 0; i < 6; i++ {
		e.Track(pos(string(rune('a'+i)), models.DirectionUp, 100))
	}
	p, _ := e.Lookup("OTC_EURUSD", "a")
	exit, intervened, rate := e.Settle(p, 1.085)
	if intervened || exit != 1.085 || rate != 0 {
		t.Fatalf("disabled risk must never intervene: exit=%v intervened=%v rate=%v", exit, intervened, rate)
	}
}

func TestSettleInterventionRateAndDirection(t *testing.T) {
	e, _, m := newTestEngine(8)
	cfg := riskConfig()

	// 5 UP vs 1 DOWN at equal notional: ratio = 4/6, past the 0.6 threshold
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		if err := e.Track(pos(id, models.DirectionUp, 100)); err != nil {
			t.Fatalf("track %s: %v", id, err)
		}
	}
	if err := e.Track(pos("z", models.DirectionDown, 100)); err != nil {
		t.Fatalf("track z: %v", err)
	}

	imbalance := 4.0 / 6.0
	wantProb := cfg.MinIntervention +
		(imbalance-cfg.ExposureThreshold)/(1-cfg.ExposureThreshold)*(cfg.MaxIntervention-cfg.MinIntervention)

	p, _ := e.Lookup("OTC_EURUSD", "a")
	const trials = 20000
	price := 1.085
	fired := 0
	for i := 0; i < trials; i++ {
		exit, intervened, rate := e.Settle(p, price)
		if math.Abs(rate-wantProb) > 1e-9 {
			t.Fatalf("expected rate %v, got %v", wantProb, rate)
		}
		if !intervened {
			if exit != price {
				t.Fatalf("unfired intervention must not move the exit: %v", exit)
			}
			continue
		}
		fired++
		// traders net long: exit must move down, by at most the spread cap
		adj := price - exit
		if adj <= 0 {
			t.Fatalf("intervention moved exit the wrong way: %v -> %v", price, exit)
		}
		if adj > cfg.SpreadMultiplier*cfg.PipSize+1e-9 {
			t.Fatalf("adjustment %v exceeds spread cap", adj)
		}
	}

	got := float64(fired) / trials
	if math.Abs(got-wantProb) > 0.02 {
		t.Fatalf("fired fraction %v deviates from expected rate %v", got, wantProb)
	}
	if m.interventions != fired {
		t.Fatalf("metrics counted %d interventions, expected %d", m.interventions, fired)
	}
}

func TestSettlePushesExitUpWhenNetShort(t *testing.T) {
	e, _, _ := newTestEngine(9)

	for i := 0; i < 5; i++ {
		e.Track(pos(string(rune('a'+i)), models.DirectionDown, 100))
	}
	e.Track(pos("z", models.DirectionUp, 100))

	p, _ := e.Lookup("OTC_EURUSD", "z")
	price := 1.085
	for i := 0; i < 5000; i++ {
		exit, intervened, _ := e.Settle(p, price)
		if intervened && exit <= price {
			t.Fatalf("net short book must push the exit up: %v -> %v", price, exit)
		}
	}
}

func TestSettleAdjustmentCappedByPayout(t *testing.T) {
	e, _, _ := newTestEngine(10)
	cfg := riskConfig()
	cfg.PipSize = 0.01
	cfg.SpreadMultiplier = 100 // raw adjustment 1.00, far past the payout cap
	cfg.PayoutPercent = 85
	e.Configure(cfg)

	for i := 0; i < 5; i++ {
		e.Track(pos(string(rune('a'+i)), models.DirectionUp, 100))
	}
	e.Track(pos("z", models.DirectionDown, 100))

	p, _ := e.Lookup("OTC_EURUSD", "a")
	price := 0.50
	maxAdj := cfg.PayoutPercent / 100 * price
	for i := 0; i < 5000; i++ {
		exit, intervened, _ := e.Settle(p, price)
		if !intervened {
			continue
		}
		// exit rounding may overshoot the cap by at most half a pip
		if adj := price - exit; adj > maxAdj+cfg.PipSize/2+1e-9 {
			t.Fatalf("adjustment %v exceeds payout cap %v", adj, maxAdj)
		}
	}
}
