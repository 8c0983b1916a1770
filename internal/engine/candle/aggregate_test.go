package candle

import (
	"testing"
	"time"

	"OTCPulse/internal/domain/models"
)

func row(sec int64, o, h, l, c, v float64) *models.HistoryRow {
	return &models.HistoryRow{
		Instrument: "OTC_EURUSD",
		Bucket:     time.Unix(sec, 0),
		Open:       o,
		High:       h,
		Low:        l,
		Close:      c,
		Volume:     v,
	}
}

func TestAggregateEmpty(t *testing.T) {
	if got := Aggregate(nil, 60, 10); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := Aggregate([]*models.HistoryRow{row(0, 1, 1, 1, 1, 1)}, 0, 10); got != nil {
		t.Fatalf("expected nil for invalid resolution, got %v", got)
	}
}

func TestAggregateMergesWithinBucket(t *testing.T) {
	rows := []*models.HistoryRow{
		row(1000, 1.10, 1.12, 1.09, 1.11, 3),
		row(1010, 1.11, 1.15, 1.10, 1.14, 2),
		row(1050, 1.14, 1.14, 1.08, 1.09, 4),
	}
	out := Aggregate(rows, 60, 100)
	if len(out) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(out))
	}
	c := out[0]
	if c.Time != 960 {
		t.Fatalf("expected bucket 960, got %d", c.Time)
	}
	if c.Open != 1.10 || c.Close != 1.09 {
		t.Fatalf("open/close mismatch: %+v", c)
	}
	if c.High != 1.15 || c.Low != 1.08 {
		t.Fatalf("high/low mismatch: %+v", c)
	}
	if c.Volume != 9 {
		t.Fatalf("expected volume 9, got %v", c.Volume)
	}
}

func TestAggregateSplitsAcrossBuckets(t *testing.T) {
	rows := []*models.HistoryRow{
		row(0, 1, 2, 1, 2, 1),
		row(59, 2, 3, 2, 3, 1),
		row(60, 3, 4, 3, 4, 1),
		row(125, 4, 5, 4, 5, 1),
	}
	out := Aggregate(rows, 60, 100)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(out))
	}
	if out[0].Time != 0 || out[1].Time != 60 || out[2].Time != 120 {
		t.Fatalf("unexpected bucket times: %d %d %d", out[0].Time, out[1].Time, out[2].Time)
	}
	if out[0].High != 3 || out[0].Close != 3 {
		t.Fatalf("first bar should merge rows 0 and 59: %+v", out[0])
	}
}

func TestAggregateLimitKeepsMostRecent(t *testing.T) {
	var rows []*models.HistoryRow
	for i := 0; i < 10; i++ {
		sec := int64(i * 60)
		rows = append(rows, row(sec, float64(i), float64(i), float64(i), float64(i), 1))
	}
	out := Aggregate(rows, 60, 3)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(out))
	}
	if out[0].Time != 420 || out[2].Time != 540 {
		t.Fatalf("expected most recent bars, got %d..%d", out[0].Time, out[2].Time)
	}
}
