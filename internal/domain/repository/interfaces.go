package repository

import (
	"context"
	"time"

	"OTCPulse/internal/domain/models"
)

// HistoryStore persists and reads back flushed price history rows.
type HistoryStore interface {
	Init(ctx context.Context) error // ensure tables exist
	Append(ctx context.Context, row *models.HistoryRow) error
	AppendBatch(ctx context.Context, rows []*models.HistoryRow) error
	// Rows returns raw flush-granularity rows for an instrument in
	// ascending bucket order, bounded by [from, to].
	Rows(ctx context.Context, instrument string, from, to time.Time) ([]*models.HistoryRow, error)
	// LastClose returns the most recent persisted close price and
	// variance across any mode, used to reseed generators after a
	// restart. ok is false when no history exists.
	LastClose(ctx context.Context, instrument string) (price float64, variance float64, ok bool, err error)
	Health(ctx context.Context) error
	Close() error
}

// ActivityLog records notable engine events. Writes are fire-and-forget:
// implementations must never block the caller on persistence.
type ActivityLog interface {
	Record(entry models.ActivityEntry)
	Flush(ctx context.Context) error
	Close() error
}

// TickPublisher broadcasts ticks and settlements to external consumers.
type TickPublisher interface {
	PublishTick(ctx context.Context, t *models.Tick) error
	PublishSettlement(ctx context.Context, s *models.Settlement) error
	Close() error
}

// RealPriceSink accepts opportunistic reference prices from a feed.
type RealPriceSink interface {
	UpdateRealPrice(symbol string, price float64)
}

// Metrics abstracts the engine's operational counters and gauges.
type Metrics interface {
	RecordTick(instrument string, mode models.PriceMode)
	RecordLastPrice(instrument string, price float64)
	RecordExposure(instrument string, ratio float64)
	RecordIntervention(instrument string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
