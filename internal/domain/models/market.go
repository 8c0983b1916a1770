package models

import (
	"fmt"
	"time"
)

// PriceMode identifies the source that produced a tick.
type PriceMode string

const (
	ModeReal      PriceMode = "REAL"
	ModeSynthetic PriceMode = "SYNTHETIC"
	ModeBlended   PriceMode = "BLENDED"
)

// Tick is a single price update broadcast to subscribers.
type Tick struct {
	Instrument    string    `json:"instrument"`
	Price         float64   `json:"price"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	Timestamp     int64     `json:"ts"`
	Mode          PriceMode `json:"mode"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
}

// Candle represents an OHLCV bucket returned to chart consumers.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// HistoryRow is one persisted flush interval for an instrument.
// Rows are append-only; they are read back for continuity seeding and
// for chart aggregation.
type HistoryRow struct {
	Instrument string
	Bucket     time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Mode       PriceMode
	Variance   float64
}

// Direction of a binary position.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Position is an open trade tracked by the risk engine.
type Position struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`
	Notional   float64   `json:"notional"`
	EntryPrice float64   `json:"entryPrice"`
	UserID     string    `json:"userId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Validate rejects positions that would corrupt the exposure book. The
// book splits notional strictly by direction, so anything outside
// UP/DOWN or non-positive notional must never reach it.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position id is required")
	}
	if p.Direction != DirectionUp && p.Direction != DirectionDown {
		return fmt.Errorf("invalid direction %q: must be %s or %s", p.Direction, DirectionUp, DirectionDown)
	}
	if p.Notional <= 0 {
		return fmt.Errorf("invalid notional %v: must be positive", p.Notional)
	}
	return nil
}

// Settlement is the result of closing a position.
type Settlement struct {
	PositionID  string  `json:"positionId"`
	Instrument  string  `json:"instrument"`
	ExitPrice   float64 `json:"exitPrice"`
	Intervened  bool    `json:"intervened"`
	AppliedRate float64 `json:"appliedRate"`
	Timestamp   int64   `json:"ts"`
}

// ExposureSnapshot is a read-only view of one instrument's risk book.
type ExposureSnapshot struct {
	Instrument    string  `json:"instrument"`
	OpenPositions int     `json:"openPositions"`
	UpNotional    float64 `json:"upNotional"`
	DownNotional  float64 `json:"downNotional"`
	Ratio         float64 `json:"ratio"`
}

// Activity event types written to the audit log.
const (
	ActivityPositionTracked = "position_tracked"
	ActivityPositionRemoved = "position_removed"
	ActivityOrphanRemoved   = "orphan_removed"
	ActivityIntervention    = "intervention"
	ActivityConfigChanged   = "config_changed"
)

// ActivityEntry is one append-only audit record of a notable engine event.
type ActivityEntry struct {
	Instrument string
	Event      string
	PositionID string
	Value      float64
	Success    bool
	Timestamp  time.Time
}

// EngineStatus summarizes the orchestrator for diagnostics consumers.
type EngineStatus struct {
	Running     bool               `json:"running"`
	StartedAt   time.Time          `json:"startedAt"`
	Instruments []InstrumentStatus `json:"instruments"`
}

// InstrumentStatus is the per-instrument slice of EngineStatus.
type InstrumentStatus struct {
	Symbol        string    `json:"symbol"`
	Mode          PriceMode `json:"mode"`
	Price         float64   `json:"price"`
	ExposureRatio float64   `json:"exposureRatio"`
	OpenPositions int       `json:"openPositions"`
}
