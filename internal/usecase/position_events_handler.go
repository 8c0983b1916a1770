package usecase

import (
	"context"
	"encoding/json"
	"time"

	"OTCPulse/internal/domain/models"
	domrepo "OTCPulse/internal/domain/repository"
	"OTCPulse/internal/engine"
	pkgkafka "OTCPulse/pkg/kafka"
)

// PositionEventsHandler consumes position-open events published by the
// order system. Close events arrive over HTTP instead because the
// caller needs the settlement price synchronously.
type PositionEventsHandler struct {
	topic   string
	eng     *engine.MarketEngine
	metrics domrepo.Metrics
}

func NewPositionEventsHandler(topic string, eng *engine.MarketEngine, metrics domrepo.Metrics) *PositionEventsHandler {
	return &PositionEventsHandler{topic: topic, eng: eng, metrics: metrics}
}

func (h *PositionEventsHandler) Topic() string { return h.topic }

// incoming message schema: {id, instrument, direction, notional, entryPrice, userId, expiresAt}
func (h *PositionEventsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ID         string  `json:"id"`
		Instrument string  `json:"instrument"`
		Direction  string  `json:"direction"`
		Notional   float64 `json:"notional"`
		EntryPrice float64 `json:"entryPrice"`
		UserID     string  `json:"userId"`
		ExpiresAt  int64   `json:"expiresAt"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("position_event_unmarshal")
		return err
	}
	if m.ExpiresAt > 1e11 { // ms
		m.ExpiresAt = m.ExpiresAt / 1000
	}

	start := time.Now()
	err := h.eng.OpenPosition(&models.Position{
		ID:         m.ID,
		Instrument: m.Instrument,
		Direction:  models.Direction(m.Direction),
		Notional:   m.Notional,
		EntryPrice: m.EntryPrice,
		UserID:     m.UserID,
		ExpiresAt:  time.Unix(m.ExpiresAt, 0),
	})
	h.metrics.RecordLatency("position_event_track", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("position_event_track")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*PositionEventsHandler)(nil)
