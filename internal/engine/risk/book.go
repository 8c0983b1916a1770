package risk

import (
	"sync"
	"time"

	"OTCPulse/internal/domain/models"
)

// book holds the open-position set and running exposure for one
// instrument. Each book has its own lock so settlement on one
// instrument never serializes against the cleanup sweep of another.
type book struct {
	mu           sync.Mutex
	cfg          models.InstrumentConfig
	positions    map[string]*models.Position
	upNotional   float64
	downNotional float64
}

func newBook(cfg models.InstrumentConfig) *book {
	return &book{cfg: cfg, positions: make(map[string]*models.Position)}
}

// ratio returns the net directional imbalance in [-1, 1]. Positive
// means traders are net long, i.e. the house is exposed to the price
// going up. Caller must hold b.mu.
func (b *book) ratio() float64 {
	total := b.upNotional + b.downNotional
	if total == 0 {
		return 0
	}
	return (b.upNotional - b.downNotional) / total
}

func (b *book) track(pos *models.Position) {
	b.positions[pos.ID] = pos
	if pos.Direction == models.DirectionUp {
		b.upNotional += pos.Notional
	} else {
		b.downNotional += pos.Notional
	}
}

func (b *book) remove(id string) (*models.Position, bool) {
	pos, ok := b.positions[id]
	if !ok {
		return nil, false
	}
	delete(b.positions, id)
	if pos.Direction == models.DirectionUp {
		b.upNotional -= pos.Notional
	} else {
		b.downNotional -= pos.Notional
	}
	return pos, true
}

// expired collects and removes positions whose expiry has passed.
func (b *book) expired(now time.Time) []*models.Position {
	var out []*models.Position
	for id, pos := range b.positions {
		if !pos.ExpiresAt.IsZero() && now.After(pos.ExpiresAt) {
			out = append(out, pos)
			delete(b.positions, id)
			if pos.Direction == models.DirectionUp {
				b.upNotional -= pos.Notional
			} else {
				b.downNotional -= pos.Notional
			}
		}
	}
	return out
}

func (b *book) snapshot() models.ExposureSnapshot {
	return models.ExposureSnapshot{
		Instrument:    b.cfg.Symbol,
		OpenPositions: len(b.positions),
		UpNotional:    b.upNotional,
		DownNotional:  b.downNotional,
		Ratio:         b.ratio(),
	}
}
