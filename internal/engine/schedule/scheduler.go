package schedule

import (
	"time"

	"OTCPulse/internal/domain/models"
)

// Decision is the mode selected for one instrument at one tick.
// Weight is only meaningful for BLENDED and ramps linearly from 0
// (fully synthetic) to 1 (fully real) across the anchoring window.
type Decision struct {
	Mode   models.PriceMode
	Weight float64
}

// Scheduler selects the price source per instrument and tick.
type Scheduler struct {
	cal *Calendar
}

// New creates a scheduler over the given session calendar. A nil
// calendar falls back to the default weekday session.
func New(cal *Calendar) *Scheduler {
	if cal == nil {
		cal = DefaultCalendar()
	}
	return &Scheduler{cal: cal}
}

// Decide maps (instrument config, wall clock) to a price mode.
// The decision ignores real-price availability; callers degrade
// REAL/BLENDED to SYNTHETIC per tick when no fresh real price exists.
func (s *Scheduler) Decide(cfg *models.InstrumentConfig, now time.Time) Decision {
	if cfg.AlwaysSynthetic {
		return Decision{Mode: models.ModeSynthetic}
	}
	if cfg.Class == models.ClassContinuous {
		return Decision{Mode: models.ModeReal, Weight: 1}
	}

	if s.cal.InSession(now) {
		return Decision{Mode: models.ModeReal, Weight: 1}
	}

	window := cfg.AnchorWindow
	if window > 0 {
		open := s.cal.NextOpen(now)
		until := open.Sub(now)
		if until > 0 && until <= window {
			// ramps to 1 as the open approaches
			w := 1 - float64(until)/float64(window)
			return Decision{Mode: models.ModeBlended, Weight: w}
		}
	}
	return Decision{Mode: models.ModeSynthetic}
}
