package usecase

import (
	"context"
	"fmt"
	"time"

	"OTCPulse/internal/domain/models"
	domrepo "OTCPulse/internal/domain/repository"
	"OTCPulse/internal/engine"
	"OTCPulse/pkg/cache"
)

// BarsUseCase serves historical bars with a short-lived cache in front
// of the ClickHouse aggregation path.
type BarsUseCase struct {
	eng      *engine.MarketEngine
	cache    cache.Service
	cacheTTL time.Duration
}

func NewBarsUseCase(eng *engine.MarketEngine, c cache.Service) *BarsUseCase {
	return &BarsUseCase{eng: eng, cache: c, cacheTTL: 5 * time.Second}
}

type GetBarsParams struct {
	Instrument string
	Resolution int
	Limit      int
	From       time.Time
	To         time.Time
}

type GetBarsResult struct {
	Instrument string          `json:"instrument"`
	Resolution int             `json:"resolution"`
	Count      int             `json:"count"`
	Bars       []models.Candle `json:"bars"`
}

func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Instrument == "" {
		return nil, fmt.Errorf("instrument required")
	}
	p.Resolution = domrepo.NormalizeResolution(p.Resolution)
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}

	key := cache.GenerateKeyWithParams("bars", p.Instrument, p.Resolution, p.Limit, p.From.Unix(), p.To.Unix())
	if uc.cache != nil {
		var cached GetBarsResult
		if err := uc.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	bars, err := uc.eng.GetBars(ctx, p.Instrument, p.Resolution, p.Limit, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}

	res := &GetBarsResult{
		Instrument: p.Instrument,
		Resolution: p.Resolution,
		Count:      len(bars),
		Bars:       bars,
	}
	if uc.cache != nil {
		_ = uc.cache.Set(ctx, key, res, uc.cacheTTL)
	}
	return res, nil
}

// LatestTick returns the engine's most recent tick for an instrument.
func (uc *BarsUseCase) LatestTick(instrument string) (*models.Tick, error) {
	t := uc.eng.LatestTick(instrument)
	if t == nil {
		return nil, fmt.Errorf("no tick for instrument %s", instrument)
	}
	return t, nil
}
