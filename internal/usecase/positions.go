package usecase

import (
	"fmt"
	"time"

	"OTCPulse/internal/domain/models"
	"OTCPulse/internal/engine"
)

// PositionsUseCase is the trading system's entry point into exposure
// tracking and settlement.
type PositionsUseCase struct {
	eng *engine.MarketEngine
}

func NewPositionsUseCase(eng *engine.MarketEngine) *PositionsUseCase {
	return &PositionsUseCase{eng: eng}
}

// Open starts tracking a newly opened position.
func (uc *PositionsUseCase) Open(req *models.OpenPositionRequest) (*models.Position, error) {
	dir := models.Direction(req.Direction)
	if dir != models.DirectionUp && dir != models.DirectionDown {
		return nil, fmt.Errorf("invalid direction: %s", req.Direction)
	}
	pos := &models.Position{
		ID:         req.ID,
		Instrument: req.Instrument,
		Direction:  dir,
		Notional:   req.Notional,
		EntryPrice: req.EntryPrice,
		UserID:     req.UserID,
		ExpiresAt:  time.Unix(req.ExpiresAt, 0),
	}
	if err := uc.eng.OpenPosition(pos); err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}
	return pos, nil
}

// Close settles a position and returns the (possibly adjusted) exit price.
func (uc *PositionsUseCase) Close(instrument, positionID string) (*models.Settlement, error) {
	s, err := uc.eng.ClosePosition(instrument, positionID)
	if err != nil {
		return nil, fmt.Errorf("close position: %w", err)
	}
	return s, nil
}
