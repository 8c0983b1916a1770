package models

// Requests for market HTTP endpoints. Defined in domain for consistency and reuse.

type BarsRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	Resolution int    `query:"resolution" json:"resolution" default:"60" validate:"gte=5,lte=86400"`
	Limit      int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
	// optional window bounds, RFC3339 or unix seconds
	From string `query:"from" json:"from"`
	To   string `query:"to" json:"to"`
}

type TickRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
}

type ExposureRequest struct {
	Instrument string `query:"instrument" json:"instrument"`
}

type OpenPositionRequest struct {
	ID         string  `json:"id" validate:"required"`
	Instrument string  `json:"instrument" validate:"required"`
	Direction  string  `json:"direction" validate:"required,oneof=UP DOWN"`
	Notional   float64 `json:"notional" validate:"required,gt=0"`
	EntryPrice float64 `json:"entryPrice" validate:"gte=0"`
	UserID     string  `json:"userId" validate:"required"`
	ExpiresAt  int64   `json:"expiresAt" validate:"required,gt=0"`
}

type ClosePositionRequest struct {
	ID         string `param:"id" json:"id" validate:"required"`
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
}
