package models

import (
	"fmt"
	"time"
)

// MarketClass distinguishes instruments that trade around the clock
// from session-based ones that open and close on a calendar.
type MarketClass string

const (
	ClassContinuous MarketClass = "continuous"
	ClassSession    MarketClass = "session"
)

// InstrumentConfig is the per-instrument tuning owned by the orchestrator.
// It is mutated only through ApplyPatch, which triggers reinitialization
// of dependent generator/risk state.
type InstrumentConfig struct {
	Symbol          string      `yaml:"symbol"`
	RealSymbol      string      `yaml:"real_symbol"`
	Class           MarketClass `yaml:"class"`
	PipSize         float64     `yaml:"pip_size"`
	DefaultPrice    float64     `yaml:"default_price"`
	AlwaysSynthetic bool        `yaml:"always_synthetic"`

	// Stochastic process parameters.
	BaseVolatility       float64 `yaml:"base_volatility"`
	VolatilityMultiplier float64 `yaml:"volatility_multiplier"`
	MomentumFactor       float64 `yaml:"momentum_factor"`
	GarchAlpha           float64 `yaml:"garch_alpha"`
	GarchBeta            float64 `yaml:"garch_beta"`
	GarchOmega           float64 `yaml:"garch_omega"`
	MeanReversion        float64 `yaml:"mean_reversion"`
	MaxDeviationPercent  float64 `yaml:"max_deviation_percent"`
	PriceOffsetPips      float64 `yaml:"price_offset_pips"`

	// Blend window immediately preceding session open.
	AnchorWindow time.Duration `yaml:"anchor_window"`

	// Risk parameters.
	RiskEnabled       bool    `yaml:"risk_enabled"`
	ExposureThreshold float64 `yaml:"exposure_threshold"`
	MinIntervention   float64 `yaml:"min_intervention"`
	MaxIntervention   float64 `yaml:"max_intervention"`
	SpreadMultiplier  float64 `yaml:"spread_multiplier"`
	PayoutPercent     float64 `yaml:"payout_percent"`
}

// Validate rejects configs the engine cannot run with.
func (c *InstrumentConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Class != ClassContinuous && c.Class != ClassSession {
		return fmt.Errorf("instrument %s: class must be 'continuous' or 'session', got %q", c.Symbol, c.Class)
	}
	if c.PipSize <= 0 {
		return fmt.Errorf("instrument %s: pip_size must be positive", c.Symbol)
	}
	if c.DefaultPrice <= 0 {
		return fmt.Errorf("instrument %s: default_price must be positive", c.Symbol)
	}
	if c.BaseVolatility <= 0 {
		return fmt.Errorf("instrument %s: base_volatility must be positive", c.Symbol)
	}
	if c.MaxDeviationPercent <= 0 || c.MaxDeviationPercent >= 1 {
		return fmt.Errorf("instrument %s: max_deviation_percent must be in (0,1)", c.Symbol)
	}
	if c.GarchAlpha < 0 || c.GarchBeta < 0 || c.GarchAlpha+c.GarchBeta >= 1 {
		return fmt.Errorf("instrument %s: garch alpha/beta must be non-negative with alpha+beta < 1", c.Symbol)
	}
	if c.RiskEnabled {
		if c.ExposureThreshold < 0 || c.ExposureThreshold >= 1 {
			return fmt.Errorf("instrument %s: exposure_threshold must be in [0,1)", c.Symbol)
		}
		if c.MinIntervention < 0 || c.MaxIntervention > 1 || c.MinIntervention > c.MaxIntervention {
			return fmt.Errorf("instrument %s: intervention rates must satisfy 0 <= min <= max <= 1", c.Symbol)
		}
		if c.PayoutPercent <= 0 {
			return fmt.Errorf("instrument %s: payout_percent must be positive", c.Symbol)
		}
	}
	return nil
}

// PricePrecision returns decimals used when rounding generated prices.
// Sub-cent pip sizes quote at 5 decimals (FX convention), else 2.
func (c *InstrumentConfig) PricePrecision() int {
	if c.PipSize < 0.01 {
		return 5
	}
	return 2
}

// InstrumentPatch is a typed partial update applied through the config
// mutation endpoint. Nil fields are left untouched.
type InstrumentPatch struct {
	RealSymbol           *string        `json:"realSymbol,omitempty"`
	AlwaysSynthetic      *bool          `json:"alwaysSynthetic,omitempty"`
	BaseVolatility       *float64       `json:"baseVolatility,omitempty"`
	VolatilityMultiplier *float64       `json:"volatilityMultiplier,omitempty"`
	MomentumFactor       *float64       `json:"momentumFactor,omitempty"`
	GarchAlpha           *float64       `json:"garchAlpha,omitempty"`
	GarchBeta            *float64       `json:"garchBeta,omitempty"`
	GarchOmega           *float64       `json:"garchOmega,omitempty"`
	MeanReversion        *float64       `json:"meanReversion,omitempty"`
	MaxDeviationPercent  *float64       `json:"maxDeviationPercent,omitempty"`
	PriceOffsetPips      *float64       `json:"priceOffsetPips,omitempty"`
	AnchorWindow         *time.Duration `json:"anchorWindow,omitempty"`
	RiskEnabled          *bool          `json:"riskEnabled,omitempty"`
	ExposureThreshold    *float64       `json:"exposureThreshold,omitempty"`
	MinIntervention      *float64       `json:"minIntervention,omitempty"`
	MaxIntervention      *float64       `json:"maxIntervention,omitempty"`
	SpreadMultiplier     *float64       `json:"spreadMultiplier,omitempty"`
	PayoutPercent        *float64       `json:"payoutPercent,omitempty"`
}

// Merge returns a copy of cfg with the patch applied. The receiver and
// cfg are not modified, so a failed validation leaves prior config active.
func (p *InstrumentPatch) Merge(cfg InstrumentConfig) InstrumentConfig {
	out := cfg
	if p.RealSymbol != nil {
		out.RealSymbol = *p.RealSymbol
	}
	if p.AlwaysSynthetic != nil {
		out.AlwaysSynthetic = *p.AlwaysSynthetic
	}
	if p.BaseVolatility != nil {
		out.BaseVolatility = *p.BaseVolatility
	}
	if p.VolatilityMultiplier != nil {
		out.VolatilityMultiplier = *p.VolatilityMultiplier
	}
	if p.MomentumFactor != nil {
		out.MomentumFactor = *p.MomentumFactor
	}
	if p.GarchAlpha != nil {
		out.GarchAlpha = *p.GarchAlpha
	}
	if p.GarchBeta != nil {
		out.GarchBeta = *p.GarchBeta
	}
	if p.GarchOmega != nil {
		out.GarchOmega = *p.GarchOmega
	}
	if p.MeanReversion != nil {
		out.MeanReversion = *p.MeanReversion
	}
	if p.MaxDeviationPercent != nil {
		out.MaxDeviationPercent = *p.MaxDeviationPercent
	}
	if p.PriceOffsetPips != nil {
		out.PriceOffsetPips = *p.PriceOffsetPips
	}
	if p.AnchorWindow != nil {
		out.AnchorWindow = *p.AnchorWindow
	}
	if p.RiskEnabled != nil {
		out.RiskEnabled = *p.RiskEnabled
	}
	if p.ExposureThreshold != nil {
		out.ExposureThreshold = *p.ExposureThreshold
	}
	if p.MinIntervention != nil {
		out.MinIntervention = *p.MinIntervention
	}
	if p.MaxIntervention != nil {
		out.MaxIntervention = *p.MaxIntervention
	}
	if p.SpreadMultiplier != nil {
		out.SpreadMultiplier = *p.SpreadMultiplier
	}
	if p.PayoutPercent != nil {
		out.PayoutPercent = *p.PayoutPercent
	}
	return out
}

// Empty reports whether the patch carries no changes.
func (p *InstrumentPatch) Empty() bool {
	return *p == InstrumentPatch{}
}
