package models

import (
	"testing"
	"time"
)

func validConfig() InstrumentConfig {
	return InstrumentConfig{
		Symbol:              "OTC_EURUSD",
		Class:               ClassSession,
		PipSize:             0.0001,
		DefaultPrice:        1.085,
		BaseVolatility:      0.0004,
		GarchAlpha:          0.08,
		GarchBeta:           0.90,
		MaxDeviationPercent: 0.02,
		AnchorWindow:        30 * time.Minute,
		RiskEnabled:         true,
		ExposureThreshold:   0.6,
		MinIntervention:     0.05,
		MaxIntervention:     0.75,
		SpreadMultiplier:    2.0,
		PayoutPercent:       85,
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*InstrumentConfig)
	}{
		{"missing symbol", func(c *InstrumentConfig) { c.Symbol = "" }},
		{"bad class", func(c *InstrumentConfig) { c.Class = "forex" }},
		{"zero pip", func(c *InstrumentConfig) { c.PipSize = 0 }},
		{"zero default price", func(c *InstrumentConfig) { c.DefaultPrice = 0 }},
		{"zero volatility", func(c *InstrumentConfig) { c.BaseVolatility = 0 }},
		{"deviation over 1", func(c *InstrumentConfig) { c.MaxDeviationPercent = 2 }},
		{"nonstationary garch", func(c *InstrumentConfig) { c.GarchAlpha = 0.5; c.GarchBeta = 0.6 }},
		{"threshold at 1", func(c *InstrumentConfig) { c.ExposureThreshold = 1 }},
		{"min over max intervention", func(c *InstrumentConfig) { c.MinIntervention = 0.9 }},
		{"zero payout", func(c *InstrumentConfig) { c.PayoutPercent = 0 }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateSkipsRiskFieldsWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.RiskEnabled = false
	cfg.PayoutPercent = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("risk fields must be ignored when risk is disabled: %v", err)
	}
}

func TestPricePrecision(t *testing.T) {
	cfg := validConfig()
	if got := cfg.PricePrecision(); got != 5 {
		t.Fatalf("sub-cent pip should quote at 5 decimals, got %d", got)
	}
	cfg.PipSize = 0.01
	if got := cfg.PricePrecision(); got != 2 {
		t.Fatalf("cent pip should quote at 2 decimals, got %d", got)
	}
}

func TestPatchMergeLeavesOriginalUntouched(t *testing.T) {
	cfg := validConfig()
	vol := 0.001
	always := true
	p := InstrumentPatch{BaseVolatility: &vol, AlwaysSynthetic: &always}

	out := p.Merge(cfg)
	if out.BaseVolatility != vol || !out.AlwaysSynthetic {
		t.Fatalf("patch not applied: %+v", out)
	}
	if out.Symbol != cfg.Symbol || out.PayoutPercent != cfg.PayoutPercent {
		t.Fatalf("unpatched fields must carry over")
	}
	if cfg.BaseVolatility != 0.0004 || cfg.AlwaysSynthetic {
		t.Fatalf("merge mutated the original config")
	}
}

func TestPatchEmpty(t *testing.T) {
	p := InstrumentPatch{}
	if !p.Empty() {
		t.Fatalf("zero patch should be empty")
	}
	v := 0.5
	p.MeanReversion = &v
	if p.Empty() {
		t.Fatalf("non-zero patch should not be empty")
	}
}

func TestPositionValidate(t *testing.T) {
	good := Position{ID: "p1", Instrument: "OTC_EURUSD", Direction: DirectionUp, Notional: 100}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Position)
	}{
		{"missing id", func(p *Position) { p.ID = "" }},
		{"empty direction", func(p *Position) { p.Direction = "" }},
		{"unknown direction", func(p *Position) { p.Direction = "SIDEWAYS" }},
		{"lowercase direction", func(p *Position) { p.Direction = "up" }},
		{"zero notional", func(p *Position) { p.Notional = 0 }},
		{"negative notional", func(p *Position) { p.Notional = -1 }},
	}
	for _, tc := range cases {
		p := good
		tc.mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}
