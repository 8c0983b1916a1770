package di

import (
	"strings"
	"testing"
)

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("otcpulse")
	if len(stmts) != 3 {
		t.Fatalf("expected database + 2 tables, got %d statements", len(stmts))
	}

	var history string
	for _, s := range stmts {
		if strings.Contains(s, "price_history") {
			history = s
		}
	}
	if history == "" {
		t.Fatalf("price_history DDL missing")
	}

	// HistoryRow.Volume is a float64; an integer column would silently
	// truncate fractional volumes on insert.
	if !strings.Contains(history, "volume Float64") {
		t.Fatalf("volume column must be Float64:\n%s", history)
	}
	for _, col := range []string{"open Float64", "high Float64", "low Float64", "close Float64", "variance Float64"} {
		if !strings.Contains(history, col) {
			t.Fatalf("missing column %q:\n%s", col, history)
		}
	}
}
