package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedEntry
	topics  []string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, value.([]AggregatedEntry))
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturePublisher) snapshot() [][]AggregatedEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]AggregatedEntry, len(p.batches))
	copy(out, p.batches)
	return out
}

func TestCollectorDedupsRepeatedEntries(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		FlushInterval:  time.Hour,
		CountThreshold: 100,
		Topic:          "app.logs",
		Publisher:      pub,
	})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "flush failed", map[string]interface{}{"instrument": "OTC_EURUSD"}, "engine.go:42")
	}
	c.AddLog("error", "flush failed", map[string]interface{}{"instrument": "OTC_BTCUSD"}, "engine.go:42")
	c.Close()

	batches := pub.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected one batch on close, got %d", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Fatalf("expected 2 deduplicated entries, got %d", len(batches[0]))
	}
	counts := map[string]int{}
	for _, e := range batches[0] {
		counts[e.Fields["instrument"].(string)] = e.Count
	}
	if counts["OTC_EURUSD"] != 5 || counts["OTC_BTCUSD"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		FlushInterval:  time.Hour,
		CountThreshold: 3,
		Topic:          "app.logs",
		Publisher:      pub,
	})

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.AddLog("error", "c", nil, "x.go:3")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(pub.snapshot()) >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("threshold flush did not fire")
		}
		time.Sleep(5 * time.Millisecond)
	}

	batches := pub.snapshot()
	if len(batches[0]) != 3 {
		t.Fatalf("expected 3 entries in threshold batch, got %d", len(batches[0]))
	}
	c.Close()
}

func TestCollectorCloseIsIdempotent(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{Topic: "app.logs", Publisher: pub})
	c.AddLog("warn", "once", nil, "y.go:9")
	c.Close()
	c.Close()
	if got := len(pub.snapshot()); got != 1 {
		t.Fatalf("expected a single final batch, got %d", got)
	}
}

// The logger wraps every Error call through the collector when one is
// attached; detaching must flush what was buffered.
func TestLoggerRoutesErrorsThroughCollector(t *testing.T) {
	l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	pub := &capturePublisher{}
	l.AddCollector(&CollectionConfig{
		FlushInterval:  time.Hour,
		CountThreshold: 100,
		Topic:          "app.logs",
		Publisher:      pub,
	})

	l.Error("candle flush failed", String("instrument", "OTC_EURUSD"))
	l.Error("candle flush failed", String("instrument", "OTC_EURUSD"))
	l.RemoveCollector()

	batches := pub.snapshot()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected one batch with one entry, got %v", batches)
	}
	if batches[0][0].Count != 2 {
		t.Fatalf("expected count 2, got %d", batches[0][0].Count)
	}
}
