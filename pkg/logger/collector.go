package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries to a topic. The Kafka
// producer satisfies this.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectionConfig struct {
	FlushInterval  time.Duration // periodic flush cadence
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedEntry is one deduplicated log line with occurrence counts.
type AggregatedEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"firstSeen"`
	LastSeen  time.Time              `json:"lastSeen"`
}

// LogCollector dedups repeated log lines and publishes them in batches.
// Identical level/message/fields/caller tuples collapse into one entry
// with a count, so an error storm costs one message per flush window.
type LogCollector struct {
	cfg     *CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedEntry
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}

	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[string]*AggregatedEntry),
		stopCh:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.run()

	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}

	c.entries[key] = &AggregatedEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}

	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	payload := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller}

	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)
}

func (c *LogCollector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stopCh:
			// Final flush so buffered entries survive shutdown.
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

// flushLocked publishes the current batch. Caller holds c.mu; the
// publish itself runs outside the lock so a slow broker never blocks
// log emission.
func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}

	batch := make([]AggregatedEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[string]*AggregatedEntry)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, nil, batch); err != nil {
			fmt.Printf("aggregated log publish failed: %v\n", err)
		}
	}()
}

// Close flushes remaining entries and stops the background loop.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}
