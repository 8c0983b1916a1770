package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"OTCPulse/internal/domain/models"
	domrepo "OTCPulse/internal/domain/repository"
	pkgch "OTCPulse/pkg/clickhouse"
	applogger "OTCPulse/pkg/logger"
)

// CHActivityLog buffers audit entries in memory and flushes them to
// ClickHouse in batches from a background goroutine. Record never
// blocks the caller; when the buffer is full the oldest entries are
// dropped and counted, so a slow database cannot stall the tick loop
// or a settlement.
type CHActivityLog struct {
	db    *sql.DB
	table string
	l     *applogger.Logger

	mu      sync.Mutex
	pending []models.ActivityEntry
	maxBuf  int
	dropped int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCHActivityLog(ch *pkgch.Client, table string, l *applogger.Logger) *CHActivityLog {
	a := &CHActivityLog{
		db:     ch.DB(),
		table:  table,
		l:      l,
		maxBuf: 10000,
		stopCh: make(chan struct{}),
	}
	a.wg.Add(1)
	go a.flushLoop()
	return a
}

// Record queues an entry for the next background flush.
func (a *CHActivityLog) Record(entry models.ActivityEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	a.mu.Lock()
	if len(a.pending) >= a.maxBuf {
		a.pending = a.pending[1:]
		a.dropped++
	}
	a.pending = append(a.pending, entry)
	a.mu.Unlock()
}

func (a *CHActivityLog) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.Flush(ctx); err != nil && a.l != nil {
				a.l.Warn("activity log flush failed", applogger.Error(err))
			}
			cancel()
		}
	}
}

// Flush writes all pending entries. On failure the batch is requeued
// ahead of newer entries so order is preserved.
func (a *CHActivityLog) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	dropped := a.dropped
	a.dropped = 0
	a.mu.Unlock()

	if dropped > 0 && a.l != nil {
		a.l.Warn("activity log dropped entries", applogger.Int("count", dropped))
	}
	if len(batch) == 0 {
		return nil
	}

	values := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*6)
	for _, e := range batch {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		success := uint8(0)
		if e.Success {
			success = 1
		}
		args = append(args, e.Timestamp, e.Instrument, e.Event, e.PositionID, e.Value, success)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (ts, instrument, event, position_id, value, success) VALUES %s",
		a.table, strings.Join(values, ","),
	)
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		if over := len(a.pending) - a.maxBuf; over > 0 {
			a.pending = a.pending[over:]
			a.dropped += over
		}
		a.mu.Unlock()
		return fmt.Errorf("activity log insert: %w", err)
	}
	return nil
}

// Close stops the background flusher after a final flush attempt.
func (a *CHActivityLog) Close() error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Flush(ctx)
}

var _ domrepo.ActivityLog = (*CHActivityLog)(nil)
