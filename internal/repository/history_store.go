package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"OTCPulse/internal/domain/models"
	domrepo "OTCPulse/internal/domain/repository"
	pkgch "OTCPulse/pkg/clickhouse"
	applogger "OTCPulse/pkg/logger"
)

// CHHistoryStore implements HistoryStore backed by ClickHouse. Rows are
// append-only; continuity seeding reads the latest close back on start.
type CHHistoryStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHHistoryStore(ch *pkgch.Client, table string) *CHHistoryStore {
	return &CHHistoryStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHHistoryStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHHistoryStore) Init(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHHistoryStore) Append(ctx context.Context, row *models.HistoryRow) error {
	return s.AppendBatch(ctx, []*models.HistoryRow{row})
}

func (s *CHHistoryStore) AppendBatch(ctx context.Context, rows []*models.HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*9)
	for _, r := range rows {
		if r == nil || r.Instrument == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.Instrument,
			r.Bucket,
			r.Open,
			r.High,
			r.Low,
			r.Close,
			r.Volume,
			string(r.Mode),
			r.Variance,
		)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (instrument, bucket, open, high, low, close, volume, mode, variance) VALUES %s",
		s.table, strings.Join(values, ","),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history append error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *CHHistoryStore) Rows(ctx context.Context, instrument string, from, to time.Time) ([]*models.HistoryRow, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT instrument, bucket, open, high, low, close, volume, mode, variance
        FROM %s
        WHERE instrument = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, instrument, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error",
				applogger.String("instrument", instrument),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("history rows: %w", err)
	}
	defer rows.Close()

	out := make([]*models.HistoryRow, 0, 1024)
	for rows.Next() {
		var r models.HistoryRow
		var mode string
		if err := rows.Scan(&r.Instrument, &r.Bucket, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &mode, &r.Variance); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Mode = models.PriceMode(mode)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse history query ok",
			applogger.String("instrument", instrument),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHHistoryStore) LastClose(ctx context.Context, instrument string) (float64, float64, bool, error) {
	q := fmt.Sprintf(`
        SELECT close, variance
        FROM %s
        WHERE instrument = ?
        ORDER BY bucket DESC
        LIMIT 1
    `, s.table)
	var price, variance float64
	err := s.db.QueryRowContext(ctx, q, instrument).Scan(&price, &variance)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("last close: %w", err)
	}
	return price, variance, price > 0, nil
}

func (s *CHHistoryStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHHistoryStore) Close() error {
	return nil // connection pool managed by pkg/clickhouse
}

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)
