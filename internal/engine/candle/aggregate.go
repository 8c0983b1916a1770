package candle

import (
	"OTCPulse/internal/domain/models"
)

// Aggregate buckets raw flush-granularity history rows into
// caller-requested resolution windows. Rows must arrive in ascending
// bucket order (the store guarantees this). Buckets are keyed by
// integer-dividing the row timestamp by the resolution; high is the
// max, low the min, close the last row's close, volume the sum, and
// open the first row's open in the bucket. The result is chronological
// and truncated to the most recent limit bars.
func Aggregate(rows []*models.HistoryRow, resolutionSec int, limit int) []models.Candle {
	if len(rows) == 0 || resolutionSec <= 0 {
		return nil
	}

	out := make([]models.Candle, 0, limit)
	var cur *models.Candle
	for _, r := range rows {
		bucket := r.Bucket.Unix() / int64(resolutionSec) * int64(resolutionSec)
		if cur == nil || cur.Time != bucket {
			out = append(out, models.Candle{
				Time:   bucket,
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
			})
			cur = &out[len(out)-1]
			continue
		}
		if r.High > cur.High {
			cur.High = r.High
		}
		if r.Low < cur.Low {
			cur.Low = r.Low
		}
		cur.Close = r.Close
		cur.Volume += r.Volume
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
