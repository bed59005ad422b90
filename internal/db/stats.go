package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

const statsQuery = `
SELECT COUNT(*) FILTER (WHERE NOT retired), COUNT(*) FILTER (WHERE retired)
  FROM documents`

// StartStatsReporter periodically counts live and retired documents and
// hands the totals to report until ctx is cancelled.
func StartStatsReporter(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	report func(live, retired int64),
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var live, retired int64
				if err := db.QueryRowContext(ctx, statsQuery).Scan(&live, &retired); err != nil {
					log.Error("failed to count documents", zap.Error(err))
					continue
				}
				report(live, retired)
				log.Debug("ledger stats", zap.Int64("live", live), zap.Int64("retired", retired))
			}
		}
	}()
}
