package pagestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PageStats holds the render counters for a single page.
type PageStats struct {
	Name         string        `json:"name"`
	Renders      int64         `json:"renders"`
	Failures     int64         `json:"failures"`
	TotalTime    time.Duration `json:"total_time"`
	LastRendered time.Time     `json:"last_rendered"`
}

// AverageTime is the mean render duration, or zero before the first render.
func (p PageStats) AverageTime() time.Duration {
	if p.Renders == 0 {
		return 0
	}
	return p.TotalTime / time.Duration(p.Renders)
}

// Summary provides a high-level overview of the store.
type Summary struct {
	Pages    int64 `json:"pages"`
	Renders  int64 `json:"renders"`
	Failures int64 `json:"failures"`
}

// RecordRender counts one render of name that took dur. A non-nil renderErr
// counts as a failure.
func (s *Store) RecordRender(ctx context.Context, name string, dur time.Duration, renderErr error) error {
	failed := 0
	if renderErr != nil {
		failed = 1
	}
	_, err := s.stmtRecord.ExecContext(ctx, name, failed, dur.Nanoseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record render of %q: %w", name, err)
	}
	return nil
}

// Stats returns up to limit pages ordered by render count, busiest first.
func (s *Store) Stats(ctx context.Context, limit int) ([]PageStats, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.stmtStats.QueryContext(ctx, limit)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	stats := make([]PageStats, 0)
	for rows.Next() {
		var p PageStats
		var nanos int64
		if err = rows.Scan(&p.Name, &p.Renders, &p.Failures, &nanos, &p.LastRendered); err != nil {
			return nil, err
		}
		p.TotalTime = time.Duration(nanos)
		stats = append(stats, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Summary returns store-wide totals.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.stmtSummary.QueryRowContext(ctx).Scan(&sum.Pages, &sum.Renders, &sum.Failures)
	return sum, err
}
