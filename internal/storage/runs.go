package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
)

// RunRecord summarizes one batch run.
type RunRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	ID         string
	Metrics    metrics.Snapshot
}

// SaveRun stores a batch summary with its full metrics snapshot.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run RunRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(run.ID, "run.ID"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRun, err)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		return fmt.Errorf("%w: finished before it started", ErrInvalidRun)
	}

	data, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_runs (
			id, started_at, finished_at, emails_total, accepted, rejected, filtered, duplicates, metrics
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Metrics.EmailsTotal,
		run.Metrics.Accepted,
		run.Metrics.Rejected,
		run.Metrics.FilteredOut,
		run.Metrics.Duplicates,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRuns returns the most recent runs first.
func (s *SQLiteStorage) GetRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, metrics
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var (
			r    RunRecord
			data string
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &r.Metrics); err != nil {
			return nil, fmt.Errorf("run %s: bad metrics: %w", r.ID, err)
		}
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
