package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JobLogEntry is one audit row: a pipeline stage within a run
type JobLogEntry struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Message   string `json:"message,omitempty"`
	RowCount  int    `json:"row_count"`
}

// Stage status values written to job_log
const (
	StageRunning = "running"
	StageSuccess = "success"
	StageFailed  = "failed"
)

// BeginStage records that a pipeline stage started
func (s *Store) BeginStage(ctx context.Context, runID, stage string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_log(run_id, stage, status, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, stage) DO UPDATE SET
		    status=excluded.status,
		    started_at=excluded.started_at,
		    ended_at=NULL,
		    message=NULL,
		    row_count=NULL`,
		runID, stage, StageRunning, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("log stage start %s/%s: %w", runID, stage, err)
	}
	return nil
}

// EndStage records a stage outcome with its row count and message
func (s *Store) EndStage(ctx context.Context, runID, stage, status, message string, rowCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_log
		SET status = ?, ended_at = ?, message = ?, row_count = ?
		WHERE run_id = ? AND stage = ?`,
		status, time.Now().UTC().Format(time.RFC3339), message, rowCount, runID, stage)
	if err != nil {
		return fmt.Errorf("log stage end %s/%s: %w", runID, stage, err)
	}
	return nil
}

// RecentJobs returns the newest job_log rows, most recent first
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]JobLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, stage, status, started_at, ended_at, message, row_count
		FROM job_log
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job log: %w", err)
	}
	defer rows.Close()

	var out []JobLogEntry
	for rows.Next() {
		var (
			e        JobLogEntry
			endedAt  sql.NullString
			message  sql.NullString
			rowCount sql.NullInt64
		)
		if err := rows.Scan(&e.RunID, &e.Stage, &e.Status, &e.StartedAt, &endedAt, &message, &rowCount); err != nil {
			return nil, fmt.Errorf("scan job log row: %w", err)
		}
		e.EndedAt = endedAt.String
		e.Message = message.String
		e.RowCount = int(rowCount.Int64)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TableCounts returns row counts for the cache tables, keyed by table name
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	tables := []string{"ticker_master", "prices_daily", "cap_daily", "fundamental_daily", "snapshot_metrics", "job_log"}
	out := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}
