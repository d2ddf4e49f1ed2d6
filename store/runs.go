package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/use-agent/prisma/models"
)

// RunRecord is one row of run history.
type RunRecord struct {
	ID         string
	Topic      string
	StartedAt  time.Time
	Duration   float64
	Total      int
	Succeeded  int
	ReportPath string

	// HasReport is set when synthesis ran; TokensUsed and ReportOK
	// describe it.
	HasReport  bool
	ReportOK   bool
	TokensUsed int
}

// RecordRun inserts or updates the run row.
func (s *Store) RecordRun(ctx context.Context, run *models.RunSummary) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, topic, started_at, duration_seconds, total, succeeded, report_path)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    topic = excluded.topic,
    started_at = excluded.started_at,
    duration_seconds = excluded.duration_seconds,
    total = excluded.total,
    succeeded = excluded.succeeded,
    report_path = excluded.report_path`,
			run.ID, run.Topic, formatTime(run.StartedAt), run.Duration, run.Total, run.Succeeded, run.ReportPath)
		if err != nil {
			return fmt.Errorf("record run %s: %w", run.ID, err)
		}
		return nil
	})
}

// RecordScrapes replaces the scrape rows of runID with results, keeping
// their order.
func (s *Store) RecordScrapes(ctx context.Context, runID string, results []models.ScrapeResult) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin scrapes tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM scrapes WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("clear scrapes: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO scrapes (run_id, position, url, success, title, error_code, error,
    content_length, elapsed_seconds, fetch_method, scraped_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare scrape insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range results {
			if _, err := stmt.ExecContext(ctx, runID, i, r.URL, boolInt(r.Success), r.Title, r.ErrorCode, r.Error,
				r.ContentLength, r.ElapsedSeconds, r.FetchMethod, formatTime(r.Timestamp)); err != nil {
				return fmt.Errorf("record scrape %s: %w", r.URL, err)
			}
		}
		return tx.Commit()
	})
}

// RecordReport stores the synthesis outcome of runID.
func (s *Store) RecordReport(ctx context.Context, runID string, result models.AnalysisResult, path string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO reports (run_id, success, tokens_used, error_code, error, path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    success = excluded.success,
    tokens_used = excluded.tokens_used,
    error_code = excluded.error_code,
    error = excluded.error,
    path = excluded.path,
    created_at = excluded.created_at`,
			runID, boolInt(result.Success), result.TokensUsed, result.ErrorCode, result.Error, path, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("record report %s: %w", runID, err)
		}
		return nil
	})
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.topic, r.started_at, r.duration_seconds, r.total, r.succeeded, r.report_path,
       rep.success, rep.tokens_used
FROM runs r
LEFT JOIN reports rep ON rep.run_id = r.id
ORDER BY r.started_at DESC, r.id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec       RunRecord
			started   string
			repOK     sql.NullInt64
			repTokens sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Topic, &started, &rec.Duration, &rec.Total, &rec.Succeeded,
			&rec.ReportPath, &repOK, &repTokens); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt = parseTime(started)
		rec.HasReport = repOK.Valid
		rec.ReportOK = repOK.Int64 == 1
		rec.TokensUsed = int(repTokens.Int64)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RunScrapes returns the scrape results recorded for runID, in input
// order. Markdown is not stored and comes back empty.
func (s *Store) RunScrapes(ctx context.Context, runID string) ([]models.ScrapeResult, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT url, success, title, error_code, error, content_length, elapsed_seconds, fetch_method, scraped_at
FROM scrapes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scrapes: %w", err)
	}
	defer rows.Close()

	var out []models.ScrapeResult
	for rows.Next() {
		var (
			r       models.ScrapeResult
			success int
			at      string
		)
		if err := rows.Scan(&r.URL, &success, &r.Title, &r.ErrorCode, &r.Error, &r.ContentLength,
			&r.ElapsedSeconds, &r.FetchMethod, &at); err != nil {
			return nil, fmt.Errorf("scan scrape: %w", err)
		}
		r.Success = success == 1
		r.Timestamp = parseTime(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
