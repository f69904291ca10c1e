package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slipmail/slipmail/internal/model"
)

// RecordDispatch stores a dispatch summary and its per-binding results.
func (s *Store) RecordDispatch(ctx context.Context, summary model.DispatchSummary) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c := summary.Counts()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dispatch_runs (id, generation, subject, started_at, finished_at, sent, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, int64(summary.Generation), summary.Subject,
		summary.StartedAt.UTC(), summary.FinishedAt.UTC(), c.Sent, c.Skipped, c.Failed,
	); err != nil {
		return fmt.Errorf("insert dispatch run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispatch_results (run_id, position, artifact_id, recipient, outcome, reason)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range summary.Results {
		if _, err := stmt.ExecContext(ctx, summary.RunID, i, r.ArtifactID, r.Recipient, string(r.Outcome), r.Reason); err != nil {
			return fmt.Errorf("insert dispatch result %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListDispatches returns the most recent runs first, without results.
func (s *Store) ListDispatches(ctx context.Context, limit int) ([]model.DispatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generation, subject, started_at, finished_at, sent, skipped, failed
		FROM dispatch_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.DispatchRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetDispatch returns one run with its results in input order.
func (s *Store) GetDispatch(ctx context.Context, id string) (model.DispatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	run, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT id, generation, subject, started_at, finished_at, sent, skipped, failed
		FROM dispatch_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.DispatchRun{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.DispatchRun{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_id, recipient, outcome, reason
		FROM dispatch_results WHERE run_id = ?
		ORDER BY position`, id)
	if err != nil {
		return model.DispatchRun{}, err
	}
	defer rows.Close()

	run.Results = []model.DispatchResult{}
	for rows.Next() {
		var r model.DispatchResult
		var outcome string
		if err := rows.Scan(&r.ArtifactID, &r.Recipient, &outcome, &r.Reason); err != nil {
			return model.DispatchRun{}, err
		}
		r.Outcome = model.Outcome(outcome)
		run.Results = append(run.Results, r)
	}
	return run, rows.Err()
}

// DeleteDispatchesBefore removes runs started before cutoff and returns
// how many were deleted.
func (s *Store) DeleteDispatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM dispatch_results
		WHERE run_id IN (SELECT id FROM dispatch_runs WHERE started_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM dispatch_runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.DispatchRun, error) {
	var run model.DispatchRun
	var generation int64
	err := row.Scan(&run.ID, &generation, &run.Subject, &run.StartedAt, &run.FinishedAt,
		&run.Counts.Sent, &run.Counts.Skipped, &run.Counts.Failed)
	run.Generation = uint64(generation)
	return run, err
}
