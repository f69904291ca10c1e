package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/slipmail/slipmail/internal/model"
)

// Lookup returns the directory entry for email.
func (s *Store) Lookup(ctx context.Context, email string) (model.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	email = model.CanonicalEmail(email)
	r := model.Recipient{Email: email}
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name, created_at, updated_at FROM recipients WHERE email = ?`, email,
	).Scan(&r.DisplayName, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Recipient{}, fmt.Errorf("%w: %s", model.ErrRecipientNotFound, email)
	}
	if err != nil {
		return model.Recipient{}, err
	}
	return r, nil
}

// ListRecipients returns every recipient ordered by display name, then email.
func (s *Store) ListRecipients(ctx context.Context) ([]model.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT email, display_name, created_at, updated_at
		FROM recipients
		ORDER BY display_name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.Recipient{}
	for rows.Next() {
		var r model.Recipient
		if err := rows.Scan(&r.Email, &r.DisplayName, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpsertRecipient inserts email or updates its display name. A blank name
// keeps the stored one.
func (s *Store) UpsertRecipient(ctx context.Context, email, displayName string) (model.Recipient, error) {
	email, err := model.ValidateEmail(email)
	if err != nil {
		return model.Recipient{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Recipient{}, err
	}
	defer tx.Rollback()

	r, err := s.upsertTx(ctx, tx, email, displayName)
	if err != nil {
		return model.Recipient{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Recipient{}, err
	}
	return r, nil
}

// ImportRecipients upserts recipients in order inside one transaction.
// Entries with a blank email are skipped; an invalid email aborts the import.
func (s *Store) ImportRecipients(ctx context.Context, recipients []model.Recipient) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for i, in := range recipients {
		if strings.TrimSpace(in.Email) == "" {
			continue
		}
		email, err := model.ValidateEmail(in.Email)
		if err != nil {
			return 0, fmt.Errorf("entry %d: %w", i+1, err)
		}
		if _, err := s.upsertTx(ctx, tx, email, in.DisplayName); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i+1, err)
		}
		imported++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}

func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, email, displayName string) (model.Recipient, error) {
	displayName = strings.TrimSpace(displayName)
	now := s.now()

	r := model.Recipient{Email: email}
	err := tx.QueryRowContext(ctx,
		`SELECT display_name, created_at FROM recipients WHERE email = ?`, email,
	).Scan(&r.DisplayName, &r.CreatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		r.DisplayName = displayName
		r.CreatedAt = now
		r.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO recipients (email, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			r.Email, r.DisplayName, r.CreatedAt, r.UpdatedAt)
	case err != nil:
		return model.Recipient{}, err
	default:
		if displayName != "" {
			r.DisplayName = displayName
		}
		r.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`UPDATE recipients SET display_name = ?, updated_at = ? WHERE email = ?`,
			r.DisplayName, r.UpdatedAt, r.Email)
	}
	if err != nil {
		return model.Recipient{}, fmt.Errorf("upsert %s: %w", email, err)
	}
	return r, nil
}

// DeleteRecipient removes email from the directory.
func (s *Store) DeleteRecipient(ctx context.Context, email string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	email = model.CanonicalEmail(email)
	res, err := s.db.ExecContext(ctx, `DELETE FROM recipients WHERE email = ?`, email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrRecipientNotFound, email)
	}
	return nil
}

// RecipientCount returns the number of directory entries.
func (s *Store) RecipientCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipients`).Scan(&n)
	return n, err
}
