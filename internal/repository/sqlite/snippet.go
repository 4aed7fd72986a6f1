package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codegen-playground/internal/apperror"
	"github.com/sakif/codegen-playground/internal/model"
	"github.com/sakif/codegen-playground/internal/repository"
)

// Compile-time check that *DB satisfies the interface.
var _ repository.SnippetRepository = (*DB)(nil)

// Add inserts a new snippet with a fresh xid and returns the id.
//
// xid ids are 20 URL-safe chars and sort by creation time, e.g.
// "cv37rs3pp9olc6atsptg". The caller's struct receives the id and timestamp.
func (db *DB) Add(ctx context.Context, snippet *model.Snippet) (string, error) {
	snippet.ID = xid.New().String()
	snippet.CreatedAt = time.Now().UTC()

	// The ? placeholders are filled in order; the driver escapes the values.
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets (id, description, code_snippet, model, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.Description,
		snippet.CodeSnippet,
		snippet.Model,
		snippet.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: adding snippet: %w", err)
	}

	return snippet.ID, nil
}

// Get returns the earliest snippet stored under id.
func (db *DB) Get(ctx context.Context, id string) (*model.Snippet, error) {
	var s model.Snippet

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, description, code_snippet, model, created_at
		 FROM snippets
		 WHERE id = ?
		 ORDER BY seq
		 LIMIT 1`,
		id,
	).Scan(&s.ID, &s.Description, &s.CodeSnippet, &s.Model, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	return &s, nil
}

// List returns every snippet in insertion order.
//
// Always defer rows.Close(): an unclosed *sql.Rows keeps its connection
// checked out of the pool. rows.Err() reports failures that happened
// during iteration.
func (db *DB) List(ctx context.Context) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, description, code_snippet, model, created_at
		 FROM snippets
		 ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := []model.Snippet{}
	for rows.Next() {
		var s model.Snippet
		if err := rows.Scan(&s.ID, &s.Description, &s.CodeSnippet, &s.Model, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	return snippets, nil
}

// Remove deletes every row with the given id and reports how many went.
// Zero rows affected is not an error.
func (db *DB) Remove(ctx context.Context, id string) (int, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing snippet %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}
