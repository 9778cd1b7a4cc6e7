package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS viewed_items (
	item_id TEXT PRIMARY KEY,
	seen_at TIMESTAMP NOT NULL
)`

// Store implements domain.ViewStore using a local SQLite database. It is the
// device-local record of which ephemeral items the viewer has opened;
// entries are only ever added, except through Clear.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at the given path, verifies
// the connection, and ensures the schema exists. The caller should call
// Close when the store is no longer needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkViewed records that the viewer opened the item. Replaying the same id
// is a no-op, so the recorded seen_at is always the first view.
func (s *Store) MarkViewed(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO viewed_items (item_id, seen_at)
		VALUES (?, ?)
		ON CONFLICT (item_id) DO NOTHING`,
		itemID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark viewed: %w", err)
	}
	return nil
}

// IsViewed reports whether the item has been recorded as viewed.
func (s *Store) IsViewed(ctx context.Context, itemID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM viewed_items WHERE item_id = ?`, itemID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query viewed: %w", err)
	}
	return true, nil
}

// ViewedIDs returns every recorded item id, oldest first.
func (s *Store) ViewedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM viewed_items ORDER BY seen_at, item_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query viewed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan viewed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate viewed ids: %w", err)
	}
	return ids, nil
}

// Clear removes every recorded id. Used only for an explicit local cache
// clear.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM viewed_items`); err != nil {
		return fmt.Errorf("clear viewed items: %w", err)
	}
	return nil
}
