package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lu-zhengda/loreterm/internal/store"
)

func (s *DB) PutEntry(ctx context.Context, e *store.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, kind, identity, page, path, size, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			identity = excluded.identity,
			page = excluded.page,
			path = excluded.path,
			size = excluded.size,
			fetched_at = excluded.fetched_at`,
		e.Key, e.Kind, e.Identity, e.Page, e.Path, e.Size, e.FetchedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", e.Key, err)
	}
	return nil
}

func (s *DB) GetEntry(ctx context.Context, key string) (*store.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, kind, identity, page, path, size, fetched_at FROM cache_entries WHERE key = ?`, key,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache entry %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return e, nil
}

func (s *DB) DeleteEntry(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func (s *DB) ListEntries(ctx context.Context, opts store.ListEntryOptions) ([]store.Entry, error) {
	query := `SELECT key, kind, identity, page, path, size, fetched_at FROM cache_entries`
	var args []any
	if opts.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, opts.Kind)
	}
	query += ` ORDER BY fetched_at ASC, key ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *DB) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*store.Entry, error) {
	var (
		e       store.Entry
		fetched int64
	)
	if err := sc.Scan(&e.Key, &e.Kind, &e.Identity, &e.Page, &e.Path, &e.Size, &fetched); err != nil {
		return nil, err
	}
	e.FetchedAt = time.Unix(0, fetched)
	return &e, nil
}
