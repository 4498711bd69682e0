package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/ports"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver
)

var _ ports.LinkRepository = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

// DriverName picks the database/sql driver for dbURL.
func DriverName(dbURL string) string {
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		return "libsql"
	}
	return "sqlite"
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := DriverName(dbURL)

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		// One connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA busy_timeout=5000",
			"PRAGMA journal_mode=WAL",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id TEXT PRIMARY KEY NOT NULL,
		redirect_to TEXT NOT NULL,
		max_uses INTEGER NOT NULL DEFAULT 0,
		invocations INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		valid_for INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := db.Exec(query)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Save inserts the link or overwrites a holder of the same id that is invalid at now.
func (r *SQLiteRepository) Save(ctx context.Context, link *domain.Link, now time.Time) error {
	query := `INSERT INTO links (id, redirect_to, max_uses, invocations, created_at, valid_for)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
				redirect_to = excluded.redirect_to,
				max_uses = excluded.max_uses,
				invocations = excluded.invocations,
				created_at = excluded.created_at,
				valid_for = excluded.valid_for
			  WHERE (links.valid_for != 0 AND ? - links.created_at > links.valid_for)
				 OR (links.max_uses != 0 AND links.invocations >= links.max_uses)
			  RETURNING id`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		link.ID, link.RedirectTo, link.MaxUses, link.Invocations,
		link.CreatedAt.UnixMilli(), link.ValidFor.Milliseconds(),
		now.UnixMilli(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrLinkConflict
	}
	return err
}

// Hit counts a use of a valid link and returns the updated row.
func (r *SQLiteRepository) Hit(ctx context.Context, id string, now time.Time) (*domain.Link, error) {
	query := `UPDATE links SET invocations = invocations + 1
			  WHERE id = ?
				AND (max_uses = 0 OR invocations < max_uses)
				AND (valid_for = 0 OR ? - created_at <= valid_for)
			  RETURNING id, redirect_to, max_uses, invocations, created_at, valid_for`

	link, err := scanLink(r.db.QueryRowContext(ctx, query, id, now.UnixMilli()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *SQLiteRepository) Find(ctx context.Context, id string) (*domain.Link, error) {
	query := `SELECT id, redirect_to, max_uses, invocations, created_at, valid_for
			  FROM links WHERE id = ?`

	link, err := scanLink(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteInvalid removes every link exhausted by use or expired by age at now.
func (r *SQLiteRepository) DeleteInvalid(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM links
			  WHERE (max_uses != 0 AND invocations >= max_uses)
				 OR (valid_for != 0 AND created_at + valid_for < ?)`

	res, err := r.db.ExecContext(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&n)
	return n, err
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	query := `SELECT id, redirect_to, max_uses, invocations, created_at, valid_for
			  FROM links ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(s scanner) (*domain.Link, error) {
	var (
		link               domain.Link
		createdAt, validMs int64
	)
	if err := s.Scan(&link.ID, &link.RedirectTo, &link.MaxUses, &link.Invocations, &createdAt, &validMs); err != nil {
		return nil, err
	}
	link.CreatedAt = time.UnixMilli(createdAt)
	link.ValidFor = time.Duration(validMs) * time.Millisecond
	return &link, nil
}
