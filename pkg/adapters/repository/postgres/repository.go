package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/ports"
)

var _ ports.LinkRepository = (*PostgresRepository)(nil)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository migrates the schema and opens a connection pool.
func NewPostgresRepository(ctx context.Context, dbURL string) (*PostgresRepository, error) {
	if err := Migrate(dbURL); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, link *domain.Link, now time.Time) error {
	query := `INSERT INTO links (id, redirect_to, max_uses, invocations, created_at, valid_for)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (id) DO UPDATE SET
				redirect_to = EXCLUDED.redirect_to,
				max_uses = EXCLUDED.max_uses,
				invocations = EXCLUDED.invocations,
				created_at = EXCLUDED.created_at,
				valid_for = EXCLUDED.valid_for
			  WHERE (links.valid_for != 0 AND $7::bigint - links.created_at > links.valid_for)
				 OR (links.max_uses != 0 AND links.invocations >= links.max_uses)
			  RETURNING id`

	var id string
	err := r.pool.QueryRow(ctx, query,
		link.ID, link.RedirectTo, link.MaxUses, link.Invocations,
		link.CreatedAt.UnixMilli(), link.ValidFor.Milliseconds(),
		now.UnixMilli(),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrLinkConflict
	}
	return err
}

func (r *PostgresRepository) Hit(ctx context.Context, id string, now time.Time) (*domain.Link, error) {
	query := `UPDATE links SET invocations = invocations + 1
			  WHERE id = $1
				AND (max_uses = 0 OR invocations < max_uses)
				AND (valid_for = 0 OR $2::bigint - created_at <= valid_for)
			  RETURNING id, redirect_to, max_uses, invocations, created_at, valid_for`

	link, err := scanLink(r.pool.QueryRow(ctx, query, id, now.UnixMilli()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return link, err
}

func (r *PostgresRepository) Find(ctx context.Context, id string) (*domain.Link, error) {
	query := `SELECT id, redirect_to, max_uses, invocations, created_at, valid_for
			  FROM links WHERE id = $1`

	link, err := scanLink(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return link, err
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM links WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) DeleteInvalid(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM links
			  WHERE (max_uses != 0 AND invocations >= max_uses)
				 OR (valid_for != 0 AND created_at + valid_for < $1)`

	tag, err := r.pool.Exec(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM links`).Scan(&n)
	return n, err
}

func (r *PostgresRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, redirect_to, max_uses, invocations, created_at, valid_for
			  FROM links ORDER BY created_at ASC, id ASC`)
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

func scanLink(row pgx.Row) (*domain.Link, error) {
	var (
		link               domain.Link
		createdAt, validMs int64
	)
	if err := row.Scan(&link.ID, &link.RedirectTo, &link.MaxUses, &link.Invocations, &createdAt, &validMs); err != nil {
		return nil, err
	}
	link.CreatedAt = time.UnixMilli(createdAt)
	link.ValidFor = time.Duration(validMs) * time.Millisecond
	return &link, nil
}
