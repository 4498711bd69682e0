package ports

import (
	"context"
	"time"

	"github.com/soft-duck/shorty/pkg/core/domain"
)

// LinkRepository defines storage operations for links.
// Every method is a single atomic statement; adapters return raw engine errors
// and the store wraps them.
type LinkRepository interface {
	// Save inserts link, replacing an existing row only if it is invalid at now.
	// Returns domain.ErrLinkConflict when a valid link holds the id.
	Save(ctx context.Context, link *domain.Link, now time.Time) error
	// Hit increments the use counter of a link valid at now and returns the
	// updated row, or nil if there is no valid link with that id.
	Hit(ctx context.Context, id string, now time.Time) (*domain.Link, error)
	// Find returns the stored row whether or not it is valid, without counting a use.
	Find(ctx context.Context, id string) (*domain.Link, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteInvalid(ctx context.Context, now time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	Dump(ctx context.Context) ([]domain.Link, error) // For migration
	Close() error
}

// IDGenerator produces candidate short ids. Uniqueness is not guaranteed.
type IDGenerator interface {
	Generate() string
}

// ImportResult summarizes a bulk restore.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// LinkService defines the link store operations.
type LinkService interface {
	CreateDefault(ctx context.Context, redirectTo string) (*domain.Link, error)
	CreateWithConfig(ctx context.Context, cfg domain.LinkConfig) (*domain.Link, error)
	Get(ctx context.Context, id string) (*domain.Link, error)
	Resolve(ctx context.Context, id string) *domain.Link
	Peek(ctx context.Context, id string) (*domain.Link, error)
	Invalidate(ctx context.Context, id string) (bool, error)
	Clean(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context) ([]domain.Link, error)
	Import(ctx context.Context, links []domain.Link) (ImportResult, error)
}
