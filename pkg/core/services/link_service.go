package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/ports"
)

// MaxIDAttempts bounds how many generated ids are tried before giving up.
const MaxIDAttempts = 3

// Options are the link limits and defaults taken from configuration.
type Options struct {
	DefaultMaxUses    int64
	DefaultValidFor   time.Duration
	MaxLinkLength     int
	MaxCustomIDLength int
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DefaultMaxUses:    0,
		DefaultValidFor:   7 * 24 * time.Hour,
		MaxLinkLength:     2500,
		MaxCustomIDLength: 500,
	}
}

var _ ports.LinkService = (*LinkStore)(nil)

// LinkStore creates, resolves and reclaims links on top of a repository.
type LinkStore struct {
	repo   ports.LinkRepository
	gen    ports.IDGenerator
	opts   Options
	clock  domain.Clock
	logger *slog.Logger
}

func NewLinkStore(repo ports.LinkRepository, gen ports.IDGenerator, opts Options, clock domain.Clock, logger *slog.Logger) *LinkStore {
	if clock == nil {
		clock = domain.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkStore{repo: repo, gen: gen, opts: opts, clock: clock, logger: logger}
}

// CreateDefault shortens redirectTo with the configured default limits.
func (s *LinkStore) CreateDefault(ctx context.Context, redirectTo string) (*domain.Link, error) {
	return s.CreateWithConfig(ctx, domain.LinkConfig{Link: redirectTo})
}

// CreateWithConfig validates cfg and stores a new link. A custom id held by a
// valid link yields domain.ErrLinkConflict; a generated id is retried up to
// MaxIDAttempts times before domain.ErrRandomIDExhausted.
func (s *LinkStore) CreateWithConfig(ctx context.Context, cfg domain.LinkConfig) (*domain.Link, error) {
	if err := s.validate(cfg); err != nil {
		return nil, err
	}

	link := &domain.Link{
		RedirectTo: cfg.Link,
		MaxUses:    s.opts.DefaultMaxUses,
		ValidFor:   s.opts.DefaultValidFor,
	}
	if cfg.MaxUses != nil {
		link.MaxUses = max(*cfg.MaxUses, 0)
	}
	if cfg.ValidFor != nil {
		link.ValidFor = domain.ValidForMillis(*cfg.ValidFor)
	}

	if cfg.CustomID != nil && *cfg.CustomID != "" {
		link.ID = *cfg.CustomID
		if err := s.save(ctx, link); err != nil {
			return nil, err
		}
		return link, nil
	}

	for attempt := 1; attempt <= MaxIDAttempts; attempt++ {
		link.ID = s.gen.Generate()
		err := s.save(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, domain.ErrLinkConflict) {
			return nil, err
		}
		s.logger.Debug("generated id taken", "id", link.ID, "attempt", attempt)
	}
	return nil, domain.ErrRandomIDExhausted
}

func (s *LinkStore) validate(cfg domain.LinkConfig) error {
	if cfg.Link == "" {
		return domain.ErrLinkEmpty
	}
	if len(cfg.Link) > s.opts.MaxLinkLength {
		return domain.ErrLinkExceedsMaxLength
	}
	if cfg.CustomID != nil && len(*cfg.CustomID) > s.opts.MaxCustomIDLength {
		return domain.ErrCustomIDExceedsMaxLength
	}
	return nil
}

// save stamps link with the current time and writes it through the guarded upsert.
func (s *LinkStore) save(ctx context.Context, link *domain.Link) error {
	now := s.clock.Now().Truncate(time.Millisecond)
	link.CreatedAt = now
	link.Invocations = 0

	err := s.repo.Save(ctx, link, now)
	if err == nil || errors.Is(err, domain.ErrLinkConflict) {
		return err
	}
	return domain.NewStorageError(err)
}

// Get counts one use of the link and returns it, or nil if the id does not
// resolve to a valid link.
func (s *LinkStore) Get(ctx context.Context, id string) (*domain.Link, error) {
	link, err := s.repo.Hit(ctx, id, s.clock.Now())
	if err != nil {
		return nil, domain.NewStorageError(err)
	}
	if link == nil {
		s.logger.Debug("link not resolved", "id", id)
	}
	return link, nil
}

// Resolve is Get with storage failures logged and reported as a miss.
func (s *LinkStore) Resolve(ctx context.Context, id string) *domain.Link {
	link, err := s.Get(ctx, id)
	if err != nil {
		s.logger.Error("resolve link", "id", id, "error", err)
		return nil
	}
	return link
}

// Invalidate removes a link immediately.
func (s *LinkStore) Invalidate(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, domain.NewStorageError(err)
	}
	return ok, nil
}

// Clean deletes every link invalid at now and returns how many were removed.
func (s *LinkStore) Clean(ctx context.Context, now time.Time) (int64, error) {
	before, err := s.repo.Count(ctx)
	if err != nil {
		return 0, domain.NewStorageError(err)
	}

	removed, err := s.repo.DeleteInvalid(ctx, now)
	if err != nil {
		return 0, domain.NewStorageError(err)
	}

	s.logger.Debug("cleaned links", "before", before, "after", before-removed, "removed", removed)
	return removed, nil
}

func (s *LinkStore) List(ctx context.Context) ([]domain.Link, error) {
	links, err := s.repo.Dump(ctx)
	if err != nil {
		return nil, domain.NewStorageError(err)
	}
	return links, nil
}

// Peek returns a stored link without counting a use, whether or not it is still valid.
func (s *LinkStore) Peek(ctx context.Context, id string) (*domain.Link, error) {
	link, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, domain.NewStorageError(err)
	}
	return link, nil
}

// Import restores dumped links as they are. Links that are already invalid,
// break the configured limits or whose id is held by a valid link are skipped.
func (s *LinkStore) Import(ctx context.Context, links []domain.Link) (ports.ImportResult, error) {
	var res ports.ImportResult
	now := s.clock.Now()
	for i := range links {
		l := links[i]
		if err := s.checkRestored(&l); err != nil {
			s.logger.Info("skipping link", "id", l.ID, "reason", err)
			res.Skipped++
			continue
		}
		if l.IsInvalid(now) {
			res.Skipped++
			continue
		}
		err := s.repo.Save(ctx, &l, now)
		switch {
		case errors.Is(err, domain.ErrLinkConflict):
			s.logger.Info("skipping existing id", "id", l.ID)
			res.Skipped++
		case err != nil:
			return res, domain.NewStorageError(err)
		default:
			res.Imported++
		}
	}
	return res, nil
}

// checkRestored applies the creation limits to a dumped link.
func (s *LinkStore) checkRestored(l *domain.Link) error {
	id := l.ID
	if err := s.validate(domain.LinkConfig{Link: l.RedirectTo, CustomID: &id}); err != nil {
		return err
	}
	if l.ID == "" || l.MaxUses < 0 || l.Invocations < 0 || l.ValidFor < 0 || l.ValidFor > domain.MaxValidFor {
		return errors.New("malformed link")
	}
	return nil
}
