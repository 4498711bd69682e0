package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/soft-duck/shorty/pkg/core/domain"
)

// Cleaner removes links that are no longer valid at now.
type Cleaner interface {
	Clean(ctx context.Context, now time.Time) (int64, error)
}

// Cleanup runs Cleaner.Clean on a cron schedule.
type Cleanup struct {
	cron    *cron.Cron
	first   cron.Job
	wg      sync.WaitGroup
	cleaner Cleaner
	clock   domain.Clock
	logger  *slog.Logger
	timeout time.Duration
}

// NewCleanup parses schedule (standard cron or a descriptor such as "@every 1h").
func NewCleanup(schedule string, cleaner Cleaner, clock domain.Clock, logger *slog.Logger) (*Cleanup, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Cleanup{
		cron:    c,
		cleaner: cleaner,
		clock:   clock,
		logger:  logger,
		timeout: 5 * time.Minute,
	}
	s.first = cron.NewChain(cron.Recover(cl)).Then(cron.FuncJob(s.RunOnce))
	if _, err := c.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs one pass in the background and then follows the schedule.
func (s *Cleanup) Start() {
	s.cron.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.first.Run()
	}()
}

// Stop halts the schedule and waits for a running pass, or for ctx.
func (s *Cleanup) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single cleanup pass. Errors are logged; the next tick retries.
func (s *Cleanup) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	removed, err := s.cleaner.Clean(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("cleanup failed", "error", err)
		return
	}
	s.logger.Info("cleanup finished", "removed", removed)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
