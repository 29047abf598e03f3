// Package scheduler runs periodic housekeeping for the session history.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/livefeed/internal/observability"
)

// SessionDeleter removes finished sessions that ended before a cutoff.
type SessionDeleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron checks a 5-field cron expression or descriptor.
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Pruner deletes history older than the retention period on a cron schedule.
type Pruner struct {
	repo      SessionDeleter
	retention time.Duration
	schedule  cron.Schedule
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPruner creates a pruner running on the cron expression expr.
func NewPruner(repo SessionDeleter, retention time.Duration, expr string, logger *slog.Logger) (*Pruner, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// PruneOnce deletes sessions that ended more than the retention period ago.
// A zero retention keeps everything.
func (p *Pruner) PruneOnce(ctx context.Context) (deleted int64, err error) {
	if p.retention <= 0 {
		return 0, nil
	}
	done := observability.TimedOperationWithError(ctx, p.logger, "prune_history", &err)
	defer done()

	cutoff := p.now().Add(-p.retention)
	deleted, err = p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("pruned session history",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// Start runs the prune loop in the background until Stop or ctx is done.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return fmt.Errorf("pruner already started")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("history pruner started",
		slog.Duration("retention", p.retention),
		slog.Time("next_run", p.schedule.Next(p.now())),
	)
	return nil
}

// Stop stops the prune loop and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.cancel = nil
	p.mu.Unlock()
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		wait := p.schedule.Next(p.now()).Sub(p.now())
		timer := time.NewTimer(max(wait, 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := p.PruneOnce(ctx); err != nil {
				observability.WithError(p.logger, err).Warn("history prune failed")
			}
		}
	}
}
