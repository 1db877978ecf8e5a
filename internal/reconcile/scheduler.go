package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type ownerLister interface {
	ListPendingOwners(ctx context.Context) ([]string, error)
}

// Scheduler periodically reconciles every owner with pending photos. Owners
// are processed one at a time on the calling goroutine.
type Scheduler struct {
	engine   *Engine
	owners   ownerLister
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(engine *Engine, owners ownerLister, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{engine: engine, owners: owners, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. A non-positive interval disables it.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("sync scheduler disabled")
		return
	}
	s.logger.Info("sync scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			// Failures are logged per owner.
			_, _ = s.RunOnce(ctx)
		}
	}
}

// maxConsecutiveUnavailable is how many owners in a row may report the remote
// as unavailable before a pass gives up until the next tick.
const maxConsecutiveUnavailable = 3

// RunOnce reconciles every owner that currently has pending photos and
// returns the number of owners visited. The error joins every owner that
// failed, so errors.Is reports ErrRemoteUnavailable when any owner hit it.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	owners, err := s.owners.ListPendingOwners(ctx)
	if err != nil {
		s.logger.Error("failed to list owners with pending photos", "error", err)
		return 0, fmt.Errorf("failed to list owners with pending photos: %w", err)
	}

	var (
		visited     int
		unavailable int
		errs        []error
	)
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		visited++
		report, err := s.engine.Reconcile(ctx, owner)
		switch {
		case errors.Is(err, ErrRemoteUnavailable):
			// A single owner's bad records can look like an outage, so keep
			// going until several owners in a row agree.
			unavailable++
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			s.logger.Warn("remote unavailable for owner", "owner_id", owner, "error", err)
			if unavailable >= maxConsecutiveUnavailable {
				s.logger.Warn("remote unavailable, deferring sync", "owners", unavailable)
				return visited, errors.Join(errs...)
			}
		case err != nil:
			unavailable = 0
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			s.logger.Error("scheduled reconcile failed", "owner_id", owner, "error", err)
		default:
			unavailable = 0
			s.logger.Debug("scheduled reconcile done", "owner_id", owner, "succeeded", report.Succeeded, "failed", report.Failed)
		}
	}
	return visited, errors.Join(errs...)
}
