package auctions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artfolio/auctions/pkg/clock"
)

// SweepResult reports the outcome of refreshing one due auction. Err is set
// when the refresh failed; the sweep of the remaining auctions continues
// regardless.
type SweepResult struct {
	AuctionID uuid.UUID
	Status    Status
	Settled   bool
	Err       error
}

// Sweeper reconciles auctions whose time-based transition is due. It is
// invoked opportunistically by list-reading code paths and on a schedule by
// the Runner.
type Sweeper struct {
	service   *Service
	repo      Repository
	batchSize int
	logger    *slog.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(service *Service, repo Repository, batchSize int, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		service:   service,
		repo:      repo,
		batchSize: batchSize,
		logger:    logger,
	}
}

// SweepExpired refreshes every pending/active auction whose end_time is at
// or before now. One failing row does not abort the rest; each failure is
// reported in its result entry.
func (s *Sweeper) SweepExpired(ctx context.Context, now time.Time) ([]SweepResult, error) {
	due, err := s.repo.ListDueAuctionIDs(ctx, now, s.batchSize)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, 0, len(due))
	for _, auctionID := range due {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		snapshot, err := s.service.RefreshStatus(ctx, auctionID)
		if err != nil {
			s.logger.Error("Failed to sweep auction", "auction_id", auctionID, "error", err)
			results = append(results, SweepResult{AuctionID: auctionID, Err: err})
			continue
		}

		results = append(results, SweepResult{
			AuctionID: auctionID,
			Status:    snapshot.Status,
			Settled:   snapshot.Status == StatusEnded,
		})
	}

	return results, nil
}

// Locker guards a sweep pass across instances. TryLock returns false without
// error when another holder has the lock.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// ErrLockNotHeld is returned by Unlock when the lock expired or belongs to
// another holder.
var ErrLockNotHeld = errors.New("sweep lock not held")

// Runner drives the sweeper on a schedule. Each pass is guarded by a
// cross-instance lock so concurrent deployments do not double-sweep.
type Runner struct {
	sweeper  *Sweeper
	locker   Locker
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRunner creates a scheduled sweep runner
func NewRunner(sweeper *Sweeper, locker Locker, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Runner {
	return &Runner{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// Run starts the sweep loop and blocks until the context is cancelled
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial pass
	r.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Runner) sweepOnce(ctx context.Context) {
	held, err := r.locker.TryLock(ctx)
	if err != nil {
		r.logger.Error("Failed to acquire sweep lock", "error", err)
		return
	}
	if !held {
		// Another instance is sweeping this cycle.
		return
	}
	defer func() {
		if unlockErr := r.locker.Unlock(ctx); unlockErr != nil && !errors.Is(unlockErr, ErrLockNotHeld) {
			r.logger.Error("Failed to release sweep lock", "error", unlockErr)
		}
	}()

	results, err := r.sweeper.SweepExpired(ctx, r.clock.Now())
	if err != nil {
		r.logger.Error("Sweep pass failed", "error", err)
		return
	}

	settled := 0
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		} else if res.Settled {
			settled++
		}
	}
	if len(results) > 0 {
		r.logger.Info("Sweep pass complete", "due", len(results), "settled", settled, "failed", failed)
	}
}
