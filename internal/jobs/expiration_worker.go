package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/internal/platform/lock"
)

const (
	sweepLockKey = "sweep:expiration"

	DefaultSweepMaxAge    = 120 * time.Hour
	DefaultSweepBatchSize = 100
)

// SweepResult summarises one pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"` // lost a race with another writer
	Failed  int `json:"failed"`
}

type SweepConfig struct {
	Schedule  string        // cron spec with seconds
	MaxAge    time.Duration // pending longer than this is expired
	BatchSize int
	LockTTL   time.Duration
}

// ExpirationWorker expires policies that stayed in pending_payment too
// long or whose covered event has already started.
type ExpirationWorker struct {
	BaseWorker
	policies core.PolicyRepo
	svc      core.PolicyService
	locker   lock.Locker
	cfg      SweepConfig
	clock    func() time.Time
}

func NewExpirationWorker(
	policies core.PolicyRepo,
	policySvc core.PolicyService,
	locker lock.Locker,
	cfg SweepConfig,
	log *slog.Logger,
) (*ExpirationWorker, error) {
	if err := ValidateSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSweepMaxAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &ExpirationWorker{
		BaseWorker: NewBaseWorker("expiration", log),
		policies:   policies,
		svc:        policySvc,
		locker:     locker,
		cfg:        cfg,
		clock:      time.Now,
	}, nil
}

// Start runs a sweep immediately and then on the configured schedule.
func (w *ExpirationWorker) Start(ctx context.Context) {
	w.Schedule(ctx, w.cfg.Schedule, func(ctx context.Context) error {
		_, err := w.Sweep(ctx)
		return err
	})
}

// Sweep performs one pass. Another sweep holding the lock makes this a
// no-op rather than an error.
func (w *ExpirationWorker) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	// 1) Single holder
	release, err := w.locker.Acquire(ctx, sweepLockKey, w.cfg.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		w.log.Info("sweep already running elsewhere, skipping")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			w.log.Warn("failed to release sweep lock", "err", err)
		}
	}()

	// 2) Both cutoffs are fixed for the whole pass
	now := w.clock().UTC()
	submittedBefore := now.Add(-w.cfg.MaxAge)

	// 3) Page through candidates. Expired rows drop out of the next query;
	// rows we could not expire are remembered so the loop terminates.
	seen := make(map[string]struct{})
	for {
		batch, err := w.policies.FindExpirable(ctx, submittedBefore, now, w.cfg.BatchSize)
		if err != nil {
			return res, err
		}

		progressed := false
		for _, p := range batch {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			progressed = true
			res.Scanned++
			w.expire(ctx, p, now, &res)
		}

		if len(batch) < w.cfg.BatchSize || !progressed || ctx.Err() != nil {
			break
		}
	}

	if res.Scanned > 0 {
		w.log.Info("sweep finished",
			"scanned", res.Scanned,
			"expired", res.Expired,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, ctx.Err()
}

func (w *ExpirationWorker) expire(ctx context.Context, p core.Policy, at time.Time, res *SweepResult) {
	_, err := w.svc.ExpireUnpaid(ctx, p.ID, at)
	switch {
	case err == nil:
		res.Expired++
		w.log.Info("policy expired",
			"policy_id", p.ID,
			"submitted_at", p.SubmittedAt,
			"coverage_start_date", p.CoverageStartDate,
		)
	case errors.Is(err, core.ErrStatusConflict), errors.Is(err, core.ErrNotFound):
		res.Skipped++
		w.log.Info("policy changed during sweep, skipped", "policy_id", p.ID, "err", err)
	default:
		res.Failed++
		w.log.Error("failed to expire policy", "policy_id", p.ID, "err", err)
	}
}
