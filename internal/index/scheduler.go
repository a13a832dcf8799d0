package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/singleflight"
)

// DefaultInterval is the periodic re-index interval when no cron
// expression is configured.
const DefaultInterval = 30 * time.Minute

// Syncer runs one synchronization pass.
type Syncer interface {
	Sync(ctx context.Context, full bool) (*Stats, error)
}

// PassCallback observes every finished pass. stats is nil on error.
type PassCallback func(stats *Stats, err error)

// Scheduler makes sure at most one pass runs at a time. Concurrent Reindex
// calls of the same kind share a single pass; Trigger queues at most one
// pending pass for Run, which always starts a fresh pass for it.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	cron     string
	logger   *slog.Logger
	onPass   PassCallback

	mu      sync.Mutex
	group   singleflight.Group
	trigger chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the periodic interval. Zero disables periodic passes.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// WithCron schedules periodic passes by a cron expression instead of the
// interval.
func WithCron(expr string) SchedulerOption {
	return func(s *Scheduler) { s.cron = expr }
}

// WithPassCallback registers cb for every finished pass.
func WithPassCallback(cb PassCallback) SchedulerOption {
	return func(s *Scheduler) { s.onPass = cb }
}

// NewScheduler creates a Scheduler. An invalid cron expression is an error.
func NewScheduler(syncer Syncer, logger *slog.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		syncer:   syncer,
		interval: DefaultInterval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron != "" && !gronx.New().IsValid(s.cron) {
		return nil, fmt.Errorf("index: invalid cron expression %q", s.cron)
	}
	return s, nil
}

// Reindex runs a pass and waits for it. A call arriving while a pass of the
// same kind is in flight joins that pass instead of starting another. The
// shared pass is not cancelled with ctx; a caller whose ctx ends stops
// waiting and gets ctx.Err().
func (s *Scheduler) Reindex(ctx context.Context, full bool) (*Stats, error) {
	key := "delta"
	if full {
		key = "full"
	}
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.pass(detached, full)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Stats), nil
	}
}

// pass runs one Sync once no other pass holds the lock.
func (s *Scheduler) pass(ctx context.Context, full bool) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, err := s.syncer.Sync(ctx, full)
	if err != nil {
		s.logger.Error("scheduler: pass failed", slog.Bool("full", full), slog.String("error", err.Error()))
	}
	if s.onPass != nil {
		s.onPass(stats, err)
	}
	return stats, err
}

// Trigger asks Run for a pass without waiting. Triggers arriving while one
// is already pending coalesce into it. It reports whether a new pass was
// queued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run executes triggered and periodic passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	var timer *time.Timer
	if d := s.nextDelay(time.Now()); d > 0 {
		timer = time.NewTimer(d)
		defer timer.Stop()
		tick = timer.C
	}

	s.logger.Info("scheduler: started", slog.Duration("interval", s.interval), slog.String("cron", s.cron))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return nil

		case <-s.trigger:
			// Never join a pass already in flight: it may have scanned
			// before the change that queued this trigger.
			_, _ = s.pass(ctx, false)

		case <-tick:
			_, _ = s.pass(ctx, false)
			timer.Reset(s.nextDelay(time.Now()))
		}
	}
}

// nextDelay returns the wait until the next periodic pass, or 0 when
// periodic passes are disabled.
func (s *Scheduler) nextDelay(now time.Time) time.Duration {
	if s.cron != "" {
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			s.logger.Warn("scheduler: cron next tick", slog.String("error", err.Error()))
			return time.Minute
		}
		return max(next.Sub(now), time.Second)
	}
	if s.interval <= 0 {
		return 0
	}
	return s.interval
}
