// Package snapshot periodically mirrors pending-dialog metadata to SQLite so
// a restarted leader can show what was outstanding when the previous process
// died. Snapshots carry request metadata only; resolutions cannot be
// reconstructed, so the restarted process re-displays rather than re-answers.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/persistence"
)

// cronParser accepts standard 5-field expressions plus @every descriptors.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Pending is the slice of the registry the scheduler reads.
type Pending interface {
	ListPending(filter []string) []dialog.Request
}

type Config struct {
	Logger   *slog.Logger
	Store    *persistence.Store
	Registry Pending

	// CronExpr schedules snapshot writes. Defaults to every minute.
	CronExpr string

	// Interval is the due-check cadence. Defaults to 10s.
	Interval time.Duration
}

type Scheduler struct {
	logger   *slog.Logger
	store    *persistence.Store
	registry Pending
	schedule cronlib.Schedule
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = "* * * * *"
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot cron %q: %w", expr, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		logger:   logger,
		store:    cfg.Store,
		registry: cfg.Registry,
		schedule: schedule,
		interval: interval,
	}, nil
}

// Start begins the due-check loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("snapshot scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("snapshot scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	nextRun := s.schedule.Next(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if now.Before(nextRun) {
				continue
			}
			if err := s.SnapshotNow(ctx); err != nil {
				s.logger.Error("pending snapshot failed", "error", err)
			}
			nextRun = s.schedule.Next(now)
		}
	}
}

// SnapshotNow writes the current pending set immediately, outside the
// schedule. The shutdown path uses it for one final write.
func (s *Scheduler) SnapshotNow(ctx context.Context) error {
	pending := s.registry.ListPending(nil)
	if err := s.store.ReplacePendingSnapshot(ctx, pending); err != nil {
		return err
	}
	s.logger.Debug("pending snapshot written", "count", len(pending))
	return nil
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
