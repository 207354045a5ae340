package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HeartbeatPruner deletes old heartbeats
type HeartbeatPruner interface {
	DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MonitorSyncer reconciles running checks with the stored monitors
type MonitorSyncer interface {
	Sync(ctx context.Context) error
}

// Scheduler manages background jobs
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	pruner        HeartbeatPruner
	syncer        MonitorSyncer
	retentionDays int
	now           func() time.Time
}

// NewScheduler creates a new job scheduler. A nil syncer disables monitor
// synchronisation.
func NewScheduler(logger *zap.Logger, pruner HeartbeatPruner, syncer MonitorSyncer, retentionDays int) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:        logger,
		pruner:        pruner,
		syncer:        syncer,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	// Cleanup old heartbeats daily at 3:14 AM
	if _, err := s.cron.AddFunc("14 3 * * *", func() {
		s.cleanupOldHeartbeats(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule heartbeat cleanup: %w", err)
	}

	if s.syncer != nil {
		if _, err := s.cron.AddFunc("@every 1m", func() {
			s.syncMonitors(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to schedule monitor sync: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("job_scheduler_started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("job_scheduler_stopped")
}

// cleanupOldHeartbeats removes unimportant heartbeats past the retention period
func (s *Scheduler) cleanupOldHeartbeats(ctx context.Context) {
	if s.retentionDays <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	deleted, err := s.pruner.DeleteHeartbeatsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("heartbeat_cleanup_failed", zap.Error(err))
		return
	}
	s.logger.Info("heartbeat_cleanup_done", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
}

func (s *Scheduler) syncMonitors(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.syncer.Sync(ctx); err != nil {
		s.logger.Error("monitor_sync_failed", zap.Error(err))
	}
}
