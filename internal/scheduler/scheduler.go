package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// Refresher re-derives time-dependent figures.
type Refresher interface {
	Refresh()
}

// Schedules holds the cron specs for each job. An empty spec disables the job.
type Schedules struct {
	Refresh string
	Backlog string
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	schedules Schedules
	dashboard Refresher
	store     store.Reader
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(schedules Schedules, dashboard Refresher, r store.Reader, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:      cron.New(),
		schedules: schedules,
		dashboard: dashboard,
		store:     r,
		logger:    logger,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.schedules.Refresh != "" {
		if _, err := s.cron.AddFunc(s.schedules.Refresh, s.refreshDashboard); err != nil {
			return fmt.Errorf("schedule dashboard refresh %q: %w", s.schedules.Refresh, err)
		}
	}
	if s.schedules.Backlog != "" {
		if _, err := s.cron.AddFunc(s.schedules.Backlog, s.reportBacklog); err != nil {
			return fmt.Errorf("schedule sync backlog %q: %w", s.schedules.Backlog, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) refreshDashboard() {
	s.logger.Debug("refreshing dashboard")
	s.dashboard.Refresh()
}

func (s *Scheduler) reportBacklog() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	counts, err := Backlog(ctx, s.store)
	if err != nil {
		s.logger.Error("failed to count unsynced records", zap.Error(err))
		return
	}
	s.logger.Info("sync backlog",
		zap.Int("hm_logs", counts[model.CollectionHMLogs]),
		zap.Int("breakdown_logs", counts[model.CollectionBreakdownLogs]),
	)
}

// Backlog counts the records still waiting for a remote acknowledgement.
func Backlog(ctx context.Context, r store.Reader) (map[model.Collection]int, error) {
	counts := make(map[model.Collection]int, 2)
	for _, c := range []model.Collection{model.CollectionHMLogs, model.CollectionBreakdownLogs} {
		n, err := r.CountUnsynced(ctx, c)
		if err != nil {
			return nil, err
		}
		counts[c] = int(n)
	}
	return counts, nil
}
