package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// jobTimeout bounds a single run of any scheduled job
const jobTimeout = 5 * time.Minute

// CronService manages scheduled background jobs
type CronService struct {
	cron           *cron.Cron
	holds          *HoldService
	settlements    *SettlementService
	sweepSpec      string
	settlementSpec string
	logger         *logrus.Logger
}

// NewCronService creates a new CronService. An empty settlementSpec disables
// the monthly settlement job.
func NewCronService(holds *HoldService, settlements *SettlementService, sweepSpec, settlementSpec string, logger *logrus.Logger) *CronService {
	// Seconds precision; a job still running when its next tick fires is skipped
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)

	return &CronService{
		cron:           c,
		holds:          holds,
		settlements:    settlements,
		sweepSpec:      sweepSpec,
		settlementSpec: settlementSpec,
		logger:         logger,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: expire overdue holds, "@every 30s" by default
	if _, err := s.cron.AddFunc(s.sweepSpec, s.expireHoldsJob); err != nil {
		return fmt.Errorf("failed to schedule hold expiry job: %w", err)
	}
	s.logger.WithField("schedule", s.sweepSpec).Info("Scheduled: Expire overdue holds")

	// Job 2: settle the previous month, "0 0 2 1 * *" = 2:00 AM on the 1st
	if s.settlementSpec != "" && s.settlements != nil {
		if _, err := s.cron.AddFunc(s.settlementSpec, s.monthlySettlementJob); err != nil {
			return fmt.Errorf("failed to schedule settlement job: %w", err)
		}
		s.logger.WithField("schedule", s.settlementSpec).Info("Scheduled: Monthly settlements")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) expireHoldsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	// HoldService logs results and errors
	_, _ = s.holds.Sweep(ctx)
}

func (s *CronService) monthlySettlementJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.logger.Info("[CRON] Starting monthly settlement job...")
	startTime := time.Now()

	created, err := s.settlements.RunMonthly(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Monthly settlement job finished with errors")
	}
	s.logger.WithFields(logrus.Fields{
		"created":  created,
		"duration": time.Since(startTime),
	}).Info("[CRON] Monthly settlement job done")
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
