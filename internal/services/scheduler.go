package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/metrics"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	JobReminders    = "payment_reminders"
	JobDeadlines    = "deadline_sweep"
	JobAuditCleanup = "audit_cleanup"
)

// JobScheduler drives the periodic jobs. Each firing claims a SchedulerLock
// for its minute slot so a fleet of instances runs a job once.
type JobScheduler struct {
	db        *gorm.DB
	cfg       config.SchedulerConfig
	reminders *ReminderService
	deadlines *DeadlineService
	audit     *AuditService
	loc       *time.Location
	owner     string
	cron      *cron.Cron
	now       func() time.Time
}

func NewJobScheduler(db *gorm.DB, cfg config.SchedulerConfig, reminders *ReminderService, deadlines *DeadlineService, audit *AuditService, loc *time.Location) *JobScheduler {
	if loc == nil {
		loc = time.UTC
	}
	host, _ := os.Hostname()
	return &JobScheduler{
		db:        db,
		cfg:       cfg,
		reminders: reminders,
		deadlines: deadlines,
		audit:     audit,
		loc:       loc,
		owner:     fmt.Sprintf("%s-%d", host, os.Getpid()),
		now:       time.Now,
	}
}

func (s *JobScheduler) Start() error {
	s.cron = cron.New(cron.WithLocation(s.loc))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context, time.Time) error
	}{
		{JobReminders, s.cfg.RemindersCron, s.RunReminders},
		{JobDeadlines, s.cfg.DeadlineCron, s.RunDeadlines},
		{JobAuditCleanup, s.cfg.AuditCleanupCron, s.RunAuditCleanup},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.fire(job.name, job.run) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
		logger.Info().Str("job", job.name).Str("cron", job.spec).Msg("[Scheduler] job scheduled")
	}

	s.cron.Start()
	logger.Info().Str("owner", s.owner).Str("timezone", s.loc.String()).Msg("[Scheduler] started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *JobScheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	logger.Info().Msg("[Scheduler] stopped")
}

func (s *JobScheduler) fire(name string, run func(context.Context, time.Time) error) {
	now := s.now()
	if _, err := s.RunLocked(context.Background(), name, now, run); err != nil {
		logger.Error().Err(err).Str("job", name).Msg("[Scheduler] job failed")
	}
}

// RunLocked runs job for the minute slot of now unless another owner has
// already claimed that slot. It reports whether the job ran.
func (s *JobScheduler) RunLocked(ctx context.Context, name string, now time.Time, run func(context.Context, time.Time) error) (bool, error) {
	slot := now.In(s.loc).Truncate(time.Minute).Format("200601021504")
	ok, err := models.AcquireSchedulerLock(s.db.WithContext(ctx), name, slot, s.owner, time.Hour, now)
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", name, err)
	}
	if !ok {
		logger.Debug().Str("job", name).Str("slot", slot).Msg("[Scheduler] slot taken by another instance")
		return false, nil
	}

	start := time.Now()
	err = run(ctx, now)
	metrics.ObserveJob(name, time.Since(start))
	return true, err
}

func (s *JobScheduler) RunReminders(ctx context.Context, now time.Time) error {
	result, err := s.reminders.Run(ctx, now)
	if err != nil {
		return err
	}
	logger.Info().Int("processed", result.Processed).Int("sent", result.Sent).Msg("[Scheduler] reminders done")
	return nil
}

func (s *JobScheduler) RunDeadlines(ctx context.Context, now time.Time) error {
	_, err := s.deadlines.Run(ctx, now)
	return err
}

func (s *JobScheduler) RunAuditCleanup(ctx context.Context, now time.Time) error {
	removed, err := s.audit.CleanupOldLogs(s.cfg.AuditRetentionDays, now)
	if err != nil {
		return err
	}
	locks, err := models.CleanupSchedulerLocks(s.db.WithContext(ctx), now.Add(-7*24*time.Hour))
	if err != nil {
		return err
	}
	logger.Info().Int64("audit_logs", removed).Int64("locks", locks).Msg("[Scheduler] cleanup done")
	return nil
}
