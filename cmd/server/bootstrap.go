package main

import (
	"time"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/internal/utils"
	"github.com/freelancehub/backend/pkg/logger"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	cfg       *config.Config
	loc       *time.Location
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *services.JobScheduler
	effects   *services.EffectDispatcher

	auth          *services.AuthService
	projects      *services.ProjectService
	approvals     *services.ApprovalService
	contracts     *services.ContractService
	invoices      *services.InvoiceService
	reminders     *services.ReminderService
	holidays      *services.HolidayService
	deadlines     *services.DeadlineService
	tasks         *services.TaskService
	invitations   *services.InvitationService
	payments      *services.PaymentService
	billable      *services.BillableHoursService
	notifications *services.NotificationService
	audit         *services.AuditService
	dashboard     *services.DashboardService
	users         *services.UserService
}

// bootstrap initializes all application dependencies: database, effects, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Scheduler.Timezone).Msg("Unknown timezone, using UTC")
		loc = time.UTC
	}

	if err := models.InitDB(&cfg.Database, cfg.Log.Level); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	// Side effects run inline unless Redis is enabled
	mailer := services.NewMailer(&cfg.SMTP)
	pdf := services.NewPDFRenderer(cfg.App.Name)
	runner := services.NewEffectRunner(db, mailer, pdf, time.Duration(cfg.Effects.TimeoutSeconds)*time.Second)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(runner.Execute)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(runner.Execute)
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start effect worker")
			}
		}
	}
	effects := services.NewEffectDispatcher(runner, taskQueue)

	holidays := services.NewHolidayService()
	svc := &appServices{
		cfg:           cfg,
		loc:           loc,
		taskQueue:     taskQueue,
		worker:        worker,
		effects:       effects,
		auth:          services.NewAuthService(db, &cfg.JWT),
		projects:      services.NewProjectService(db, effects),
		approvals:     services.NewApprovalService(db, effects, loc),
		contracts:     services.NewContractService(db, effects),
		invoices:      services.NewInvoiceService(db, effects, pdf, cfg.Payments.LateFeePercent, loc),
		reminders:     services.NewReminderService(db, mailer, holidays, services.NewReminderDeduperFromConfig(&cfg.Redis), loc),
		holidays:      holidays,
		deadlines:     services.NewDeadlineService(db, effects, loc),
		tasks:         services.NewTaskService(db),
		invitations:   services.NewInvitationService(db, effects, cfg.App.BaseURL),
		payments:      services.NewPaymentService(db),
		billable:      services.NewBillableHoursService(db),
		notifications: services.NewNotificationService(db),
		audit:         services.NewAuditService(db),
		dashboard:     services.NewDashboardService(db),
		users:         services.NewUserService(db, effects),
	}

	if err := svc.auth.CreateAdminIfNotExists(cfg.Admin); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	if cfg.Scheduler.Enabled {
		svc.scheduler = services.NewJobScheduler(db, cfg.Scheduler, svc.reminders, svc.deadlines, svc.audit, loc)
		if err := svc.scheduler.Start(); err != nil {
			logger.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	return svc
}

// shutdown gracefully stops all background work.
func (s *appServices) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		logger.Info().Msg("Scheduler stopped")
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
}
