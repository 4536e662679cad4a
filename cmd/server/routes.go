package main

import (
	"github.com/freelancehub/backend/internal/handlers"
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(), middleware.HTTPMetrics())

	// Public auth endpoints are limited per IP, everything else per user
	publicLimiter := middleware.NewRateLimiter(5, 10)
	userLimiter := middleware.NewRateLimiter(20, 40)

	hub := services.GetSSEHub()
	healthHandler := handlers.NewHealthHandler(models.GetDB(), svc.taskQueue, hub)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	authHandler := handlers.NewAuthHandler(svc.auth, svc.effects)
	projectHandler := handlers.NewProjectHandler(svc.projects, svc.approvals, svc.tasks, svc.billable)
	invitationHandler := handlers.NewInvitationHandler(svc.invitations)
	contractHandler := handlers.NewContractHandler(svc.contracts)
	approvalHandler := handlers.NewApprovalHandler(svc.approvals)
	invoiceHandler := handlers.NewInvoiceHandler(svc.invoices)
	reminderHandler := handlers.NewReminderHandler(svc.reminders, svc.holidays)
	taskHandler := handlers.NewTaskHandler(svc.tasks)
	notificationHandler := handlers.NewNotificationHandler(svc.notifications)
	paymentHandler := handlers.NewPaymentHandler(svc.payments)
	adminHandler := handlers.NewAdminHandler(svc.audit, svc.deadlines)
	dashboardHandler := handlers.NewDashboardHandler(svc.dashboard)
	userHandler := handlers.NewUserHandler(svc.users)
	sseHandler := handlers.NewSSEHandler(hub, svc.auth)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth", publicLimiter.Middleware())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		// Invitation preview is reachable from the emailed link before login
		api.GET("/invitations/:token", publicLimiter.Middleware(), invitationHandler.GetByToken)

		// SSE (public route with internal token validation)
		api.GET("/notifications/stream", sseHandler.StreamNotifications)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.auth), userLimiter.Middleware(), middleware.AuditLog(svc.audit))
		{
			// Auth
			protected.GET("/auth/me", authHandler.GetCurrentUser)
			protected.POST("/auth/logout", authHandler.Logout)
			protected.PUT("/auth/password", authHandler.ChangePassword)

			// Dashboard
			protected.GET("/dashboard/stats", dashboardHandler.GetStats)

			// Projects
			protected.GET("/projects", projectHandler.List)
			protected.POST("/projects", projectHandler.Create)
			protected.GET("/projects/:id", projectHandler.GetByID)
			protected.PUT("/projects/:id", projectHandler.Update)
			protected.DELETE("/projects/:id", projectHandler.Delete)
			protected.POST("/projects/:id/milestones/:milestoneId/complete", projectHandler.CompleteMilestone)
			protected.GET("/projects/:id/comments", projectHandler.Comments)
			protected.POST("/projects/:id/comments", projectHandler.AddComment)
			protected.GET("/projects/:id/tasks", projectHandler.Tasks)
			protected.GET("/projects/:id/billable-hours", projectHandler.BillableHours)

			// Invitations
			protected.POST("/invitations", invitationHandler.Create)
			protected.POST("/invitations/:token/accept", invitationHandler.Accept)
			protected.POST("/invitations/:token/reject", invitationHandler.Reject)

			// Contracts
			protected.POST("/contracts/create", contractHandler.Create)
			protected.GET("/contracts/:id", contractHandler.GetByID)
			protected.POST("/contracts/:id/sign", contractHandler.Sign)
			protected.POST("/contracts/:id/reject", contractHandler.Reject)
			protected.PUT("/contracts/:id/status", contractHandler.UpdateStatus)
			protected.DELETE("/contracts/:id", contractHandler.Delete)

			// Approvals
			protected.POST("/approvals/milestone/:id/approve", approvalHandler.Approve)
			protected.POST("/approvals/milestone/:id/reject", approvalHandler.Reject)
			protected.GET("/approvals/pending/:clientId", approvalHandler.Pending)

			// Invoices
			protected.POST("/invoices", invoiceHandler.Create)
			protected.GET("/invoices", invoiceHandler.List)
			protected.GET("/invoices/:id", invoiceHandler.GetByID)
			protected.GET("/invoices/:id/pdf", invoiceHandler.PDF)
			protected.POST("/invoices/:id/approve", invoiceHandler.Approve)
			protected.POST("/invoices/:id/pay", invoiceHandler.Pay)
			protected.DELETE("/invoices/:id", invoiceHandler.Delete)

			// Reminders
			protected.GET("/reminders/settings/:userId", reminderHandler.GetSettings)
			protected.POST("/reminders/settings", reminderHandler.SaveSettings)
			protected.GET("/reminders/history/:invoiceId", reminderHandler.History)
			protected.GET("/reminders/holiday-countries", reminderHandler.Countries)

			// Tasks and time tracking
			protected.POST("/tasks", taskHandler.Create)
			protected.PUT("/tasks/:id", taskHandler.Update)
			protected.DELETE("/tasks/:id", taskHandler.Delete)
			protected.POST("/tasks/:id/timer/start", taskHandler.StartTimer)
			protected.POST("/tasks/:id/timer/stop", taskHandler.StopTimer)

			// Notifications
			protected.GET("/notifications", notificationHandler.List)
			protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)
			protected.POST("/notifications/:id/read", notificationHandler.MarkRead)

			// Payments
			protected.GET("/transactions", paymentHandler.Transactions)
		}

		// Admin only routes
		admin := protected.Group("")
		admin.Use(middleware.AdminRequired())
		{
			admin.GET("/audit-logs", adminHandler.AuditLogs)
			admin.POST("/admin/sweeps/deadlines", adminHandler.RunDeadlineSweep)
			admin.POST("/reminders/process", reminderHandler.Process)
			admin.GET("/users", userHandler.List)
			admin.PUT("/users/:id", userHandler.Update)
		}
	}
}
