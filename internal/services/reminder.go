package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/metrics"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

// ClassifyReminder maps days past due onto a reminder type. It is total for
// any warnAt < finalAt: every daysDiff lands in exactly one class.
func ClassifyReminder(daysDiff, warnAt, finalAt int) string {
	switch {
	case daysDiff < 0:
		return models.ReminderUpcoming
	case daysDiff < warnAt:
		return models.ReminderOverdue
	case daysDiff < finalAt:
		return models.ReminderWarning
	default:
		return models.ReminderFinalNotice
	}
}

// ShouldSendReminder reports whether daysDiff is one of the configured offsets.
// Negative values count days before the due date; the due date itself is
// offset 0 of the overdue list.
func ShouldSendReminder(daysDiff int, beforeDue, overdue []int) bool {
	if daysDiff < 0 {
		return containsInt(beforeDue, -daysDiff)
	}
	return containsInt(overdue, daysDiff)
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

var defaultReminderTemplates = map[string]models.ReminderTemplate{
	models.ReminderUpcoming: {
		Subject: "Upcoming payment: invoice {{invoiceNumber}}",
		Body:    "Invoice {{invoiceNumber}} for {{amount}} is due on {{dueDate}}, {{days}} day(s) from now.",
	},
	models.ReminderOverdue: {
		Subject: "Payment overdue: invoice {{invoiceNumber}}",
		Body:    "Invoice {{invoiceNumber}} for {{amount}} was due on {{dueDate}} and is {{days}} day(s) overdue.",
	},
	models.ReminderWarning: {
		Subject: "Second notice: invoice {{invoiceNumber}} is {{days}} days overdue",
		Body:    "Invoice {{invoiceNumber}} for {{amount}} is now {{days}} days past its due date of {{dueDate}}. Please arrange payment promptly.",
	},
	models.ReminderFinalNotice: {
		Subject: "Final notice: invoice {{invoiceNumber}}",
		Body:    "This is the final notice for invoice {{invoiceNumber}} ({{amount}}), due on {{dueDate}} and {{days}} days overdue.",
	},
}

// renderReminder fills the user's template for the type, or the default one.
func renderReminder(templates map[string]models.ReminderTemplate, reminderType string, inv *models.Invoice, daysDiff int) *EmailMessage {
	tpl := defaultReminderTemplates[reminderType]
	if custom, ok := templates[reminderType]; ok {
		if strings.TrimSpace(custom.Subject) != "" {
			tpl.Subject = custom.Subject
		}
		if strings.TrimSpace(custom.Body) != "" {
			tpl.Body = custom.Body
		}
	}

	days := daysDiff
	if days < 0 {
		days = -days
	}
	r := strings.NewReplacer(
		"{{invoiceNumber}}", inv.InvoiceNumber,
		"{{amount}}", fmt.Sprintf("%.2f", inv.TotalAmount),
		"{{dueDate}}", inv.DueDate.Format("2006-01-02"),
		"{{days}}", strconv.Itoa(days),
	)
	subject := r.Replace(tpl.Subject)
	return &EmailMessage{
		To:      []string{inv.ClientEmail},
		Subject: subject,
		HTML: emailLayout(subject, [][2]string{
			{"Invoice", inv.InvoiceNumber},
			{"Amount due", fmt.Sprintf("%.2f", inv.TotalAmount)},
			{"Due date", inv.DueDate.Format("2006-01-02")},
		}, r.Replace(tpl.Body)),
	}
}

type ReminderRunResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Paused    int `json:"paused"`
}

type ReminderService struct {
	db       *gorm.DB
	mailer   Mailer
	holidays *HolidayService
	dedup    *ReminderDeduper
	loc      *time.Location
}

func NewReminderService(db *gorm.DB, mailer Mailer, holidays *HolidayService, dedup *ReminderDeduper, loc *time.Location) *ReminderService {
	if loc == nil {
		loc = time.UTC
	}
	if holidays == nil {
		holidays = NewHolidayService()
	}
	return &ReminderService{db: db, mailer: mailer, holidays: holidays, dedup: dedup, loc: loc}
}

// Run sends every reminder due at now. One invoice failing never stops the
// others.
func (s *ReminderService) Run(ctx context.Context, now time.Time) (*ReminderRunResult, error) {
	result := &ReminderRunResult{}

	var all []models.PaymentReminderSettings
	if err := s.db.WithContext(ctx).Find(&all).Error; err != nil {
		return nil, fmt.Errorf("load reminder settings: %w", err)
	}

	// projects that carry their own settings, per user, enabled or not
	scoped := make(map[string][]string)
	for _, set := range all {
		if set.ProjectID != nil {
			scoped[set.UserID] = append(scoped[set.UserID], *set.ProjectID)
		}
	}

	local := now.In(s.loc)
	for i := range all {
		set := &all[i]
		if !set.Enabled {
			continue
		}
		if s.holidays.ShouldPause(local, set.PauseRemindersOnWeekends, set.HolidayCountry) {
			result.Paused++
			continue
		}

		query := s.db.WithContext(ctx).
			Where("freelancer_id = ? AND status IN ?", set.UserID, []string{models.InvoiceSent, models.InvoiceOverdue})
		if set.ProjectID != nil {
			query = query.Where("project_id = ?", *set.ProjectID)
		} else if ids := scoped[set.UserID]; len(ids) > 0 {
			query = query.Where("project_id IS NULL OR project_id NOT IN ?", ids)
		}

		var invoices []models.Invoice
		if err := query.Find(&invoices).Error; err != nil {
			logger.Warn().Err(err).Str("user_id", set.UserID).Msg("[Reminder] failed to load invoices")
			continue
		}

		for j := range invoices {
			result.Processed++
			switch s.processInvoice(ctx, set, &invoices[j], now) {
			case reminderSent:
				result.Sent++
			case reminderFailed:
				result.Failed++
			default:
				result.Skipped++
			}
		}
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("paused", result.Paused).
		Msg("[Reminder] run finished")
	return result, nil
}

type reminderOutcome int

const (
	reminderSkipped reminderOutcome = iota
	reminderSent
	reminderFailed
)

func (s *ReminderService) processInvoice(ctx context.Context, set *models.PaymentReminderSettings, inv *models.Invoice, now time.Time) reminderOutcome {
	daysDiff := daysBetween(inv.DueDate, now, s.loc)
	if !ShouldSendReminder(daysDiff, set.BeforeDueReminders, set.OverdueReminders) {
		return reminderSkipped
	}
	reminderType := ClassifyReminder(daysDiff, set.SendWarningAt, set.SendFinalNoticeAt)

	var sentToday int64
	if err := s.db.WithContext(ctx).Model(&models.PaymentReminderRecord{}).
		Where("invoice_id = ? AND reminder_type = ? AND sent_at >= ?", inv.ID, reminderType, startOfDay(now, s.loc)).
		Count(&sentToday).Error; err != nil {
		logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("[Reminder] dedup lookup failed")
		metrics.IncReminder(reminderType, "failed")
		return reminderFailed
	}
	if sentToday > 0 {
		return reminderSkipped
	}

	day := civilDate(now, s.loc)
	if !s.dedup.AcquireOnce(ctx, inv.ID, reminderType, day) {
		return reminderSkipped
	}

	messageID, err := s.mailer.Send(ctx, renderReminder(set.Templates, reminderType, inv, daysDiff))
	if err != nil {
		s.dedup.Release(ctx, inv.ID, reminderType, day)
		logger.Warn().Err(err).Str("invoice_id", inv.ID).Str("type", reminderType).Msg("[Reminder] send failed")
		metrics.IncReminder(reminderType, "failed")
		return reminderFailed
	}

	record := &models.PaymentReminderRecord{
		InvoiceID:    inv.ID,
		SettingsID:   set.ID,
		ReminderType: reminderType,
		DaysDiff:     daysDiff,
		SentAt:       now,
		MessageID:    messageID,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("[Reminder] failed to record reminder")
	}
	if daysDiff > 0 && inv.Status == models.InvoiceSent {
		if err := s.db.WithContext(ctx).Model(&models.Invoice{}).
			Where("id = ? AND status = ?", inv.ID, models.InvoiceSent).
			Update("status", models.InvoiceOverdue).Error; err != nil {
			logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("[Reminder] failed to mark invoice overdue")
		}
	}

	metrics.IncReminder(reminderType, "sent")
	return reminderSent
}

// GetSettings returns the saved settings of the user, or of one of its
// projects, falling back to the defaults.
func (s *ReminderService) GetSettings(ctx context.Context, userID string, projectID *string) (*models.PaymentReminderSettings, error) {
	var set models.PaymentReminderSettings
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if projectID != nil && *projectID != "" {
		query = query.Where("project_id = ?", *projectID)
	} else {
		query = query.Where("project_id IS NULL")
	}
	err := query.First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := models.DefaultReminderSettings(userID)
		def.ProjectID = projectID
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

type ReminderSettingsRequest struct {
	ProjectID                *string                            `json:"project_id"`
	Enabled                  *bool                              `json:"enabled"`
	BeforeDueReminders       []int                              `json:"before_due_reminders"`
	OverdueReminders         []int                              `json:"overdue_reminders"`
	SendWarningAt            int                                `json:"send_warning_at"`
	SendFinalNoticeAt        int                                `json:"send_final_notice_at"`
	PauseRemindersOnWeekends bool                               `json:"pause_reminders_on_weekends"`
	HolidayCountry           string                             `json:"holiday_country"`
	Templates                map[string]models.ReminderTemplate `json:"templates"`
}

func (r *ReminderSettingsRequest) validate() error {
	for _, d := range r.BeforeDueReminders {
		if d < 0 {
			return response.NewValidation("before_due_reminders must be >= 0")
		}
	}
	for _, d := range r.OverdueReminders {
		if d < 0 {
			return response.NewValidation("overdue_reminders must be >= 0")
		}
	}
	if r.SendWarningAt < 1 {
		return response.NewValidation("send_warning_at must be >= 1")
	}
	if r.SendWarningAt >= r.SendFinalNoticeAt {
		return response.NewValidation("send_warning_at must be less than send_final_notice_at")
	}
	for kind := range r.Templates {
		if _, ok := defaultReminderTemplates[kind]; !ok {
			return response.NewValidation("unknown reminder template " + kind)
		}
	}
	return nil
}

// SaveSettings upserts the settings document keyed by user and project.
func (s *ReminderService) SaveSettings(ctx context.Context, userID string, req *ReminderSettingsRequest) (*models.PaymentReminderSettings, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.ProjectID != nil && *req.ProjectID == "" {
		req.ProjectID = nil
	}
	if req.ProjectID != nil {
		project, err := loadProject(s.db.WithContext(ctx), *req.ProjectID)
		if err != nil {
			return nil, err
		}
		if project.FreelancerID != userID {
			return nil, response.NewForbidden("project does not belong to you")
		}
	}
	req.HolidayCountry = strings.ToUpper(strings.TrimSpace(req.HolidayCountry))

	existing, err := s.GetSettings(ctx, userID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	set := *existing
	set.UserID = userID
	set.ProjectID = req.ProjectID
	set.Enabled = req.Enabled == nil || *req.Enabled
	set.BeforeDueReminders = req.BeforeDueReminders
	set.OverdueReminders = req.OverdueReminders
	set.SendWarningAt = req.SendWarningAt
	set.SendFinalNoticeAt = req.SendFinalNoticeAt
	set.PauseRemindersOnWeekends = req.PauseRemindersOnWeekends
	set.HolidayCountry = req.HolidayCountry
	set.Templates = req.Templates
	if set.BeforeDueReminders == nil {
		set.BeforeDueReminders = []int{}
	}
	if set.OverdueReminders == nil {
		set.OverdueReminders = []int{}
	}
	if set.Templates == nil {
		set.Templates = map[string]models.ReminderTemplate{}
	}

	if err := s.db.WithContext(ctx).Save(&set).Error; err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *ReminderService) History(ctx context.Context, invoiceID string, v Viewer) ([]models.PaymentReminderRecord, error) {
	invoice, err := loadInvoice(s.db.WithContext(ctx), invoiceID)
	if err != nil {
		return nil, err
	}
	if !canViewInvoice(s.db.WithContext(ctx), invoice, v) {
		return nil, response.NewForbidden("you do not have access to this invoice")
	}

	var records []models.PaymentReminderRecord
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("sent_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
