package models

import "time"

// Reminder types
const (
	ReminderUpcoming    = "upcoming"
	ReminderOverdue     = "overdue"
	ReminderWarning     = "warning"
	ReminderFinalNotice = "final_notice"
)

// ReminderTemplate overrides the default subject/body of one reminder type.
// Placeholders: {{invoiceNumber}}, {{amount}}, {{dueDate}}, {{days}}.
type ReminderTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PaymentReminderSettings configures reminder cadence for a user, optionally
// narrowed to one project.
type PaymentReminderSettings struct {
	Base
	UserID                   string                      `gorm:"size:36;index;not null" json:"user_id"`
	ProjectID                *string                     `gorm:"size:36;index" json:"project_id"`
	Enabled                  bool                        `json:"enabled"`
	BeforeDueReminders       []int                       `gorm:"serializer:json" json:"before_due_reminders"`
	OverdueReminders         []int                       `gorm:"serializer:json" json:"overdue_reminders"`
	SendWarningAt            int                         `json:"send_warning_at"`
	SendFinalNoticeAt        int                         `json:"send_final_notice_at"`
	PauseRemindersOnWeekends bool                        `json:"pause_reminders_on_weekends"`
	HolidayCountry           string                      `gorm:"size:10" json:"holiday_country"`
	Templates                map[string]ReminderTemplate `gorm:"serializer:json" json:"templates"`
}

func (PaymentReminderSettings) TableName() string { return "payment_reminder_settings" }

// DefaultReminderSettings returns the cadence used when a user has saved nothing.
func DefaultReminderSettings(userID string) PaymentReminderSettings {
	return PaymentReminderSettings{
		UserID:             userID,
		Enabled:            true,
		BeforeDueReminders: []int{7, 3, 1},
		OverdueReminders:   []int{1, 7, 14, 30},
		SendWarningAt:      14,
		SendFinalNoticeAt:  30,
		Templates:          map[string]ReminderTemplate{},
	}
}

type PaymentReminderRecord struct {
	Base
	InvoiceID    string    `gorm:"size:36;index:idx_reminder_invoice_type;not null" json:"invoice_id"`
	SettingsID   string    `gorm:"size:36" json:"settings_id"`
	ReminderType string    `gorm:"size:20;index:idx_reminder_invoice_type" json:"reminder_type"`
	DaysDiff     int       `json:"days_diff"`
	SentAt       time.Time `gorm:"index" json:"sent_at"`
	MessageID    string    `gorm:"size:255" json:"message_id"`
}

func (PaymentReminderRecord) TableName() string { return "payment_reminder_records" }
