package models

import "time"

// Notification types
const (
	NotifyContractCreated   = "contract_created"
	NotifyContractSigned    = "contract_signed"
	NotifyContractRejected  = "contract_rejected"
	NotifyMilestoneApproved = "milestone_approved"
	NotifyRevisionRequested = "revision_requested"
	NotifyProjectCompleted  = "project_completed"
	NotifyInvoiceCreated    = "invoice_created"
	NotifyPaymentReceived   = "payment_received"
	NotifyProjectOverdue    = "project_overdue"
	NotifyInvitation        = "invitation"
)

// Notification is an in-app message for one user
type Notification struct {
	Base
	UserID    string     `gorm:"size:36;index;not null" json:"user_id"`
	Type      string     `gorm:"size:50" json:"type"`
	Title     string     `gorm:"size:200" json:"title"`
	Message   string     `gorm:"type:text" json:"message"`
	ProjectID *string    `gorm:"size:36" json:"project_id"`
	Read      bool       `gorm:"column:is_read;index" json:"read"`
	ReadAt    *time.Time `json:"read_at"`
}

func (Notification) TableName() string { return "notifications" }
