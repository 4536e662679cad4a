package models

import "time"

// Invoice statuses
const (
	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePending   = "pending"
	InvoiceApproved  = "approved"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

// Invoice sources, used for metrics and the audit trail
const (
	InvoiceSourceManual     = "manual"
	InvoiceSourceMilestone  = "milestone"
	InvoiceSourceCompletion = "completion"
	InvoiceSourceContract   = "contract"
)

type Invoice struct {
	Base
	InvoiceNumber          string            `gorm:"uniqueIndex;size:20;not null" json:"invoice_number"`
	ProjectID              *string           `gorm:"size:36;index" json:"project_id"`
	MilestoneID            *string           `gorm:"size:36" json:"milestone_id"`
	FreelancerID           string            `gorm:"size:36;index;not null" json:"freelancer_id"`
	ClientID               string            `gorm:"size:36;index" json:"client_id"`
	ClientEmail            string            `gorm:"size:255" json:"client_email"`
	LineItems              []InvoiceLineItem `gorm:"foreignKey:InvoiceID" json:"line_items"`
	Subtotal               float64           `json:"subtotal"`
	TaxRate                float64           `json:"tax_rate"`
	TaxAmount              float64           `json:"tax_amount"`
	TotalAmount            float64           `json:"total_amount"`
	Status                 string            `gorm:"size:20;index" json:"status"`
	Source                 string            `gorm:"size:20" json:"source"`
	RequiresClientApproval bool              `json:"requires_client_approval"`
	ClientApproved         bool              `json:"client_approved"`
	ClientApprovedAt       *time.Time        `json:"client_approved_at"`
	IssueDate              time.Time         `json:"issue_date"`
	DueDate                time.Time         `gorm:"index" json:"due_date"`
	Notes                  string            `gorm:"type:text" json:"notes"`
	PaidAt                 *time.Time        `json:"paid_at"`
	PDFDocumentID          *string           `gorm:"size:36" json:"pdf_document_id"`
}

func (Invoice) TableName() string { return "invoices" }

type InvoiceLineItem struct {
	Base
	InvoiceID   string  `gorm:"size:36;index;not null" json:"invoice_id"`
	Position    int     `json:"position"`
	Description string  `gorm:"size:500;not null" json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// InvoiceSequence holds the running invoice counter of one calendar month (YYYYMM).
type InvoiceSequence struct {
	Period    string    `gorm:"primaryKey;size:6" json:"period"`
	Counter   int       `gorm:"not null" json:"counter"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
