package models

import "time"

const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionPaid      = "paid"
	TransactionOverdue   = "overdue"
)

// Transaction is the record of a captured payment against an invoice.
type Transaction struct {
	Base
	InvoiceID     string     `gorm:"size:36;index;not null" json:"invoice_id"`
	ProjectID     *string    `gorm:"size:36;index" json:"project_id"`
	ClientID      string     `gorm:"size:36;index" json:"client_id"`
	FreelancerID  string     `gorm:"size:36;index" json:"freelancer_id"`
	BaseAmount    float64    `json:"base_amount"`
	LateFee       float64    `json:"late_fee"`
	Amount        float64    `json:"amount"`
	Status        string     `gorm:"size:20" json:"status"`
	PaymentMethod string     `gorm:"size:50" json:"payment_method"`
	IsLatePayment bool       `json:"is_late_payment"`
	DaysOverdue   int        `json:"days_overdue"`
	PaidAt        *time.Time `json:"paid_at"`
}

func (Transaction) TableName() string { return "transactions" }
