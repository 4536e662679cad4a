package models

import "time"

// Contract statuses
const (
	ContractPending    = "pending"
	ContractActive     = "active"
	ContractCompleted  = "completed"
	ContractTerminated = "terminated"
	ContractRejected   = "rejected"
)

// ContractStatusSigned is recorded on the project once the signed PDF is stored.
const ContractStatusSigned = "signed"

// ContractMilestone is the snapshot of a project milestone taken at contract creation.
type ContractMilestone struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Amount      float64    `json:"amount"`
	Percentage  float64    `json:"percentage"`
	DueDate     *time.Time `json:"due_date"`
}

type Contract struct {
	Base
	ProjectID           string              `gorm:"size:36;index;not null" json:"project_id"`
	FreelancerID        string              `gorm:"size:36;index;not null" json:"freelancer_id"`
	ClientID            string              `gorm:"size:36;index;not null" json:"client_id"`
	Title               string              `gorm:"size:200;not null" json:"title"`
	Scope               string              `gorm:"type:text" json:"scope"`
	Deliverables        string              `gorm:"type:text" json:"deliverables"`
	PaymentTerms        string              `gorm:"size:500" json:"payment_terms"`
	HourlyRate          float64             `json:"hourly_rate"`
	FixedPrice          float64             `json:"fixed_price"`
	Milestones          []ContractMilestone `gorm:"serializer:json" json:"milestones"`
	RevisionPolicy      string              `gorm:"size:500" json:"revision_policy"`
	EnableBillableHours bool                `json:"enable_billable_hours"`
	MaxBillableHours    float64             `json:"max_billable_hours"`
	PaymentPolicy       string              `gorm:"size:20" json:"payment_policy"`
	Status              string              `gorm:"size:20;index" json:"status"`
	FreelancerSignature string              `gorm:"size:255" json:"freelancer_signature"`
	FreelancerSignedAt  *time.Time          `json:"freelancer_signed_at"`
	ClientSignature     string              `gorm:"size:255" json:"client_signature"`
	ClientSignedAt      *time.Time          `json:"client_signed_at"`
	RejectionReasons    []string            `gorm:"serializer:json" json:"rejection_reasons,omitempty"`
	RejectionComments   string              `gorm:"type:text" json:"rejection_comments,omitempty"`
	RejectedAt          *time.Time          `json:"rejected_at"`
	SignedDocumentID    *string             `gorm:"size:36" json:"signed_document_id"`
}

func (Contract) TableName() string { return "contracts" }

func (c *Contract) IsFullySigned() bool {
	return c.FreelancerSignedAt != nil && c.ClientSignedAt != nil
}

// PendingParties lists the parties that have not signed yet.
func (c *Contract) PendingParties() []string {
	pending := []string{}
	if c.FreelancerSignedAt == nil {
		pending = append(pending, RoleFreelancer)
	}
	if c.ClientSignedAt == nil {
		pending = append(pending, RoleClient)
	}
	return pending
}

// IsTerminal reports whether no further signature or rejection is possible.
func (c *Contract) IsTerminal() bool {
	switch c.Status {
	case ContractRejected, ContractCompleted, ContractTerminated:
		return true
	}
	return false
}
