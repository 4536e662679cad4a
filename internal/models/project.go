package models

import "time"

// Project statuses
const (
	ProjectPendingInvitation = "pending_invitation"
	ProjectPendingContract   = "pending_contract"
	ProjectPendingApproval   = "pending_approval"
	ProjectActive            = "active"
	ProjectCompleted         = "completed"
	ProjectOverdue           = "overdue"
	ProjectInvitationExpired = "invitation_expired"
	ProjectContractRejected  = "contract_rejected"
	ProjectCancelled         = "cancelled"
)

const (
	PaymentPolicyMilestone = "milestone"
	PaymentPolicyEnd       = "end"
)

// Milestone statuses
const (
	MilestonePending           = "pending"
	MilestoneCompleted         = "completed"
	MilestoneApproved          = "approved"
	MilestoneInvoiced          = "invoiced"
	MilestoneRevisionRequested = "revision_requested"
	MilestonePaid              = "paid"
)

const DefaultMaxRevisions = 2

// Project is a unit of freelance work between one freelancer and one client
type Project struct {
	Base
	Title             string      `gorm:"size:200;not null" json:"title"`
	Description       string      `gorm:"type:text" json:"description"`
	FreelancerID      string      `gorm:"size:36;index;not null" json:"freelancer_id"`
	ClientID          string      `gorm:"size:36;index" json:"client_id"`
	ClientEmail       string      `gorm:"size:255;index" json:"client_email"`
	Status            string      `gorm:"size:30;index" json:"status"`
	ContractID        *string     `gorm:"size:36" json:"contract_id"`
	ContractStatus    string      `gorm:"size:20" json:"contract_status"`
	PaymentPolicy     string      `gorm:"size:20;default:milestone" json:"payment_policy"`
	HourlyRate        float64     `json:"hourly_rate"`
	TaxRate           float64     `json:"tax_rate"`
	PaymentTerms      int         `json:"payment_terms"` // days
	Progress          int         `json:"progress"`
	StartDate         *time.Time  `json:"start_date"`
	DueDate           *time.Time  `gorm:"index" json:"due_date"`
	IsOverdue         bool        `json:"is_overdue"`
	DaysOverdue       int         `json:"days_overdue"`
	OverdueNotifiedAt *time.Time  `json:"overdue_notified_at"`
	PreviousStatus    string      `gorm:"size:30" json:"previous_status,omitempty"`
	ExpiredReason     string      `gorm:"size:255" json:"expired_reason,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at"`
	Archived          bool        `json:"archived"`
	Milestones        []Milestone `gorm:"foreignKey:ProjectID" json:"milestones,omitempty"`
}

func (Project) TableName() string { return "projects" }

// HasClient reports whether a client has been attached to the project.
func (p *Project) HasClient() bool {
	return p.ClientID != "" || p.ClientEmail != ""
}

// IsClient matches the caller against the project client by id or email.
func (p *Project) IsClient(userID, email string) bool {
	if userID != "" && p.ClientID == userID {
		return true
	}
	return email != "" && p.ClientEmail != "" && equalFoldTrim(p.ClientEmail, email)
}

// Milestone is stored as its own row so approvals of different milestones
// never overwrite each other. Version guards concurrent edits of the same row.
type Milestone struct {
	Base
	ProjectID      string              `gorm:"size:36;index;not null" json:"project_id"`
	Position       int                 `json:"position"`
	Title          string              `gorm:"size:200;not null" json:"title"`
	Description    string              `gorm:"type:text" json:"description"`
	Amount         float64             `json:"amount"`
	Percentage     float64             `json:"percentage"`
	Status         string              `gorm:"size:30" json:"status"`
	DueDate        *time.Time          `json:"due_date"`
	ClientApproved bool                `json:"client_approved"`
	ApprovedAt     *time.Time          `json:"approved_at"`
	ApprovedBy     string              `gorm:"size:36" json:"approved_by,omitempty"`
	RevisionCount  int                 `json:"revision_count"`
	MaxRevisions   int                 `json:"max_revisions"`
	InvoiceID      *string             `gorm:"size:36" json:"invoice_id"`
	CompletedAt    *time.Time          `json:"completed_at"`
	Version        int                 `json:"version"`
	Revisions      []MilestoneRevision `gorm:"foreignKey:MilestoneID" json:"revision_history,omitempty"`
}

func (Milestone) TableName() string { return "milestones" }

// IsSettled reports whether the milestone counts toward project completion.
// A milestone invoiced when the contract was signed is settled only once the
// client has approved the work.
func (m *Milestone) IsSettled() bool {
	switch m.Status {
	case MilestoneApproved, MilestonePaid:
		return true
	case MilestoneInvoiced:
		return m.ClientApproved
	}
	return false
}

// CountsAsDone reports whether the milestone contributes to project progress.
func (m *Milestone) CountsAsDone() bool {
	return m.Status == MilestoneCompleted || m.IsSettled()
}

type MilestoneRevision struct {
	Base
	MilestoneID    string    `gorm:"size:36;index;not null" json:"milestone_id"`
	RevisionNumber int       `json:"revision_number"`
	Comment        string    `gorm:"type:text" json:"comment"`
	RequestedAt    time.Time `json:"requested_at"`
	RequestedBy    string    `gorm:"size:36" json:"requested_by"`
}

func (MilestoneRevision) TableName() string { return "milestone_revisions" }

// ProjectComment is a discussion entry on a project; revision requests add one
// with kind "revision_request".
type ProjectComment struct {
	Base
	ProjectID string `gorm:"size:36;index;not null" json:"project_id"`
	AuthorID  string `gorm:"size:36" json:"author_id"`
	Kind      string `gorm:"size:30;default:comment" json:"kind"`
	Body      string `gorm:"type:text" json:"body"`
}

func (ProjectComment) TableName() string { return "project_comments" }
