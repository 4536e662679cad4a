package models

import "time"

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRejected = "rejected"
	InvitationExpired  = "expired"
)

// InvitationTTL is how long a client has to respond to an invitation.
const InvitationTTL = 7 * 24 * time.Hour

type Invitation struct {
	Base
	ProjectID    string     `gorm:"size:36;index;not null" json:"project_id"`
	FreelancerID string     `gorm:"size:36;not null" json:"freelancer_id"`
	ClientEmail  string     `gorm:"size:255;not null" json:"client_email"`
	Token        string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Status       string     `gorm:"size:20;index" json:"status"`
	ExpiresAt    time.Time  `gorm:"index" json:"expires_at"`
	RespondedAt  *time.Time `json:"responded_at"`
}

func (Invitation) TableName() string { return "invitations" }

// IsOpen reports whether the invitation can still be accepted or rejected at now.
func (i *Invitation) IsOpen(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}
