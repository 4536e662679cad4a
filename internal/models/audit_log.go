package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	CategoryFinancial = "financial"
	CategoryContract  = "contract"
	CategoryProject   = "project"
	CategorySecurity  = "security"
	CategoryRequest   = "request"
	CategorySystem    = "system"
)

// AuditLog is an append-only event record
type AuditLog struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	EventType  string    `gorm:"size:100;index" json:"event_type"`
	ActorID    string    `gorm:"size:36;index" json:"actor_id"`
	EntityType string    `gorm:"size:50" json:"entity_type"`
	EntityID   string    `gorm:"size:36;index" json:"entity_id"`
	Severity   string    `gorm:"size:20;index" json:"severity"`
	Category   string    `gorm:"size:20;index" json:"category"`
	Message    string    `gorm:"type:text" json:"message"`
	Details    string    `gorm:"type:text" json:"details"` // JSON
	IP         string    `gorm:"size:50" json:"ip"`
	UserAgent  string    `gorm:"size:500" json:"user_agent"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
