package models

import "time"

// RefreshToken is a rotating long-lived credential; only its SHA-256 hash is stored.
type RefreshToken struct {
	Base
	UserID            string     `gorm:"size:36;index;not null" json:"user_id"`
	TokenHash         string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt         time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt         *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	ReplacedByTokenID *string    `gorm:"size:36" json:"replaced_by_token_id,omitempty"`
	CreatedByIP       string     `gorm:"size:64" json:"created_by_ip,omitempty"`
	UserAgent         string     `gorm:"size:255" json:"user_agent,omitempty"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }
