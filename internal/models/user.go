package models

import "time"

const (
	RoleFreelancer = "freelancer"
	RoleClient     = "client"
	RoleAdmin      = "admin"
)

// User represents an account on the platform
type User struct {
	Base
	Email     string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string     `gorm:"size:200" json:"name"`
	Password  string     `gorm:"size:255" json:"-"` // bcrypt hash
	Role      string     `gorm:"size:20;default:freelancer" json:"role"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login"`
}

func (User) TableName() string { return "users" }
