package models

import "time"

const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

const (
	SessionActive  = "active"
	SessionStopped = "stopped"
)

type Task struct {
	Base
	ProjectID      string   `gorm:"size:36;index;not null" json:"project_id"`
	Title          string   `gorm:"size:200;not null" json:"title"`
	Description    string   `gorm:"type:text" json:"description"`
	Status         string   `gorm:"size:20;default:todo" json:"status"`
	AssigneeID     string   `gorm:"size:36" json:"assignee_id"`
	Billable       bool     `json:"billable"`
	EstimatedHours *float64 `json:"estimated_hours"`
	ActualHours    *float64 `json:"actual_hours"`
}

func (Task) TableName() string { return "tasks" }

// TrackedHours is actual hours when recorded, otherwise the estimate, otherwise zero.
func (t *Task) TrackedHours() float64 {
	if t.ActualHours != nil {
		return *t.ActualHours
	}
	if t.EstimatedHours != nil {
		return *t.EstimatedHours
	}
	return 0
}

// TimeSession is a persisted timer for one (task, user) pair. At most one
// session per pair is active at a time.
type TimeSession struct {
	Base
	TaskID          string     `gorm:"size:36;index:idx_session_task_user;not null" json:"task_id"`
	UserID          string     `gorm:"size:36;index:idx_session_task_user;not null" json:"user_id"`
	Status          string     `gorm:"size:20;index" json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at"`
	DurationSeconds int64      `json:"duration_seconds"`
}

func (TimeSession) TableName() string { return "time_sessions" }
