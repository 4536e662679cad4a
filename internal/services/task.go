package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TaskService manages project tasks and their time sessions.
type TaskService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db, now: time.Now}
}

type CreateTaskRequest struct {
	ProjectID      string   `json:"project_id" binding:"required"`
	Title          string   `json:"title" binding:"required"`
	Description    string   `json:"description"`
	AssigneeID     string   `json:"assignee_id"`
	Billable       *bool    `json:"billable"`
	EstimatedHours *float64 `json:"estimated_hours"`
}

type UpdateTaskRequest struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	Status         *string  `json:"status"`
	AssigneeID     *string  `json:"assignee_id"`
	Billable       *bool    `json:"billable"`
	EstimatedHours *float64 `json:"estimated_hours"`
	ActualHours    *float64 `json:"actual_hours"`
}

type TimerResult struct {
	Task    *models.Task        `json:"task"`
	Session *models.TimeSession `json:"session"`
	Hours   float64             `json:"hours,omitempty"`
}

func validTaskStatus(status string) bool {
	switch status {
	case models.TaskTodo, models.TaskInProgress, models.TaskDone:
		return true
	}
	return false
}

func (s *TaskService) projectForParty(db *gorm.DB, projectID string, v Viewer) (*models.Project, error) {
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin() && !v.IsProjectParty(project) {
		return nil, response.NewForbidden("not a party to this project")
	}
	return project, nil
}

func (s *TaskService) loadTask(db *gorm.DB, id string, v Viewer) (*models.Task, error) {
	var task models.Task
	if err := db.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("task not found")
		}
		return nil, err
	}
	if _, err := s.projectForParty(db, task.ProjectID, v); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) List(ctx context.Context, projectID string, v Viewer) ([]models.Task, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.projectForParty(db, projectID, v); err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskService) Create(ctx context.Context, req *CreateTaskRequest, v Viewer) (*models.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, response.NewValidation("title is required")
	}
	if req.EstimatedHours != nil && *req.EstimatedHours < 0 {
		return nil, response.NewValidation("estimated_hours must be >= 0")
	}
	db := s.db.WithContext(ctx)
	if _, err := s.projectForParty(db, req.ProjectID, v); err != nil {
		return nil, err
	}

	billable := true
	if req.Billable != nil {
		billable = *req.Billable
	}
	assignee := req.AssigneeID
	if assignee == "" {
		assignee = v.ID
	}
	task := models.Task{
		ProjectID:      req.ProjectID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Status:         models.TaskTodo,
		AssigneeID:     assignee,
		Billable:       billable,
		EstimatedHours: req.EstimatedHours,
	}
	if err := db.Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) Update(ctx context.Context, id string, req *UpdateTaskRequest, v Viewer) (*models.Task, error) {
	db := s.db.WithContext(ctx)
	task, err := s.loadTask(db, id, v)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, response.NewValidation("title cannot be empty")
		}
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		if !validTaskStatus(*req.Status) {
			return nil, response.NewValidation("status must be todo, in_progress or done")
		}
		updates["status"] = *req.Status
	}
	if req.AssigneeID != nil {
		updates["assignee_id"] = *req.AssigneeID
	}
	if req.Billable != nil {
		updates["billable"] = *req.Billable
	}
	if req.EstimatedHours != nil {
		if *req.EstimatedHours < 0 {
			return nil, response.NewValidation("estimated_hours must be >= 0")
		}
		updates["estimated_hours"] = *req.EstimatedHours
	}
	if req.ActualHours != nil {
		if *req.ActualHours < 0 {
			return nil, response.NewValidation("actual_hours must be >= 0")
		}
		updates["actual_hours"] = *req.ActualHours
	}
	if len(updates) > 0 {
		if err := db.Model(&models.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.loadTask(db, id, v)
}

func (s *TaskService) Delete(ctx context.Context, id string, v Viewer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.loadTask(tx, id, v)
		if err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TimeSession{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, "id = ?", task.ID).Error
	})
}

// StartTimer opens a session for the caller on the task. Only one session
// per task and user may be active.
func (s *TaskService) StartTimer(ctx context.Context, taskID string, v Viewer) (*TimerResult, error) {
	now := s.now()
	result := &TimerResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.loadTask(tx, taskID, v)
		if err != nil {
			return err
		}
		var running int64
		if err := tx.Model(&models.TimeSession{}).
			Where("task_id = ? AND user_id = ? AND status = ?", task.ID, v.ID, models.SessionActive).
			Count(&running).Error; err != nil {
			return err
		}
		if running > 0 {
			return response.NewConflict("timer already running for this task")
		}

		session := &models.TimeSession{
			TaskID:    task.ID,
			UserID:    v.ID,
			Status:    models.SessionActive,
			StartedAt: now,
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		if task.Status == models.TaskTodo {
			if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).
				Update("status", models.TaskInProgress).Error; err != nil {
				return err
			}
			task.Status = models.TaskInProgress
		}
		result.Task = task
		result.Session = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StopTimer closes the caller's active session and adds its duration to the
// task's actual hours.
func (s *TaskService) StopTimer(ctx context.Context, taskID string, v Viewer) (*TimerResult, error) {
	now := s.now()
	result := &TimerResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.loadTask(tx, taskID, v)
		if err != nil {
			return err
		}
		var session models.TimeSession
		if err := tx.Where("task_id = ? AND user_id = ? AND status = ?", task.ID, v.ID, models.SessionActive).
			Order("started_at DESC").First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.NewValidation("no running timer for this task")
			}
			return err
		}

		seconds := int64(now.Sub(session.StartedAt) / time.Second)
		if seconds < 0 {
			seconds = 0
		}
		res := tx.Model(&models.TimeSession{}).
			Where("id = ? AND status = ?", session.ID, models.SessionActive).
			Updates(map[string]interface{}{
				"status":           models.SessionStopped,
				"stopped_at":       now,
				"duration_seconds": seconds,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("timer was stopped concurrently")
		}
		session.Status = models.SessionStopped
		session.StoppedAt = &now
		session.DurationSeconds = seconds

		hours, _ := decimal.NewFromInt(seconds).Div(decimal.NewFromInt(3600)).Round(2).Float64()
		actual := 0.0
		if task.ActualHours != nil {
			actual = *task.ActualHours
		}
		actual = sumMoney(actual, hours)
		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Update("actual_hours", actual).Error; err != nil {
			return err
		}
		task.ActualHours = &actual

		result.Task = task
		result.Session = &session
		result.Hours = hours
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("task_id", taskID).Float64("hours", result.Hours).Msg("[Task] timer stopped")
	return result, nil
}
