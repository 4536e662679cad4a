package services

import (
	"context"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

type NotifyInput struct {
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	ProjectID *string `json:"project_id,omitempty"`
}

// NotificationService stores in-app notifications.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (*models.Notification, error) {
	if in.UserID == "" {
		return nil, response.NewValidation("notification recipient is required")
	}
	n := &models.Notification{
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		ProjectID: in.ProjectID,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	GetSSEHub().Publish(n)
	return n, nil
}

type NotificationListResponse struct {
	Total  int64                 `json:"total"`
	Unread int64                 `json:"unread"`
	Items  []models.Notification `json:"items"`
}

func (s *NotificationService) List(userID string, unreadOnly bool, limit int) (*NotificationListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := s.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total, unread int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	s.db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&unread)

	var items []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return &NotificationListResponse{Total: total, Unread: unread, Items: items}, nil
}

func (s *NotificationService) MarkRead(userID, id string) error {
	var n models.Notification
	if err := s.db.First(&n, "id = ?", id).Error; err != nil {
		return response.NewNotFound("notification not found")
	}
	if n.UserID != userID {
		return response.NewForbidden("not your notification")
	}
	if n.Read {
		return nil
	}
	now := time.Now()
	return s.db.Model(&n).Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error
}

func (s *NotificationService) MarkAllRead(userID string) (int64, error) {
	result := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	return result.RowsAffected, result.Error
}
