package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

// UserService is the admin view over accounts.
type UserService struct {
	db      *gorm.DB
	effects EffectSink
	now     func() time.Time
}

func NewUserService(db *gorm.DB, effects EffectSink) *UserService {
	return &UserService{db: db, effects: effects, now: time.Now}
}

type UserListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Email    string `form:"email"`
	Role     string `form:"role"`
}

type UserListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.User `json:"items"`
}

func (s *UserService) List(ctx context.Context, req *UserListRequest) (*UserListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if req.Email != "" {
		query = query.Where("email LIKE ?", "%"+strings.ToLower(req.Email)+"%")
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var users []models.User
	if err := query.Order("created_at ASC").Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&users).Error; err != nil {
		return nil, err
	}
	return &UserListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: users}, nil
}

type UpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Name     *string `json:"name"`
}

// Update changes an account's role, name or active flag. Disabling an account
// also revokes its refresh tokens.
func (s *UserService) Update(ctx context.Context, id string, req *UpdateUserRequest, actor Viewer) (*models.User, []string, error) {
	if id == actor.ID {
		return nil, nil, response.NewValidation("cannot modify your own account")
	}

	updates := map[string]interface{}{}
	if req.Role != nil {
		switch *req.Role {
		case models.RoleFreelancer, models.RoleClient, models.RoleAdmin:
			updates["role"] = *req.Role
		default:
			return nil, nil, response.NewValidation("role must be freelancer, client or admin")
		}
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if len(updates) == 0 {
		return nil, nil, response.NewValidation("no fields to update")
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.NewNotFound("user not found")
			}
			return err
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		if req.IsActive != nil && !*req.IsActive {
			if err := tx.Model(&models.RefreshToken{}).
				Where("user_id = ? AND revoked_at IS NULL", id).
				Update("revoked_at", s.now()).Error; err != nil {
				return err
			}
		}
		return tx.First(&user, "id = ?", id).Error
	})
	if err != nil {
		return nil, nil, err
	}

	warnings := s.effects.Dispatch(ctx, []Effect{auditEffect(AuditEntry{
		EventType:  "user_updated",
		ActorID:    actor.ID,
		EntityType: "user",
		EntityID:   user.ID,
		Message:    fmt.Sprintf("Updated %s", user.Email),
		Details:    updates,
	})})
	return &user, warnings, nil
}
