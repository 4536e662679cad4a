package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/internal/utils"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

// InvitationService lets a freelancer bring a client onto a project.
type InvitationService struct {
	db      *gorm.DB
	effects EffectSink
	baseURL string
	now     func() time.Time
}

func NewInvitationService(db *gorm.DB, effects EffectSink, baseURL string) *InvitationService {
	return &InvitationService{
		db:      db,
		effects: effects,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
}

type CreateInvitationRequest struct {
	ProjectID   string `json:"project_id" binding:"required"`
	ClientEmail string `json:"client_email" binding:"required"`
}

// InvitationView is what a client sees when opening an invitation link.
type InvitationView struct {
	Invitation   *models.Invitation `json:"invitation"`
	ProjectTitle string             `json:"project_title"`
	Freelancer   string             `json:"freelancer_name"`
}

// Link returns the client-facing URL for an invitation token.
func (s *InvitationService) Link(token string) string {
	return fmt.Sprintf("%s/invitations/%s", s.baseURL, token)
}

func (s *InvitationService) Create(ctx context.Context, req *CreateInvitationRequest, v Viewer) (*models.Invitation, []string, error) {
	email := strings.ToLower(strings.TrimSpace(req.ClientEmail))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, response.NewValidation("invalid client email")
	}

	now := s.now()
	var inv *models.Invitation
	var effects []Effect
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := loadProject(tx, req.ProjectID)
		if err != nil {
			return err
		}
		if project.FreelancerID != v.ID {
			return response.NewForbidden("only the project freelancer can invite a client")
		}
		if project.Status != models.ProjectPendingInvitation && project.Status != models.ProjectInvitationExpired {
			return response.NewValidation(fmt.Sprintf("project in status %s cannot invite a client", project.Status))
		}

		var open int64
		if err := tx.Model(&models.Invitation{}).
			Where("project_id = ? AND status = ? AND expires_at > ?", project.ID, models.InvitationPending, now).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return response.NewConflict("project already has an open invitation")
		}

		token, err := utils.RandomToken(32)
		if err != nil {
			return err
		}
		inv = &models.Invitation{
			ProjectID:    project.ID,
			FreelancerID: v.ID,
			ClientEmail:  email,
			Token:        token,
			Status:       models.InvitationPending,
			ExpiresAt:    now.Add(models.InvitationTTL),
		}
		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		// re-inviting revives an expired project
		if project.Status == models.ProjectInvitationExpired {
			if err := tx.Model(&models.Project{}).Where("id = ?", project.ID).
				Updates(map[string]interface{}{
					"status":          models.ProjectPendingInvitation,
					"previous_status": project.Status,
					"expired_reason":  "",
				}).Error; err != nil {
				return err
			}
		}

		freelancerName := v.Email
		if u := loadUser(tx, v.ID); u != nil && u.Name != "" {
			freelancerName = u.Name
		}
		effects = append(effects,
			emailEffect(simpleEmail(email,
				fmt.Sprintf("%s invited you to %q", freelancerName, project.Title),
				"Project invitation",
				fmt.Sprintf("%s would like to work with you on %q.", freelancerName, project.Title),
				"Open the invitation to accept or decline: "+s.Link(token),
				fmt.Sprintf("The invitation expires on %s.", inv.ExpiresAt.Format("2006-01-02")),
			)),
			auditEffect(AuditEntry{
				EventType:  "invitation_created",
				ActorID:    v.ID,
				EntityType: "invitation",
				EntityID:   inv.ID,
				Message:    "Invitation sent to " + email,
				Details:    map[string]interface{}{"project_id": project.ID},
			}),
		)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inv, s.effects.Dispatch(ctx, effects), nil
}

// GetByToken expires a stale pending invitation on read.
func (s *InvitationService) GetByToken(ctx context.Context, token string) (*InvitationView, error) {
	db := s.db.WithContext(ctx)
	inv, err := s.findByToken(db, token)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InvitationPending && !inv.IsOpen(s.now()) {
		if err := db.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", inv.ID, models.InvitationPending).
			Update("status", models.InvitationExpired).Error; err != nil {
			logger.Warn().Err(err).Str("invitation_id", inv.ID).Msg("[Invitation] failed to expire invitation")
		} else {
			inv.Status = models.InvitationExpired
		}
	}

	view := &InvitationView{Invitation: inv}
	if project, err := loadProject(db, inv.ProjectID); err == nil {
		view.ProjectTitle = project.Title
	}
	if u := loadUser(db, inv.FreelancerID); u != nil {
		view.Freelancer = u.Name
	}
	return view, nil
}

// Accept attaches the caller as the project client and moves the project on
// to contract negotiation.
func (s *InvitationService) Accept(ctx context.Context, token string, v Viewer) (*models.Invitation, []string, error) {
	return s.respond(ctx, token, v, true)
}

// Reject declines the invitation; the project stays open for another invite.
func (s *InvitationService) Reject(ctx context.Context, token string, v Viewer) (*models.Invitation, []string, error) {
	return s.respond(ctx, token, v, false)
}

func (s *InvitationService) respond(ctx context.Context, token string, v Viewer, accept bool) (*models.Invitation, []string, error) {
	now := s.now()
	var inv *models.Invitation
	var effects []Effect
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.findByToken(tx, token)
		if err != nil {
			return err
		}
		if !strings.EqualFold(inv.ClientEmail, v.Email) {
			return response.NewForbidden("invitation was sent to a different email address")
		}
		if !inv.IsOpen(now) {
			if inv.Status == models.InvitationPending {
				return response.NewValidation("invitation has expired")
			}
			return response.NewValidation("invitation is already " + inv.Status)
		}

		status := models.InvitationRejected
		if accept {
			status = models.InvitationAccepted
		}
		res := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ? AND expires_at > ?", inv.ID, models.InvitationPending, now).
			Updates(map[string]interface{}{"status": status, "responded_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("invitation was answered concurrently")
		}
		inv.Status = status
		inv.RespondedAt = &now

		project, err := loadProject(tx, inv.ProjectID)
		if err != nil {
			return err
		}
		if accept {
			res := tx.Model(&models.Project{}).
				Where("id = ? AND status = ?", project.ID, models.ProjectPendingInvitation).
				Updates(map[string]interface{}{
					"client_id":    v.ID,
					"client_email": inv.ClientEmail,
					"status":       models.ProjectPendingContract,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return response.NewConflict("project is no longer waiting for a client")
			}
		}

		verb := "declined"
		if accept {
			verb = "accepted"
		}
		effects = append(effects,
			notifyEffect(NotifyInput{
				UserID:    inv.FreelancerID,
				Type:      models.NotifyInvitation,
				Title:     "Invitation " + verb,
				Message:   fmt.Sprintf("%s %s your invitation to %q.", inv.ClientEmail, verb, project.Title),
				ProjectID: &project.ID,
			}),
			auditEffect(AuditEntry{
				EventType:  "invitation_" + status,
				ActorID:    v.ID,
				EntityType: "invitation",
				EntityID:   inv.ID,
				Message:    fmt.Sprintf("Invitation %s by %s", verb, inv.ClientEmail),
				Details:    map[string]interface{}{"project_id": project.ID},
			}),
		)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inv, s.effects.Dispatch(ctx, effects), nil
}

func (s *InvitationService) findByToken(db *gorm.DB, token string) (*models.Invitation, error) {
	if token == "" {
		return nil, response.NewValidation("token is required")
	}
	var inv models.Invitation
	if err := db.Where("token = ?", token).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("invitation not found")
		}
		return nil, err
	}
	return &inv, nil
}
