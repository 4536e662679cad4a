package services

import (
	"context"
	"fmt"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/metrics"
	"gorm.io/gorm"
)

type SweepResult struct {
	ExpiredProjects    int      `json:"expired_projects"`
	ExpiredInvitations int      `json:"expired_invitations"`
	OverdueProjects    int      `json:"overdue_projects"`
	ClearedProjects    int      `json:"cleared_projects"`
	Notified           int      `json:"notified"`
	Warnings           []string `json:"warnings,omitempty"`
}

// DeadlineService expires stale invitations and flags overdue projects.
type DeadlineService struct {
	db      *gorm.DB
	effects EffectSink
	loc     *time.Location
}

func NewDeadlineService(db *gorm.DB, effects EffectSink, loc *time.Location) *DeadlineService {
	if loc == nil {
		loc = time.UTC
	}
	return &DeadlineService{db: db, effects: effects, loc: loc}
}

func (s *DeadlineService) Run(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{}
	if err := s.ExpirePendingInvitations(ctx, now, result); err != nil {
		return nil, err
	}
	if err := s.DetectOverdueProjects(ctx, now, result); err != nil {
		return nil, err
	}
	logger.Info().
		Int("expired_projects", result.ExpiredProjects).
		Int("expired_invitations", result.ExpiredInvitations).
		Int("overdue", result.OverdueProjects).
		Int("cleared", result.ClearedProjects).
		Msg("[Deadline] sweep finished")
	return result, nil
}

// ExpirePendingInvitations closes projects that never got a client or a
// contract before their due date, and invitations past their expiry.
func (s *DeadlineService) ExpirePendingInvitations(ctx context.Context, now time.Time, result *SweepResult) error {
	db := s.db.WithContext(ctx)
	pending := []string{models.ProjectPendingInvitation, models.ProjectPendingContract}

	var projects []models.Project
	if err := db.Where("status IN ? AND due_date IS NOT NULL AND due_date < ?", pending, now).
		Find(&projects).Error; err != nil {
		return fmt.Errorf("load pending projects: %w", err)
	}

	var effects []Effect
	for i := range projects {
		p := &projects[i]
		reason := "due date passed before a client accepted the invitation"
		if p.Status == models.ProjectPendingContract {
			reason = "due date passed before a contract was signed"
		}
		res := db.Model(&models.Project{}).
			Where("id = ? AND status = ?", p.ID, p.Status).
			Updates(map[string]interface{}{
				"status":          models.ProjectInvitationExpired,
				"previous_status": p.Status,
				"expired_reason":  reason,
			})
		if res.Error != nil {
			logger.Warn().Err(res.Error).Str("project_id", p.ID).Msg("[Deadline] failed to expire project")
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		result.ExpiredProjects++
		metrics.IncSweepTransition("project_expired")

		if err := db.Model(&models.Invitation{}).
			Where("project_id = ? AND status = ?", p.ID, models.InvitationPending).
			Update("status", models.InvitationExpired).Error; err != nil {
			logger.Warn().Err(err).Str("project_id", p.ID).Msg("[Deadline] failed to expire project invitations")
		}

		effects = append(effects,
			notifyEffect(NotifyInput{
				UserID:    p.FreelancerID,
				Type:      models.NotifyInvitation,
				Title:     "Project expired",
				Message:   fmt.Sprintf("%q expired: %s.", p.Title, reason),
				ProjectID: &p.ID,
			}),
			auditEffect(AuditEntry{
				EventType:  "project_expired",
				EntityType: "project",
				EntityID:   p.ID,
				Message:    reason,
				Details:    map[string]interface{}{"previous_status": p.Status},
			}),
		)
	}

	res := db.Model(&models.Invitation{}).
		Where("status = ? AND expires_at < ?", models.InvitationPending, now).
		Update("status", models.InvitationExpired)
	if res.Error != nil {
		return fmt.Errorf("expire invitations: %w", res.Error)
	}
	result.ExpiredInvitations = int(res.RowsAffected)
	for i := int64(0); i < res.RowsAffected; i++ {
		metrics.IncSweepTransition("invitation_expired")
	}

	result.Warnings = append(result.Warnings, s.effects.Dispatch(ctx, effects)...)
	return nil
}

// DetectOverdueProjects flags active projects past their due date. The
// project stays active; parties are reminded on the first day and weekly
// after that.
func (s *DeadlineService) DetectOverdueProjects(ctx context.Context, now time.Time, result *SweepResult) error {
	db := s.db.WithContext(ctx)

	var overdue []models.Project
	if err := db.Where("status = ? AND due_date IS NOT NULL AND due_date < ?", models.ProjectActive, now).
		Find(&overdue).Error; err != nil {
		return fmt.Errorf("load overdue projects: %w", err)
	}

	var effects []Effect
	for i := range overdue {
		p := &overdue[i]
		// a due time earlier today counts as overdue by zero days
		days := max(daysBetween(*p.DueDate, now, s.loc), 0)
		notify := (!p.IsOverdue || days%7 == 0) && !s.notifiedToday(p, now)

		updates := map[string]interface{}{
			"is_overdue":   true,
			"days_overdue": days,
		}
		if notify {
			updates["overdue_notified_at"] = now
		}
		if err := db.Model(&models.Project{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
			logger.Warn().Err(err).Str("project_id", p.ID).Msg("[Deadline] failed to flag overdue project")
			continue
		}
		if !p.IsOverdue {
			result.OverdueProjects++
			metrics.IncSweepTransition("project_overdue")
		}
		if !notify {
			continue
		}

		result.Notified++
		for _, uid := range []string{p.FreelancerID, p.ClientID} {
			if uid == "" {
				continue
			}
			effects = append(effects, notifyEffect(NotifyInput{
				UserID:    uid,
				Type:      models.NotifyProjectOverdue,
				Title:     "Project overdue",
				Message:   fmt.Sprintf("%q is %d day(s) past its due date.", p.Title, days),
				ProjectID: &p.ID,
			}))
		}
		effects = append(effects, auditEffect(AuditEntry{
			EventType:  "project_overdue",
			EntityType: "project",
			EntityID:   p.ID,
			Message:    fmt.Sprintf("Project %d day(s) overdue", days),
		}))
	}

	// due date moved out again
	res := db.Model(&models.Project{}).
		Where("status = ? AND is_overdue = ? AND (due_date IS NULL OR due_date >= ?)", models.ProjectActive, true, now).
		Updates(map[string]interface{}{"is_overdue": false, "days_overdue": 0})
	if res.Error != nil {
		return fmt.Errorf("clear overdue flags: %w", res.Error)
	}
	result.ClearedProjects = int(res.RowsAffected)

	result.Warnings = append(result.Warnings, s.effects.Dispatch(ctx, effects)...)
	return nil
}

func (s *DeadlineService) notifiedToday(p *models.Project, now time.Time) bool {
	return p.OverdueNotifiedAt != nil && daysBetween(*p.OverdueNotifiedAt, now, s.loc) == 0
}
