package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/metrics"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

type ApprovalResult struct {
	Milestone        *models.Milestone `json:"milestone"`
	Invoice          *models.Invoice   `json:"invoice,omitempty"`
	ProjectCompleted bool              `json:"project_completed"`
	DaysOverdue      int               `json:"days_overdue,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

type RevisionResult struct {
	Milestone          *models.Milestone `json:"milestone"`
	RevisionCount      int               `json:"revision_count"`
	RemainingRevisions int               `json:"remaining_revisions"`
	Warnings           []string          `json:"warnings,omitempty"`
}

// ApprovalService handles client decisions on delivered milestones and the
// invoices that follow from them.
type ApprovalService struct {
	db      *gorm.DB
	effects EffectSink
	loc     *time.Location
	now     func() time.Time
}

func NewApprovalService(db *gorm.DB, effects EffectSink, loc *time.Location) *ApprovalService {
	if loc == nil {
		loc = time.UTC
	}
	return &ApprovalService{db: db, effects: effects, loc: loc, now: time.Now}
}

// loadForClient resolves the milestone and its project and checks that v is
// the project client. projectID may be empty.
func (s *ApprovalService) loadForClient(db *gorm.DB, projectID, milestoneID string, v Viewer) (*models.Project, *models.Milestone, error) {
	milestone, err := loadMilestone(db, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	if projectID == "" {
		projectID = milestone.ProjectID
	}
	if milestone.ProjectID != projectID {
		return nil, nil, response.NewNotFound("milestone not found in project")
	}
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, nil, err
	}
	if !project.IsClient(v.ID, v.Email) {
		return nil, nil, response.NewForbidden("only the project client can review milestones")
	}
	return project, milestone, nil
}

func (s *ApprovalService) ApproveMilestone(ctx context.Context, projectID, milestoneID string, v Viewer) (*ApprovalResult, error) {
	project, milestone, err := s.loadForClient(s.db.WithContext(ctx), projectID, milestoneID, v)
	if err != nil {
		return nil, err
	}
	if milestone.ClientApproved || milestone.Status == models.MilestoneApproved || milestone.Status == models.MilestonePaid {
		return nil, response.NewValidation("milestone is already approved")
	}

	now := s.now()
	result := &ApprovalResult{}
	if milestone.DueDate != nil {
		if days := daysBetween(*milestone.DueDate, now, s.loc); days > 0 {
			result.DaysOverdue = days
		}
	}

	var effects []Effect
	var invoices []*models.Invoice

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a milestone billed at signing keeps its invoiced status
		status := models.MilestoneApproved
		if milestone.InvoiceID != nil {
			status = models.MilestoneInvoiced
		}
		res := tx.Model(&models.Milestone{}).
			Where("id = ? AND version = ?", milestone.ID, milestone.Version).
			Updates(map[string]interface{}{
				"status":          status,
				"client_approved": true,
				"approved_at":     now,
				"approved_by":     v.ID,
				"version":         milestone.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("milestone was modified concurrently, please retry")
		}

		milestones, err := projectMilestones(tx, project.ID)
		if err != nil {
			return err
		}
		current := findMilestone(milestones, milestone.ID)
		policy := s.paymentPolicy(tx, project)

		if policy == models.PaymentPolicyMilestone && current.InvoiceID == nil {
			inv, invEffects, warnings := s.invoiceMilestone(tx, project, current, milestones, result.DaysOverdue, now)
			result.Warnings = append(result.Warnings, warnings...)
			if inv != nil {
				invoices = append(invoices, inv)
				result.Invoice = inv
				effects = append(effects, invEffects...)
			}
		}

		if allSettled(milestones) {
			result.ProjectCompleted = true
			if err := tx.Model(project).Updates(map[string]interface{}{
				"status":       models.ProjectCompleted,
				"completed_at": now,
				"progress":     100,
			}).Error; err != nil {
				return err
			}

			if policy == models.PaymentPolicyEnd {
				inv, invEffects, warnings := s.invoiceCompletion(tx, project, milestones, now)
				result.Warnings = append(result.Warnings, warnings...)
				if inv != nil {
					invoices = append(invoices, inv)
					result.Invoice = inv
					effects = append(effects, invEffects...)
				}
			}
		} else {
			if err := tx.Model(project).Update("progress", progressOf(milestones)).Error; err != nil {
				return err
			}
		}

		result.Milestone = findMilestone(milestones, milestone.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, inv := range invoices {
		metrics.IncInvoiceCreated(inv.Source)
	}

	effects = append(effects, auditEffect(AuditEntry{
		EventType:  "milestone_approved",
		ActorID:    v.ID,
		EntityType: "milestone",
		EntityID:   milestone.ID,
		Message:    fmt.Sprintf("Milestone %q approved", milestone.Title),
		Details: map[string]interface{}{
			"project_id":   project.ID,
			"days_overdue": result.DaysOverdue,
		},
	}))
	if result.ProjectCompleted {
		for _, uid := range []string{project.FreelancerID, project.ClientID} {
			if uid == "" {
				continue
			}
			effects = append(effects, notifyEffect(NotifyInput{
				UserID:    uid,
				Type:      models.NotifyProjectCompleted,
				Title:     "Project completed",
				Message:   fmt.Sprintf("All milestones of %q have been approved.", project.Title),
				ProjectID: &project.ID,
			}))
		}
		effects = append(effects, auditEffect(AuditEntry{
			EventType:  "project_completed",
			ActorID:    v.ID,
			EntityType: "project",
			EntityID:   project.ID,
			Message:    "Project " + project.Title + " completed",
		}))
	} else {
		effects = append(effects, notifyEffect(NotifyInput{
			UserID:    project.FreelancerID,
			Type:      models.NotifyMilestoneApproved,
			Title:     "Milestone approved",
			Message:   fmt.Sprintf("%q was approved by the client.", milestone.Title),
			ProjectID: &project.ID,
		}))
		if freelancer := loadUser(s.db.WithContext(ctx), project.FreelancerID); freelancer != nil {
			effects = append(effects, emailEffect(simpleEmail(freelancer.Email,
				"Milestone approved: "+milestone.Title, "Milestone approved",
				fmt.Sprintf("The client approved milestone %q of project %q.", milestone.Title, project.Title))))
		}
	}

	result.Warnings = append(result.Warnings, s.effects.Dispatch(ctx, effects)...)
	return result, nil
}

// invoiceMilestone bills one approved milestone. The last milestone also
// carries the project's billable hours. Failures are reported as warnings.
func (s *ApprovalService) invoiceMilestone(tx *gorm.DB, project *models.Project, m *models.Milestone, all []models.Milestone, daysOverdue int, now time.Time) (*models.Invoice, []Effect, []string) {
	var warnings []string
	var notes []string
	if daysOverdue > 0 {
		notes = append(notes, fmt.Sprintf("Milestone approved %d day(s) after its due date.", daysOverdue))
	}

	items := []LineItemInput{milestoneLine(m)}
	if isLastMilestone(all, m) {
		hours := calculateBillableHours(tx, project.ID, project.HourlyRate, project.ContractID)
		if hours.CappedHours > 0 {
			items = append(items, LineItemInput{Description: "Billable hours", Quantity: hours.CappedHours, Rate: project.HourlyRate})
		}
		if hours.WarningMessage != nil {
			notes = append(notes, *hours.WarningMessage)
			warnings = append(warnings, *hours.WarningMessage)
		}
	}

	req := s.invoiceRequest(tx, project, items, now)
	req.MilestoneID = &m.ID
	req.Notes = strings.Join(notes, "\n")
	req.Source = models.InvoiceSourceMilestone

	inv, effects, err := s.createInvoiceFor(tx, req, []*models.Milestone{m}, now)
	if err != nil {
		logger.Warn().Err(err).Str("milestone_id", m.ID).Msg("milestone invoice generation failed")
		return nil, nil, append(warnings, "invoice generation failed: "+err.Error())
	}
	return inv, effects, warnings
}

// invoiceCompletion raises the single end-of-project invoice covering every
// milestone not billed yet plus all billable hours.
func (s *ApprovalService) invoiceCompletion(tx *gorm.DB, project *models.Project, all []models.Milestone, now time.Time) (*models.Invoice, []Effect, []string) {
	var warnings []string
	var items []LineItemInput
	var billed []*models.Milestone
	for i := range all {
		if all[i].InvoiceID != nil || all[i].Status == models.MilestonePaid {
			continue
		}
		items = append(items, milestoneLine(&all[i]))
		billed = append(billed, &all[i])
	}

	var notes []string
	hours := calculateBillableHours(tx, project.ID, project.HourlyRate, project.ContractID)
	if hours.CappedHours > 0 {
		items = append(items, LineItemInput{Description: "Billable hours", Quantity: hours.CappedHours, Rate: project.HourlyRate})
	}
	if hours.WarningMessage != nil {
		notes = append(notes, *hours.WarningMessage)
		warnings = append(warnings, *hours.WarningMessage)
	}
	if len(items) == 0 {
		return nil, nil, warnings
	}

	req := s.invoiceRequest(tx, project, items, now)
	req.Notes = strings.Join(notes, "\n")
	req.Source = models.InvoiceSourceCompletion

	inv, effects, err := s.createInvoiceFor(tx, req, billed, now)
	if err != nil {
		logger.Warn().Err(err).Str("project_id", project.ID).Msg("completion invoice generation failed")
		return nil, nil, append(warnings, "invoice generation failed: "+err.Error())
	}
	return inv, effects, warnings
}

// createInvoiceFor creates the invoice under a savepoint and marks the
// milestones it covers as invoiced.
func (s *ApprovalService) createInvoiceFor(tx *gorm.DB, req *CreateInvoiceRequest, milestones []*models.Milestone, now time.Time) (*models.Invoice, []Effect, error) {
	var inv *models.Invoice
	var effects []Effect
	err := tx.Transaction(func(sp *gorm.DB) error {
		var err error
		inv, effects, err = createInvoiceTx(sp, req, now)
		if err != nil {
			return err
		}
		for _, m := range milestones {
			res := sp.Model(&models.Milestone{}).
				Where("id = ? AND version = ?", m.ID, m.Version).
				Updates(map[string]interface{}{
					"status":     models.MilestoneInvoiced,
					"invoice_id": inv.ID,
					"version":    m.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return response.NewConflict("milestone " + m.ID + " was modified concurrently")
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for _, m := range milestones {
		m.Status = models.MilestoneInvoiced
		m.InvoiceID = &inv.ID
		m.Version++
	}
	return inv, effects, nil
}

func (s *ApprovalService) invoiceRequest(tx *gorm.DB, project *models.Project, items []LineItemInput, now time.Time) *CreateInvoiceRequest {
	clientEmail := project.ClientEmail
	if clientEmail == "" {
		if client := loadUser(tx, project.ClientID); client != nil {
			clientEmail = client.Email
		}
	}
	due := defaultDueDate(project, now)
	return &CreateInvoiceRequest{
		ProjectID:    &project.ID,
		FreelancerID: project.FreelancerID,
		ClientID:     project.ClientID,
		ClientEmail:  clientEmail,
		LineItems:    items,
		TaxRate:      project.TaxRate,
		IssueDate:    &now,
		DueDate:      &due,
	}
}

// paymentPolicy prefers the signed contract's policy over the project's.
func (s *ApprovalService) paymentPolicy(tx *gorm.DB, project *models.Project) string {
	if project.ContractID != nil {
		if contract, err := loadContract(tx, *project.ContractID); err == nil && contract.PaymentPolicy != "" {
			return contract.PaymentPolicy
		}
	}
	if project.PaymentPolicy == "" {
		return models.PaymentPolicyMilestone
	}
	return project.PaymentPolicy
}

func (s *ApprovalService) RequestRevision(ctx context.Context, projectID, milestoneID string, v Viewer, comment string) (*RevisionResult, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, response.NewValidation("revision comment is required")
	}

	project, milestone, err := s.loadForClient(s.db.WithContext(ctx), projectID, milestoneID, v)
	if err != nil {
		return nil, err
	}
	if milestone.ClientApproved || milestone.Status == models.MilestoneApproved || milestone.Status == models.MilestonePaid {
		return nil, response.NewValidation("an approved milestone cannot be sent back for revision")
	}
	if milestone.RevisionCount >= milestone.MaxRevisions {
		return nil, response.NewRevisionLimitExceeded(
			fmt.Sprintf("revision limit reached (%d of %d used)", milestone.RevisionCount, milestone.MaxRevisions))
	}

	now := s.now()
	count := milestone.RevisionCount + 1

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Milestone{}).
			Where("id = ? AND version = ? AND revision_count < max_revisions", milestone.ID, milestone.Version).
			Updates(map[string]interface{}{
				"status":          models.MilestoneRevisionRequested,
				"client_approved": false,
				"revision_count":  count,
				"version":         milestone.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("milestone was modified concurrently, please retry")
		}

		if err := tx.Create(&models.MilestoneRevision{
			MilestoneID:    milestone.ID,
			RevisionNumber: count,
			Comment:        comment,
			RequestedAt:    now,
			RequestedBy:    v.ID,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&models.ProjectComment{
			ProjectID: project.ID,
			AuthorID:  v.ID,
			Kind:      "revision_request",
			Body:      fmt.Sprintf("Revision %d requested for %q: %s", count, milestone.Title, comment),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	updated, err := loadMilestone(s.db.WithContext(ctx), milestone.ID)
	if err != nil {
		return nil, err
	}
	remaining := updated.MaxRevisions - updated.RevisionCount

	effects := []Effect{
		notifyEffect(NotifyInput{
			UserID:    project.FreelancerID,
			Type:      models.NotifyRevisionRequested,
			Title:     "Revision requested",
			Message:   fmt.Sprintf("The client requested changes to %q (%d revision(s) left): %s", milestone.Title, remaining, comment),
			ProjectID: &project.ID,
		}),
		auditEffect(AuditEntry{
			EventType:  "revision_requested",
			ActorID:    v.ID,
			EntityType: "milestone",
			EntityID:   milestone.ID,
			Message:    fmt.Sprintf("Revision %d requested", count),
			Details:    map[string]interface{}{"project_id": project.ID, "remaining": remaining},
		}),
	}
	if freelancer := loadUser(s.db.WithContext(ctx), project.FreelancerID); freelancer != nil {
		effects = append(effects, emailEffect(simpleEmail(freelancer.Email,
			"Revision requested: "+milestone.Title, "Revision requested",
			fmt.Sprintf("The client requested a revision of milestone %q.", milestone.Title),
			comment,
			fmt.Sprintf("Revisions remaining: %d", remaining))))
	}

	return &RevisionResult{
		Milestone:          updated,
		RevisionCount:      updated.RevisionCount,
		RemainingRevisions: remaining,
		Warnings:           s.effects.Dispatch(ctx, effects),
	}, nil
}

type PendingApproval struct {
	ProjectID    string           `json:"project_id"`
	ProjectTitle string           `json:"project_title"`
	Milestone    models.Milestone `json:"milestone"`
}

// PendingApprovals lists delivered milestones waiting on the client.
func (s *ApprovalService) PendingApprovals(ctx context.Context, v Viewer) ([]PendingApproval, error) {
	var projects []models.Project
	query := s.db.WithContext(ctx).Where("client_id = ?", v.ID)
	if v.Email != "" {
		query = query.Or("client_email = ?", v.Email)
	}
	if err := query.Find(&projects).Error; err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return []PendingApproval{}, nil
	}

	titles := make(map[string]string, len(projects))
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		titles[p.ID] = p.Title
		ids = append(ids, p.ID)
	}

	var milestones []models.Milestone
	if err := s.db.WithContext(ctx).
		Where("project_id IN ?", ids).
		Where("status = ? OR (status = ? AND client_approved = ? AND completed_at IS NOT NULL)",
			models.MilestoneCompleted, models.MilestoneInvoiced, false).
		Order("completed_at ASC").
		Find(&milestones).Error; err != nil {
		return nil, err
	}

	out := make([]PendingApproval, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, PendingApproval{ProjectID: m.ProjectID, ProjectTitle: titles[m.ProjectID], Milestone: m})
	}
	return out, nil
}

// CompleteMilestone is the freelancer handing in a milestone for review.
func (s *ApprovalService) CompleteMilestone(ctx context.Context, projectID, milestoneID string, v Viewer) (*models.Milestone, []string, error) {
	milestone, err := loadMilestone(s.db.WithContext(ctx), milestoneID)
	if err != nil {
		return nil, nil, err
	}
	if milestone.ProjectID != projectID {
		return nil, nil, response.NewNotFound("milestone not found in project")
	}
	project, err := loadProject(s.db.WithContext(ctx), projectID)
	if err != nil {
		return nil, nil, err
	}
	if project.FreelancerID != v.ID {
		return nil, nil, response.NewForbidden("only the project freelancer can complete milestones")
	}
	if project.Status != models.ProjectActive {
		return nil, nil, response.NewValidation("project is not active")
	}
	if milestone.ClientApproved {
		return nil, nil, response.NewValidation("milestone is already approved")
	}
	switch milestone.Status {
	case models.MilestonePending, models.MilestoneRevisionRequested, models.MilestoneInvoiced:
	default:
		return nil, nil, response.NewValidation("milestone is " + milestone.Status)
	}

	now := s.now()
	// a milestone billed at signing stays invoiced while under review
	status := models.MilestoneCompleted
	if milestone.InvoiceID != nil {
		status = models.MilestoneInvoiced
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Milestone{}).
			Where("id = ? AND version = ?", milestone.ID, milestone.Version).
			Updates(map[string]interface{}{
				"status":       status,
				"completed_at": now,
				"version":      milestone.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("milestone was modified concurrently, please retry")
		}
		milestones, err := projectMilestones(tx, project.ID)
		if err != nil {
			return err
		}
		return tx.Model(project).Update("progress", progressOf(milestones)).Error
	})
	if err != nil {
		return nil, nil, err
	}

	updated, err := loadMilestone(s.db.WithContext(ctx), milestone.ID)
	if err != nil {
		return nil, nil, err
	}

	var effects []Effect
	if project.ClientID != "" {
		effects = append(effects, notifyEffect(NotifyInput{
			UserID:    project.ClientID,
			Type:      models.NotifyMilestoneApproved,
			Title:     "Milestone ready for review",
			Message:   fmt.Sprintf("%q has been delivered and is waiting for your approval.", milestone.Title),
			ProjectID: &project.ID,
		}))
	}
	if project.ClientEmail != "" {
		effects = append(effects, emailEffect(simpleEmail(project.ClientEmail,
			"Milestone ready for review: "+milestone.Title, "Milestone ready for review",
			fmt.Sprintf("The freelancer delivered milestone %q of project %q.", milestone.Title, project.Title))))
	}
	effects = append(effects, auditEffect(AuditEntry{
		EventType:  "milestone_completed",
		ActorID:    v.ID,
		EntityType: "milestone",
		EntityID:   milestone.ID,
		Message:    fmt.Sprintf("Milestone %q delivered", milestone.Title),
	}))

	return updated, s.effects.Dispatch(ctx, effects), nil
}

func projectMilestones(db *gorm.DB, projectID string) ([]models.Milestone, error) {
	var milestones []models.Milestone
	if err := db.Where("project_id = ?", projectID).Find(&milestones).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(milestones, func(i, j int) bool { return milestones[i].Position < milestones[j].Position })
	return milestones, nil
}

func findMilestone(milestones []models.Milestone, id string) *models.Milestone {
	for i := range milestones {
		if milestones[i].ID == id {
			return &milestones[i]
		}
	}
	return nil
}

func isLastMilestone(milestones []models.Milestone, m *models.Milestone) bool {
	for i := range milestones {
		if milestones[i].Position > m.Position {
			return false
		}
	}
	return true
}

func allSettled(milestones []models.Milestone) bool {
	if len(milestones) == 0 {
		return false
	}
	for i := range milestones {
		if !milestones[i].IsSettled() {
			return false
		}
	}
	return true
}

// progressOf is the share of milestones delivered or settled, in percent.
func progressOf(milestones []models.Milestone) int {
	if len(milestones) == 0 {
		return 0
	}
	done := 0
	for i := range milestones {
		if milestones[i].CountsAsDone() {
			done++
		}
	}
	return done * 100 / len(milestones)
}
