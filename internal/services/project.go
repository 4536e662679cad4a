package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProjectService struct {
	db      *gorm.DB
	effects EffectSink
}

func NewProjectService(db *gorm.DB, effects EffectSink) *ProjectService {
	return &ProjectService{db: db, effects: effects}
}

type ProjectListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	Title    string `form:"title"`
	Archived bool   `form:"archived"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type MilestoneInput struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Amount       float64    `json:"amount"`
	Percentage   float64    `json:"percentage"`
	DueDate      *time.Time `json:"due_date"`
	MaxRevisions *int       `json:"max_revisions"`
}

type CreateProjectRequest struct {
	Title         string           `json:"title" binding:"required"`
	Description   string           `json:"description"`
	ClientEmail   string           `json:"client_email"`
	PaymentPolicy string           `json:"payment_policy"`
	HourlyRate    float64          `json:"hourly_rate"`
	TaxRate       float64          `json:"tax_rate"`
	PaymentTerms  int              `json:"payment_terms"`
	StartDate     *time.Time       `json:"start_date"`
	DueDate       *time.Time       `json:"due_date"`
	Milestones    []MilestoneInput `json:"milestones"`
}

// UpdateProjectRequest carries only the fields being changed.
type UpdateProjectRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	ClientEmail  *string    `json:"client_email"`
	HourlyRate   *float64   `json:"hourly_rate"`
	TaxRate      *float64   `json:"tax_rate"`
	PaymentTerms *int       `json:"payment_terms"`
	StartDate    *time.Time `json:"start_date"`
	DueDate      *time.Time `json:"due_date"`
}

// List returns paginated projects the caller takes part in
func (s *ProjectService) List(ctx context.Context, req *ProjectListRequest, v Viewer) (*ProjectListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 10
	}

	var projects []models.Project
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Project{})
	if !v.IsAdmin() {
		query = query.Where("freelancer_id = ? OR client_id = ? OR client_email = ?", v.ID, v.ID, strings.ToLower(v.Email))
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Title != "" {
		query = query.Where("title LIKE ?", "%"+req.Title+"%")
	}
	query = query.Where("archived = ?", req.Archived)

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// GetByID returns a project with its milestones and their revision history
func (s *ProjectService) GetByID(ctx context.Context, id string, v Viewer) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Milestones.Revisions", func(db *gorm.DB) *gorm.DB { return db.Order("revision_number ASC") }).
		First(&project, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("project not found")
		}
		return nil, err
	}
	if !v.IsAdmin() && !v.IsProjectParty(&project) {
		return nil, response.NewForbidden("not a party to this project")
	}
	return &project, nil
}

// Create creates a project owned by the calling freelancer
func (s *ProjectService) Create(ctx context.Context, req *CreateProjectRequest, v Viewer) (*models.Project, []string, error) {
	if v.Role == models.RoleClient {
		return nil, nil, response.NewForbidden("only freelancers can create projects")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil, response.NewValidation("title is required")
	}
	if req.HourlyRate < 0 {
		return nil, nil, response.NewValidation("hourly_rate must be >= 0")
	}
	if req.TaxRate < 0 || req.TaxRate > 1 {
		return nil, nil, response.NewValidation("tax_rate must be between 0 and 1")
	}
	if req.PaymentTerms < 0 {
		return nil, nil, response.NewValidation("payment_terms must be >= 0")
	}
	if req.PaymentTerms == 0 {
		req.PaymentTerms = 30
	}
	policy := req.PaymentPolicy
	if policy == "" {
		policy = models.PaymentPolicyMilestone
	}
	if policy != models.PaymentPolicyMilestone && policy != models.PaymentPolicyEnd {
		return nil, nil, response.NewValidation("payment_policy must be milestone or end")
	}
	if req.StartDate != nil && req.DueDate != nil && !req.DueDate.After(*req.StartDate) {
		return nil, nil, response.NewValidation("due_date must be after start_date")
	}
	milestones, err := buildMilestones(req.Milestones)
	if err != nil {
		return nil, nil, err
	}

	project := models.Project{
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		FreelancerID:  v.ID,
		ClientEmail:   strings.ToLower(strings.TrimSpace(req.ClientEmail)),
		Status:        models.ProjectPendingInvitation,
		PaymentPolicy: policy,
		HourlyRate:    req.HourlyRate,
		TaxRate:       req.TaxRate,
		PaymentTerms:  req.PaymentTerms,
		StartDate:     req.StartDate,
		DueDate:       req.DueDate,
		Milestones:    milestones,
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, nil, err
	}

	warnings := s.effects.Dispatch(ctx, []Effect{auditEffect(AuditEntry{
		EventType:  "project_created",
		ActorID:    v.ID,
		EntityType: "project",
		EntityID:   project.ID,
		Message:    "Project created: " + project.Title,
		Details:    map[string]interface{}{"milestones": len(milestones)},
	})})
	return &project, warnings, nil
}

// buildMilestones assigns positions and the revision allowance default.
func buildMilestones(inputs []MilestoneInput) ([]models.Milestone, error) {
	milestones := make([]models.Milestone, 0, len(inputs))
	percent := decimal.Zero
	for i, in := range inputs {
		if strings.TrimSpace(in.Title) == "" {
			return nil, response.NewValidation(fmt.Sprintf("milestones[%d].title is required", i))
		}
		if in.Amount < 0 {
			return nil, response.NewValidation(fmt.Sprintf("milestones[%d].amount must be >= 0", i))
		}
		if in.Percentage < 0 {
			return nil, response.NewValidation(fmt.Sprintf("milestones[%d].percentage must be >= 0", i))
		}
		percent = percent.Add(decimal.NewFromFloat(in.Percentage))

		maxRevisions := models.DefaultMaxRevisions
		if in.MaxRevisions != nil {
			if *in.MaxRevisions < 0 {
				return nil, response.NewValidation(fmt.Sprintf("milestones[%d].max_revisions must be >= 0", i))
			}
			maxRevisions = *in.MaxRevisions
		}
		milestones = append(milestones, models.Milestone{
			Position:     i,
			Title:        strings.TrimSpace(in.Title),
			Description:  in.Description,
			Amount:       RoundMoney(in.Amount),
			Percentage:   in.Percentage,
			Status:       models.MilestonePending,
			DueDate:      in.DueDate,
			MaxRevisions: maxRevisions,
		})
	}
	if percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, response.NewValidation("milestone percentages must not sum to more than 100")
	}
	return milestones, nil
}

// Update changes project fields. Once a client is attached the commercial
// terms are locked; due_date stays editable so deadlines can be extended.
func (s *ProjectService) Update(ctx context.Context, id string, req *UpdateProjectRequest, v Viewer) (*models.Project, error) {
	db := s.db.WithContext(ctx)
	project, err := loadProject(db, id)
	if err != nil {
		return nil, err
	}
	if project.FreelancerID != v.ID && !v.IsAdmin() {
		return nil, response.NewForbidden("only the project freelancer can edit the project")
	}

	if project.HasClient() {
		var locked []string
		if req.Title != nil && *req.Title != project.Title {
			locked = append(locked, "title")
		}
		if req.HourlyRate != nil && *req.HourlyRate != project.HourlyRate {
			locked = append(locked, "hourly_rate")
		}
		if req.ClientEmail != nil && !strings.EqualFold(*req.ClientEmail, project.ClientEmail) {
			locked = append(locked, "client_email")
		}
		if req.StartDate != nil && (project.StartDate == nil || !req.StartDate.Equal(*project.StartDate)) {
			locked = append(locked, "start_date")
		}
		if len(locked) > 0 {
			return nil, response.NewValidation("fields are locked once a client is attached: " + strings.Join(locked, ", "))
		}
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
	if req.ClientEmail != nil {
		updates["client_email"] = strings.ToLower(strings.TrimSpace(*req.ClientEmail))
	}
	if req.HourlyRate != nil {
		if *req.HourlyRate < 0 {
			return nil, response.NewValidation("hourly_rate must be >= 0")
		}
		updates["hourly_rate"] = *req.HourlyRate
	}
	if req.TaxRate != nil {
		if *req.TaxRate < 0 || *req.TaxRate > 1 {
			return nil, response.NewValidation("tax_rate must be between 0 and 1")
		}
		updates["tax_rate"] = *req.TaxRate
	}
	if req.PaymentTerms != nil {
		if *req.PaymentTerms <= 0 {
			return nil, response.NewValidation("payment_terms must be > 0")
		}
		updates["payment_terms"] = *req.PaymentTerms
	}

	start := project.StartDate
	if req.StartDate != nil {
		start = req.StartDate
		updates["start_date"] = *req.StartDate
	}
	if req.DueDate != nil {
		if start != nil && !req.DueDate.After(*start) {
			return nil, response.NewValidation("due_date must be after start_date")
		}
		updates["due_date"] = *req.DueDate
	}

	if len(updates) > 0 {
		if err := db.Model(&models.Project{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetByID(ctx, id, v)
}

// Delete removes a project that never had a client; otherwise it is archived.
// The boolean reports whether the project was archived instead of deleted.
func (s *ProjectService) Delete(ctx context.Context, id string, v Viewer) (bool, error) {
	archived := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := loadProject(tx, id)
		if err != nil {
			return err
		}
		if project.FreelancerID != v.ID && !v.IsAdmin() {
			return response.NewForbidden("only the project freelancer can delete the project")
		}

		if project.HasClient() {
			archived = true
			return tx.Model(&models.Project{}).Where("id = ?", id).Update("archived", true).Error
		}

		var milestoneIDs []string
		if err := tx.Model(&models.Milestone{}).Where("project_id = ?", id).Pluck("id", &milestoneIDs).Error; err != nil {
			return err
		}
		if len(milestoneIDs) > 0 {
			if err := tx.Where("milestone_id IN ?", milestoneIDs).Delete(&models.MilestoneRevision{}).Error; err != nil {
				return err
			}
		}
		var taskIDs []string
		if err := tx.Model(&models.Task{}).Where("project_id = ?", id).Pluck("id", &taskIDs).Error; err != nil {
			return err
		}
		if len(taskIDs) > 0 {
			if err := tx.Where("task_id IN ?", taskIDs).Delete(&models.TimeSession{}).Error; err != nil {
				return err
			}
		}
		for _, model := range []interface{}{&models.Milestone{}, &models.Task{}, &models.ProjectComment{}, &models.Invitation{}} {
			if err := tx.Where("project_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Project{}, "id = ?", id).Error
	})
	if err != nil {
		return false, err
	}

	event := "project_deleted"
	if archived {
		event = "project_archived"
	}
	s.effects.Dispatch(ctx, []Effect{auditEffect(AuditEntry{
		EventType:  event,
		ActorID:    v.ID,
		EntityType: "project",
		EntityID:   id,
		Message:    strings.ReplaceAll(event, "_", " "),
	})})
	return archived, nil
}

func (s *ProjectService) Comments(ctx context.Context, projectID string, v Viewer) ([]models.ProjectComment, error) {
	db := s.db.WithContext(ctx)
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin() && !v.IsProjectParty(project) {
		return nil, response.NewForbidden("not a party to this project")
	}
	var comments []models.ProjectComment
	if err := db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *ProjectService) AddComment(ctx context.Context, projectID string, v Viewer, body string) (*models.ProjectComment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, response.NewValidation("comment body is required")
	}
	db := s.db.WithContext(ctx)
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin() && !v.IsProjectParty(project) {
		return nil, response.NewForbidden("not a party to this project")
	}
	comment := models.ProjectComment{
		ProjectID: projectID,
		AuthorID:  v.ID,
		Kind:      "comment",
		Body:      strings.TrimSpace(body),
	}
	if err := db.Create(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}
