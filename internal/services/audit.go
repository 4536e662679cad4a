package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"gorm.io/gorm"
)

// AuditEntry describes one event to append to the audit log.
type AuditEntry struct {
	EventType  string                 `json:"event_type"`
	ActorID    string                 `json:"actor_id,omitempty"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IP         string                 `json:"ip,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
}

type auditClass struct {
	severity string
	category string
}

var auditClasses = map[string]auditClass{
	"invoice_created":      {models.SeverityInfo, models.CategoryFinancial},
	"invoice_approved":     {models.SeverityInfo, models.CategoryFinancial},
	"invoice_deleted":      {models.SeverityWarning, models.CategoryFinancial},
	"payment_recorded":     {models.SeverityInfo, models.CategoryFinancial},
	"contract_created":     {models.SeverityInfo, models.CategoryContract},
	"contract_signed":      {models.SeverityInfo, models.CategoryContract},
	"contract_activated":   {models.SeverityInfo, models.CategoryContract},
	"contract_rejected":    {models.SeverityWarning, models.CategoryContract},
	"contract_completed":   {models.SeverityInfo, models.CategoryContract},
	"contract_terminated":  {models.SeverityWarning, models.CategoryContract},
	"contract_deleted":     {models.SeverityCritical, models.CategoryContract},
	"milestone_approved":   {models.SeverityInfo, models.CategoryProject},
	"milestone_completed":  {models.SeverityInfo, models.CategoryProject},
	"revision_requested":   {models.SeverityInfo, models.CategoryProject},
	"project_completed":    {models.SeverityInfo, models.CategoryProject},
	"project_expired":      {models.SeverityWarning, models.CategoryProject},
	"project_overdue":      {models.SeverityWarning, models.CategoryProject},
	"invitation_created":   {models.SeverityInfo, models.CategoryProject},
	"invitation_accepted":  {models.SeverityInfo, models.CategoryProject},
	"invitation_rejected":  {models.SeverityInfo, models.CategoryProject},
	"user_registered":      {models.SeverityInfo, models.CategorySecurity},
	"login_failed":         {models.SeverityWarning, models.CategorySecurity},
	"permission_denied":    {models.SeverityWarning, models.CategorySecurity},
	"api_request":          {models.SeverityInfo, models.CategoryRequest},
	"reminder_sent":        {models.SeverityInfo, models.CategoryFinancial},
	"reminder_failed":      {models.SeverityWarning, models.CategoryFinancial},
	"audit_cleanup":        {models.SeverityInfo, models.CategorySystem},
}

// ClassifyEvent returns the severity and category recorded for an event type.
func ClassifyEvent(eventType string) (severity, category string) {
	if c, ok := auditClasses[eventType]; ok {
		return c.severity, c.category
	}
	return models.SeverityInfo, models.CategorySystem
}

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Record(ctx context.Context, entry AuditEntry) error {
	var details string
	if len(entry.Details) > 0 {
		if b, err := json.Marshal(entry.Details); err == nil {
			details = string(b)
		}
	}

	severity, category := ClassifyEvent(entry.EventType)
	row := &models.AuditLog{
		EventType:  entry.EventType,
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Severity:   severity,
		Category:   category,
		Message:    entry.Message,
		Details:    details,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		CreatedAt:  time.Now(),
	}
	return s.db.WithContext(ctx).Create(row).Error
}

type AuditListRequest struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	EventType  string `form:"event_type"`
	Severity   string `form:"severity"`
	Category   string `form:"category"`
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
	ActorID    string `form:"actor_id"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	Search     string `form:"search"`
}

type AuditListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.AuditLog `json:"items"`
}

func (s *AuditService) List(req *AuditListRequest) (*AuditListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var logs []models.AuditLog
	var total int64

	query := s.db.Model(&models.AuditLog{})

	if req.EventType != "" {
		query = query.Where("event_type = ?", req.EventType)
	}
	if req.Severity != "" {
		query = query.Where("severity = ?", req.Severity)
	}
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}
	if req.EntityType != "" {
		query = query.Where("entity_type = ?", req.EntityType)
	}
	if req.EntityID != "" {
		query = query.Where("entity_id = ?", req.EntityID)
	}
	if req.ActorID != "" {
		query = query.Where("actor_id = ?", req.ActorID)
	}
	if req.StartDate != "" {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("created_at <= ?", req.EndDate+" 23:59:59")
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &AuditListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// CleanupOldLogs deletes entries older than retentionDays and returns the
// number of deleted rows. A non-positive retention keeps everything.
func (s *AuditService) CleanupOldLogs(retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		logger.Info().Int64("deleted", result.RowsAffected).Int("retention_days", retentionDays).Msg("[Audit] cleaned up old entries")
	}
	return result.RowsAffected, nil
}
