package services

import (
	"context"

	"github.com/freelancehub/backend/internal/models"
	"gorm.io/gorm"
)

type PaymentService struct {
	db *gorm.DB
}

func NewPaymentService(db *gorm.DB) *PaymentService {
	return &PaymentService{db: db}
}

type TransactionListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	ProjectID string `form:"project_id"`
	InvoiceID string `form:"invoice_id"`
}

type TransactionListResponse struct {
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Items    []models.Transaction `json:"items"`
}

// ListTransactions returns payments the caller paid or received.
func (s *PaymentService) ListTransactions(ctx context.Context, req *TransactionListRequest, v Viewer) (*TransactionListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if !v.IsAdmin() {
		query = query.Where("client_id = ? OR freelancer_id = ?", v.ID, v.ID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.ProjectID != "" {
		query = query.Where("project_id = ?", req.ProjectID)
	}
	if req.InvoiceID != "" {
		query = query.Where("invoice_id = ?", req.InvoiceID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.Transaction
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return &TransactionListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: items}, nil
}
