package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/metrics"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

const defaultPaymentTermsDays = 30

type CreateInvoiceRequest struct {
	ProjectID    *string         `json:"project_id"`
	MilestoneID  *string         `json:"milestone_id"`
	FreelancerID string          `json:"freelancer_id"`
	ClientID     string          `json:"client_id"`
	ClientEmail  string          `json:"client_email"`
	LineItems    []LineItemInput `json:"line_items"`
	TaxRate      float64         `json:"tax_rate"`
	IssueDate    *time.Time      `json:"issue_date"`
	DueDate      *time.Time      `json:"due_date"`
	Notes        string          `json:"notes"`
	Source       string          `json:"-"`
}

// createInvoiceTx validates and persists an invoice inside tx and returns
// the effects to run once tx commits.
func createInvoiceTx(tx *gorm.DB, req *CreateInvoiceRequest, now time.Time) (*models.Invoice, []Effect, error) {
	var missing []string
	if strings.TrimSpace(req.ClientEmail) == "" {
		missing = append(missing, "client_email")
	}
	if req.FreelancerID == "" {
		missing = append(missing, "freelancer_id")
	}
	if req.DueDate == nil {
		missing = append(missing, "due_date")
	}
	if len(missing) > 0 {
		return nil, nil, response.NewValidation("missing required fields: " + strings.Join(missing, ", "))
	}

	if req.ProjectID != nil && *req.ProjectID != "" {
		project, err := loadProject(tx, *req.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		if project.FreelancerID != req.FreelancerID {
			return nil, nil, response.NewForbidden("project does not belong to this freelancer")
		}
	}

	issue := now
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	if !req.DueDate.After(issue) {
		return nil, nil, response.NewValidation("due_date must be after issue_date")
	}

	totals, err := CalculateTotals(req.LineItems, req.TaxRate)
	if err != nil {
		return nil, nil, err
	}

	number, err := NextInvoiceNumber(tx, now)
	if err != nil {
		return nil, nil, fmt.Errorf("allocate invoice number: %w", err)
	}

	source := req.Source
	if source == "" {
		source = models.InvoiceSourceManual
	}

	invoice := &models.Invoice{
		InvoiceNumber:          number,
		ProjectID:              req.ProjectID,
		MilestoneID:            req.MilestoneID,
		FreelancerID:           req.FreelancerID,
		ClientID:               req.ClientID,
		ClientEmail:            strings.TrimSpace(req.ClientEmail),
		LineItems:              totals.LineItems,
		Subtotal:               totals.Subtotal,
		TaxRate:                req.TaxRate,
		TaxAmount:              totals.TaxAmount,
		TotalAmount:            totals.TotalAmount,
		Status:                 models.InvoiceSent,
		Source:                 source,
		RequiresClientApproval: true,
		IssueDate:              issue,
		DueDate:                *req.DueDate,
		Notes:                  req.Notes,
	}
	if err := tx.Create(invoice).Error; err != nil {
		return nil, nil, fmt.Errorf("create invoice: %w", err)
	}

	effects := []Effect{
		auditEffect(AuditEntry{
			EventType:  "invoice_created",
			ActorID:    req.FreelancerID,
			EntityType: "invoice",
			EntityID:   invoice.ID,
			Message:    fmt.Sprintf("Invoice %s created (%s)", invoice.InvoiceNumber, source),
			Details: map[string]interface{}{
				"total_amount": invoice.TotalAmount,
				"source":       source,
			},
		}),
		invoiceDocumentEffect(invoice.ID, invoice.ClientEmail),
	}
	if invoice.ClientID != "" {
		effects = append(effects, notifyEffect(NotifyInput{
			UserID:    invoice.ClientID,
			Type:      models.NotifyInvoiceCreated,
			Title:     "New invoice " + invoice.InvoiceNumber,
			Message:   fmt.Sprintf("An invoice of %.2f is due on %s.", invoice.TotalAmount, invoice.DueDate.Format("2006-01-02")),
			ProjectID: invoice.ProjectID,
		}))
	}
	return invoice, effects, nil
}

// defaultDueDate applies the project's payment terms to the issue date.
func defaultDueDate(project *models.Project, issue time.Time) time.Time {
	days := defaultPaymentTermsDays
	if project != nil && project.PaymentTerms > 0 {
		days = project.PaymentTerms
	}
	return issue.AddDate(0, 0, days)
}

type InvoiceService struct {
	db             *gorm.DB
	effects        EffectSink
	pdf            *PDFRenderer
	files          *FileStore
	lateFeePercent float64
	loc            *time.Location
	now            func() time.Time
}

func NewInvoiceService(db *gorm.DB, effects EffectSink, pdf *PDFRenderer, lateFeePercent float64, loc *time.Location) *InvoiceService {
	if loc == nil {
		loc = time.UTC
	}
	return &InvoiceService{
		db:             db,
		effects:        effects,
		pdf:            pdf,
		files:          NewFileStore(db),
		lateFeePercent: lateFeePercent,
		loc:            loc,
		now:            time.Now,
	}
}

func (s *InvoiceService) Create(ctx context.Context, req *CreateInvoiceRequest) (*models.Invoice, []string, error) {
	now := s.now()
	req.Source = models.InvoiceSourceManual

	var invoice *models.Invoice
	var effects []Effect
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, effects, err = createInvoiceTx(tx, req, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	metrics.IncInvoiceCreated(invoice.Source)

	return invoice, s.effects.Dispatch(ctx, effects), nil
}

// canViewInvoice reports whether v may read inv.
func canViewInvoice(db *gorm.DB, inv *models.Invoice, v Viewer) bool {
	if v.IsAdmin() || inv.FreelancerID == v.ID || isInvoiceClient(db, inv, v) {
		return true
	}
	return false
}

// isInvoiceClient matches v against the project client, or the invoice's
// own client when it has no project.
func isInvoiceClient(db *gorm.DB, inv *models.Invoice, v Viewer) bool {
	if inv.ProjectID != nil && *inv.ProjectID != "" {
		if project, err := loadProject(db, *inv.ProjectID); err == nil {
			return project.IsClient(v.ID, v.Email)
		}
	}
	if v.ID != "" && inv.ClientID == v.ID {
		return true
	}
	return v.Email != "" && strings.EqualFold(strings.TrimSpace(inv.ClientEmail), strings.TrimSpace(v.Email))
}

func (s *InvoiceService) Get(ctx context.Context, id string, v Viewer) (*models.Invoice, error) {
	invoice, err := loadInvoice(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !canViewInvoice(s.db.WithContext(ctx), invoice, v) {
		return nil, response.NewForbidden("you do not have access to this invoice")
	}
	return invoice, nil
}

type InvoiceListRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status    string `form:"status"`
	ProjectID string `form:"project_id"`
}

type InvoiceListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Invoice `json:"items"`
}

func (s *InvoiceService) List(ctx context.Context, req *InvoiceListRequest, v Viewer) (*InvoiceListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Invoice{})
	switch v.Role {
	case models.RoleAdmin:
	case models.RoleClient:
		query = query.Where("client_id = ? OR client_email = ?", v.ID, v.Email)
	default:
		query = query.Where("freelancer_id = ?", v.ID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.ProjectID != "" {
		query = query.Where("project_id = ?", req.ProjectID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.Invoice
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("LineItems", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("created_at DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}

	return &InvoiceListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: items}, nil
}

func (s *InvoiceService) Approve(ctx context.Context, id string, v Viewer) (*models.Invoice, []string, error) {
	invoice, err := loadInvoice(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, nil, err
	}
	if !isInvoiceClient(s.db.WithContext(ctx), invoice, v) {
		return nil, nil, response.NewForbidden("only the client can approve this invoice")
	}
	switch invoice.Status {
	case models.InvoiceApproved:
		return invoice, nil, nil
	case models.InvoicePaid, models.InvoiceCancelled:
		return nil, nil, response.NewValidation("invoice is " + invoice.Status)
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(invoice).Updates(map[string]interface{}{
		"status":             models.InvoiceApproved,
		"client_approved":    true,
		"client_approved_at": now,
	}).Error; err != nil {
		return nil, nil, err
	}
	invoice.Status = models.InvoiceApproved
	invoice.ClientApproved = true
	invoice.ClientApprovedAt = &now

	warnings := s.effects.Dispatch(ctx, []Effect{auditEffect(AuditEntry{
		EventType:  "invoice_approved",
		ActorID:    v.ID,
		EntityType: "invoice",
		EntityID:   invoice.ID,
		Message:    "Invoice " + invoice.InvoiceNumber + " approved by client",
	})})
	return invoice, warnings, nil
}

type PaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type PaymentResult struct {
	Invoice     *models.Invoice     `json:"invoice"`
	Transaction *models.Transaction `json:"transaction"`
}

// RecordPayment captures a payment for the full invoice amount plus any late
// fee owed.
func (s *InvoiceService) RecordPayment(ctx context.Context, id string, v Viewer, method string) (*PaymentResult, []string, error) {
	now := s.now()
	var result *PaymentResult
	var effects []Effect

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoice(tx, id)
		if err != nil {
			return err
		}
		if !v.IsAdmin() && !isInvoiceClient(tx, invoice, v) {
			return response.NewForbidden("only the client can pay this invoice")
		}
		switch invoice.Status {
		case models.InvoicePaid:
			return response.NewConflict("invoice is already paid")
		case models.InvoiceCancelled, models.InvoiceDraft:
			return response.NewValidation("invoice is " + invoice.Status)
		}

		daysLate := daysBetween(invoice.DueDate, now, s.loc)
		lateFee := 0.0
		if daysLate > 0 && s.lateFeePercent > 0 {
			lateFee = MulMoney(invoice.TotalAmount, s.lateFeePercent/100)
		}
		if method == "" {
			method = "manual"
		}

		txn := &models.Transaction{
			InvoiceID:     invoice.ID,
			ProjectID:     invoice.ProjectID,
			ClientID:      invoice.ClientID,
			FreelancerID:  invoice.FreelancerID,
			BaseAmount:    invoice.TotalAmount,
			LateFee:       lateFee,
			Amount:        sumMoney(invoice.TotalAmount, lateFee),
			Status:        models.TransactionCompleted,
			PaymentMethod: method,
			IsLatePayment: daysLate > 0,
			PaidAt:        &now,
		}
		if daysLate > 0 {
			txn.DaysOverdue = daysLate
		}
		if txn.ClientID == "" && v.Role == models.RoleClient {
			txn.ClientID = v.ID
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status <> ?", invoice.ID, models.InvoicePaid).
			Updates(map[string]interface{}{"status": models.InvoicePaid, "paid_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("invoice is already paid")
		}
		invoice.Status = models.InvoicePaid
		invoice.PaidAt = &now

		milestones := tx.Model(&models.Milestone{}).Where("invoice_id = ?", invoice.ID)
		if invoice.MilestoneID != nil {
			milestones = tx.Model(&models.Milestone{}).Where("invoice_id = ? OR id = ?", invoice.ID, *invoice.MilestoneID)
		}
		if err := milestones.Updates(map[string]interface{}{
			"status":  models.MilestonePaid,
			"version": gorm.Expr("version + 1"),
		}).Error; err != nil {
			return err
		}

		result = &PaymentResult{Invoice: invoice, Transaction: txn}
		effects = []Effect{
			auditEffect(AuditEntry{
				EventType:  "payment_recorded",
				ActorID:    v.ID,
				EntityType: "invoice",
				EntityID:   invoice.ID,
				Message:    fmt.Sprintf("Payment of %.2f recorded for %s", txn.Amount, invoice.InvoiceNumber),
				Details: map[string]interface{}{
					"transaction_id": txn.ID,
					"late_fee":       lateFee,
					"method":         method,
				},
			}),
			notifyEffect(NotifyInput{
				UserID:    invoice.FreelancerID,
				Type:      models.NotifyPaymentReceived,
				Title:     "Payment received",
				Message:   fmt.Sprintf("Invoice %s was paid (%.2f).", invoice.InvoiceNumber, txn.Amount),
				ProjectID: invoice.ProjectID,
			}),
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result, s.effects.Dispatch(ctx, effects), nil
}

// PDF returns the stored invoice document, rendering a fresh one when none
// has been stored yet.
func (s *InvoiceService) PDF(ctx context.Context, id string, v Viewer) (string, []byte, error) {
	invoice, err := s.Get(ctx, id, v)
	if err != nil {
		return "", nil, err
	}
	if invoice.PDFDocumentID != nil {
		if file, err := s.files.Get(ctx, *invoice.PDFDocumentID); err == nil {
			return file.Filename, file.Data, nil
		}
	}
	data, err := s.pdf.RenderInvoice(invoice)
	if err != nil {
		return "", nil, fmt.Errorf("render invoice: %w", err)
	}
	return invoice.InvoiceNumber + ".pdf", data, nil
}

func (s *InvoiceService) Delete(ctx context.Context, id string, v Viewer) error {
	if !v.IsAdmin() {
		return response.NewForbidden("only admins can delete invoices")
	}
	invoice, err := loadInvoice(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceLineItem{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Milestone{}).Where("invoice_id = ?", invoice.ID).
			Update("invoice_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(invoice).Error
	})
	if err != nil {
		return err
	}

	s.effects.Dispatch(ctx, []Effect{auditEffect(AuditEntry{
		EventType:  "invoice_deleted",
		ActorID:    v.ID,
		EntityType: "invoice",
		EntityID:   invoice.ID,
		Message:    "Invoice " + invoice.InvoiceNumber + " deleted",
	})})
	return nil
}
