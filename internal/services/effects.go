package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/metrics"
	"gorm.io/gorm"
)

// Effect kinds
const (
	EffectEmail       = "email"
	EffectInvoicePDF  = "invoice_pdf"
	EffectContractPDF = "contract_pdf"
	EffectNotify      = "notify"
	EffectAudit       = "audit"
)

// Effect is a side effect requested by a state transition. Effects run only
// after the transition is committed and their failures never undo it. They
// are plain data so they can travel through the task queue.
type Effect struct {
	Kind string `json:"kind"`

	Email *EmailMessage `json:"email,omitempty"`

	// invoice_pdf: render and store the invoice, then mail it to the client
	// when EmailTo is set
	InvoiceID string `json:"invoice_id,omitempty"`
	EmailTo   string `json:"email_to,omitempty"`

	// contract_pdf
	ContractID string `json:"contract_id,omitempty"`

	Notification *NotifyInput `json:"notification,omitempty"`
	Audit        *AuditEntry  `json:"audit,omitempty"`
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectEmail:
		if e.Email != nil {
			return fmt.Sprintf("email %q", e.Email.Subject)
		}
	case EffectInvoicePDF:
		return "invoice document " + e.InvoiceID
	case EffectContractPDF:
		return "contract document " + e.ContractID
	case EffectNotify:
		if e.Notification != nil {
			return "notification " + e.Notification.Type
		}
	case EffectAudit:
		if e.Audit != nil {
			return "audit " + e.Audit.EventType
		}
	}
	return e.Kind
}

func emailEffect(msg *EmailMessage) Effect {
	return Effect{Kind: EffectEmail, Email: msg}
}

func invoiceDocumentEffect(invoiceID, emailTo string) Effect {
	return Effect{Kind: EffectInvoicePDF, InvoiceID: invoiceID, EmailTo: emailTo}
}

func notifyEffect(in NotifyInput) Effect {
	return Effect{Kind: EffectNotify, Notification: &in}
}

func auditEffect(entry AuditEntry) Effect {
	return Effect{Kind: EffectAudit, Audit: &entry}
}

// EffectSink accepts the effects of a committed operation and returns a
// warning for each one that could not be carried out.
type EffectSink interface {
	Dispatch(ctx context.Context, effects []Effect) []string
}

// EffectRunner executes effects one at a time, each under its own timeout.
type EffectRunner struct {
	db            *gorm.DB
	mailer        Mailer
	pdf           *PDFRenderer
	files         *FileStore
	notifications *NotificationService
	audit         *AuditService
	timeout       time.Duration
}

func NewEffectRunner(db *gorm.DB, mailer Mailer, pdf *PDFRenderer, timeout time.Duration) *EffectRunner {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &EffectRunner{
		db:            db,
		mailer:        mailer,
		pdf:           pdf,
		files:         NewFileStore(db),
		notifications: NewNotificationService(db),
		audit:         NewAuditService(db),
		timeout:       timeout,
	}
}

// Execute runs a single effect. It is also the asynq task processor.
func (r *EffectRunner) Execute(ctx context.Context, e *Effect) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var err error
	switch e.Kind {
	case EffectEmail:
		err = r.sendEmail(ctx, e.Email)
	case EffectInvoicePDF:
		err = r.deliverInvoice(ctx, e.InvoiceID, e.EmailTo)
	case EffectContractPDF:
		err = r.storeSignedContract(ctx, e.ContractID)
	case EffectNotify:
		if e.Notification == nil {
			err = errors.New("notification payload missing")
		} else {
			_, err = r.notifications.Notify(ctx, *e.Notification)
		}
	case EffectAudit:
		if e.Audit == nil {
			err = errors.New("audit payload missing")
		} else {
			err = r.audit.Record(ctx, *e.Audit)
		}
	default:
		err = fmt.Errorf("unknown effect kind %q", e.Kind)
	}

	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.IncEffect(e.Kind, status)
	return err
}

// RunAll executes every effect, logging failures and returning them as warnings.
func (r *EffectRunner) RunAll(ctx context.Context, effects []Effect) []string {
	var warnings []string
	for i := range effects {
		if err := r.Execute(ctx, &effects[i]); err != nil {
			logger.Warn().Err(err).Str("effect", effects[i].String()).Msg("post-commit effect failed")
			warnings = append(warnings, fmt.Sprintf("%s failed: %v", effects[i].String(), err))
		}
	}
	return warnings
}

func (r *EffectRunner) sendEmail(ctx context.Context, msg *EmailMessage) error {
	if msg == nil {
		return errors.New("email payload missing")
	}
	if len(msg.To) == 0 {
		return errors.New("email has no recipients")
	}
	_, err := r.mailer.Send(ctx, msg)
	return err
}

func (r *EffectRunner) deliverInvoice(ctx context.Context, invoiceID, emailTo string) error {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Preload("LineItems", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&invoice, "id = ?", invoiceID).Error; err != nil {
		return fmt.Errorf("load invoice: %w", err)
	}

	pdf, err := r.pdf.RenderInvoice(&invoice)
	if err != nil {
		return fmt.Errorf("render invoice: %w", err)
	}

	filename := invoice.InvoiceNumber + ".pdf"
	file, err := r.files.Save(ctx, "invoice", invoice.ID, models.FileKindInvoicePDF, filename, "application/pdf", pdf)
	if err != nil {
		return fmt.Errorf("store invoice document: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("pdf_document_id", file.ID).Error; err != nil {
		return err
	}

	if emailTo == "" {
		return nil
	}
	msg := invoiceEmail(&invoice, emailTo)
	msg.Attachments = []Attachment{{Filename: filename, ContentType: "application/pdf", Content: pdf}}
	if _, err := r.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send invoice email: %w", err)
	}
	return nil
}

func (r *EffectRunner) storeSignedContract(ctx context.Context, contractID string) error {
	var contract models.Contract
	if err := r.db.WithContext(ctx).First(&contract, "id = ?", contractID).Error; err != nil {
		return fmt.Errorf("load contract: %w", err)
	}
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", contract.ProjectID).Error; err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	pdf, err := r.pdf.RenderContract(&contract, &project)
	if err != nil {
		return fmt.Errorf("render contract: %w", err)
	}
	file, err := r.files.Save(ctx, "contract", contract.ID, models.FileKindContractPDF,
		"contract-"+contract.ID+".pdf", "application/pdf", pdf)
	if err != nil {
		return fmt.Errorf("store contract document: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Contract{}).Where("id = ?", contract.ID).
			Update("signed_document_id", file.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Project{}).Where("id = ?", project.ID).
			Update("contract_status", models.ContractStatusSigned).Error
	})
}

// EffectDispatcher routes effects through the task queue: inline when the
// queue is synchronous, onto Redis otherwise.
type EffectDispatcher struct {
	runner *EffectRunner
	queue  TaskQueue
}

func NewEffectDispatcher(runner *EffectRunner, queue TaskQueue) *EffectDispatcher {
	if queue == nil {
		sq := NewSyncQueue()
		sq.SetProcessor(runner.Execute)
		queue = sq
	}
	return &EffectDispatcher{runner: runner, queue: queue}
}

func (d *EffectDispatcher) Dispatch(ctx context.Context, effects []Effect) []string {
	var warnings []string
	for i := range effects {
		e := effects[i]
		err := d.queue.Enqueue(ctx, &e)
		if err == nil {
			continue
		}
		if d.queue.IsAsync() {
			// Redis rejected the task; fall back to running it here
			logger.Warn().Err(err).Str("effect", e.String()).Msg("enqueue failed, running effect inline")
			err = d.runner.Execute(ctx, &e)
			if err == nil {
				continue
			}
		}
		logger.Warn().Err(err).Str("effect", e.String()).Msg("post-commit effect failed")
		warnings = append(warnings, fmt.Sprintf("%s failed: %v", e.String(), err))
	}
	return warnings
}
