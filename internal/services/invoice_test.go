package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []LineItemInput
		taxRate  float64
		subtotal float64
		tax      float64
		total    float64
	}{
		{
			name:     "single line no tax",
			items:    []LineItemInput{{Description: "Design", Quantity: 1, Rate: 500}},
			subtotal: 500, tax: 0, total: 500,
		},
		{
			name: "fractional hours with tax",
			items: []LineItemInput{
				{Description: "Build", Quantity: 1, Rate: 700},
				{Description: "Hours", Quantity: 2.5, Rate: 45.5},
			},
			taxRate:  0.2,
			subtotal: 813.75, tax: 162.75, total: 976.5,
		},
		{
			name:     "fractional hours rounded at subtotal",
			items:    []LineItemInput{{Description: "Hours", Quantity: 1.333, Rate: 10}},
			taxRate:  0.075,
			subtotal: 13.33, tax: 1, total: 14.33,
		},
		{
			name: "subtotal rounded once over exact line amounts",
			items: []LineItemInput{
				{Description: "a", Quantity: 1, Rate: 0.333},
				{Description: "b", Quantity: 1, Rate: 0.333},
				{Description: "c", Quantity: 1, Rate: 0.333},
			},
			subtotal: 1, tax: 0, total: 1,
		},
		{
			name:     "zero quantity allowed",
			items:    []LineItemInput{{Description: "Free consult", Quantity: 0, Rate: 100}},
			subtotal: 0, tax: 0, total: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := CalculateTotals(tt.items, tt.taxRate)
			require.NoError(t, err)
			assert.Equal(t, tt.subtotal, totals.Subtotal)
			assert.Equal(t, tt.tax, totals.TaxAmount)
			assert.Equal(t, tt.total, totals.TotalAmount)
			assert.Equal(t, sumMoney(totals.Subtotal, totals.TaxAmount), totals.TotalAmount)

			amounts := make([]float64, 0, len(totals.LineItems))
			for i, li := range totals.LineItems {
				assert.Equal(t, i, li.Position)
				amounts = append(amounts, li.Amount)
			}
			assert.Equal(t, sumMoney(amounts...), totals.Subtotal)
		})
	}
}

func TestCalculateTotals_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		items   []LineItemInput
		taxRate float64
	}{
		{"no items", nil, 0},
		{"blank description", []LineItemInput{{Description: " ", Quantity: 1, Rate: 1}}, 0},
		{"negative quantity", []LineItemInput{{Description: "x", Quantity: -1, Rate: 1}}, 0},
		{"negative rate", []LineItemInput{{Description: "x", Quantity: 1, Rate: -1}}, 0},
		{"negative tax", []LineItemInput{{Description: "x", Quantity: 1, Rate: 1}}, -0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateTotals(tt.items, tt.taxRate)
			require.Error(t, err)
			assert.True(t, errors.Is(err, response.ErrValidation))
		})
	}
}

func TestNextInvoiceNumber_SequentialPerMonth(t *testing.T) {
	db := newTestDB(t)
	march := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	next := func(now time.Time) string {
		var number string
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			var err error
			number, err = NextInvoiceNumber(tx, now)
			return err
		}))
		return number
	}

	assert.Equal(t, "INV-202603-0001", next(march))
	assert.Equal(t, "INV-202603-0002", next(march))
	assert.Equal(t, "INV-202604-0001", next(april))
	assert.Equal(t, "INV-202603-0003", next(march))
}

func TestNextInvoiceNumber_SeededFromExistingInvoices(t *testing.T) {
	db := newTestDB(t)
	for i := 1; i <= 3; i++ {
		require.NoError(t, db.Create(&models.Invoice{
			InvoiceNumber: fmt.Sprintf("INV-202605-%04d", i),
			FreelancerID:  "f",
			Status:        models.InvoiceSent,
		}).Error)
	}

	var number string
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = NextInvoiceNumber(tx, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC))
		return err
	}))
	assert.Equal(t, "INV-202605-0004", number)
}

func TestNextInvoiceNumber_RolledBackAllocationIsReused(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := NextInvoiceNumber(tx, now); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var number string
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		number, err = NextInvoiceNumber(tx, now)
		return err
	}))
	assert.Equal(t, "INV-202606-0001", number)
}

func newInvoiceService(db *gorm.DB, sink EffectSink, now time.Time) *InvoiceService {
	svc := NewInvoiceService(db, sink, NewPDFRenderer("FreelanceHub"), 5, time.UTC)
	svc.now = fixedClock(now)
	return svc
}

func manualInvoice(fx *activeProject, due time.Time) *CreateInvoiceRequest {
	return &CreateInvoiceRequest{
		ProjectID:    &fx.project.ID,
		FreelancerID: fx.freelancer.ID,
		ClientID:     fx.client.ID,
		ClientEmail:  fx.client.Email,
		LineItems:    []LineItemInput{{Description: "Consulting", Quantity: 4, Rate: 125}},
		TaxRate:      0.1,
		DueDate:      &due,
	}
}

func TestInvoiceCreate(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	sink := &recordingSink{}
	now := day(2026, 2, 1)
	svc := newInvoiceService(db, sink, now)

	inv, _, err := svc.Create(context.Background(), manualInvoice(fx, now.AddDate(0, 0, 14)))
	require.NoError(t, err)
	assert.Equal(t, "INV-202602-0001", inv.InvoiceNumber)
	assert.Equal(t, models.InvoiceSent, inv.Status)
	assert.Equal(t, models.InvoiceSourceManual, inv.Source)
	assert.Equal(t, 500.0, inv.Subtotal)
	assert.Equal(t, 50.0, inv.TaxAmount)
	assert.Equal(t, 550.0, inv.TotalAmount)
	assert.True(t, inv.RequiresClientApproval)
	assert.Equal(t, 1, sink.count(EffectInvoicePDF))
	assert.Equal(t, 1, sink.count(EffectNotify))
	assert.Contains(t, sink.auditEvents(), "invoice_created")
}

func TestInvoiceCreate_Validation(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	now := day(2026, 2, 1)
	svc := newInvoiceService(db, &recordingSink{}, now)
	ctx := context.Background()

	req := manualInvoice(fx, now.AddDate(0, 0, 14))
	req.ClientEmail = ""
	req.DueDate = nil
	_, _, err := svc.Create(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, response.ErrValidation))
	assert.Contains(t, err.Error(), "client_email")
	assert.Contains(t, err.Error(), "due_date")

	_, _, err = svc.Create(ctx, manualInvoice(fx, now))
	assert.True(t, errors.Is(err, response.ErrValidation))

	req = manualInvoice(fx, now.AddDate(0, 0, 14))
	req.FreelancerID = fx.client.ID
	_, _, err = svc.Create(ctx, req)
	assert.True(t, errors.Is(err, response.ErrForbidden))

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInvoiceAccessAndList(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	now := day(2026, 2, 1)
	svc := newInvoiceService(db, &recordingSink{}, now)
	ctx := context.Background()

	inv, _, err := svc.Create(ctx, manualInvoice(fx, now.AddDate(0, 0, 14)))
	require.NoError(t, err)

	_, err = svc.Get(ctx, inv.ID, viewerOf(fx.client))
	assert.NoError(t, err)
	_, err = svc.Get(ctx, inv.ID, Viewer{ID: "stranger", Email: "x@example.com", Role: models.RoleClient})
	assert.True(t, errors.Is(err, response.ErrForbidden))

	list, err := svc.List(ctx, &InvoiceListRequest{}, viewerOf(fx.freelancer))
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Items, 1)
	assert.Len(t, list.Items[0].LineItems, 1)

	list, err = svc.List(ctx, &InvoiceListRequest{}, Viewer{ID: "other", Role: models.RoleFreelancer})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestInvoiceApproveAndPay(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	now := day(2026, 2, 1)
	svc := newInvoiceService(db, &recordingSink{}, now)
	ctx := context.Background()

	inv, _, err := svc.Create(ctx, manualInvoice(fx, now.AddDate(0, 0, 14)))
	require.NoError(t, err)

	_, _, err = svc.Approve(ctx, inv.ID, viewerOf(fx.freelancer))
	assert.True(t, errors.Is(err, response.ErrForbidden))

	approved, _, err := svc.Approve(ctx, inv.ID, viewerOf(fx.client))
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceApproved, approved.Status)
	assert.True(t, approved.ClientApproved)

	paid, _, err := svc.RecordPayment(ctx, inv.ID, viewerOf(fx.client), "card")
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, paid.Invoice.Status)
	assert.Equal(t, 550.0, paid.Transaction.Amount)
	assert.Zero(t, paid.Transaction.LateFee)
	assert.False(t, paid.Transaction.IsLatePayment)
	assert.Equal(t, "card", paid.Transaction.PaymentMethod)

	_, _, err = svc.RecordPayment(ctx, inv.ID, viewerOf(fx.client), "card")
	assert.True(t, errors.Is(err, response.ErrConflict))

	_, _, err = svc.Approve(ctx, inv.ID, viewerOf(fx.client))
	assert.True(t, errors.Is(err, response.ErrValidation))
}

func TestInvoiceRecordPayment_LateFeeAndMilestonePaid(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{400, 600}})
	approval := NewApprovalService(db, &recordingSink{}, nil)
	ctx := context.Background()

	result, err := approval.ApproveMilestone(ctx, fx.project.ID, fx.milestones[0].ID, viewerOf(fx.client))
	require.NoError(t, err)
	require.NotNil(t, result.Invoice)

	late := result.Invoice.DueDate.AddDate(0, 0, 3)
	svc := newInvoiceService(db, &recordingSink{}, late)
	paid, _, err := svc.RecordPayment(ctx, result.Invoice.ID, viewerOf(fx.client), "")
	require.NoError(t, err)
	assert.True(t, paid.Transaction.IsLatePayment)
	assert.Equal(t, 3, paid.Transaction.DaysOverdue)
	assert.Equal(t, 20.0, paid.Transaction.LateFee)
	assert.Equal(t, 420.0, paid.Transaction.Amount)
	assert.Equal(t, "manual", paid.Transaction.PaymentMethod)

	m := reloadMilestone(t, db, fx.milestones[0].ID)
	assert.Equal(t, models.MilestonePaid, m.Status)
	assert.True(t, m.IsSettled())

	payments := NewPaymentService(db)
	txns, err := payments.ListTransactions(ctx, &TransactionListRequest{}, viewerOf(fx.freelancer))
	require.NoError(t, err)
	assert.Equal(t, int64(1), txns.Total)
	txns, err = payments.ListTransactions(ctx, &TransactionListRequest{}, Viewer{ID: "stranger"})
	require.NoError(t, err)
	assert.Zero(t, txns.Total)
}

func TestInvoicePDF(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	now := day(2026, 2, 1)
	svc := newInvoiceService(db, &recordingSink{}, now)
	ctx := context.Background()

	inv, _, err := svc.Create(ctx, manualInvoice(fx, now.AddDate(0, 0, 14)))
	require.NoError(t, err)

	name, data, err := svc.PDF(ctx, inv.ID, viewerOf(fx.client))
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber+".pdf", name)
	assert.True(t, len(data) > 4)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestInvoiceDelete(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100, 100}})
	approval := NewApprovalService(db, &recordingSink{}, nil)
	ctx := context.Background()

	result, err := approval.ApproveMilestone(ctx, fx.project.ID, fx.milestones[0].ID, viewerOf(fx.client))
	require.NoError(t, err)
	require.NotNil(t, result.Invoice)

	svc := newInvoiceService(db, &recordingSink{}, time.Now())
	err = svc.Delete(ctx, result.Invoice.ID, viewerOf(fx.freelancer))
	assert.True(t, errors.Is(err, response.ErrForbidden))

	require.NoError(t, svc.Delete(ctx, result.Invoice.ID, Viewer{ID: "admin", Role: models.RoleAdmin}))
	_, err = loadInvoice(db, result.Invoice.ID)
	assert.True(t, errors.Is(err, response.ErrNotFound))
	assert.Nil(t, reloadMilestone(t, db, fx.milestones[0].ID).InvoiceID)

	var lines int64
	require.NoError(t, db.Model(&models.InvoiceLineItem{}).Count(&lines).Error)
	assert.Zero(t, lines)
}
