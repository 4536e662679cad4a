package services

import (
	"context"
	"testing"

	"github.com/freelancehub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyHoursCap(t *testing.T) {
	capped := ApplyHoursCap(5, 2, 50)
	assert.Equal(t, 5.0, capped.TotalHours)
	assert.Equal(t, 250.0, capped.TotalAmount)
	assert.Equal(t, 2.0, capped.CappedHours)
	assert.Equal(t, 100.0, capped.CappedAmount)
	assert.True(t, capped.Capped)
	require.NotNil(t, capped.WarningMessage)
	assert.Contains(t, *capped.WarningMessage, "5.00")
	assert.Contains(t, *capped.WarningMessage, "2")

	uncapped := ApplyHoursCap(3, 0, 50)
	assert.Equal(t, 3.0, uncapped.CappedHours)
	assert.Equal(t, 150.0, uncapped.CappedAmount)
	assert.False(t, uncapped.Capped)
	assert.Nil(t, uncapped.WarningMessage)
}

func TestApplyHoursCap_NeverExceedsMaximum(t *testing.T) {
	for _, total := range []float64{0, 0.5, 1.99, 2, 2.01, 7.25, 40} {
		for _, max := range []float64{0, 1, 2, 10} {
			r := ApplyHoursCap(total, max, 35)
			if max > 0 {
				assert.LessOrEqual(t, r.CappedHours, max, "total=%v max=%v", total, max)
			}
			assert.LessOrEqual(t, r.CappedHours, total, "total=%v max=%v", total, max)
			assert.Equal(t, max > 0 && total > max, r.Capped, "total=%v max=%v", total, max)
			assert.Equal(t, r.Capped, r.WarningMessage != nil)
			assert.Equal(t, MulMoney(r.CappedHours, 35), r.CappedAmount)
		}
	}
}

func TestBillableHoursCalculate(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}, hourlyRate: 50, enableHours: true, maxHours: 4})
	seedTask(t, db, fx.project.ID, 3, true)
	seedTask(t, db, fx.project.ID, 10, false)
	estimate := 2.0
	require.NoError(t, db.Create(&models.Task{
		ProjectID:      fx.project.ID,
		Title:          "Estimated only",
		Status:         models.TaskTodo,
		Billable:       true,
		EstimatedHours: &estimate,
	}).Error)

	svc := NewBillableHoursService(db)
	ctx := context.Background()

	r := svc.Calculate(ctx, fx.project.ID, 50, &fx.contract.ID)
	assert.Equal(t, 5.0, r.TotalHours)
	assert.Equal(t, 4.0, r.CappedHours)
	assert.Equal(t, 200.0, r.CappedAmount)
	assert.True(t, r.Capped)

	r = svc.Calculate(ctx, fx.project.ID, 50, nil)
	assert.Equal(t, 5.0, r.CappedHours)
	assert.False(t, r.Capped)

	require.NoError(t, db.Model(&models.Contract{}).Where("id = ?", fx.contract.ID).
		Update("enable_billable_hours", false).Error)
	r = svc.Calculate(ctx, fx.project.ID, 50, &fx.contract.ID)
	assert.Equal(t, 5.0, r.CappedHours)
	assert.False(t, r.Capped)
}

func TestBillableHoursCalculate_FailsSoft(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}, hourlyRate: 50})
	seedTask(t, db, fx.project.ID, 3, true)
	svc := NewBillableHoursService(db)

	missing := "no-such-contract"
	r := svc.Calculate(context.Background(), fx.project.ID, 50, &missing)
	assert.Equal(t, 3.0, r.CappedHours)
	assert.False(t, r.Capped)

	require.NoError(t, db.Migrator().DropTable(&models.Task{}))
	r = svc.Calculate(context.Background(), fx.project.ID, 50, nil)
	assert.Zero(t, r.TotalHours)
	assert.Zero(t, r.CappedAmount)
	assert.Nil(t, r.WarningMessage)
}

func TestApproveLastMilestone_CappedHoursNoted(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{300}, hourlyRate: 50, enableHours: true, maxHours: 2})
	seedTask(t, db, fx.project.ID, 5, true)

	svc := NewApprovalService(db, &recordingSink{}, nil)
	result, err := svc.ApproveMilestone(context.Background(), fx.project.ID, fx.milestones[0].ID, viewerOf(fx.client))
	require.NoError(t, err)
	require.NotNil(t, result.Invoice)
	assert.Equal(t, 400.0, result.Invoice.Subtotal)
	assert.Contains(t, result.Invoice.Notes, "capped")
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "5.00")
}
