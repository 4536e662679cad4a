package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardStats(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	other := seedUser(t, db, models.RoleFreelancer, "other@example.com")
	now := day(2026, 3, 15)
	paidAt := day(2026, 3, 10)
	pid := fx.project.ID

	invoices := []models.Invoice{
		{InvoiceNumber: "INV-202603-0001", ProjectID: &pid, FreelancerID: fx.freelancer.ID, ClientID: fx.client.ID, TotalAmount: 100, Status: models.InvoicePaid, PaidAt: &paidAt, DueDate: day(2026, 3, 20)},
		{InvoiceNumber: "INV-202603-0002", ProjectID: &pid, FreelancerID: fx.freelancer.ID, ClientID: fx.client.ID, TotalAmount: 250, Status: models.InvoiceSent, DueDate: day(2026, 3, 1)},
		{InvoiceNumber: "INV-202603-0003", ProjectID: &pid, FreelancerID: fx.freelancer.ID, ClientID: fx.client.ID, TotalAmount: 999, Status: models.InvoiceCancelled, DueDate: day(2026, 3, 1)},
		{InvoiceNumber: "INV-202603-0004", FreelancerID: fx.freelancer.ID, ClientID: fx.client.ID, TotalAmount: 50.5, Status: models.InvoicePending, DueDate: day(2026, 4, 1)},
		{InvoiceNumber: "INV-202603-0005", FreelancerID: other.ID, ClientEmail: "someone@example.com", TotalAmount: 500, Status: models.InvoiceSent, DueDate: day(2026, 4, 1)},
	}
	for i := range invoices {
		require.NoError(t, db.Create(&invoices[i]).Error)
	}

	task := seedTask(t, db, pid, 0, true)
	stopped := day(2026, 3, 14).Add(2 * time.Hour)
	sessions := []models.TimeSession{
		{TaskID: task.ID, UserID: fx.freelancer.ID, Status: models.SessionStopped, StartedAt: day(2026, 3, 14), StoppedAt: &stopped, DurationSeconds: 5400},
		{TaskID: task.ID, UserID: other.ID, Status: models.SessionStopped, StartedAt: day(2026, 3, 14), StoppedAt: &stopped, DurationSeconds: 3600},
		{TaskID: task.ID, UserID: fx.freelancer.ID, Status: models.SessionStopped, StartedAt: day(2026, 1, 2), StoppedAt: &stopped, DurationSeconds: 7200},
	}
	for i := range sessions {
		require.NoError(t, db.Create(&sessions[i]).Error)
	}

	svc := NewDashboardService(db)
	svc.now = fixedClock(now)
	ctx := context.Background()

	resp, err := svc.GetStats(ctx, &DashboardStatsRequest{}, viewerOf(fx.freelancer))
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Stats.ActiveProjects)
	assert.Equal(t, 300.5, resp.Stats.OutstandingAmount)
	assert.Equal(t, int64(1), resp.Stats.OverdueInvoices)
	assert.Equal(t, 100.0, resp.Stats.PaidInPeriod)
	assert.Equal(t, 1.5, resp.Stats.HoursLogged)
	require.Len(t, resp.ProjectStats, 1)
	assert.Equal(t, "Website redesign", resp.ProjectStats[0].Title)
	assert.Equal(t, 350.0, resp.ProjectStats[0].Invoiced)
	assert.Equal(t, 100.0, resp.ProjectStats[0].Paid)

	resp, err = svc.GetStats(ctx, &DashboardStatsRequest{}, viewerOf(fx.client))
	require.NoError(t, err)
	assert.Equal(t, 300.5, resp.Stats.OutstandingAmount)
	assert.Zero(t, resp.Stats.HoursLogged)

	resp, err = svc.GetStats(ctx, &DashboardStatsRequest{}, Viewer{ID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 800.5, resp.Stats.OutstandingAmount)
	assert.Equal(t, 2.5, resp.Stats.HoursLogged)

	// a window reaching back to January picks up the older session
	resp, err = svc.GetStats(ctx, &DashboardStatsRequest{StartDate: "2026-01-01", EndDate: "2026-03-15"}, viewerOf(fx.freelancer))
	require.NoError(t, err)
	assert.Equal(t, 3.5, resp.Stats.HoursLogged)
}

func TestDashboardStats_InvalidPeriod(t *testing.T) {
	svc := NewDashboardService(newTestDB(t))
	ctx := context.Background()
	v := Viewer{ID: "admin", Role: models.RoleAdmin}

	for _, req := range []*DashboardStatsRequest{
		{StartDate: "15/03/2026"},
		{EndDate: "tomorrow"},
		{StartDate: "2026-03-10", EndDate: "2026-03-01"},
	} {
		_, err := svc.GetStats(ctx, req, v)
		assert.True(t, errors.Is(err, response.ErrValidation), "%+v: %v", req, err)
	}
}
