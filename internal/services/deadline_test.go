package services

import (
	"context"
	"testing"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineSweep_ExpiresPendingProjects(t *testing.T) {
	db := newTestDB(t)
	freelancer := seedUser(t, db, models.RoleFreelancer, "fl@example.com")
	now := time.Date(2026, 4, 10, 6, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 10)

	waiting := &models.Project{Title: "Waiting", FreelancerID: freelancer.ID, Status: models.ProjectPendingInvitation, DueDate: &past}
	noContract := &models.Project{Title: "No contract", FreelancerID: freelancer.ID, Status: models.ProjectPendingContract, DueDate: &past}
	onTime := &models.Project{Title: "On time", FreelancerID: freelancer.ID, Status: models.ProjectPendingInvitation, DueDate: &future}
	for _, p := range []*models.Project{waiting, noContract, onTime} {
		require.NoError(t, db.Create(p).Error)
	}
	invites := []*models.Invitation{
		{ProjectID: waiting.ID, FreelancerID: freelancer.ID, ClientEmail: "a@example.com", Token: "t1", Status: models.InvitationPending, ExpiresAt: future},
		{ProjectID: onTime.ID, FreelancerID: freelancer.ID, ClientEmail: "b@example.com", Token: "t2", Status: models.InvitationPending, ExpiresAt: past},
		{ProjectID: onTime.ID, FreelancerID: freelancer.ID, ClientEmail: "c@example.com", Token: "t3", Status: models.InvitationPending, ExpiresAt: future},
	}
	for _, inv := range invites {
		require.NoError(t, db.Create(inv).Error)
	}

	sink := &recordingSink{}
	svc := NewDeadlineService(db, sink, time.UTC)
	result, err := svc.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExpiredProjects)
	assert.Equal(t, 1, result.ExpiredInvitations)

	p := reloadProject(t, db, waiting.ID)
	assert.Equal(t, models.ProjectInvitationExpired, p.Status)
	assert.Equal(t, models.ProjectPendingInvitation, p.PreviousStatus)
	assert.Contains(t, p.ExpiredReason, "invitation")

	p = reloadProject(t, db, noContract.ID)
	assert.Equal(t, models.ProjectInvitationExpired, p.Status)
	assert.Contains(t, p.ExpiredReason, "contract")

	assert.Equal(t, models.ProjectPendingInvitation, reloadProject(t, db, onTime.ID).Status)

	statuses := map[string]string{}
	var rows []models.Invitation
	require.NoError(t, db.Find(&rows).Error)
	for _, r := range rows {
		statuses[r.Token] = r.Status
	}
	assert.Equal(t, models.InvitationExpired, statuses["t1"])
	assert.Equal(t, models.InvitationExpired, statuses["t2"])
	assert.Equal(t, models.InvitationPending, statuses["t3"])

	assert.Equal(t, 2, sink.count(EffectNotify))
	assert.Len(t, sink.auditEvents(), 2)

	again, err := svc.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, again.ExpiredProjects)
	assert.Zero(t, again.ExpiredInvitations)
}

func TestDeadlineSweep_OverdueProjectsStayActive(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&models.Project{}).Where("id = ?", fx.project.ID).Update("due_date", due).Error)

	sink := &recordingSink{}
	svc := NewDeadlineService(db, sink, time.UTC)
	ctx := context.Background()

	first := due.AddDate(0, 0, 3).Add(8 * time.Hour)
	result, err := svc.Run(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OverdueProjects)
	assert.Equal(t, 1, result.Notified)
	assert.Equal(t, 2, sink.count(EffectNotify))

	p := reloadProject(t, db, fx.project.ID)
	assert.Equal(t, models.ProjectActive, p.Status)
	assert.True(t, p.IsOverdue)
	assert.Equal(t, 3, p.DaysOverdue)

	// same day: flagged already, no second notification
	result, err = svc.Run(ctx, first.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, result.OverdueProjects)
	assert.Zero(t, result.Notified)

	result, err = svc.Run(ctx, due.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Zero(t, result.Notified)
	assert.Equal(t, 5, reloadProject(t, db, fx.project.ID).DaysOverdue)

	result, err = svc.Run(ctx, due.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)

	// due date pushed out again clears the flag
	later := due.AddDate(0, 1, 0)
	require.NoError(t, db.Model(&models.Project{}).Where("id = ?", fx.project.ID).Update("due_date", later).Error)
	result, err = svc.Run(ctx, due.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClearedProjects)
	p = reloadProject(t, db, fx.project.ID)
	assert.False(t, p.IsOverdue)
	assert.Zero(t, p.DaysOverdue)
}

func TestDeadlineSweep_IgnoresCompletedProjects(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&models.Project{}).Where("id = ?", fx.project.ID).
		Updates(map[string]interface{}{"due_date": due, "status": models.ProjectCompleted}).Error)

	result, err := NewDeadlineService(db, &recordingSink{}, time.UTC).Run(context.Background(), due.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Zero(t, result.OverdueProjects)
	assert.False(t, reloadProject(t, db, fx.project.ID).IsOverdue)
}

func TestDeadlineSweep_FlagsProjectDueEarlierToday(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	due := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&models.Project{}).Where("id = ?", fx.project.ID).Update("due_date", due).Error)

	sink := &recordingSink{}
	svc := NewDeadlineService(db, sink, time.UTC)
	ctx := context.Background()

	result, err := svc.Run(ctx, due.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.OverdueProjects)
	assert.Equal(t, 1, result.Notified)
	p := reloadProject(t, db, fx.project.ID)
	assert.True(t, p.IsOverdue)
	assert.Zero(t, p.DaysOverdue)

	result, err = svc.Run(ctx, due.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, result.OverdueProjects)
	assert.Zero(t, result.Notified)
	assert.Equal(t, 1, reloadProject(t, db, fx.project.ID).DaysOverdue)
}
