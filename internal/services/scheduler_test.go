package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobScheduler_RunLockedOncePerSlot(t *testing.T) {
	db := newTestDB(t)
	a := NewJobScheduler(db, config.SchedulerConfig{}, nil, nil, NewAuditService(db), time.UTC)
	b := NewJobScheduler(db, config.SchedulerConfig{}, nil, nil, NewAuditService(db), time.UTC)
	b.owner = "other-instance"
	ctx := context.Background()

	runs := 0
	job := func(context.Context, time.Time) error { runs++; return nil }
	now := time.Date(2026, 5, 4, 9, 0, 12, 0, time.UTC)

	ran, err := a.RunLocked(ctx, JobReminders, now, job)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = b.RunLocked(ctx, JobReminders, now.Add(30*time.Second), job)
	require.NoError(t, err)
	assert.False(t, ran)

	ran, err = a.RunLocked(ctx, JobReminders, now, job)
	require.NoError(t, err)
	assert.False(t, ran)

	// other jobs and the next slot are independent
	ran, err = b.RunLocked(ctx, JobDeadlines, now, job)
	require.NoError(t, err)
	assert.True(t, ran)
	ran, err = b.RunLocked(ctx, JobReminders, now.Add(time.Minute), job)
	require.NoError(t, err)
	assert.True(t, ran)

	assert.Equal(t, 3, runs)
}

func TestJobScheduler_RunLockedReportsJobError(t *testing.T) {
	db := newTestDB(t)
	s := NewJobScheduler(db, config.SchedulerConfig{}, nil, nil, NewAuditService(db), time.UTC)

	boom := errors.New("boom")
	ran, err := s.RunLocked(context.Background(), JobDeadlines, time.Now(), func(context.Context, time.Time) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}

func TestJobScheduler_AuditCleanup(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC)
	s := NewJobScheduler(db, config.SchedulerConfig{AuditRetentionDays: 30}, nil, nil, NewAuditService(db), time.UTC)

	require.NoError(t, db.Create(&models.AuditLog{EventType: "api_request", CreatedAt: now.AddDate(0, 0, -40)}).Error)
	require.NoError(t, db.Create(&models.AuditLog{EventType: "api_request", CreatedAt: now.AddDate(0, 0, -2)}).Error)
	_, err := models.AcquireSchedulerLock(db, JobReminders, "old", "x", time.Hour, now.AddDate(0, 0, -10))
	require.NoError(t, err)
	_, err = models.AcquireSchedulerLock(db, JobReminders, "fresh", "x", time.Hour, now)
	require.NoError(t, err)

	require.NoError(t, s.RunAuditCleanup(context.Background(), now))

	var logs, locks int64
	db.Model(&models.AuditLog{}).Count(&logs)
	db.Model(&models.SchedulerLock{}).Count(&locks)
	assert.Equal(t, int64(1), logs)
	assert.Equal(t, int64(1), locks)
}

func TestJobScheduler_StartRejectsBadCron(t *testing.T) {
	db := newTestDB(t)
	s := NewJobScheduler(db, config.SchedulerConfig{RemindersCron: "every day"}, nil, nil, NewAuditService(db), time.UTC)
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobReminders)
}

func TestAuditRecordAndList(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuditService(db)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, AuditEntry{EventType: "contract_rejected", EntityType: "contract", EntityID: "c1", Message: "Contract rejected", Details: map[string]interface{}{"reason": "price"}}))
	require.NoError(t, svc.Record(ctx, AuditEntry{EventType: "something_new", Message: "other"}))

	list, err := svc.List(&AuditListRequest{Category: models.CategoryContract})
	require.NoError(t, err)
	require.Equal(t, int64(1), list.Total)
	assert.Equal(t, models.SeverityWarning, list.Items[0].Severity)
	assert.Contains(t, list.Items[0].Details, "price")

	list, err = svc.List(&AuditListRequest{Search: "other"})
	require.NoError(t, err)
	require.Equal(t, int64(1), list.Total)
	assert.Equal(t, models.CategorySystem, list.Items[0].Category)
	assert.Equal(t, 20, list.PageSize)
}
