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

func TestTaskCRUD(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	svc := NewTaskService(db)
	ctx := context.Background()
	fl := viewerOf(fx.freelancer)

	_, err := svc.Create(ctx, &CreateTaskRequest{ProjectID: fx.project.ID, Title: " "}, fl)
	assert.True(t, errors.Is(err, response.ErrValidation))

	_, err = svc.Create(ctx, &CreateTaskRequest{ProjectID: fx.project.ID, Title: "x"}, Viewer{ID: "stranger"})
	assert.True(t, errors.Is(err, response.ErrForbidden))

	task, err := svc.Create(ctx, &CreateTaskRequest{ProjectID: fx.project.ID, Title: " Wireframes "}, fl)
	require.NoError(t, err)
	assert.Equal(t, "Wireframes", task.Title)
	assert.Equal(t, models.TaskTodo, task.Status)
	assert.True(t, task.Billable)
	assert.Equal(t, fx.freelancer.ID, task.AssigneeID)

	bad := "blocked"
	_, err = svc.Update(ctx, task.ID, &UpdateTaskRequest{Status: &bad}, fl)
	assert.True(t, errors.Is(err, response.ErrValidation))

	done := models.TaskDone
	billable := false
	hours := 3.5
	updated, err := svc.Update(ctx, task.ID, &UpdateTaskRequest{Status: &done, Billable: &billable, ActualHours: &hours}, viewerOf(fx.client))
	require.NoError(t, err)
	assert.Equal(t, models.TaskDone, updated.Status)
	assert.False(t, updated.Billable)
	require.NotNil(t, updated.ActualHours)
	assert.Equal(t, 3.5, *updated.ActualHours)

	tasks, err := svc.List(ctx, fx.project.ID, fl)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, svc.Delete(ctx, task.ID, fl))
	_, err = svc.Update(ctx, task.ID, &UpdateTaskRequest{Status: &done}, fl)
	assert.True(t, errors.Is(err, response.ErrNotFound))
}

func TestTaskTimer(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	svc := NewTaskService(db)
	ctx := context.Background()
	fl := viewerOf(fx.freelancer)
	clock := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	task, err := svc.Create(ctx, &CreateTaskRequest{ProjectID: fx.project.ID, Title: "Build API"}, fl)
	require.NoError(t, err)

	_, err = svc.StopTimer(ctx, task.ID, fl)
	assert.True(t, errors.Is(err, response.ErrValidation))

	started, err := svc.StartTimer(ctx, task.ID, fl)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, started.Task.Status)
	assert.Equal(t, models.SessionActive, started.Session.Status)

	_, err = svc.StartTimer(ctx, task.ID, fl)
	assert.True(t, errors.Is(err, response.ErrConflict))

	clock = clock.Add(90 * time.Minute)
	stopped, err := svc.StopTimer(ctx, task.ID, fl)
	require.NoError(t, err)
	assert.Equal(t, 1.5, stopped.Hours)
	assert.Equal(t, int64(5400), stopped.Session.DurationSeconds)
	require.NotNil(t, stopped.Task.ActualHours)
	assert.Equal(t, 1.5, *stopped.Task.ActualHours)

	// a second session accumulates
	_, err = svc.StartTimer(ctx, task.ID, fl)
	require.NoError(t, err)
	clock = clock.Add(45 * time.Minute)
	stopped, err = svc.StopTimer(ctx, task.ID, fl)
	require.NoError(t, err)
	assert.Equal(t, 0.75, stopped.Hours)
	assert.Equal(t, 2.25, *stopped.Task.ActualHours)

	var sessions int64
	require.NoError(t, db.Model(&models.TimeSession{}).Where("task_id = ? AND status = ?", task.ID, models.SessionStopped).Count(&sessions).Error)
	assert.Equal(t, int64(2), sessions)

	_, err = svc.StartTimer(ctx, task.ID, Viewer{ID: "stranger"})
	assert.True(t, errors.Is(err, response.ErrForbidden))
}

func TestTaskTimer_PerUser(t *testing.T) {
	db := newTestDB(t)
	fx := seedActiveProject(t, db, projectOpts{amounts: []float64{100}})
	svc := NewTaskService(db)
	ctx := context.Background()

	task, err := svc.Create(ctx, &CreateTaskRequest{ProjectID: fx.project.ID, Title: "Review"}, viewerOf(fx.freelancer))
	require.NoError(t, err)

	_, err = svc.StartTimer(ctx, task.ID, viewerOf(fx.freelancer))
	require.NoError(t, err)
	_, err = svc.StartTimer(ctx, task.ID, viewerOf(fx.client))
	require.NoError(t, err)
}
