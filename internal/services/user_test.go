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

func TestUserList(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, models.RoleFreelancer, "fl@example.com")
	seedUser(t, db, models.RoleClient, "client@example.com")
	seedUser(t, db, models.RoleClient, "other@corp.com")
	svc := NewUserService(db, &recordingSink{})
	ctx := context.Background()

	all, err := svc.List(ctx, &UserListRequest{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 20, all.PageSize)

	clients, err := svc.List(ctx, &UserListRequest{Role: models.RoleClient})
	require.NoError(t, err)
	assert.Equal(t, int64(2), clients.Total)

	byEmail, err := svc.List(ctx, &UserListRequest{Email: "EXAMPLE.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byEmail.Total)
}

func TestUserUpdate(t *testing.T) {
	db := newTestDB(t)
	admin := seedUser(t, db, models.RoleAdmin, "admin@example.com")
	user := seedUser(t, db, models.RoleFreelancer, "fl@example.com")
	require.NoError(t, db.Create(&models.RefreshToken{UserID: user.ID, TokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour)}).Error)
	sink := &recordingSink{}
	svc := NewUserService(db, sink)
	ctx := context.Background()

	role := models.RoleClient
	_, _, err := svc.Update(ctx, admin.ID, &UpdateUserRequest{Role: &role}, viewerOf(admin))
	assert.True(t, errors.Is(err, response.ErrValidation))

	bad := "owner"
	_, _, err = svc.Update(ctx, user.ID, &UpdateUserRequest{Role: &bad}, viewerOf(admin))
	assert.True(t, errors.Is(err, response.ErrValidation))

	_, _, err = svc.Update(ctx, user.ID, &UpdateUserRequest{}, viewerOf(admin))
	assert.True(t, errors.Is(err, response.ErrValidation))

	_, _, err = svc.Update(ctx, "missing", &UpdateUserRequest{Role: &role}, viewerOf(admin))
	assert.True(t, errors.Is(err, response.ErrNotFound))

	inactive := false
	updated, _, err := svc.Update(ctx, user.ID, &UpdateUserRequest{Role: &role, IsActive: &inactive}, viewerOf(admin))
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, updated.Role)
	assert.False(t, updated.IsActive)
	assert.Contains(t, sink.auditEvents(), "user_updated")

	var live int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("user_id = ? AND revoked_at IS NULL", user.ID).Count(&live).Error)
	assert.Zero(t, live)
}
