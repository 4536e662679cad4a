package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("handler-test-secret")
}

// stubSink swallows effects and reports a fixed set of warnings.
type stubSink struct{ warnings []string }

func (s *stubSink) Dispatch(context.Context, []services.Effect) []string { return s.warnings }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
	Warning string          `json:"warning"`
}

type testAPI struct {
	router *gin.Engine
	sink   *stubSink
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	sink := &stubSink{}
	auth := services.NewAuthService(db, &config.JWTConfig{ExpireHour: 1, RefreshExpireHour: 24})
	projects := services.NewProjectService(db, sink)
	invitations := services.NewInvitationService(db, sink, "https://app.example.com/")
	authHandler := NewAuthHandler(auth, sink)
	projectHandler := NewProjectHandler(projects, services.NewApprovalService(db, sink, time.UTC), services.NewTaskService(db), services.NewBillableHoursService(db))
	invitationHandler := NewInvitationHandler(invitations)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/invitations/:token", invitationHandler.GetByToken)

	protected := api.Group("", middleware.AuthRequired(auth))
	protected.GET("/auth/me", authHandler.GetCurrentUser)
	protected.GET("/projects", projectHandler.List)
	protected.POST("/projects", projectHandler.Create)
	protected.GET("/projects/:id", projectHandler.GetByID)
	protected.POST("/invitations", invitationHandler.Create)
	protected.POST("/invitations/:token/accept", invitationHandler.Accept)

	return &testAPI{router: r, sink: sink}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *testAPI) register(t *testing.T, email, role string) string {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": email, "password": "secret123", "name": strings.Split(email, "@")[0], "role": role,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var result struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotEmpty(t, result.Token)
	return result.Token
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "fl@example.com", models.RoleFreelancer)

	code, env := api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "fl@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Kind)

	code, env = api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "short@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)

	code, env = api.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "fl@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, env = api.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	var me models.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "fl@example.com", me.Email)
	assert.Equal(t, models.RoleFreelancer, me.Role)

	code, env = api.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Kind)
}

func TestProjectInvitationFlow(t *testing.T) {
	api := newTestAPI(t)
	freelancer := api.register(t, "fl@example.com", models.RoleFreelancer)
	client := api.register(t, "client@example.com", models.RoleClient)

	code, env := api.do(t, http.MethodPost, "/api/projects", client, gin.H{"title": "Not mine"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Kind)

	code, env = api.do(t, http.MethodPost, "/api/projects", freelancer, gin.H{"title": " "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Kind)

	api.sink.warnings = []string{"email failed"}
	code, env = api.do(t, http.MethodPost, "/api/projects", freelancer, gin.H{
		"title":      "Website",
		"milestones": []gin.H{{"title": "Design", "amount": 500, "percentage": 50}, {"title": "Build", "amount": 500, "percentage": 50}},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	assert.True(t, env.Success)
	assert.Equal(t, "email failed", env.Warning)
	var project models.Project
	require.NoError(t, json.Unmarshal(env.Data, &project))
	assert.Equal(t, models.ProjectPendingInvitation, project.Status)
	api.sink.warnings = nil

	code, env = api.do(t, http.MethodGet, "/api/projects/"+project.ID, client, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, env = api.do(t, http.MethodGet, "/api/projects/missing", freelancer, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Kind)

	code, env = api.do(t, http.MethodPost, "/api/invitations", freelancer, gin.H{"project_id": project.ID, "client_email": "Client@Example.com"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var created struct {
		Link string `json:"link"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.True(t, strings.HasPrefix(created.Link, "https://app.example.com/invitations/"), created.Link)
	token := strings.TrimPrefix(created.Link, "https://app.example.com/invitations/")

	code, env = api.do(t, http.MethodGet, "/api/invitations/"+token, "", nil)
	require.Equal(t, http.StatusOK, code)
	var view services.InvitationView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "Website", view.ProjectTitle)

	code, env = api.do(t, http.MethodPost, "/api/invitations/"+token+"/accept", client, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = api.do(t, http.MethodGet, "/api/projects/"+project.ID, client, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &project))
	assert.NotEmpty(t, project.ClientID)
	assert.NotEqual(t, models.ProjectPendingInvitation, project.Status)

	code, env = api.do(t, http.MethodGet, "/api/projects", client, nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)
}
