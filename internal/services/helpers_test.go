package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database. A single connection keeps
// every statement on the same database and serialises transactions.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

// recordingSink collects dispatched effects instead of running them.
type recordingSink struct {
	mu       sync.Mutex
	effects  []Effect
	warnings []string
}

func (r *recordingSink) Dispatch(_ context.Context, effects []Effect) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, effects...)
	return r.warnings
}

func (r *recordingSink) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.effects {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingSink) auditEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.effects {
		if e.Kind == EffectAudit && e.Audit != nil {
			out = append(out, e.Audit.EventType)
		}
	}
	return out
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*EmailMessage
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg *EmailMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var errMailDown = errors.New("smtp: connection refused")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func seedUser(t *testing.T, db *gorm.DB, role, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: strings.SplitN(email, "@", 2)[0], Role: role, IsActive: true}
	require.NoError(t, db.Create(u).Error)
	return u
}

func viewerOf(u *models.User) Viewer {
	return Viewer{ID: u.ID, Email: u.Email, Role: u.Role}
}

type activeProject struct {
	freelancer *models.User
	client     *models.User
	project    *models.Project
	contract   *models.Contract
	milestones []models.Milestone
}

type projectOpts struct {
	amounts     []float64
	policy      string
	hourlyRate  float64
	taxRate     float64
	maxHours    float64
	enableHours bool
}

// seedActiveProject builds a project whose contract is already signed by both
// parties, without any signing-time invoice.
func seedActiveProject(t *testing.T, db *gorm.DB, opts projectOpts) *activeProject {
	t.Helper()
	if opts.policy == "" {
		opts.policy = models.PaymentPolicyMilestone
	}
	freelancer := seedUser(t, db, models.RoleFreelancer, "fl@example.com")
	client := seedUser(t, db, models.RoleClient, "client@example.com")

	signed := day(2026, 1, 5)
	project := &models.Project{
		Title:         "Website redesign",
		FreelancerID:  freelancer.ID,
		ClientID:      client.ID,
		ClientEmail:   client.Email,
		Status:        models.ProjectActive,
		PaymentPolicy: opts.policy,
		HourlyRate:    opts.hourlyRate,
		TaxRate:       opts.taxRate,
		PaymentTerms:  14,
	}
	for i, amount := range opts.amounts {
		project.Milestones = append(project.Milestones, models.Milestone{
			Position:     i,
			Title:        fmt.Sprintf("Milestone %d", i+1),
			Amount:       amount,
			Status:       models.MilestonePending,
			MaxRevisions: models.DefaultMaxRevisions,
		})
	}
	require.NoError(t, db.Create(project).Error)

	contract := &models.Contract{
		ProjectID:           project.ID,
		FreelancerID:        freelancer.ID,
		ClientID:            client.ID,
		Title:               "Website redesign agreement",
		Scope:               "Design and build",
		HourlyRate:          opts.hourlyRate,
		PaymentPolicy:       opts.policy,
		EnableBillableHours: opts.enableHours,
		MaxBillableHours:    opts.maxHours,
		Status:              models.ContractActive,
		FreelancerSignature: "F",
		FreelancerSignedAt:  &signed,
		ClientSignature:     "C",
		ClientSignedAt:      &signed,
	}
	require.NoError(t, db.Create(contract).Error)
	require.NoError(t, db.Model(project).Updates(map[string]interface{}{
		"contract_id":     contract.ID,
		"contract_status": models.ContractActive,
	}).Error)
	project.ContractID = &contract.ID

	milestones, err := projectMilestones(db, project.ID)
	require.NoError(t, err)
	return &activeProject{
		freelancer: freelancer,
		client:     client,
		project:    project,
		contract:   contract,
		milestones: milestones,
	}
}

func seedTask(t *testing.T, db *gorm.DB, projectID string, hours float64, billable bool) *models.Task {
	t.Helper()
	task := &models.Task{
		ProjectID:   projectID,
		Title:       "Task",
		Status:      models.TaskDone,
		Billable:    billable,
		ActualHours: &hours,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func reloadProject(t *testing.T, db *gorm.DB, id string) *models.Project {
	t.Helper()
	p, err := loadProject(db, id)
	require.NoError(t, err)
	return p
}

func reloadMilestone(t *testing.T, db *gorm.DB, id string) *models.Milestone {
	t.Helper()
	m, err := loadMilestone(db, id)
	require.NoError(t, err)
	return m
}
