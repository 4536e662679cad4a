package services

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DashboardService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db, now: time.Now}
}

type DashboardStatsRequest struct {
	StartDate    string `form:"start_date"`
	EndDate      string `form:"end_date"`
	ProjectLimit int    `form:"project_limit"`
}

type DashboardStats struct {
	ActiveProjects    int64   `json:"active_projects"`
	PendingProjects   int64   `json:"pending_projects"`
	OverdueProjects   int64   `json:"overdue_projects"`
	CompletedProjects int64   `json:"completed_projects"`
	OutstandingAmount float64 `json:"outstanding_amount"`
	OverdueInvoices   int64   `json:"overdue_invoices"`
	PaidInPeriod      float64 `json:"paid_in_period"`
	HoursLogged       float64 `json:"hours_logged"`
}

type ProjectStats struct {
	ProjectID string  `json:"project_id"`
	Title     string  `json:"title"`
	Invoiced  float64 `json:"invoiced"`
	Paid      float64 `json:"paid"`
}

type DashboardResponse struct {
	StartDate    time.Time      `json:"start_date"`
	EndDate      time.Time      `json:"end_date"`
	Stats        DashboardStats `json:"stats"`
	ProjectStats []ProjectStats `json:"project_stats"`
}

var outstandingStatuses = []string{models.InvoiceSent, models.InvoicePending, models.InvoiceApproved, models.InvoiceOverdue}

// GetStats summarises the viewer's projects, invoices and tracked time.
// Admins see the whole platform.
func (s *DashboardService) GetStats(ctx context.Context, req *DashboardStatsRequest, v Viewer) (*DashboardResponse, error) {
	start, end, err := s.period(req)
	if err != nil {
		return nil, err
	}
	limit := req.ProjectLimit
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	db := s.db.WithContext(ctx)
	email := strings.ToLower(v.Email)

	projects := func() *gorm.DB {
		q := db.Model(&models.Project{}).Where("archived = ?", false)
		if !v.IsAdmin() {
			q = q.Where("freelancer_id = ? OR client_id = ? OR client_email = ?", v.ID, v.ID, email)
		}
		return q
	}

	var stats DashboardStats
	if err := projects().Where("status = ?", models.ProjectActive).Count(&stats.ActiveProjects).Error; err != nil {
		return nil, err
	}
	pending := []string{models.ProjectPendingInvitation, models.ProjectPendingContract, models.ProjectPendingApproval}
	if err := projects().Where("status IN ?", pending).Count(&stats.PendingProjects).Error; err != nil {
		return nil, err
	}
	if err := projects().Where("is_overdue = ?", true).Count(&stats.OverdueProjects).Error; err != nil {
		return nil, err
	}
	if err := projects().Where("status = ?", models.ProjectCompleted).Count(&stats.CompletedProjects).Error; err != nil {
		return nil, err
	}

	var invoices []models.Invoice
	q := db.Select("id", "project_id", "total_amount", "status", "due_date", "paid_at").
		Where("status <> ?", models.InvoiceCancelled)
	if !v.IsAdmin() {
		q = q.Where("freelancer_id = ? OR client_id = ? OR client_email = ?", v.ID, v.ID, email)
	}
	if err := q.Find(&invoices).Error; err != nil {
		return nil, err
	}

	outstanding, paidInPeriod := decimal.Zero, decimal.Zero
	type totals struct{ invoiced, paid decimal.Decimal }
	perProject := map[string]*totals{}
	now := s.now()
	for _, inv := range invoices {
		amount := decimal.NewFromFloat(inv.TotalAmount)
		if slices.Contains(outstandingStatuses, inv.Status) {
			outstanding = outstanding.Add(amount)
			if inv.Status == models.InvoiceOverdue || inv.DueDate.Before(now) {
				stats.OverdueInvoices++
			}
		}
		if inv.Status == models.InvoicePaid && inv.PaidAt != nil && !inv.PaidAt.Before(start) && !inv.PaidAt.After(end) {
			paidInPeriod = paidInPeriod.Add(amount)
		}
		if inv.ProjectID == nil {
			continue
		}
		t, ok := perProject[*inv.ProjectID]
		if !ok {
			t = &totals{}
			perProject[*inv.ProjectID] = t
		}
		t.invoiced = t.invoiced.Add(amount)
		if inv.Status == models.InvoicePaid {
			t.paid = t.paid.Add(amount)
		}
	}
	stats.OutstandingAmount, _ = outstanding.Round(2).Float64()
	stats.PaidInPeriod, _ = paidInPeriod.Round(2).Float64()

	var seconds int64
	sessions := db.Model(&models.TimeSession{}).
		Where("status = ? AND started_at BETWEEN ? AND ?", models.SessionStopped, start, end)
	if !v.IsAdmin() {
		sessions = sessions.Where("user_id = ?", v.ID)
	}
	if err := sessions.Select("COALESCE(SUM(duration_seconds), 0)").Scan(&seconds).Error; err != nil {
		return nil, err
	}
	stats.HoursLogged = RoundMoney(float64(seconds) / 3600)

	projectStats := make([]ProjectStats, 0, len(perProject))
	for id, t := range perProject {
		ps := ProjectStats{ProjectID: id}
		ps.Invoiced, _ = t.invoiced.Round(2).Float64()
		ps.Paid, _ = t.paid.Round(2).Float64()
		projectStats = append(projectStats, ps)
	}
	sort.Slice(projectStats, func(i, j int) bool {
		if projectStats[i].Invoiced != projectStats[j].Invoiced {
			return projectStats[i].Invoiced > projectStats[j].Invoiced
		}
		return projectStats[i].ProjectID < projectStats[j].ProjectID
	})
	if len(projectStats) > limit {
		projectStats = projectStats[:limit]
	}
	for i := range projectStats {
		var project models.Project
		if err := db.Select("id", "title").First(&project, "id = ?", projectStats[i].ProjectID).Error; err == nil {
			projectStats[i].Title = project.Title
		}
	}

	return &DashboardResponse{
		StartDate:    start,
		EndDate:      end,
		Stats:        stats,
		ProjectStats: projectStats,
	}, nil
}

// period resolves the reporting window, defaulting to the last 30 days.
func (s *DashboardService) period(req *DashboardStatsRequest) (time.Time, time.Time, error) {
	now := s.now()
	start := now.AddDate(0, 0, -30)
	end := now
	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return start, end, response.NewValidation("start_date must be YYYY-MM-DD")
		}
		start = t
	}
	if req.EndDate != "" {
		t, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return start, end, response.NewValidation("end_date must be YYYY-MM-DD")
		}
		end = t.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return start, end, response.NewValidation("end_date must not be before start_date")
	}
	return start, end, nil
}
