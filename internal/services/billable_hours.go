package services

import (
	"context"
	"fmt"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"gorm.io/gorm"
)

type BillableHoursResult struct {
	TotalHours     float64 `json:"total_hours"`
	TotalAmount    float64 `json:"total_amount"`
	CappedHours    float64 `json:"capped_hours"`
	CappedAmount   float64 `json:"capped_amount"`
	Capped         bool    `json:"capped"`
	WarningMessage *string `json:"warning_message,omitempty"`
}

type BillableHoursService struct {
	db *gorm.DB
}

func NewBillableHoursService(db *gorm.DB) *BillableHoursService {
	return &BillableHoursService{db: db}
}

// Calculate sums tracked hours over the project's billable tasks and applies
// the contract's cap. Read failures yield the zero result.
func (s *BillableHoursService) Calculate(ctx context.Context, projectID string, rate float64, contractID *string) *BillableHoursResult {
	return calculateBillableHours(s.db.WithContext(ctx), projectID, rate, contractID)
}

func calculateBillableHours(db *gorm.DB, projectID string, rate float64, contractID *string) *BillableHoursResult {
	result := &BillableHoursResult{}

	var tasks []models.Task
	if err := db.Where("project_id = ? AND billable = ?", projectID, true).Find(&tasks).Error; err != nil {
		logger.Warn().Err(err).Str("project_id", projectID).Msg("billable hours: failed to load tasks")
		return result
	}

	hours := make([]float64, 0, len(tasks))
	for i := range tasks {
		hours = append(hours, tasks[i].TrackedHours())
	}
	total := sumMoney(hours...)

	var maxHours float64
	if contractID != nil && *contractID != "" {
		var contract models.Contract
		if err := db.Select("enable_billable_hours", "max_billable_hours").
			First(&contract, "id = ?", *contractID).Error; err != nil {
			logger.Warn().Err(err).Str("contract_id", *contractID).Msg("billable hours: failed to load contract")
		} else if contract.EnableBillableHours && contract.MaxBillableHours > 0 {
			maxHours = contract.MaxBillableHours
		}
	}

	return ApplyHoursCap(total, maxHours, rate)
}

// ApplyHoursCap clamps total to maxHours when maxHours is positive.
func ApplyHoursCap(total, maxHours, rate float64) *BillableHoursResult {
	result := &BillableHoursResult{
		TotalHours:  total,
		TotalAmount: MulMoney(total, rate),
		CappedHours: total,
	}
	if maxHours > 0 && total > maxHours {
		result.CappedHours = maxHours
		result.Capped = true
		msg := fmt.Sprintf("Billable hours capped: %.2f hours tracked, maximum %g billable", total, maxHours)
		result.WarningMessage = &msg
	}
	result.CappedAmount = MulMoney(result.CappedHours, rate)
	return result
}
