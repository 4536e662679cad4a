package services

import (
	"errors"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

// Viewer is the authenticated caller of a service operation.
type Viewer struct {
	ID    string
	Email string
	Role  string
}

func (v Viewer) IsAdmin() bool { return v.Role == models.RoleAdmin }

// IsProjectParty reports whether v is the freelancer or the client of p.
func (v Viewer) IsProjectParty(p *models.Project) bool {
	return p.FreelancerID == v.ID || p.IsClient(v.ID, v.Email)
}

func loadProject(db *gorm.DB, id string) (*models.Project, error) {
	var project models.Project
	if err := db.First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("project not found")
		}
		return nil, err
	}
	return &project, nil
}

func loadMilestone(db *gorm.DB, id string) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := db.First(&milestone, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("milestone not found")
		}
		return nil, err
	}
	return &milestone, nil
}

func loadContract(db *gorm.DB, id string) (*models.Contract, error) {
	var contract models.Contract
	if err := db.First(&contract, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("contract not found")
		}
		return nil, err
	}
	return &contract, nil
}

func loadInvoice(db *gorm.DB, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := db.Preload("LineItems", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("invoice not found")
		}
		return nil, err
	}
	return &invoice, nil
}

// loadUser returns nil when the user does not exist.
func loadUser(db *gorm.DB, id string) *models.User {
	if id == "" {
		return nil
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil
	}
	return &user
}

func strPtr(s string) *string { return &s }
