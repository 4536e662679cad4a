package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LineItemInput is one requested invoice line before validation.
type LineItemInput struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
}

type InvoiceTotals struct {
	LineItems   []models.InvoiceLineItem `json:"line_items"`
	Subtotal    float64                  `json:"subtotal"`
	TaxAmount   float64                  `json:"tax_amount"`
	TotalAmount float64                  `json:"total_amount"`
}

// CalculateTotals validates line items and computes cent-rounded totals.
// Rounding happens once on the sum of the exact line amounts.
// taxRate is a fraction (0.2 means 20%).
func CalculateTotals(items []LineItemInput, taxRate float64) (*InvoiceTotals, error) {
	if len(items) == 0 {
		return nil, response.NewValidation("at least one line item is required")
	}
	if taxRate < 0 {
		return nil, response.NewValidation("tax_rate must be >= 0")
	}

	totals := &InvoiceTotals{LineItems: make([]models.InvoiceLineItem, 0, len(items))}
	subtotal := decimal.Zero
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return nil, response.NewValidation(fmt.Sprintf("line_items[%d].description is required", i))
		}
		if item.Quantity < 0 {
			return nil, response.NewValidation(fmt.Sprintf("line_items[%d].quantity must be >= 0", i))
		}
		if item.Rate < 0 {
			return nil, response.NewValidation(fmt.Sprintf("line_items[%d].rate must be >= 0", i))
		}

		// line amounts stay exact; only the subtotal is rounded
		amount := decimal.NewFromFloat(item.Quantity).Mul(decimal.NewFromFloat(item.Rate))
		subtotal = subtotal.Add(amount)

		amountF, _ := amount.Float64()
		totals.LineItems = append(totals.LineItems, models.InvoiceLineItem{
			Position:    i,
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Amount:      amountF,
		})
	}

	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(decimal.NewFromFloat(taxRate)).Round(2)
	total := subtotal.Add(tax).Round(2)

	totals.Subtotal, _ = subtotal.Float64()
	totals.TaxAmount, _ = tax.Float64()
	totals.TotalAmount, _ = total.Float64()
	return totals, nil
}

// NextInvoiceNumber allocates the next number of now's month inside tx. The
// counter row is incremented with a single UPDATE, which holds the row lock
// until tx commits, so two concurrent allocations can never read the same value.
func NextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	period := now.Format("200601")
	prefix := "INV-" + period + "-"

	var seq models.InvoiceSequence
	err := tx.Where("period = ?", period).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// First allocation of the month: continue after any numbers issued
		// before the sequence row existed
		var existing int64
		if err := tx.Model(&models.Invoice{}).
			Where("invoice_number LIKE ?", prefix+"%").
			Count(&existing).Error; err != nil {
			return "", err
		}
		seed := models.InvoiceSequence{Period: period, Counter: int(existing)}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	res := tx.Model(&models.InvoiceSequence{}).
		Where("period = ?", period).
		UpdateColumn("counter", gorm.Expr("counter + ?", 1))
	if res.Error != nil {
		return "", res.Error
	}
	if err := tx.Where("period = ?", period).First(&seq).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%04d", prefix, seq.Counter), nil
}
