package services

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundMoney rounds half away from zero to cents. Amounts are never negative,
// so this is round-half-up.
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// MulMoney multiplies exactly and rounds the product to cents.
func MulMoney(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

func sumMoney(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// civilDate maps t to midnight UTC of its calendar day in loc, so day
// arithmetic is immune to DST shifts.
func civilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b in loc (negative when b is before a).
func daysBetween(a, b time.Time, loc *time.Location) int {
	return int(civilDate(b, loc).Sub(civilDate(a, loc)).Hours() / 24)
}

// startOfDay is local midnight of t's day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
