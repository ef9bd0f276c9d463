// Package finance derives balances and revenue aggregates from project records.
// All functions are pure; callers pass the project set and the clock.
package finance

import (
	"time"

	"lunexops/internal/apperr"
	"lunexops/internal/model"
	"lunexops/internal/status"
)

// ValidateAmounts enforces amount >= 0 and 0 <= deposit <= amount.
func ValidateAmounts(amount, deposit float64) error {
	if amount < 0 {
		return apperr.New(apperr.CodeNegativeAmount, "amount must not be negative").WithMeta("field", "amount")
	}
	if deposit < 0 {
		return apperr.New(apperr.CodeNegativeAmount, "deposit must not be negative").WithMeta("field", "deposit")
	}
	if deposit > amount {
		return apperr.New(apperr.CodeDepositExceeds, "deposit exceeds project amount").WithMeta("field", "deposit")
	}
	return nil
}

// RemainingBalance returns amount - deposit after validating both.
func RemainingBalance(amount, deposit float64) (float64, error) {
	if err := ValidateAmounts(amount, deposit); err != nil {
		return 0, err
	}
	return amount - deposit, nil
}

func TotalRevenue(projects []model.Project) float64 {
	var total float64
	for _, p := range projects {
		total += p.Amount
	}
	return total
}

func Collected(projects []model.Project) float64 {
	var total float64
	for _, p := range projects {
		total += p.Deposit
	}
	return total
}

func Outstanding(projects []model.Project) float64 {
	var total float64
	for _, p := range projects {
		total += p.Amount - p.Deposit
	}
	return total
}

// CollectionRate is collected / total revenue, or 0 when there is no revenue.
func CollectionRate(projects []model.Project) float64 {
	total := TotalRevenue(projects)
	if total == 0 {
		return 0
	}
	return Collected(projects) / total
}

// RevenueByStatus sums amounts per status. Every known status is present,
// zero-valued when it has no projects.
func RevenueByStatus(projects []model.Project) map[status.ProjectStatus]float64 {
	out := make(map[status.ProjectStatus]float64, len(status.ProjectStatuses))
	for _, s := range status.ProjectStatuses {
		out[s] = 0
	}
	for _, p := range projects {
		if p.Status.Valid() {
			out[p.Status] += p.Amount
		}
	}
	return out
}

// MonthlyGrowth is the percentage change of total revenue between two
// monthly records. It is exactly 0 when either record is missing or the
// previous month had no revenue.
func MonthlyGrowth(current, previous *model.MonthlyRevenue) float64 {
	if current == nil || previous == nil || previous.TotalRevenue == 0 {
		return 0
	}
	return (current.TotalRevenue - previous.TotalRevenue) / previous.TotalRevenue * 100
}

func AverageDealSize(projects []model.Project) float64 {
	if len(projects) == 0 {
		return 0
	}
	return TotalRevenue(projects) / float64(len(projects))
}

// MonthlyRollup recomputes the revenue record of (year, month) from the
// projects created in that calendar month, in loc.
func MonthlyRollup(projects []model.Project, year int, month time.Month, loc *time.Location) model.MonthlyRevenue {
	if loc == nil {
		loc = time.UTC
	}
	rec := model.MonthlyRevenue{Month: month.String(), Year: year}
	for _, p := range projects {
		created := p.CreatedAt.In(loc)
		if created.Year() != year || created.Month() != month {
			continue
		}
		rec.TotalRevenue += p.Amount
		rec.TotalProjects++
		if p.Status == status.ProjectCompleted {
			rec.CompletedProjects++
		}
	}
	return rec
}

// FindMonth returns the record for (year, month), or nil.
func FindMonth(records []model.MonthlyRevenue, year int, month time.Month) *model.MonthlyRevenue {
	name := month.String()
	for i := range records {
		if records[i].Year == year && records[i].Month == name {
			return &records[i]
		}
	}
	return nil
}

// PreviousMonth returns the calendar month before (year, month).
func PreviousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
