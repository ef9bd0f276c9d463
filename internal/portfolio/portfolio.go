// Package portfolio turns published portfolio entries into read-only projects
// so they can sit on the board next to real engagements.
package portfolio

import (
	"math"
	"time"

	"lunexops/internal/model"
	"lunexops/internal/status"
)

const (
	DefaultFallbackValue   = 100000
	DefaultDepositFraction = 0.3

	unknownClient   = "Unknown Client"
	untitledProject = "Untitled Project"
)

// DepositPolicy decides the deposit taken on a project worth value.
type DepositPolicy interface {
	Deposit(value float64) float64
}

// FractionDeposit takes a fixed share of the value, rounded to whole units.
type FractionDeposit float64

func (f FractionDeposit) Deposit(value float64) float64 {
	return math.Round(value * float64(f))
}

type Mapper struct {
	Policy DepositPolicy
	// FallbackValue is used as the amount when an entry carries no estimate.
	FallbackValue float64
}

// NewMapper returns a mapper with the default 30% deposit and 100000 fallback.
func NewMapper(fraction float64) Mapper {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultDepositFraction
	}
	return Mapper{Policy: FractionDeposit(fraction), FallbackValue: DefaultFallbackValue}
}

// ToProject maps one portfolio entry. now supplies the start date when the
// entry has neither a start date nor a creation time.
func (m Mapper) ToProject(p model.PortfolioProject, now time.Time) model.Project {
	value := m.FallbackValue
	if p.EstimatedValue != nil && *p.EstimatedValue > 0 {
		value = *p.EstimatedValue
	}
	deposit := m.Policy.Deposit(value)
	if deposit > value {
		deposit = value
	}

	return model.Project{
		ID:               p.ID,
		ClientName:       orDefault(p.ClientName, unknownClient),
		ProjectName:      orDefault(p.Title, untitledProject),
		Amount:           value,
		Deposit:          deposit,
		RemainingBalance: value - deposit,
		StartDate:        startDate(p, now),
		Status:           statusOf(p),
		Notes:            orDefault(p.ShortDescription, p.Description),
		Files:            []model.ProjectFile{},
		Source:           model.ProjectSourcePortfolio,
		ReadOnly:         true,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (m Mapper) ToProjects(entries []model.PortfolioProject, now time.Time) []model.Project {
	out := make([]model.Project, 0, len(entries))
	for _, e := range entries {
		out = append(out, m.ToProject(e, now))
	}
	return out
}

func statusOf(p model.PortfolioProject) status.ProjectStatus {
	switch {
	case p.CompletionDate != nil:
		return status.ProjectCompleted
	case p.ProjectStartDate != nil:
		return status.ProjectInProgress
	default:
		return status.ProjectPending
	}
}

func startDate(p model.PortfolioProject, now time.Time) time.Time {
	switch {
	case p.ProjectStartDate != nil:
		return *p.ProjectStartDate
	case !p.CreatedAt.IsZero():
		y, mo, d := p.CreatedAt.Date()
		return time.Date(y, mo, d, 0, 0, 0, 0, p.CreatedAt.Location())
	default:
		y, mo, d := now.Date()
		return time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
