package model

import (
	"time"

	"lunexops/internal/status"
)

const (
	ProjectSourceProjects  = "projects"
	ProjectSourcePortfolio = "portfolio"
)

type Project struct {
	ID               string               `json:"id"`
	LeadID           *string              `json:"lead_id,omitempty"`
	ClientName       string               `json:"client_name"`
	ProjectName      string               `json:"project_name"`
	Amount           float64              `json:"amount"`
	Deposit          float64              `json:"deposit"`
	RemainingBalance float64              `json:"remaining_balance"`
	StartDate        time.Time            `json:"start_date"`
	Status           status.ProjectStatus `json:"status"`
	Notes            string               `json:"notes"`
	Files            []ProjectFile        `json:"files"`
	Source           string               `json:"source"`
	ReadOnly         bool                 `json:"read_only"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

type ProjectFile struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"type"`
}

// PortfolioProject is a row of the published portfolio. It is never written.
type PortfolioProject struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	ClientName       string     `json:"client_name"`
	EstimatedValue   *float64   `json:"estimated_value"`
	ShortDescription string     `json:"short_description"`
	Description      string     `json:"description"`
	ProjectStartDate *time.Time `json:"project_start_date"`
	CompletionDate   *time.Time `json:"completion_date"`
	IsPublished      bool       `json:"is_published"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Milestone struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	DueDate   time.Time `json:"due_date"`
	Completed bool      `json:"completed"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type MonthlyRevenue struct {
	ID                string    `json:"id"`
	Month             string    `json:"month"`
	Year              int       `json:"year"`
	TotalRevenue      float64   `json:"total_revenue"`
	TotalProjects     int       `json:"total_projects"`
	CompletedProjects int       `json:"completed_projects"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
