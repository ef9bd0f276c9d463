package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"lunexops/internal/model"
)

type RevenueRepository struct {
	db *pgxpool.Pool
}

func NewRevenueRepository(db *pgxpool.Pool) *RevenueRepository {
	return &RevenueRepository{db: db}
}

// List returns the monthly records, most recent month first.
func (r *RevenueRepository) List(ctx context.Context) ([]model.MonthlyRevenue, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, month, year, total_revenue, total_projects, completed_projects, created_at, updated_at
		FROM monthly_revenue
		ORDER BY year DESC, to_date(month, 'Month') DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MonthlyRevenue{}
	for rows.Next() {
		var m model.MonthlyRevenue
		if err := rows.Scan(&m.ID, &m.Month, &m.Year, &m.TotalRevenue, &m.TotalProjects, &m.CompletedProjects, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert writes the record for (month, year), replacing any previous totals.
func (r *RevenueRepository) Upsert(ctx context.Context, m *model.MonthlyRevenue) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO monthly_revenue (month, year, total_revenue, total_projects, completed_projects)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (month, year) DO UPDATE
		SET total_revenue = EXCLUDED.total_revenue,
		    total_projects = EXCLUDED.total_projects,
		    completed_projects = EXCLUDED.completed_projects,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, m.Month, m.Year, m.TotalRevenue, m.TotalProjects, m.CompletedProjects).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}
