package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"lunexops/internal/model"
)

// PortfolioRepository reads the published portfolio. It has no write methods.
type PortfolioRepository struct {
	db *pgxpool.Pool
}

func NewPortfolioRepository(db *pgxpool.Pool) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func (r *PortfolioRepository) ListPublished(ctx context.Context) ([]model.PortfolioProject, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, client_name, estimated_value, short_description, description,
		       project_start_date, completion_date, is_published, created_at, updated_at
		FROM portfolio_projects
		WHERE is_published
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PortfolioProject{}
	for rows.Next() {
		var p model.PortfolioProject
		err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.ClientName,
			&p.EstimatedValue,
			&p.ShortDescription,
			&p.Description,
			&p.ProjectStartDate,
			&p.CompletionDate,
			&p.IsPublished,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
