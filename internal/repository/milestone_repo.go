package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "lunexops/contracts/mq"
	"lunexops/internal/model"
	"lunexops/pkg/outbox"
)

// Milestone writes are announced as project.changed on the owning project.
type MilestoneRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

func (r *MilestoneRepository) List(ctx context.Context) ([]model.Milestone, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, name, due_date, completed, notes, created_at
		FROM milestones
		ORDER BY due_date ASC, created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Milestone{}
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.DueDate, &m.Completed, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MilestoneRepository) Get(ctx context.Context, id string) (*model.Milestone, error) {
	var m model.Milestone
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, name, due_date, completed, notes, created_at
		FROM milestones
		WHERE id = $1
	`, id).Scan(&m.ID, &m.ProjectID, &m.Name, &m.DueDate, &m.Completed, &m.Notes, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *MilestoneRepository) Create(ctx context.Context, m *model.Milestone) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertMilestone(ctx, tx, m); err != nil {
			return notFoundOnFK(err)
		}
		return emitProjectChanged(ctx, tx, r.outboxRepo, r.logger, m.ProjectID, mqcontracts.OpUpdate, "")
	})
}

func (r *MilestoneRepository) Update(ctx context.Context, m *model.Milestone) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE milestones
			SET name = $1, due_date = $2, completed = $3, notes = $4
			WHERE id = $5
			RETURNING project_id, created_at
		`, m.Name, dateOnly(m.DueDate), m.Completed, m.Notes, m.ID).Scan(&m.ProjectID, &m.CreatedAt)
		if err != nil {
			return notFound(err)
		}
		return emitProjectChanged(ctx, tx, r.outboxRepo, r.logger, m.ProjectID, mqcontracts.OpUpdate, "")
	})
}

// SetCompleted flips only the completed flag; the due date is untouched.
func (r *MilestoneRepository) SetCompleted(ctx context.Context, id string, completed bool) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		var projectID string
		err := tx.QueryRow(ctx, `
			UPDATE milestones SET completed = $1 WHERE id = $2 RETURNING project_id
		`, completed, id).Scan(&projectID)
		if err != nil {
			return notFound(err)
		}
		return emitProjectChanged(ctx, tx, r.outboxRepo, r.logger, projectID, mqcontracts.OpUpdate, "")
	})
}

func (r *MilestoneRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		var projectID string
		if err := tx.QueryRow(ctx, `DELETE FROM milestones WHERE id = $1 RETURNING project_id`, id).Scan(&projectID); err != nil {
			return notFound(err)
		}
		return emitProjectChanged(ctx, tx, r.outboxRepo, r.logger, projectID, mqcontracts.OpUpdate, "")
	})
}

func insertMilestone(ctx context.Context, tx pgx.Tx, m *model.Milestone) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO milestones (project_id, name, due_date, completed, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, m.ProjectID, m.Name, dateOnly(m.DueDate), m.Completed, m.Notes).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	return nil
}
