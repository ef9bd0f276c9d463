package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "lunexops/contracts/mq"
	"lunexops/internal/model"
	"lunexops/internal/status"
	"lunexops/pkg/outbox"
	"lunexops/pkg/trace"
)

const projectColumns = `id, lead_id, client_name, project_name, amount, deposit, remaining_balance,
	start_date, status, notes, files, created_at, updated_at`

type ProjectRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

func scanProject(row pgx.Row) (model.Project, error) {
	var p model.Project
	err := row.Scan(
		&p.ID,
		&p.LeadID,
		&p.ClientName,
		&p.ProjectName,
		&p.Amount,
		&p.Deposit,
		&p.RemainingBalance,
		&p.StartDate,
		&p.Status,
		&p.Notes,
		&p.Files,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if p.Files == nil {
		p.Files = []model.ProjectFile{}
	}
	p.Source = model.ProjectSourceProjects
	return p, nil
}

// List returns every authoritative project, newest first.
func (r *ProjectRepository) List(ctx context.Context) ([]model.Project, error) {
	rows, err := r.db.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetByLead returns the project promoted from leadID.
func (r *ProjectRepository) GetByLead(ctx context.Context, leadID string) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE lead_id = $1`, leadID))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Create inserts p and its initial milestones in one transaction.
func (r *ProjectRepository) Create(ctx context.Context, p *model.Project, milestones []model.Milestone) error {
	if p.Files == nil {
		p.Files = []model.ProjectFile{}
	}
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO projects (lead_id, client_name, project_name, amount, deposit, remaining_balance,
				start_date, status, notes, files)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at, updated_at
		`,
			p.LeadID, p.ClientName, p.ProjectName, p.Amount, p.Deposit, p.RemainingBalance,
			dateOnly(p.StartDate), p.Status, p.Notes, p.Files,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		p.Source = model.ProjectSourceProjects

		for i := range milestones {
			milestones[i].ProjectID = p.ID
			if err := insertMilestone(ctx, tx, &milestones[i]); err != nil {
				return err
			}
		}
		return r.emitChanged(ctx, tx, p.ID, mqcontracts.OpInsert, p.Status)
	})
}

// Update writes every editable column of p.
func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE projects
			SET client_name = $1, project_name = $2, amount = $3, deposit = $4,
			    remaining_balance = $5, start_date = $6, status = $7, notes = $8,
			    updated_at = NOW()
			WHERE id = $9
			RETURNING updated_at
		`,
			p.ClientName, p.ProjectName, p.Amount, p.Deposit,
			p.RemainingBalance, dateOnly(p.StartDate), p.Status, p.Notes,
			p.ID,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return notFound(err)
		}
		return r.emitChanged(ctx, tx, p.ID, mqcontracts.OpUpdate, p.Status)
	})
}

// UpdateProjectStatus is the single write behind a board move.
func (r *ProjectRepository) UpdateProjectStatus(ctx context.Context, id string, s status.ProjectStatus) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE projects SET status = $1, updated_at = NOW() WHERE id = $2`, s, id)
		if err != nil {
			return notFound(fmt.Errorf("update project status: %w", err))
		}
		if err := mustAffect(tag.RowsAffected()); err != nil {
			return err
		}
		return r.emitChanged(ctx, tx, id, mqcontracts.OpUpdate, s)
	})
}

// AppendFiles adds files to the project's file list.
func (r *ProjectRepository) AppendFiles(ctx context.Context, id string, files []model.ProjectFile) error {
	if len(files) == 0 {
		return nil
	}
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE projects
			SET files = files || $1::jsonb, updated_at = NOW()
			WHERE id = $2
		`, files, id)
		if err != nil {
			return notFound(fmt.Errorf("append project files: %w", err))
		}
		if err := mustAffect(tag.RowsAffected()); err != nil {
			return err
		}
		return r.emitChanged(ctx, tx, id, mqcontracts.OpUpdate, "")
	})
}

// Delete removes the project and its milestones together.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM milestones WHERE project_id = $1`, id); err != nil {
			return notFound(fmt.Errorf("delete milestones: %w", err))
		}
		tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		if err := mustAffect(tag.RowsAffected()); err != nil {
			return err
		}
		return r.emitChanged(ctx, tx, id, mqcontracts.OpDelete, "")
	})
}

func (r *ProjectRepository) emitChanged(ctx context.Context, tx pgx.Tx, id, op string, s status.ProjectStatus) error {
	return emitProjectChanged(ctx, tx, r.outboxRepo, r.logger, id, op, s)
}

func emitProjectChanged(ctx context.Context, tx pgx.Tx, outboxRepo *outbox.Repository, logger *zap.Logger, id, op string, s status.ProjectStatus) error {
	payload := mqcontracts.ProjectChangedPayload{
		ProjectID: id,
		Op:        op,
		Status:    string(s),
		TraceID:   trace.FromContext(ctx),
		ChangedAt: time.Now(),
	}
	if err := outbox.InsertEventInTx(ctx, tx, outboxRepo, "project", id, mqcontracts.RoutingProjectChanged, payload); err != nil {
		logger.Error("Failed to insert project.changed to outbox", zap.String("project_id", id), zap.Error(err))
		return err
	}
	return nil
}
