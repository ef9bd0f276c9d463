package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "lunexops/contracts/mq"
	"lunexops/internal/model"
	"lunexops/internal/status"
	"lunexops/pkg/outbox"
	"lunexops/pkg/trace"
)

const leadColumns = `id, name, email, phone, company, service_type, budget_range, timeline,
	message, website_url, location, source, priority, status, lead_score,
	estimated_value, notes, created_at, updated_at, last_contacted_at`

type LeadRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewLeadRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *LeadRepository {
	return &LeadRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

// StatusWrite is one lead status change together with its side effects.
// All of it commits or none of it does.
type StatusWrite struct {
	LeadID        string
	From          status.LeadStatus
	To            status.LeadStatus
	Actor         string
	Reason        string
	Forced        bool
	ContactedAt   *time.Time
	Communication *model.Communication
}

func scanLead(row pgx.Row) (model.Lead, error) {
	var l model.Lead
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Email,
		&l.Phone,
		&l.Company,
		&l.ServiceType,
		&l.BudgetRange,
		&l.Timeline,
		&l.Message,
		&l.WebsiteURL,
		&l.Location,
		&l.Source,
		&l.Priority,
		&l.Status,
		&l.LeadScore,
		&l.EstimatedValue,
		&l.Notes,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.LastContactedAt,
	)
	return l, err
}

// List returns every lead, newest first.
func (r *LeadRepository) List(ctx context.Context) ([]model.Lead, error) {
	rows, err := r.db.Query(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (r *LeadRepository) Get(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanLead(r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// Create inserts l and fills in the generated id and timestamps.
func (r *LeadRepository) Create(ctx context.Context, l *model.Lead) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO leads (name, email, phone, company, service_type, budget_range, timeline,
				message, website_url, location, source, priority, status, lead_score, estimated_value, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING id, created_at, updated_at
		`,
			l.Name, l.Email, l.Phone, l.Company, l.ServiceType, l.BudgetRange, l.Timeline,
			l.Message, l.WebsiteURL, l.Location, l.Source, l.Priority, l.Status, l.LeadScore,
			l.EstimatedValue, l.Notes,
		).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		return r.emitChanged(ctx, tx, l.ID, mqcontracts.OpInsert, l.Status)
	})
}

const updateLeadStatusSQL = `
	UPDATE leads
	SET status = $1,
	    last_contacted_at = COALESCE($2, last_contacted_at),
	    updated_at = NOW()
	WHERE id = $3`

// UpdateStatus writes the status, the audit row and any communication in one
// transaction. Unless w.Forced, the row must still hold w.From; otherwise
// ErrStatusConflict is returned and nothing is written.
func (r *LeadRepository) UpdateStatus(ctx context.Context, w StatusWrite) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			tag pgconn.CommandTag
			err error
		)
		if w.Forced {
			tag, err = tx.Exec(ctx, updateLeadStatusSQL, w.To, w.ContactedAt, w.LeadID)
		} else {
			tag, err = tx.Exec(ctx, updateLeadStatusSQL+` AND status = $4`, w.To, w.ContactedAt, w.LeadID, w.From)
		}
		if err != nil {
			return notFound(fmt.Errorf("update lead status: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrMoved(ctx, tx, w.LeadID)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO lead_status_history (lead_id, old_status, new_status, actor, reason, forced)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, w.LeadID, w.From, w.To, w.Actor, w.Reason, w.Forced); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}

		if w.Communication != nil {
			if err := insertCommunication(ctx, tx, r.outboxRepo, w.Communication); err != nil {
				return err
			}
		}

		if w.Forced {
			payload := mqcontracts.LeadStatusForcedPayload{
				LeadID:    w.LeadID,
				OldStatus: string(w.From),
				NewStatus: string(w.To),
				Actor:     w.Actor,
				Reason:    w.Reason,
				TraceID:   trace.FromContext(ctx),
				ForcedAt:  time.Now(),
			}
			if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "lead", w.LeadID, mqcontracts.RoutingLeadStatusForced, payload); err != nil {
				return err
			}
		}
		return r.emitChanged(ctx, tx, w.LeadID, mqcontracts.OpUpdate, w.To)
	})
}

// missingOrMoved tells a deleted lead apart from one whose status changed
// after the caller read it.
func (r *LeadRepository) missingOrMoved(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

// UpdateDetails writes the staff-editable fields of l.
func (r *LeadRepository) UpdateDetails(ctx context.Context, l *model.Lead) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE leads
			SET name = $1, email = $2, phone = $3, company = $4, service_type = $5,
			    budget_range = $6, timeline = $7, message = $8, website_url = $9,
			    location = $10, priority = $11, estimated_value = $12, notes = $13,
			    updated_at = NOW()
			WHERE id = $14
			RETURNING updated_at
		`,
			l.Name, l.Email, l.Phone, l.Company, l.ServiceType,
			l.BudgetRange, l.Timeline, l.Message, l.WebsiteURL,
			l.Location, l.Priority, l.EstimatedValue, l.Notes,
			l.ID,
		).Scan(&l.UpdatedAt)
		if err != nil {
			return notFound(err)
		}
		return r.emitChanged(ctx, tx, l.ID, mqcontracts.OpUpdate, l.Status)
	})
}

// Delete removes the lead; communications and history go with it.
func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
		if err != nil {
			return notFound(fmt.Errorf("delete lead: %w", err))
		}
		if err := mustAffect(tag.RowsAffected()); err != nil {
			return err
		}
		return r.emitChanged(ctx, tx, id, mqcontracts.OpDelete, "")
	})
}

// History returns the status audit trail of a lead, oldest first.
func (r *LeadRepository) History(ctx context.Context, leadID string) ([]model.LeadStatusChange, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, lead_id, old_status, new_status, actor, reason, forced, created_at
		FROM lead_status_history
		WHERE lead_id = $1
		ORDER BY created_at ASC
	`, leadID)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	changes := []model.LeadStatusChange{}
	for rows.Next() {
		var c model.LeadStatusChange
		if err := rows.Scan(&c.ID, &c.LeadID, &c.OldStatus, &c.NewStatus, &c.Actor, &c.Reason, &c.Forced, &c.CreatedAt); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *LeadRepository) emitChanged(ctx context.Context, tx pgx.Tx, id, op string, s status.LeadStatus) error {
	payload := mqcontracts.LeadChangedPayload{
		LeadID:    id,
		Op:        op,
		Status:    string(s),
		TraceID:   trace.FromContext(ctx),
		ChangedAt: time.Now(),
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "lead", id, mqcontracts.RoutingLeadChanged, payload); err != nil {
		r.logger.Error("Failed to insert lead.changed to outbox", zap.String("lead_id", id), zap.Error(err))
		return err
	}
	return nil
}
