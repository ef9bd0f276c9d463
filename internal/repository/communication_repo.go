package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mqcontracts "lunexops/contracts/mq"
	"lunexops/internal/model"
	"lunexops/pkg/outbox"
	"lunexops/pkg/trace"
)

type CommunicationRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
}

func NewCommunicationRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *CommunicationRepository {
	return &CommunicationRepository{db: db, outboxRepo: outboxRepo}
}

func (r *CommunicationRepository) Create(ctx context.Context, c *model.Communication) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		return insertCommunication(ctx, tx, r.outboxRepo, c)
	})
}

// ListByLead returns the communications logged against a lead, newest first.
func (r *CommunicationRepository) ListByLead(ctx context.Context, leadID string) ([]model.Communication, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, lead_id, type, direction, subject, content, status, created_by, created_at
		FROM communications
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	out := []model.Communication{}
	for rows.Next() {
		var c model.Communication
		if err := rows.Scan(&c.ID, &c.LeadID, &c.Type, &c.Direction, &c.Subject, &c.Content, &c.Status, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertCommunication(ctx context.Context, tx pgx.Tx, outboxRepo *outbox.Repository, c *model.Communication) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO communications (lead_id, type, direction, subject, content, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, c.LeadID, c.Type, c.Direction, c.Subject, c.Content, c.Status, c.CreatedBy).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert communication: %w", err)
	}

	payload := mqcontracts.CommunicationCreatedPayload{
		CommunicationID: c.ID,
		LeadID:          c.LeadID,
		Type:            c.Type,
		TraceID:         trace.FromContext(ctx),
		CreatedAt:       c.CreatedAt,
	}
	return outbox.InsertEventInTx(ctx, tx, outboxRepo, "communication", c.ID, mqcontracts.RoutingCommunicationCreated, payload)
}
