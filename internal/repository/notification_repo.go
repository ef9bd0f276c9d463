package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mqcontracts "lunexops/contracts/mq"
	"lunexops/internal/model"
	"lunexops/pkg/outbox"
)

type NotificationRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
}

func NewNotificationRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *NotificationRepository {
	return &NotificationRepository{db: db, outboxRepo: outboxRepo}
}

// List returns notifications newest first.
func (r *NotificationRepository) List(ctx context.Context) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, milestone_id, message, type, priority, read, scheduled_for, created_at
		FROM notifications
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.MilestoneID, &n.Message, &n.Type, &n.Priority, &n.Read, &n.ScheduledFor, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO notifications (project_id, milestone_id, message, type, priority, scheduled_for)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, read, created_at
		`, n.ProjectID, n.MilestoneID, n.Message, n.Type, n.Priority, n.ScheduledFor).Scan(&n.ID, &n.Read, &n.CreatedAt)
		if err != nil {
			return notFoundOnFK(fmt.Errorf("insert notification: %w", err))
		}

		payload := mqcontracts.NotificationCreatedPayload{
			NotificationID: n.ID,
			Type:           n.Type,
			Message:        n.Message,
			CreatedAt:      n.CreatedAt,
		}
		if n.ProjectID != nil {
			payload.ProjectID = *n.ProjectID
		}
		if n.MilestoneID != nil {
			payload.MilestoneID = *n.MilestoneID
		}
		return outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "notification", n.ID, mqcontracts.RoutingNotificationCreated, payload)
	})
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return notFound(err)
	}
	return mustAffect(tag.RowsAffected())
}

// MarkAllRead returns how many notifications changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE NOT read`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
