package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/model"
	"lunexops/internal/session"
	"lunexops/pkg/logger"
	"lunexops/pkg/rbac"
)

// UnreadCount counts unread notifications in the snapshot.
func (s *Service) UnreadCount() int {
	n := 0
	for _, x := range s.Notifications() {
		if !x.Read {
			n++
		}
	}
	return n
}

func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	if _, err := session.Require(ctx, rbac.PermissionWriteNotification, s.now()); err != nil {
		return err
	}
	if err := s.stores.Notifications.MarkRead(ctx, id); err != nil {
		return storeErr("mark notification read", "notification", id, err)
	}
	s.refresh(ctx, "notification_read")
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteNotification, s.now()); err != nil {
		return 0, err
	}
	n, err := s.stores.Notifications.MarkAllRead(ctx)
	if err != nil {
		return 0, apperr.Persistence("mark all notifications read", err)
	}
	if n > 0 {
		s.refresh(ctx, "notification_read")
	}
	return n, nil
}

// ReminderInput schedules a reminder, optionally tied to a project.
type ReminderInput struct {
	ProjectID    *string        `json:"project_id"`
	Message      string         `json:"message"`
	Priority     model.Priority `json:"priority"`
	ScheduledFor *time.Time     `json:"scheduled_for"`
}

func (s *Service) CreateReminder(ctx context.Context, in ReminderInput) (model.Notification, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteNotification, s.now()); err != nil {
		return model.Notification{}, err
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return model.Notification{}, apperr.Validation("message", "message is required")
	}
	prio := in.Priority
	switch prio {
	case "":
		prio = model.PriorityMedium
	case model.PriorityUrgent, model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
	default:
		return model.Notification{}, apperr.Validation("priority", "unknown priority "+string(prio))
	}
	if in.ProjectID != nil {
		if _, err := s.editableProject(ctx, *in.ProjectID); err != nil {
			return model.Notification{}, err
		}
	}

	n := model.Notification{
		ProjectID:    in.ProjectID,
		Message:      msg,
		Type:         model.NotificationReminder,
		Priority:     prio,
		ScheduledFor: in.ScheduledFor,
	}
	if err := s.stores.Notifications.Create(ctx, &n); err != nil {
		return model.Notification{}, apperr.Persistence("create reminder", err)
	}
	logger.WithTrace(ctx, s.logger).Debug("Reminder created", zap.String("notification_id", n.ID))
	s.refresh(ctx, "reminder_created")
	return n, nil
}
