package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayStore 重放需要的 outbox 操作
type ReplayStore interface {
	GetFailedEvents(ctx context.Context, limit int) ([]*Event, error)
	ReplayEvent(ctx context.Context, eventID int64) error
}

// ReplayService 把 failed 事件重新放回 pending 队列；实际发送仍由 Dispatcher 完成
type ReplayService struct {
	store  ReplayStore
	logger *zap.Logger
}

func NewReplayService(store ReplayStore, logger *zap.Logger) *ReplayService {
	return &ReplayService{store: store, logger: logger}
}

// ListFailed 管理端查看失败事件
func (s *ReplayService) ListFailed(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.GetFailedEvents(ctx, limit)
}

func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	if err := s.store.ReplayEvent(ctx, eventID); err != nil {
		return err
	}
	s.logger.Info("Outbox event requeued", zap.Int64("event_id", eventID))
	return nil
}

// ReplayFailedEvents 单个失败不影响其余事件，返回成功重置的数量
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.ListFailed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	requeued := 0
	for _, event := range events {
		if err := s.store.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Failed to requeue outbox event",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		requeued++
	}
	return requeued, nil
}
