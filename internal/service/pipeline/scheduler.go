package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunPeriodic recomputes the current month's revenue (which also reloads
// changes made outside this process) and scans for overdue milestones. It
// blocks until ctx is cancelled. A zero interval disables that job.
func (s *Service) RunPeriodic(ctx context.Context, refreshEvery, overdueEvery time.Duration) {
	refresh, stopRefresh := tickerC(refreshEvery)
	defer stopRefresh()
	overdue, stopOverdue := tickerC(overdueEvery)
	defer stopOverdue()

	// 启动时先扫一次
	if overdueEvery > 0 {
		s.scanOverdue(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Pipeline scheduler stopped")
			return
		case <-refresh:
			s.poll(ctx)
		case <-overdue:
			s.scanOverdue(ctx)
		}
	}
}

// poll 重算本月营收（结束时会重新加载快照）；失败时退回到普通重载
func (s *Service) poll(ctx context.Context) {
	if err := s.RecomputeCurrentMonth(ctx); err != nil {
		s.logger.Warn("Periodic revenue recompute failed", zap.Error(err))
		_ = s.Invalidate(ctx, "poll")
	}
}

func (s *Service) scanOverdue(ctx context.Context) {
	if _, err := s.CheckOverdueMilestones(ctx); err != nil {
		s.logger.Error("Overdue milestone scan failed", zap.Error(err))
	}
}

// d <= 0 时返回 nil channel，永远不会就绪
func tickerC(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
