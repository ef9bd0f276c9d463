package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/finance"
	"lunexops/internal/model"
	"lunexops/internal/session"
	"lunexops/pkg/logger"
	"lunexops/pkg/metrics"
	"lunexops/pkg/rbac"
)

// Financials is the revenue panel computed from the snapshot.
func (s *Service) Financials(now time.Time) finance.Summary {
	return finance.Summarize(s.Projects(), s.MonthlyRevenue(), now.In(s.cfg.Location))
}

func (s *Service) DashboardStats() finance.Stats {
	return finance.DashboardStats(s.Leads(), s.Projects())
}

// RecomputeCurrentMonth rebuilds this month's revenue record from the
// project table. It is a full recompute, so running it twice is harmless.
func (s *Service) RecomputeCurrentMonth(ctx context.Context) error {
	if err := s.recompute(ctx); err != nil {
		return err
	}
	s.refresh(ctx, "revenue_recompute")
	return nil
}

// RecomputeRevenue is the staff-triggered variant of RecomputeCurrentMonth.
func (s *Service) RecomputeRevenue(ctx context.Context) (model.MonthlyRevenue, error) {
	if _, err := session.Require(ctx, rbac.PermissionRecomputeRevenue, s.now()); err != nil {
		return model.MonthlyRevenue{}, err
	}
	if err := s.RecomputeCurrentMonth(ctx); err != nil {
		return model.MonthlyRevenue{}, err
	}
	now := s.now().In(s.cfg.Location)
	if rec := finance.FindMonth(s.MonthlyRevenue(), now.Year(), now.Month()); rec != nil {
		return *rec, nil
	}
	return model.MonthlyRevenue{Month: now.Month().String(), Year: now.Year()}, nil
}

func (s *Service) recompute(ctx context.Context) error {
	log := logger.WithTrace(ctx, s.logger)
	now := s.now().In(s.cfg.Location)

	projects, err := s.stores.Projects.List(ctx)
	if err != nil {
		metrics.IncrementRevenueRecompute("error")
		return apperr.Persistence("load projects", err)
	}
	rec := finance.MonthlyRollup(projects, now.Year(), now.Month(), s.cfg.Location)
	if err := s.stores.Revenue.Upsert(ctx, &rec); err != nil {
		metrics.IncrementRevenueRecompute("error")
		return apperr.Persistence("upsert monthly revenue", err)
	}

	metrics.IncrementRevenueRecompute("ok")
	log.Debug("Monthly revenue recomputed",
		zap.String("month", rec.Month),
		zap.Int("year", rec.Year),
		zap.Float64("total_revenue", rec.TotalRevenue),
		zap.Int("projects", rec.TotalProjects),
	)
	return nil
}
