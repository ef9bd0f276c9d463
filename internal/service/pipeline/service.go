// Package pipeline orchestrates the lead and project lifecycle: it owns the
// in-memory snapshot every view is computed from, applies staff actions
// through the stores, and refreshes the snapshot when the data changes.
package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/blob"
	"lunexops/internal/board"
	"lunexops/internal/model"
	"lunexops/internal/notify"
	"lunexops/internal/portfolio"
	"lunexops/internal/repository"
	"lunexops/internal/status"
	"lunexops/pkg/circuitbreaker"
	"lunexops/pkg/logger"
	"lunexops/pkg/metrics"
	"lunexops/pkg/otel"
)

type LeadStore interface {
	List(ctx context.Context) ([]model.Lead, error)
	Get(ctx context.Context, id string) (*model.Lead, error)
	Create(ctx context.Context, l *model.Lead) error
	UpdateStatus(ctx context.Context, w repository.StatusWrite) error
	UpdateDetails(ctx context.Context, l *model.Lead) error
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, leadID string) ([]model.LeadStatusChange, error)
}

type CommunicationStore interface {
	Create(ctx context.Context, c *model.Communication) error
	ListByLead(ctx context.Context, leadID string) ([]model.Communication, error)
}

type ProjectStore interface {
	List(ctx context.Context) ([]model.Project, error)
	Get(ctx context.Context, id string) (*model.Project, error)
	GetByLead(ctx context.Context, leadID string) (*model.Project, error)
	Create(ctx context.Context, p *model.Project, milestones []model.Milestone) error
	Update(ctx context.Context, p *model.Project) error
	UpdateProjectStatus(ctx context.Context, id string, s status.ProjectStatus) error
	AppendFiles(ctx context.Context, id string, files []model.ProjectFile) error
	Delete(ctx context.Context, id string) error
}

type MilestoneStore interface {
	List(ctx context.Context) ([]model.Milestone, error)
	Get(ctx context.Context, id string) (*model.Milestone, error)
	Create(ctx context.Context, m *model.Milestone) error
	Update(ctx context.Context, m *model.Milestone) error
	SetCompleted(ctx context.Context, id string, completed bool) error
	Delete(ctx context.Context, id string) error
}

type NotificationStore interface {
	List(ctx context.Context) ([]model.Notification, error)
	Create(ctx context.Context, n *model.Notification) error
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
}

type RevenueStore interface {
	List(ctx context.Context) ([]model.MonthlyRevenue, error)
	Upsert(ctx context.Context, m *model.MonthlyRevenue) error
}

// PortfolioSource is the read-only published portfolio.
type PortfolioSource interface {
	ListPublished(ctx context.Context) ([]model.PortfolioProject, error)
}

// Deduper suppresses repeated keys within a window (util.Deduper).
type Deduper interface {
	AcquireOnce(ctx context.Context, scope, key string) bool
	Release(ctx context.Context, scope, key string)
}

type Stores struct {
	Leads          LeadStore
	Communications CommunicationStore
	Projects       ProjectStore
	Milestones     MilestoneStore
	Notifications  NotificationStore
	Revenue        RevenueStore
	Portfolio      PortfolioSource
	Files          blob.Store
}

type Config struct {
	QueueLimit int
	Location   *time.Location
	Mapper     portfolio.Mapper
}

// 快照：所有视图都从这里计算，整体替换
type snapshot struct {
	leads         []model.Lead
	projects      []model.Project
	milestones    []model.Milestone
	notifications []model.Notification
	revenue       []model.MonthlyRevenue
	tentative     map[string]bool
	loadedAt      time.Time
}

type Service struct {
	stores   Stores
	dedup    Deduper
	breaker  *circuitbreaker.CircuitBreaker
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time

	board *board.Synchronizer

	mu   sync.RWMutex
	snap snapshot
}

func New(
	stores Stores,
	dedup Deduper,
	breaker *circuitbreaker.CircuitBreaker,
	notifier notify.Notifier,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Mapper.Policy == nil {
		cfg.Mapper = portfolio.NewMapper(portfolio.DefaultDepositFraction)
	}
	if breaker == nil {
		breaker = circuitbreaker.New("portfolio", circuitbreaker.DefaultConfig(), logger)
	}
	s := &Service{
		stores:   stores,
		dedup:    dedup,
		breaker:  breaker,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		snap:     snapshot{tentative: map[string]bool{}},
	}
	s.board = board.NewSynchronizer(s, stores.Projects, s, s, notifier, logger)
	return s
}

// LoadAll fetches everything and swaps the snapshot in one step. The
// portfolio is optional: if it fails the snapshot carries no portfolio
// projects instead of failing the load.
func (s *Service) LoadAll(ctx context.Context) error {
	ctx, span := otel.StartSpan(ctx, "pipeline.load_all")
	defer span.End()
	log := logger.WithTrace(ctx, s.logger)

	leads, err := s.stores.Leads.List(ctx)
	if err != nil {
		return apperr.Persistence("load leads", err)
	}
	projects, err := s.stores.Projects.List(ctx)
	if err != nil {
		return apperr.Persistence("load projects", err)
	}
	milestones, err := s.stores.Milestones.List(ctx)
	if err != nil {
		return apperr.Persistence("load milestones", err)
	}
	notifications, err := s.stores.Notifications.List(ctx)
	if err != nil {
		return apperr.Persistence("load notifications", err)
	}
	revenue, err := s.stores.Revenue.List(ctx)
	if err != nil {
		return apperr.Persistence("load monthly revenue", err)
	}

	now := s.now()
	projects = append(projects, s.loadPortfolio(ctx, log, now)...)

	span.SetAttributes(
		attribute.Int("leads", len(leads)),
		attribute.Int("projects", len(projects)),
		attribute.Int("milestones", len(milestones)),
	)

	s.mu.Lock()
	s.snap = snapshot{
		leads:         leads,
		projects:      projects,
		milestones:    milestones,
		notifications: notifications,
		revenue:       revenue,
		tentative:     map[string]bool{},
		loadedAt:      now,
	}
	s.mu.Unlock()

	log.Debug("Snapshot loaded",
		zap.Int("leads", len(leads)),
		zap.Int("projects", len(projects)),
		zap.Int("milestones", len(milestones)),
		zap.Int("notifications", len(notifications)),
	)
	return nil
}

func (s *Service) loadPortfolio(ctx context.Context, log *zap.Logger, now time.Time) []model.Project {
	if s.stores.Portfolio == nil {
		return nil
	}
	var entries []model.PortfolioProject
	err := s.breaker.Execute(func() error {
		var err error
		entries, err = s.stores.Portfolio.ListPublished(ctx)
		return err
	})
	if err != nil {
		log.Warn("Portfolio unavailable, continuing without it",
			zap.Bool("breaker_open", errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen)),
			zap.Error(err),
		)
		return nil
	}
	return s.cfg.Mapper.ToProjects(entries, now)
}

// Reload is the blocking full refetch used to reconcile after a failed write.
func (s *Service) Reload(ctx context.Context) error {
	return s.Invalidate(ctx, "reconcile")
}

// Invalidate reloads the snapshot. trigger names the cause in logs and
// metrics (change event, poll, reconcile...).
func (s *Service) Invalidate(ctx context.Context, trigger string) error {
	start := time.Now()
	err := s.LoadAll(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		logger.WithTrace(ctx, s.logger).Error("Snapshot reload failed",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
	}
	metrics.RecordSnapshotReload(trigger, result, time.Since(start))
	return err
}

// LoadedAt is when the current snapshot was taken.
func (s *Service) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.loadedAt
}

// board.View

func (s *Service) Project(id string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.projectIndex(id)
	if i < 0 {
		return model.Project{}, false
	}
	return s.snap.projects[i], true
}

func (s *Service) ApplyTentative(id string, st status.ProjectStatus) (status.ProjectStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.projectIndex(id)
	if i < 0 {
		return "", false
	}
	prev := s.snap.projects[i].Status
	s.snap.projects[i].Status = st
	s.snap.tentative[id] = true
	return prev, true
}

func (s *Service) Confirm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.tentative, id)
	if i := s.projectIndex(id); i >= 0 {
		s.snap.projects[i].UpdatedAt = s.now()
	}
}

func (s *Service) Discard(id string, prev status.ProjectStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.tentative, id)
	if i := s.projectIndex(id); i >= 0 {
		s.snap.projects[i].Status = prev
	}
}

// IsTentative reports whether a board move on id is still unconfirmed.
func (s *Service) IsTentative(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.tentative[id]
}

// projectIndex 调用方持有锁
func (s *Service) projectIndex(id string) int {
	return slices.IndexFunc(s.snap.projects, func(p model.Project) bool { return p.ID == id })
}

// snapshot accessors return copies so callers never alias the snapshot.

func (s *Service) Leads() []model.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.leads)
}

func (s *Service) Projects() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.projects)
}

func (s *Service) Milestones() []model.Milestone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.milestones)
}

func (s *Service) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.notifications)
}

func (s *Service) MonthlyRevenue() []model.MonthlyRevenue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snap.revenue)
}

func (s *Service) lead(id string) (model.Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.snap.leads, func(l model.Lead) bool { return l.ID == id })
	if i < 0 {
		return model.Lead{}, false
	}
	return s.snap.leads[i], true
}

// storeErr maps a store error to the service taxonomy.
func storeErr(op, entity, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Persistence(op, err)
}
