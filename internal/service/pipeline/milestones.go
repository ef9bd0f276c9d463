package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/model"
	"lunexops/internal/schedule"
	"lunexops/internal/session"
	"lunexops/pkg/logger"
	"lunexops/pkg/rbac"
)

const OverdueScope = "overdue"

type MilestoneInput struct {
	Name      string    `json:"name"`
	DueDate   time.Time `json:"due_date"`
	Completed bool      `json:"completed"`
	Notes     string    `json:"notes"`
}

func (in MilestoneInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("name", "milestone name is required")
	}
	if in.DueDate.IsZero() {
		return apperr.Validation("due_date", "milestone due date is required")
	}
	return nil
}

func (in MilestoneInput) toModel(projectID string) model.Milestone {
	return model.Milestone{
		ProjectID: projectID,
		Name:      strings.TrimSpace(in.Name),
		DueDate:   in.DueDate,
		Completed: in.Completed,
		Notes:     in.Notes,
	}
}

// ProjectMilestones returns the snapshot milestones owned by projectID, by due date.
func (s *Service) ProjectMilestones(projectID string) []model.Milestone {
	var out []model.Milestone
	for _, m := range s.Milestones() {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Service) CreateMilestone(ctx context.Context, projectID string, in MilestoneInput) (model.Milestone, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return model.Milestone{}, err
	}
	if err := in.validate(); err != nil {
		return model.Milestone{}, err
	}
	if _, err := s.editableProject(ctx, projectID); err != nil {
		return model.Milestone{}, err
	}

	m := in.toModel(projectID)
	if err := s.stores.Milestones.Create(ctx, &m); err != nil {
		return model.Milestone{}, storeErr("create milestone", "project", projectID, err)
	}
	s.refresh(ctx, "milestone_created")
	return m, nil
}

func (s *Service) UpdateMilestone(ctx context.Context, id string, in MilestoneInput) (model.Milestone, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return model.Milestone{}, err
	}
	if err := in.validate(); err != nil {
		return model.Milestone{}, err
	}
	cur, err := s.stores.Milestones.Get(ctx, id)
	if err != nil {
		return model.Milestone{}, storeErr("load milestone", "milestone", id, err)
	}

	m := in.toModel(cur.ProjectID)
	m.ID = id
	m.CreatedAt = cur.CreatedAt
	if err := s.stores.Milestones.Update(ctx, &m); err != nil {
		return model.Milestone{}, storeErr("update milestone", "milestone", id, err)
	}
	s.refresh(ctx, "milestone_updated")
	return m, nil
}

// ToggleMilestone flips the completed flag as currently stored.
func (s *Service) ToggleMilestone(ctx context.Context, id string) (model.Milestone, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return model.Milestone{}, err
	}
	cur, err := s.stores.Milestones.Get(ctx, id)
	if err != nil {
		return model.Milestone{}, storeErr("load milestone", "milestone", id, err)
	}
	m := *cur
	m.Completed = !m.Completed
	if err := s.stores.Milestones.SetCompleted(ctx, id, m.Completed); err != nil {
		return model.Milestone{}, storeErr("toggle milestone", "milestone", id, err)
	}
	logger.WithTrace(ctx, s.logger).Debug("Milestone toggled",
		zap.String("milestone_id", id),
		zap.Bool("completed", m.Completed),
	)
	s.refresh(ctx, "milestone_toggled")
	return m, nil
}

func (s *Service) DeleteMilestone(ctx context.Context, id string) error {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return err
	}
	if err := s.stores.Milestones.Delete(ctx, id); err != nil {
		return storeErr("delete milestone", "milestone", id, err)
	}
	s.refresh(ctx, "milestone_deleted")
	return nil
}

// Calendar is the delivery timeline plus its upcoming and overdue slices.
type Calendar struct {
	Events   []schedule.Event `json:"events"`
	Upcoming []schedule.Event `json:"upcoming"`
	Overdue  []schedule.Event `json:"overdue"`
	Today    []schedule.Event `json:"today"`
}

func (s *Service) Calendar(now time.Time) Calendar {
	events := schedule.Timeline(s.Projects(), s.Milestones(), now)
	return Calendar{
		Events:   events,
		Upcoming: schedule.Upcoming(events, now),
		Overdue:  schedule.Overdue(events),
		Today:    schedule.On(events, now.In(s.cfg.Location)),
	}
}

// CheckOverdueMilestones creates one deadline notification per overdue
// milestone. The dedup key is the milestone id, so a milestone is reported
// once per dedup window no matter how often the scan runs.
func (s *Service) CheckOverdueMilestones(ctx context.Context) (int, error) {
	start := time.Now()
	log := logger.WithTrace(ctx, s.logger)
	now := s.now()

	names := make(map[string]string)
	for _, p := range s.Projects() {
		names[p.ID] = p.ProjectName
	}

	created := 0
	for _, m := range schedule.OverdueMilestones(s.Milestones(), now) {
		if s.dedup != nil && !s.dedup.AcquireOnce(ctx, OverdueScope, m.ID) {
			continue
		}
		projectID, milestoneID := m.ProjectID, m.ID
		msg := fmt.Sprintf("Milestone %q is overdue (due %s)", m.Name, m.DueDate.In(s.cfg.Location).Format("2006-01-02"))
		if pn := names[m.ProjectID]; pn != "" {
			msg = pn + ": " + msg
		}
		n := model.Notification{
			ProjectID:   &projectID,
			MilestoneID: &milestoneID,
			Message:     msg,
			Type:        model.NotificationDeadline,
			Priority:    model.PriorityHigh,
		}
		if err := s.stores.Notifications.Create(ctx, &n); err != nil {
			if s.dedup != nil {
				s.dedup.Release(ctx, OverdueScope, m.ID)
			}
			return created, apperr.Persistence("create deadline notification", err)
		}
		created++
	}

	if created > 0 {
		s.refresh(ctx, "overdue_scan")
	}
	log.Info("Overdue milestone scan finished", zap.Int("notifications", created), elapsed(start))
	return created, nil
}
