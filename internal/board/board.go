// Package board applies drag-and-drop column moves to projects: the view
// changes first, the store second, and a failed store write is undone by
// reloading everything from the store.
package board

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/model"
	"lunexops/internal/notify"
	"lunexops/internal/status"
	"lunexops/pkg/metrics"
	"lunexops/pkg/otel"
)

// Move is one drag-and-drop gesture.
type Move struct {
	ProjectID        string        `json:"project_id"`
	Source           status.Column `json:"source"`
	Destination      status.Column `json:"destination"`
	SourceIndex      int           `json:"source_index"`
	DestinationIndex int           `json:"destination_index"`
}

type Outcome string

const (
	OutcomeNoop       Outcome = "noop"
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeReconciled Outcome = "reconciled"
)

type Result struct {
	Outcome   Outcome              `json:"outcome"`
	ProjectID string               `json:"project_id"`
	From      status.ProjectStatus `json:"from,omitempty"`
	To        status.ProjectStatus `json:"to,omitempty"`
}

// View is the in-memory project projection that moves mutate before the
// store acknowledges them.
type View interface {
	Project(id string) (model.Project, bool)
	// ApplyTentative sets the status and marks the project unconfirmed,
	// returning the status it replaced.
	ApplyTentative(id string, s status.ProjectStatus) (status.ProjectStatus, bool)
	Confirm(id string)
	// Discard restores prev and clears the unconfirmed mark.
	Discard(id string, prev status.ProjectStatus)
}

type Store interface {
	UpdateProjectStatus(ctx context.Context, id string, s status.ProjectStatus) error
}

// Reloader refetches projects, milestones and notifications from the store.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Recomputer interface {
	RecomputeCurrentMonth(ctx context.Context) error
}

type Synchronizer struct {
	view       View
	store      Store
	reloader   Reloader
	recomputer Recomputer
	notifier   notify.Notifier
	logger     *zap.Logger
}

func NewSynchronizer(
	view View,
	store Store,
	reloader Reloader,
	recomputer Recomputer,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		view:       view,
		store:      store,
		reloader:   reloader,
		recomputer: recomputer,
		notifier:   notifier,
		logger:     logger,
	}
}

// Move applies m. A move within one column changes nothing durable and is a
// no-op. On store failure the returned error wraps the store error and the
// view has already been reloaded.
func (s *Synchronizer) Move(ctx context.Context, m Move) (Result, error) {
	ctx, span := otel.StartSpan(ctx, "board.move")
	defer span.End()
	span.SetAttributes(
		attribute.String("project.id", m.ProjectID),
		attribute.String("board.source", string(m.Source)),
		attribute.String("board.destination", string(m.Destination)),
	)

	res := Result{ProjectID: m.ProjectID}

	if m.Source == m.Destination {
		metrics.IncrementBoardMove(string(OutcomeNoop))
		res.Outcome = OutcomeNoop
		return res, nil
	}

	target, ok := status.StatusFor(m.Destination)
	if !ok {
		metrics.IncrementBoardMove("rejected")
		return res, apperr.Newf(apperr.CodeUnknownColumn, "unknown board column %q", m.Destination).
			WithMeta("column", string(m.Destination))
	}

	p, ok := s.view.Project(m.ProjectID)
	if !ok {
		metrics.IncrementBoardMove("rejected")
		return res, apperr.NotFound("project", m.ProjectID)
	}
	if p.ReadOnly {
		metrics.IncrementBoardMove("rejected")
		return res, apperr.New(apperr.CodeReadOnlyProject, "portfolio projects cannot be moved").
			WithMeta("id", m.ProjectID)
	}

	prev, _ := s.view.ApplyTentative(m.ProjectID, target)
	res.From, res.To = prev, target

	s.logger.Debug("Board move applied tentatively",
		zap.String("project_id", m.ProjectID),
		zap.String("from", string(prev)),
		zap.String("to", string(target)),
	)

	if err := s.store.UpdateProjectStatus(ctx, m.ProjectID, target); err != nil {
		span.RecordError(err)
		s.logger.Error("Board move rejected by store, reconciling",
			zap.String("project_id", m.ProjectID),
			zap.String("to", string(target)),
			zap.Error(err),
		)

		s.view.Discard(m.ProjectID, prev)
		if rerr := s.reloader.Reload(ctx); rerr != nil {
			s.logger.Error("Reconcile reload failed after board move",
				zap.String("project_id", m.ProjectID),
				zap.Error(rerr),
			)
		}

		ev := notify.Failure("Project move failed",
			fmt.Sprintf("%s could not be moved to %s; the board was reloaded.", p.ProjectName, m.Destination))
		ev.ProjectID = m.ProjectID
		s.notifier.Notify(ctx, ev)

		metrics.IncrementBoardMove(string(OutcomeReconciled))
		res.Outcome = OutcomeReconciled
		return res, apperr.Persistence("update project status", err)
	}

	s.view.Confirm(m.ProjectID)

	if err := s.recomputer.RecomputeCurrentMonth(ctx); err != nil {
		s.logger.Warn("Revenue recompute failed after board move",
			zap.String("project_id", m.ProjectID),
			zap.Error(err),
		)
	}

	ev := notify.Success("Project moved",
		fmt.Sprintf("%s moved to %s.", p.ProjectName, m.Destination))
	ev.ProjectID = m.ProjectID
	s.notifier.Notify(ctx, ev)

	s.logger.Info("Board move confirmed",
		zap.String("project_id", m.ProjectID),
		zap.String("from", string(prev)),
		zap.String("to", string(target)),
	)
	metrics.IncrementBoardMove(string(OutcomeConfirmed))
	res.Outcome = OutcomeConfirmed
	return res, nil
}
