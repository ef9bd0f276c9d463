package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "lunexops/contracts/mq"
	"lunexops/pkg/logger"
)

// Invalidator reloads the pipeline snapshot (pipeline.Service).
type Invalidator interface {
	Invalidate(ctx context.Context, trigger string) error
}

// ChangeHandler turns record change events into snapshot reloads. Every
// process instance consumes its own copy of each event.
type ChangeHandler struct {
	pipeline Invalidator
	logger   *zap.Logger
}

func NewChangeHandler(pipeline Invalidator, logger *zap.Logger) *ChangeHandler {
	return &ChangeHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// HandleLeadChanged -- lead.changed
func (h *ChangeHandler) HandleLeadChanged(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.LeadChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal lead changed payload", zap.Error(err))
		return err
	}
	logger.WithTrace(ctx, h.logger).Debug("Lead changed",
		zap.String("lead_id", p.LeadID),
		zap.String("op", p.Op),
	)
	return h.invalidate(ctx, mqcontracts.RoutingLeadChanged)
}

// HandleCommunicationCreated -- communication.created
func (h *ChangeHandler) HandleCommunicationCreated(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.CommunicationCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal communication created payload", zap.Error(err))
		return err
	}
	logger.WithTrace(ctx, h.logger).Debug("Communication created",
		zap.String("communication_id", p.CommunicationID),
		zap.String("lead_id", p.LeadID),
	)
	return h.invalidate(ctx, mqcontracts.RoutingCommunicationCreated)
}

// HandleProjectChanged -- project.changed (milestone writes included)
func (h *ChangeHandler) HandleProjectChanged(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ProjectChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal project changed payload", zap.Error(err))
		return err
	}
	logger.WithTrace(ctx, h.logger).Debug("Project changed",
		zap.String("project_id", p.ProjectID),
		zap.String("op", p.Op),
	)
	return h.invalidate(ctx, mqcontracts.RoutingProjectChanged)
}

// HandleNotificationCreated -- notification.created
func (h *ChangeHandler) HandleNotificationCreated(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.NotificationCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal notification created payload", zap.Error(err))
		return err
	}
	return h.invalidate(ctx, mqcontracts.RoutingNotificationCreated)
}

func (h *ChangeHandler) invalidate(ctx context.Context, trigger string) error {
	if err := h.pipeline.Invalidate(ctx, trigger); err != nil {
		return fmt.Errorf("reload after %s: %w", trigger, err)
	}
	return nil
}
