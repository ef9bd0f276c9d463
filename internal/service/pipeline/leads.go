package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/model"
	"lunexops/internal/notify"
	"lunexops/internal/queue"
	"lunexops/internal/repository"
	"lunexops/internal/scoring"
	"lunexops/internal/session"
	"lunexops/internal/status"
	"lunexops/pkg/logger"
	"lunexops/pkg/metrics"
	"lunexops/pkg/rbac"
)

// IntakeScope 线索提交去重的 scope
const IntakeScope = "lead_intake"

var budgetRanges = map[string]bool{
	model.BudgetUnder10k:  true,
	model.Budget10kTo25k:  true,
	model.Budget25kTo50k:  true,
	model.Budget50kTo100k: true,
	model.BudgetOver100k:  true,
}

// LeadInput is a form submission or a manually entered lead.
type LeadInput struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Company        string   `json:"company"`
	ServiceType    string   `json:"service_type"`
	BudgetRange    string   `json:"budget_range"`
	Timeline       string   `json:"timeline"`
	Message        string   `json:"message"`
	WebsiteURL     string   `json:"website_url"`
	Location       string   `json:"location"`
	Source         string   `json:"source"`
	EstimatedValue *float64 `json:"estimated_value"`
}

// LeadPatch carries the staff-editable lead fields; nil leaves a field as is.
type LeadPatch struct {
	Name           *string         `json:"name"`
	Email          *string         `json:"email"`
	Phone          *string         `json:"phone"`
	Company        *string         `json:"company"`
	ServiceType    *string         `json:"service_type"`
	BudgetRange    *string         `json:"budget_range"`
	Timeline       *string         `json:"timeline"`
	Message        *string         `json:"message"`
	WebsiteURL     *string         `json:"website_url"`
	Location       *string         `json:"location"`
	Priority       *model.Priority `json:"priority"`
	EstimatedValue *float64        `json:"estimated_value"`
	Notes          *string         `json:"notes"`
}

// CreateLead validates and stores a new lead. Public form submissions need no
// session; manual entries do. A repeated submission for the same email and
// service inside the dedup window is rejected.
func (s *Service) CreateLead(ctx context.Context, in LeadInput) (model.Lead, error) {
	log := logger.WithTrace(ctx, s.logger)

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Source == "" {
		in.Source = model.SourceContactForm
	}

	if err := validateLeadInput(in); err != nil {
		metrics.IncrementLeadIntake(sourceLabel(in.Source), "invalid")
		return model.Lead{}, err
	}
	if in.Source == model.SourceManual {
		if _, err := session.Require(ctx, rbac.PermissionWriteLead, s.now()); err != nil {
			return model.Lead{}, err
		}
	}
	if in.Location == "" && strings.HasPrefix(in.Source, model.SourceLocationPagePrefix) {
		in.Location = strings.TrimPrefix(in.Source, model.SourceLocationPagePrefix)
	}

	dedupKey := in.Email + "|" + strings.ToLower(in.ServiceType)
	if s.dedup != nil && !s.dedup.AcquireOnce(ctx, IntakeScope, dedupKey) {
		metrics.IncrementLeadIntake(sourceLabel(in.Source), "duplicate")
		return model.Lead{}, apperr.New(apperr.CodeDuplicateIntake, "this request was already received").
			WithMeta("email", in.Email)
	}

	score := scoring.Score(scoring.Input{
		BudgetRange: in.BudgetRange,
		Timeline:    in.Timeline,
		ServiceType: in.ServiceType,
		Company:     in.Company,
		WebsiteURL:  in.WebsiteURL,
		Goals:       in.Message,
	})

	l := model.Lead{
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		Company:        in.Company,
		ServiceType:    in.ServiceType,
		BudgetRange:    in.BudgetRange,
		Timeline:       in.Timeline,
		Message:        in.Message,
		WebsiteURL:     in.WebsiteURL,
		Location:       in.Location,
		Source:         in.Source,
		Priority:       scoring.PriorityForBudget(in.BudgetRange),
		Status:         status.LeadNew,
		LeadScore:      score.Score,
		EstimatedValue: in.EstimatedValue,
	}

	if err := s.stores.Leads.Create(ctx, &l); err != nil {
		if s.dedup != nil {
			s.dedup.Release(ctx, IntakeScope, dedupKey)
		}
		metrics.IncrementLeadIntake(sourceLabel(in.Source), "error")
		log.Error("Failed to store lead", zap.String("source", in.Source), zap.Error(err))
		return model.Lead{}, apperr.Persistence("create lead", err)
	}

	metrics.IncrementLeadIntake(sourceLabel(in.Source), "ok")
	log.Info("Lead received",
		zap.String("lead_id", l.ID),
		zap.String("source", l.Source),
		zap.String("priority", string(l.Priority)),
		zap.Int("score", l.LeadScore),
	)
	s.refresh(ctx, "lead_created")
	return l, nil
}

func validateLeadInput(in LeadInput) error {
	if in.Name == "" {
		return apperr.Validation("name", "name is required")
	}
	if in.Email == "" {
		return apperr.Validation("email", "email is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperr.Validation("email", "email is not a valid address")
	}
	if in.BudgetRange != "" && !budgetRanges[in.BudgetRange] {
		return apperr.Validation("budget_range", fmt.Sprintf("unknown budget range %q", in.BudgetRange))
	}
	if in.EstimatedValue != nil && *in.EstimatedValue < 0 {
		return apperr.New(apperr.CodeNegativeAmount, "estimated value cannot be negative").WithMeta("field", "estimated_value")
	}
	switch {
	case in.Source == model.SourceContactForm, in.Source == model.SourceManual:
	case strings.HasPrefix(in.Source, model.SourceLocationPagePrefix) && len(in.Source) > len(model.SourceLocationPagePrefix):
	default:
		return apperr.Validation("source", fmt.Sprintf("unknown source %q", in.Source))
	}
	return nil
}

// sourceLabel keeps metric cardinality bounded: every city page counts as one source.
func sourceLabel(src string) string {
	if strings.HasPrefix(src, model.SourceLocationPagePrefix) {
		return "location_page"
	}
	return src
}

// FilteredView is the triage queue for a view mode.
func (s *Service) FilteredView(mode queue.ViewMode, f queue.Filter) []model.LeadQueueItem {
	return queue.View(s.Leads(), mode, f, s.cfg.QueueLimit, s.now())
}

// GetLead reads one lead from the snapshot.
func (s *Service) GetLead(id string) (model.Lead, error) {
	l, ok := s.lead(id)
	if !ok {
		return model.Lead{}, apperr.NotFound("lead", id)
	}
	return l, nil
}

// ApplyLeadAction performs a named pipeline action. contact records the
// contact time and logs a note; proposal logs the outbound proposal email.
func (s *Service) ApplyLeadAction(ctx context.Context, leadID, action string) (model.Lead, error) {
	sess, err := session.Require(ctx, rbac.PermissionWriteLead, s.now())
	if err != nil {
		return model.Lead{}, err
	}

	act := status.LeadAction(action)
	target, ok := act.Target()
	if !ok {
		metrics.IncrementLeadAction(action, "rejected")
		return model.Lead{}, apperr.Newf(apperr.CodeUnknownAction, "unknown lead action %q", action).
			WithMeta("action", action)
	}

	cur, err := s.stores.Leads.Get(ctx, leadID)
	if err != nil {
		metrics.IncrementLeadAction(action, "error")
		return model.Lead{}, storeErr("load lead", "lead", leadID, err)
	}

	w := repository.StatusWrite{
		LeadID: leadID,
		From:   cur.Status,
		To:     target,
		Actor:  sess.Actor(),
		Reason: "action:" + action,
	}
	now := s.now()
	switch act {
	case status.ActionContact:
		w.ContactedAt = &now
		w.Communication = &model.Communication{
			LeadID:    leadID,
			Type:      "note",
			Direction: "outbound",
			Subject:   "Lead contacted",
			Content:   fmt.Sprintf("%s contacted %s", sess.Name, cur.Name),
			Status:    "completed",
			CreatedBy: sess.Actor(),
		}
	case status.ActionProposal:
		w.Communication = &model.Communication{
			LeadID:    leadID,
			Type:      "email",
			Direction: "outbound",
			Subject:   "Proposal sent",
			Content:   fmt.Sprintf("Proposal for %s sent to %s", cur.ServiceType, cur.Email),
			Status:    "sent",
			CreatedBy: sess.Actor(),
		}
	}

	l, err := s.writeLeadStatus(ctx, cur, w)
	if err != nil {
		metrics.IncrementLeadAction(action, resultLabel(err))
		return model.Lead{}, err
	}
	metrics.IncrementLeadAction(action, "ok")
	return l, nil
}

// TargetKind selects which record UpdateStatus addresses.
type TargetKind string

const (
	TargetLead    TargetKind = "lead"
	TargetProject TargetKind = "project"
)

// UpdateStatus dispatches a raw status string to the lead or project path.
func (s *Service) UpdateStatus(ctx context.Context, kind TargetKind, id, newStatus string) error {
	switch kind {
	case TargetLead:
		st, ok := status.ParseLeadStatus(newStatus)
		if !ok {
			return apperr.Newf(apperr.CodeUnknownStatus, "unknown lead status %q", newStatus).WithMeta("status", newStatus)
		}
		_, err := s.UpdateLeadStatus(ctx, id, st)
		return err
	case TargetProject:
		st, ok := status.ParseProjectStatus(newStatus)
		if !ok {
			return apperr.Newf(apperr.CodeUnknownStatus, "unknown project status %q", newStatus).WithMeta("status", newStatus)
		}
		_, err := s.UpdateProjectStatus(ctx, id, st)
		return err
	default:
		return apperr.Validation("target", fmt.Sprintf("unknown target %q", kind))
	}
}

// UpdateLeadStatus moves a lead along a legal edge of the transition table.
func (s *Service) UpdateLeadStatus(ctx context.Context, leadID string, to status.LeadStatus) (model.Lead, error) {
	sess, err := session.Require(ctx, rbac.PermissionWriteLead, s.now())
	if err != nil {
		return model.Lead{}, err
	}
	if !to.Valid() {
		return model.Lead{}, apperr.Newf(apperr.CodeUnknownStatus, "unknown lead status %q", to).WithMeta("status", string(to))
	}
	cur, err := s.stores.Leads.Get(ctx, leadID)
	if err != nil {
		return model.Lead{}, storeErr("load lead", "lead", leadID, err)
	}
	w := repository.StatusWrite{LeadID: leadID, From: cur.Status, To: to, Actor: sess.Actor()}
	if to == status.LeadContacted {
		now := s.now()
		w.ContactedAt = &now
	}
	return s.writeLeadStatus(ctx, cur, w)
}

// ForceSetLeadStatus writes any status without consulting the transition
// table. It is restricted to admins, needs a reason and is audited.
func (s *Service) ForceSetLeadStatus(ctx context.Context, leadID string, to status.LeadStatus, reason string) (model.Lead, error) {
	sess, err := session.Require(ctx, rbac.PermissionForceLeadStatus, s.now())
	if err != nil {
		return model.Lead{}, err
	}
	if !to.Valid() {
		return model.Lead{}, apperr.Newf(apperr.CodeUnknownStatus, "unknown lead status %q", to).WithMeta("status", string(to))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Lead{}, apperr.Validation("reason", "a reason is required to force a status")
	}

	cur, err := s.stores.Leads.Get(ctx, leadID)
	if err != nil {
		return model.Lead{}, storeErr("load lead", "lead", leadID, err)
	}

	logger.WithTrace(ctx, s.logger).Warn("Forcing lead status",
		zap.String("lead_id", leadID),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(to)),
		zap.String("actor", sess.Actor()),
		zap.String("reason", reason),
	)

	return s.writeLeadStatus(ctx, cur, repository.StatusWrite{
		LeadID: leadID,
		From:   cur.Status,
		To:     to,
		Actor:  sess.Actor(),
		Reason: reason,
		Forced: true,
	})
}

// writeLeadStatus checks the edge (unless forced), persists, then refreshes.
func (s *Service) writeLeadStatus(ctx context.Context, cur *model.Lead, w repository.StatusWrite) (model.Lead, error) {
	log := logger.WithTrace(ctx, s.logger)

	if !w.Forced && !status.CanTransition(w.From, w.To) {
		return model.Lead{}, apperr.Transition(w.From, w.To, status.AllowedFrom(w.From)).WithMeta("lead_id", w.LeadID)
	}

	if err := s.stores.Leads.UpdateStatus(ctx, w); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			log.Warn("Lead status changed before write",
				zap.String("lead_id", w.LeadID),
				zap.String("expected", string(w.From)),
				zap.String("to", string(w.To)),
			)
			return model.Lead{}, apperr.Newf(apperr.CodeInvalidTransition,
				"lead is no longer %s; reload and retry", w.From).
				WithMeta("lead_id", w.LeadID).
				WithMeta("from", string(w.From)).
				WithMeta("to", string(w.To))
		}
		log.Error("Failed to update lead status",
			zap.String("lead_id", w.LeadID),
			zap.String("to", string(w.To)),
			zap.Error(err),
		)
		return model.Lead{}, storeErr("update lead status", "lead", w.LeadID, err)
	}

	log.Info("Lead status changed",
		zap.String("lead_id", w.LeadID),
		zap.String("from", string(w.From)),
		zap.String("to", string(w.To)),
		zap.Bool("forced", w.Forced),
	)

	updated := *cur
	updated.Status = w.To
	updated.UpdatedAt = s.now()
	if w.ContactedAt != nil {
		updated.LastContactedAt = w.ContactedAt
	}

	ev := notify.Success("Lead updated", fmt.Sprintf("%s is now %s.", cur.Name, w.To))
	ev.LeadID = w.LeadID
	s.notify(ctx, ev)

	s.refresh(ctx, "lead_status")
	return updated, nil
}

// UpdateLeadDetails applies p to the lead. Status is not editable here.
func (s *Service) UpdateLeadDetails(ctx context.Context, leadID string, p LeadPatch) (model.Lead, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteLead, s.now()); err != nil {
		return model.Lead{}, err
	}
	cur, err := s.stores.Leads.Get(ctx, leadID)
	if err != nil {
		return model.Lead{}, storeErr("load lead", "lead", leadID, err)
	}

	l := *cur
	setString(&l.Name, p.Name)
	setString(&l.Email, p.Email)
	setString(&l.Phone, p.Phone)
	setString(&l.Company, p.Company)
	setString(&l.ServiceType, p.ServiceType)
	setString(&l.BudgetRange, p.BudgetRange)
	setString(&l.Timeline, p.Timeline)
	setString(&l.Message, p.Message)
	setString(&l.WebsiteURL, p.WebsiteURL)
	setString(&l.Location, p.Location)
	setString(&l.Notes, p.Notes)
	if p.Priority != nil {
		l.Priority = *p.Priority
	}
	if p.EstimatedValue != nil {
		l.EstimatedValue = p.EstimatedValue
	}

	if err := validateLeadInput(LeadInput{
		Name:           strings.TrimSpace(l.Name),
		Email:          strings.TrimSpace(l.Email),
		BudgetRange:    l.BudgetRange,
		Source:         l.Source,
		EstimatedValue: l.EstimatedValue,
	}); err != nil {
		return model.Lead{}, err
	}
	switch l.Priority {
	case model.PriorityUrgent, model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
	default:
		return model.Lead{}, apperr.Validation("priority", fmt.Sprintf("unknown priority %q", l.Priority))
	}

	if err := s.stores.Leads.UpdateDetails(ctx, &l); err != nil {
		return model.Lead{}, storeErr("update lead", "lead", leadID, err)
	}
	s.refresh(ctx, "lead_updated")
	return l, nil
}

// DeleteLead hard-deletes a lead with its communications and history.
func (s *Service) DeleteLead(ctx context.Context, leadID string) error {
	sess, err := session.Require(ctx, rbac.PermissionDeleteLead, s.now())
	if err != nil {
		return err
	}
	if err := s.stores.Leads.Delete(ctx, leadID); err != nil {
		return storeErr("delete lead", "lead", leadID, err)
	}
	logger.WithTrace(ctx, s.logger).Info("Lead deleted",
		zap.String("lead_id", leadID),
		zap.String("actor", sess.Actor()),
	)
	s.refresh(ctx, "lead_deleted")
	return nil
}

// LeadHistory returns the status audit trail.
func (s *Service) LeadHistory(ctx context.Context, leadID string) ([]model.LeadStatusChange, error) {
	h, err := s.stores.Leads.History(ctx, leadID)
	if err != nil {
		return nil, storeErr("load lead history", "lead", leadID, err)
	}
	return h, nil
}

func (s *Service) Communications(ctx context.Context, leadID string) ([]model.Communication, error) {
	c, err := s.stores.Communications.ListByLead(ctx, leadID)
	if err != nil {
		return nil, storeErr("load communications", "lead", leadID, err)
	}
	return c, nil
}

var communicationTypes = map[string]bool{"email": true, "phone": true, "meeting": true, "note": true}

// LogCommunication records a manual email, call, meeting or note.
func (s *Service) LogCommunication(ctx context.Context, c model.Communication) (model.Communication, error) {
	sess, err := session.Require(ctx, rbac.PermissionWriteLead, s.now())
	if err != nil {
		return model.Communication{}, err
	}
	if !communicationTypes[c.Type] {
		return model.Communication{}, apperr.Validation("type", fmt.Sprintf("unknown communication type %q", c.Type))
	}
	if c.Direction == "" {
		c.Direction = "outbound"
	}
	if c.Direction != "outbound" && c.Direction != "inbound" {
		return model.Communication{}, apperr.Validation("direction", fmt.Sprintf("unknown direction %q", c.Direction))
	}
	if c.Status == "" {
		c.Status = "completed"
	}
	c.CreatedBy = sess.Actor()

	if err := s.stores.Communications.Create(ctx, &c); err != nil {
		return model.Communication{}, storeErr("create communication", "lead", c.LeadID, err)
	}
	return c, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func resultLabel(err error) string {
	switch apperr.GetCode(err) {
	case apperr.CodeInvalidTransition:
		return "rejected"
	case apperr.CodeNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// refresh reloads after a successful write. The write already happened, so a
// failed reload is only logged; the next change event or poll catches up.
func (s *Service) refresh(ctx context.Context, trigger string) {
	_ = s.Invalidate(ctx, trigger)
}

func (s *Service) notify(ctx context.Context, e notify.Event) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, e)
	}
}

// elapsed is used by background jobs that log their duration.
func elapsed(start time.Time) zap.Field {
	return zap.Duration("took", time.Since(start))
}
