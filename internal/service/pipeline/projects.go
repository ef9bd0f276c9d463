package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/board"
	"lunexops/internal/finance"
	"lunexops/internal/model"
	"lunexops/internal/notify"
	"lunexops/internal/session"
	"lunexops/internal/status"
	"lunexops/pkg/logger"
	"lunexops/pkg/rbac"
)

// ProjectInput creates or replaces the editable part of a project.
type ProjectInput struct {
	LeadID      *string              `json:"lead_id"`
	ClientName  string               `json:"client_name"`
	ProjectName string               `json:"project_name"`
	Amount      float64              `json:"amount"`
	Deposit     float64              `json:"deposit"`
	StartDate   time.Time            `json:"start_date"`
	Status      status.ProjectStatus `json:"status"`
	Notes       string               `json:"notes"`
	Milestones  []MilestoneInput     `json:"milestones"`
}

func (in ProjectInput) validate() error {
	if strings.TrimSpace(in.ClientName) == "" {
		return apperr.Validation("client_name", "client name is required")
	}
	if strings.TrimSpace(in.ProjectName) == "" {
		return apperr.Validation("project_name", "project name is required")
	}
	if err := finance.ValidateAmounts(in.Amount, in.Deposit); err != nil {
		return err
	}
	if in.Status != "" && !in.Status.Valid() {
		return apperr.Newf(apperr.CodeUnknownStatus, "unknown project status %q", in.Status).
			WithMeta("status", string(in.Status))
	}
	for i, m := range in.Milestones {
		if err := m.validate(); err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				return ae.WithMeta("milestone", fmt.Sprint(i))
			}
			return err
		}
	}
	return nil
}

// GetProject reads one project (portfolio entries included) from the snapshot.
func (s *Service) GetProject(id string) (model.Project, error) {
	p, ok := s.Project(id)
	if !ok {
		return model.Project{}, apperr.NotFound("project", id)
	}
	return p, nil
}

// CreateProject stores a project with its initial milestones in one step.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (model.Project, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return model.Project{}, err
	}
	if err := in.validate(); err != nil {
		return model.Project{}, err
	}
	return s.createProject(ctx, in)
}

func (s *Service) createProject(ctx context.Context, in ProjectInput) (model.Project, error) {
	log := logger.WithTrace(ctx, s.logger)

	st := in.Status
	if st == "" {
		st = status.ProjectPending
	}
	start := in.StartDate
	if start.IsZero() {
		start = s.now()
	}
	p := model.Project{
		LeadID:           in.LeadID,
		ClientName:       strings.TrimSpace(in.ClientName),
		ProjectName:      strings.TrimSpace(in.ProjectName),
		Amount:           in.Amount,
		Deposit:          in.Deposit,
		RemainingBalance: in.Amount - in.Deposit,
		StartDate:        start,
		Status:           st,
		Notes:            in.Notes,
		Files:            []model.ProjectFile{},
		Source:           model.ProjectSourceProjects,
	}
	milestones := make([]model.Milestone, 0, len(in.Milestones))
	for _, m := range in.Milestones {
		milestones = append(milestones, m.toModel(""))
	}

	if err := s.stores.Projects.Create(ctx, &p, milestones); err != nil {
		log.Error("Failed to create project", zap.String("project_name", p.ProjectName), zap.Error(err))
		return model.Project{}, apperr.Persistence("create project", err)
	}

	log.Info("Project created",
		zap.String("project_id", p.ID),
		zap.Int("milestones", len(milestones)),
	)
	s.recomputeQuietly(ctx)
	s.refresh(ctx, "project_created")
	return p, nil
}

// UpdateProject replaces the editable fields. Status changes go through
// UpdateProjectStatus or the board; files through AttachFiles.
func (s *Service) UpdateProject(ctx context.Context, id string, in ProjectInput) (model.Project, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return model.Project{}, err
	}
	cur, err := s.editableProject(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	in.Milestones = nil
	if err := in.validate(); err != nil {
		return model.Project{}, err
	}

	p := *cur
	p.ClientName = strings.TrimSpace(in.ClientName)
	p.ProjectName = strings.TrimSpace(in.ProjectName)
	p.Amount = in.Amount
	p.Deposit = in.Deposit
	p.RemainingBalance = in.Amount - in.Deposit
	p.Notes = in.Notes
	if !in.StartDate.IsZero() {
		p.StartDate = in.StartDate
	}

	if err := s.stores.Projects.Update(ctx, &p); err != nil {
		return model.Project{}, storeErr("update project", "project", id, err)
	}
	s.recomputeQuietly(ctx)
	s.refresh(ctx, "project_updated")
	return p, nil
}

// UpdateProjectStatus validates and persists a status outside the board,
// then recomputes the current month.
func (s *Service) UpdateProjectStatus(ctx context.Context, id string, st status.ProjectStatus) (model.Project, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return model.Project{}, err
	}
	if !st.Valid() {
		return model.Project{}, apperr.Newf(apperr.CodeUnknownStatus, "unknown project status %q", st).
			WithMeta("status", string(st))
	}
	cur, err := s.editableProject(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	if err := s.stores.Projects.UpdateProjectStatus(ctx, id, st); err != nil {
		return model.Project{}, storeErr("update project status", "project", id, err)
	}

	logger.WithTrace(ctx, s.logger).Info("Project status changed",
		zap.String("project_id", id),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(st)),
	)
	p := *cur
	p.Status = st
	p.UpdatedAt = s.now()

	s.recomputeQuietly(ctx)
	s.refresh(ctx, "project_status")
	return p, nil
}

// DeleteProject removes a project and its milestones in one transaction.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	sess, err := session.Require(ctx, rbac.PermissionDeleteProject, s.now())
	if err != nil {
		return err
	}
	if _, err := s.editableProject(ctx, id); err != nil {
		return err
	}
	if err := s.stores.Projects.Delete(ctx, id); err != nil {
		return storeErr("delete project", "project", id, err)
	}
	logger.WithTrace(ctx, s.logger).Info("Project deleted",
		zap.String("project_id", id),
		zap.String("actor", sess.Actor()),
	)
	s.recomputeQuietly(ctx)
	s.refresh(ctx, "project_deleted")
	return nil
}

// PromoteLead turns a won lead into a pending project. Promoting the same
// lead again returns the project created the first time.
func (s *Service) PromoteLead(ctx context.Context, leadID string) (model.Project, bool, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return model.Project{}, false, err
	}
	l, err := s.stores.Leads.Get(ctx, leadID)
	if err != nil {
		return model.Project{}, false, storeErr("load lead", "lead", leadID, err)
	}
	if l.Status != status.LeadClosedWon {
		return model.Project{}, false, apperr.Newf(apperr.CodeLeadNotWon, "lead is %s, only won leads become projects", l.Status).
			WithMeta("lead_id", leadID).
			WithMeta("status", string(l.Status))
	}

	existing, err := s.stores.Projects.GetByLead(ctx, leadID)
	if err == nil {
		return *existing, false, nil
	}
	if gerr := storeErr("load project by lead", "project", leadID, err); !apperr.IsCode(gerr, apperr.CodeNotFound) {
		return model.Project{}, false, gerr
	}

	client := l.Company
	if client == "" {
		client = l.Name
	}
	name := l.ServiceType
	if name == "" {
		name = "Project"
	}
	var amount float64
	if l.EstimatedValue != nil {
		amount = *l.EstimatedValue
	}
	notes := l.Message
	if l.Notes != "" {
		notes = l.Notes
	}

	p, err := s.createProject(ctx, ProjectInput{
		LeadID:      &leadID,
		ClientName:  client,
		ProjectName: fmt.Sprintf("%s for %s", name, client),
		Amount:      amount,
		Status:      status.ProjectPending,
		Notes:       notes,
	})
	if err != nil {
		return model.Project{}, false, err
	}
	ev := notify.Success("Lead promoted", fmt.Sprintf("%s is now a project.", l.Name))
	ev.LeadID, ev.ProjectID = leadID, p.ID
	s.notify(ctx, ev)
	return p, true, nil
}

// Upload is one file handed to AttachFiles.
type Upload struct {
	Name     string
	MimeType string
	Body     io.Reader
}

// FileError reports one file that could not be attached.
type FileError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// AttachFiles uploads each file and appends the ones that succeeded to the
// project. A failed file does not stop the others. If the project write
// fails, the files uploaded by this call are deleted again.
func (s *Service) AttachFiles(ctx context.Context, projectID string, uploads []Upload) ([]model.ProjectFile, []FileError, error) {
	if _, err := session.Require(ctx, rbac.PermissionWriteProject, s.now()); err != nil {
		return nil, nil, err
	}
	if s.stores.Files == nil {
		return nil, nil, apperr.Persistence("attach files", fmt.Errorf("no file store configured"))
	}
	if _, err := s.editableProject(ctx, projectID); err != nil {
		return nil, nil, err
	}
	log := logger.WithTrace(ctx, s.logger)

	var stored []model.ProjectFile
	var failed []FileError
	for _, u := range uploads {
		f, err := s.stores.Files.Upload(ctx, "projects/"+projectID, u.Name, u.MimeType, u.Body)
		if err != nil {
			log.Warn("File upload failed",
				zap.String("project_id", projectID),
				zap.String("file", u.Name),
				zap.Error(err),
			)
			failed = append(failed, FileError{Name: u.Name, Error: err.Error()})
			continue
		}
		stored = append(stored, f)
	}
	if len(stored) == 0 {
		return nil, failed, nil
	}

	if err := s.stores.Projects.AppendFiles(ctx, projectID, stored); err != nil {
		s.discardBlobs(ctx, stored)
		return nil, failed, storeErr("attach files", "project", projectID, err)
	}
	log.Info("Files attached",
		zap.String("project_id", projectID),
		zap.Int("stored", len(stored)),
		zap.Int("failed", len(failed)),
	)
	s.refresh(ctx, "files_attached")
	return stored, failed, nil
}

// discardBlobs 删除已上传但未登记到项目的文件；删不掉的只记日志
func (s *Service) discardBlobs(ctx context.Context, files []model.ProjectFile) {
	log := logger.WithTrace(ctx, s.logger)
	for _, f := range files {
		if err := s.stores.Files.Delete(ctx, f.Path); err != nil {
			log.Warn("Orphaned upload left in blob store",
				zap.String("key", f.Path),
				zap.Error(err),
			)
		}
	}
}

// editableProject loads a project from the store. Portfolio entries are
// never in the store, so a snapshot hit marked read-only is rejected first.
func (s *Service) editableProject(ctx context.Context, id string) (*model.Project, error) {
	if p, ok := s.Project(id); ok && p.ReadOnly {
		return nil, apperr.New(apperr.CodeReadOnlyProject, "portfolio projects are read-only").WithMeta("id", id)
	}
	p, err := s.stores.Projects.Get(ctx, id)
	if err != nil {
		return nil, storeErr("load project", "project", id, err)
	}
	return p, nil
}

// MoveCard applies a board drag-and-drop gesture.
func (s *Service) MoveCard(ctx context.Context, m board.Move) (board.Result, error) {
	if _, err := session.Require(ctx, rbac.PermissionMoveBoard, s.now()); err != nil {
		return board.Result{}, err
	}
	return s.board.Move(ctx, m)
}

// BoardColumn is one column of the project board.
type BoardColumn struct {
	ID       status.Column   `json:"id"`
	Status   string          `json:"status"`
	Projects []model.Project `json:"projects"`
	Total    float64         `json:"total"`
}

// Board groups the snapshot projects into columns, left to right, keeping
// snapshot order inside each column.
func (s *Service) Board() []BoardColumn {
	projects := s.Projects()
	cols := make([]BoardColumn, len(status.Columns))
	index := make(map[status.Column]int, len(status.Columns))
	for i, c := range status.Columns {
		st, _ := status.StatusFor(c)
		cols[i] = BoardColumn{ID: c, Status: string(st), Projects: []model.Project{}}
		index[c] = i
	}
	for _, p := range projects {
		i := index[status.ColumnFor(p.Status)]
		cols[i].Projects = append(cols[i].Projects, p)
		cols[i].Total += p.Amount
	}
	return cols
}

// recomputeQuietly refreshes this month's revenue record after a project
// write; a failure is logged and the next write or recompute repairs it.
func (s *Service) recomputeQuietly(ctx context.Context) {
	if err := s.recompute(ctx); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Revenue recompute failed", zap.Error(err))
	}
}
