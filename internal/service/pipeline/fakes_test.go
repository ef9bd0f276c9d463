package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"lunexops/internal/model"
	"lunexops/internal/notify"
	"lunexops/internal/repository"
	"lunexops/internal/session"
	"lunexops/internal/status"
	"lunexops/pkg/rbac"
)

var testNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

// memDB is the in-memory record store behind every fake; each fake store
// below is a view of it with the method set one interface needs.
type memDB struct {
	mu            sync.Mutex
	seq           int
	leads         map[string]model.Lead
	comms         []model.Communication
	history       []model.LeadStatusChange
	projects      map[string]model.Project
	milestones    map[string]model.Milestone
	notifications map[string]model.Notification
	revenue       []model.MonthlyRevenue
	portfolio     []model.PortfolioProject

	statusErr    error
	portfolioErr error
	appendErr    error
	upserts      int

	// beforeStatusWrite runs inside leadStore.UpdateStatus with mu held,
	// standing in for a writer that got there first.
	beforeStatusWrite func(db *memDB)
}

func newMemDB() *memDB {
	return &memDB{
		leads:         map[string]model.Lead{},
		projects:      map[string]model.Project{},
		milestones:    map[string]model.Milestone{},
		notifications: map[string]model.Notification{},
	}
}

func (db *memDB) id(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

type leadStore struct{ *memDB }

func (s leadStore) List(context.Context) ([]model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Lead{}
	for _, l := range s.leads {
		out = append(out, l)
	}
	return out, nil
}

func (s leadStore) Get(_ context.Context, id string) (*model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (s leadStore) Create(_ context.Context, l *model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id("lead")
	l.CreatedAt, l.UpdatedAt = testNow, testNow
	s.leads[l.ID] = *l
	return nil
}

func (s leadStore) UpdateStatus(_ context.Context, w repository.StatusWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeStatusWrite != nil {
		s.beforeStatusWrite(s.memDB)
	}
	l, ok := s.leads[w.LeadID]
	if !ok {
		return repository.ErrNotFound
	}
	if !w.Forced && l.Status != w.From {
		return repository.ErrStatusConflict
	}
	l.Status = w.To
	if w.ContactedAt != nil {
		l.LastContactedAt = w.ContactedAt
	}
	s.leads[w.LeadID] = l
	s.history = append(s.history, model.LeadStatusChange{
		ID: s.id("hist"), LeadID: w.LeadID, OldStatus: w.From, NewStatus: w.To,
		Actor: w.Actor, Reason: w.Reason, Forced: w.Forced,
	})
	if w.Communication != nil {
		c := *w.Communication
		c.ID = s.id("comm")
		s.comms = append(s.comms, c)
	}
	return nil
}

func (s leadStore) UpdateDetails(_ context.Context, l *model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[l.ID]; !ok {
		return repository.ErrNotFound
	}
	s.leads[l.ID] = *l
	return nil
}

func (s leadStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.leads, id)
	return nil
}

func (s leadStore) History(_ context.Context, leadID string) ([]model.LeadStatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LeadStatusChange
	for _, h := range s.history {
		if h.LeadID == leadID {
			out = append(out, h)
		}
	}
	return out, nil
}

type commStore struct{ *memDB }

func (s commStore) Create(_ context.Context, c *model.Communication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[c.LeadID]; !ok {
		return repository.ErrNotFound
	}
	c.ID = s.id("comm")
	s.comms = append(s.comms, *c)
	return nil
}

func (s commStore) ListByLead(_ context.Context, leadID string) ([]model.Communication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Communication
	for _, c := range s.comms {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	return out, nil
}

type projectStore struct{ *memDB }

func (s projectStore) List(context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Project{}
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}

func (s projectStore) Get(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s projectStore) GetByLead(_ context.Context, leadID string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.LeadID != nil && *p.LeadID == leadID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s projectStore) Create(_ context.Context, p *model.Project, ms []model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id("project")
	p.CreatedAt, p.UpdatedAt = testNow, testNow
	s.projects[p.ID] = *p
	for _, m := range ms {
		m.ID = s.id("ms")
		m.ProjectID = p.ID
		s.milestones[m.ID] = m
	}
	return nil
}

func (s projectStore) Update(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return repository.ErrNotFound
	}
	s.projects[p.ID] = *p
	return nil
}

func (s projectStore) UpdateProjectStatus(_ context.Context, id string, st status.ProjectStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return s.statusErr
	}
	p, ok := s.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = st
	s.projects[id] = p
	return nil
}

func (s projectStore) AppendFiles(_ context.Context, id string, files []model.ProjectFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	p, ok := s.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Files = append(p.Files, files...)
	s.projects[id] = p
	return nil
}

func (s projectStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return repository.ErrNotFound
	}
	for mid, m := range s.milestones {
		if m.ProjectID == id {
			delete(s.milestones, mid)
		}
	}
	delete(s.projects, id)
	return nil
}

type milestoneStore struct{ *memDB }

func (s milestoneStore) List(context.Context) ([]model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Milestone{}
	for _, m := range s.milestones {
		out = append(out, m)
	}
	return out, nil
}

func (s milestoneStore) Get(_ context.Context, id string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (s milestoneStore) Create(_ context.Context, m *model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[m.ProjectID]; !ok {
		return repository.ErrNotFound
	}
	m.ID = s.id("ms")
	s.milestones[m.ID] = *m
	return nil
}

func (s milestoneStore) Update(_ context.Context, m *model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[m.ID]; !ok {
		return repository.ErrNotFound
	}
	s.milestones[m.ID] = *m
	return nil
}

func (s milestoneStore) SetCompleted(_ context.Context, id string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Completed = completed
	s.milestones[id] = m
	return nil
}

func (s milestoneStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.milestones, id)
	return nil
}

type notificationStore struct{ *memDB }

func (s notificationStore) List(context.Context) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Notification{}
	for _, n := range s.notifications {
		out = append(out, n)
	}
	return out, nil
}

func (s notificationStore) Create(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id("notif")
	s.notifications[n.ID] = *n
	return nil
}

func (s notificationStore) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s notificationStore) MarkAllRead(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, x := range s.notifications {
		if !x.Read {
			x.Read = true
			s.notifications[id] = x
			n++
		}
	}
	return n, nil
}

type revenueStore struct{ *memDB }

func (s revenueStore) List(context.Context) ([]model.MonthlyRevenue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.MonthlyRevenue(nil), s.revenue...), nil
}

func (s revenueStore) Upsert(_ context.Context, m *model.MonthlyRevenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for i, r := range s.revenue {
		if r.Month == m.Month && r.Year == m.Year {
			m.ID = r.ID
			s.revenue[i] = *m
			return nil
		}
	}
	m.ID = s.id("rev")
	s.revenue = append(s.revenue, *m)
	return nil
}

type portfolioSource struct{ *memDB }

func (s portfolioSource) ListPublished(context.Context) ([]model.PortfolioProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.portfolioErr != nil {
		return nil, s.portfolioErr
	}
	return append([]model.PortfolioProject(nil), s.portfolio...), nil
}

// memDedup mirrors util.Deduper without Redis.
type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) AcquireOnce(_ context.Context, scope, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := scope + ":" + key
	if d.seen[k] {
		return false
	}
	d.seen[k] = true
	return true
}

func (d *memDedup) Release(_ context.Context, scope, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, scope+":"+key)
}

// fileStore accepts every upload except names listed in reject.
type fileStore struct {
	mu      sync.Mutex
	reject  map[string]bool
	deleted []string
}

func (f *fileStore) Upload(_ context.Context, prefix, name, mimeType string, r io.Reader) (model.ProjectFile, error) {
	if f.reject[name] {
		return model.ProjectFile{}, errors.New("file exceeds size limit")
	}
	b, _ := io.ReadAll(r)
	return model.ProjectFile{Name: name, Path: prefix + "/" + name, Size: int64(len(b)), MimeType: mimeType}, nil
}

func (f *fileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fixture struct {
	svc   *Service
	db    *memDB
	feed  *notify.Feed
	files *fileStore
}

func newFixture() *fixture {
	db := newMemDB()
	feed := notify.NewFeed(20)
	files := &fileStore{reject: map[string]bool{"huge.zip": true}}
	svc := New(Stores{
		Leads:          leadStore{db},
		Communications: commStore{db},
		Projects:       projectStore{db},
		Milestones:     milestoneStore{db},
		Notifications:  notificationStore{db},
		Revenue:        revenueStore{db},
		Portfolio:      portfolioSource{db},
		Files:          files,
	}, &memDedup{seen: map[string]bool{}}, nil, feed, Config{}, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return &fixture{svc: svc, db: db, feed: feed, files: files}
}

func staffCtx() context.Context {
	return asRole(rbac.RoleStaff)
}

func adminCtx() context.Context {
	return asRole(rbac.RoleAdmin)
}

func asRole(role string) context.Context {
	return session.WithContext(context.Background(), session.Session{
		Email:     role + "@lunex.test",
		Name:      role,
		Role:      role,
		IssuedAt:  testNow.Add(-time.Hour),
		ExpiresAt: testNow.Add(time.Hour),
	})
}

// seedLead stores a lead directly at status st.
func (f *fixture) seedLead(name string, st status.LeadStatus) model.Lead {
	l := model.Lead{Name: name, Email: name + "@example.com", ServiceType: "web-development", Status: st, Priority: model.PriorityMedium, Source: model.SourceManual}
	_ = leadStore{f.db}.Create(context.Background(), &l)
	return l
}

func (f *fixture) seedProject(name string, st status.ProjectStatus, amount float64) model.Project {
	p := model.Project{ProjectName: name, ClientName: "Acme", Status: st, Amount: amount, Source: model.ProjectSourceProjects}
	_ = projectStore{f.db}.Create(context.Background(), &p, nil)
	return p
}
