package board

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/model"
	"lunexops/internal/notify"
	"lunexops/internal/status"
)

// memView is a map-backed View; db stands in for the durable store.
type memView struct {
	projects  map[string]model.Project
	tentative map[string]bool
	db        map[string]status.ProjectStatus
}

func newMemView(ps ...model.Project) *memView {
	v := &memView{
		projects:  map[string]model.Project{},
		tentative: map[string]bool{},
		db:        map[string]status.ProjectStatus{},
	}
	for _, p := range ps {
		v.projects[p.ID] = p
		v.db[p.ID] = p.Status
	}
	return v
}

func (v *memView) Project(id string) (model.Project, bool) {
	p, ok := v.projects[id]
	return p, ok
}

func (v *memView) ApplyTentative(id string, s status.ProjectStatus) (status.ProjectStatus, bool) {
	p, ok := v.projects[id]
	if !ok {
		return "", false
	}
	prev := p.Status
	p.Status = s
	v.projects[id] = p
	v.tentative[id] = true
	return prev, true
}

func (v *memView) Confirm(id string) { delete(v.tentative, id) }

func (v *memView) Discard(id string, prev status.ProjectStatus) {
	p := v.projects[id]
	p.Status = prev
	v.projects[id] = p
	delete(v.tentative, id)
}

func (v *memView) Reload(context.Context) error {
	for id, s := range v.db {
		p := v.projects[id]
		p.Status = s
		v.projects[id] = p
	}
	v.tentative = map[string]bool{}
	return nil
}

type fakeStore struct {
	view         *memView
	err          error
	calls        int
	sawTentative bool
}

func (s *fakeStore) UpdateProjectStatus(_ context.Context, id string, st status.ProjectStatus) error {
	s.calls++
	s.sawTentative = s.view.tentative[id] && s.view.projects[id].Status == st
	if s.err != nil {
		return s.err
	}
	s.view.db[id] = st
	return nil
}

type countingRecomputer struct{ n int }

func (r *countingRecomputer) RecomputeCurrentMonth(context.Context) error {
	r.n++
	return nil
}

func setup(ps ...model.Project) (*Synchronizer, *memView, *fakeStore, *countingRecomputer, *notify.Feed) {
	view := newMemView(ps...)
	store := &fakeStore{view: view}
	rec := &countingRecomputer{}
	feed := notify.NewFeed(10)
	return NewSynchronizer(view, store, view, rec, feed, zap.NewNop()), view, store, rec, feed
}

func webProject() model.Project {
	return model.Project{ID: "p1", ProjectName: "Webshop", Status: status.ProjectInProgress, Amount: 1000}
}

func TestMoveConfirmed(t *testing.T) {
	sync, view, store, rec, feed := setup(webProject())

	res, err := sync.Move(context.Background(), Move{
		ProjectID:   "p1",
		Source:      status.ColumnInProgress,
		Destination: status.ColumnAwaitingPayment,
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if res.Outcome != OutcomeConfirmed || res.From != status.ProjectInProgress || res.To != status.ProjectOnHold {
		t.Fatalf("result = %+v", res)
	}
	if !store.sawTentative {
		t.Fatal("view should show the tentative status before the store is called")
	}
	if got := view.projects["p1"].Status; got != status.ProjectOnHold {
		t.Fatalf("view status = %s, want on_hold", got)
	}
	if view.tentative["p1"] {
		t.Fatal("confirmed move should clear the tentative mark")
	}
	if rec.n != 1 {
		t.Fatalf("recompute calls = %d, want 1", rec.n)
	}
	if ev := feed.Recent(); len(ev) != 1 || ev[0].Level != notify.LevelSuccess {
		t.Fatalf("notifications = %+v", ev)
	}
}

func TestMoveFailureReconcilesFromStore(t *testing.T) {
	sync, view, store, rec, feed := setup(webProject())
	store.err = errors.New("connection refused")

	res, err := sync.Move(context.Background(), Move{
		ProjectID:   "p1",
		Source:      status.ColumnInProgress,
		Destination: status.ColumnAwaitingPayment,
	})
	if !apperr.IsCode(err, apperr.CodePersistence) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if !errors.Is(err, store.err) {
		t.Fatal("persistence error should wrap the store error")
	}
	if res.Outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if got := view.projects["p1"].Status; got != status.ProjectInProgress {
		t.Fatalf("view status = %s, want in_progress", got)
	}
	if view.tentative["p1"] {
		t.Fatal("failed move should not leave a tentative mark")
	}
	if rec.n != 0 {
		t.Fatal("failed move must not recompute revenue")
	}
	if ev := feed.Recent(); len(ev) != 1 || ev[0].Level != notify.LevelFailure {
		t.Fatalf("notifications = %+v", ev)
	}
}

func TestMoveWithinColumnIsNoop(t *testing.T) {
	sync, _, store, rec, feed := setup(webProject())
	res, err := sync.Move(context.Background(), Move{
		ProjectID:        "p1",
		Source:           status.ColumnInProgress,
		Destination:      status.ColumnInProgress,
		SourceIndex:      0,
		DestinationIndex: 3,
	})
	if err != nil || res.Outcome != OutcomeNoop {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if store.calls != 0 || rec.n != 0 || len(feed.Recent()) != 0 {
		t.Fatal("no-op move must not touch the store, revenue or notifications")
	}
}

func TestMoveRejections(t *testing.T) {
	portfolio := model.Project{ID: "pf", ProjectName: "Case study", Status: status.ProjectCompleted, ReadOnly: true}
	sync, _, store, _, _ := setup(webProject(), portfolio)

	tests := []struct {
		name string
		m    Move
		code apperr.Code
	}{
		{"unknown column", Move{ProjectID: "p1", Source: status.ColumnInProgress, Destination: "archive"}, apperr.CodeUnknownColumn},
		{"unknown project", Move{ProjectID: "nope", Source: status.ColumnNewLead, Destination: status.ColumnCompleted}, apperr.CodeNotFound},
		{"read-only project", Move{ProjectID: "pf", Source: status.ColumnCompleted, Destination: status.ColumnNewLead}, apperr.CodeReadOnlyProject},
	}
	for _, tt := range tests {
		if _, err := sync.Move(context.Background(), tt.m); !apperr.IsCode(err, tt.code) {
			t.Errorf("%s: err = %v, want %s", tt.name, err, tt.code)
		}
	}
	if store.calls != 0 {
		t.Fatal("rejected moves must not reach the store")
	}
}
