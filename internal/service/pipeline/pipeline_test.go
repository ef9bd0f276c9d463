package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lunexops/internal/apperr"
	"lunexops/internal/board"
	"lunexops/internal/model"
	"lunexops/internal/notify"
	"lunexops/internal/queue"
	"lunexops/internal/status"
)

func TestApplyLeadActionContactRecordsSideEffects(t *testing.T) {
	f := newFixture()
	l := f.seedLead("dana", status.LeadNew)
	ctx := staffCtx()

	got, err := f.svc.ApplyLeadAction(ctx, l.ID, "contact")
	if err != nil {
		t.Fatalf("ApplyLeadAction: %v", err)
	}
	if got.Status != status.LeadContacted {
		t.Fatalf("status = %s, want contacted", got.Status)
	}
	if got.LastContactedAt == nil || !got.LastContactedAt.Equal(testNow) {
		t.Fatalf("last_contacted_at = %v", got.LastContactedAt)
	}

	comms, _ := f.svc.Communications(ctx, l.ID)
	if len(comms) != 1 || comms[0].Type != "note" {
		t.Fatalf("communications = %+v", comms)
	}
	hist, _ := f.svc.LeadHistory(ctx, l.ID)
	if len(hist) != 1 || hist[0].OldStatus != status.LeadNew || hist[0].NewStatus != status.LeadContacted || hist[0].Forced {
		t.Fatalf("history = %+v", hist)
	}
	if hist[0].Actor != "staff@lunex.test" {
		t.Fatalf("actor = %q", hist[0].Actor)
	}

	snap, err := f.svc.GetLead(l.ID)
	if err != nil || snap.Status != status.LeadContacted {
		t.Fatalf("snapshot lead = %+v, err = %v", snap, err)
	}
}

func TestApplyLeadActionProposalLogsEmail(t *testing.T) {
	f := newFixture()
	l := f.seedLead("eli", status.LeadQualified)

	if _, err := f.svc.ApplyLeadAction(staffCtx(), l.ID, "proposal"); err != nil {
		t.Fatalf("ApplyLeadAction: %v", err)
	}
	comms, _ := f.svc.Communications(context.Background(), l.ID)
	if len(comms) != 1 || comms[0].Type != "email" || comms[0].Direction != "outbound" {
		t.Fatalf("communications = %+v", comms)
	}
}

func TestApplyLeadActionRejections(t *testing.T) {
	tests := []struct {
		name   string
		from   status.LeadStatus
		action string
		code   apperr.Code
	}{
		{"skip ahead", status.LeadNew, "win", apperr.CodeInvalidTransition},
		{"terminal won", status.LeadClosedWon, "lose", apperr.CodeInvalidTransition},
		{"terminal lost", status.LeadClosedLost, "contact", apperr.CodeInvalidTransition},
		{"unknown action", status.LeadNew, "archive", apperr.CodeUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			l := f.seedLead("fay", tt.from)

			_, err := f.svc.ApplyLeadAction(staffCtx(), l.ID, tt.action)
			if !apperr.IsCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			if got := f.db.leads[l.ID].Status; got != tt.from {
				t.Fatalf("status changed to %s on a rejected action", got)
			}
			if len(f.db.history) != 0 {
				t.Fatal("rejected action must not be audited")
			}
		})
	}
}

func TestApplyLeadActionConflictsWithConcurrentWrite(t *testing.T) {
	tests := []struct {
		name   string
		from   status.LeadStatus
		action string
		raced  status.LeadStatus
	}{
		{"won meanwhile", status.LeadNegotiating, "lose", status.LeadClosedWon},
		{"lost meanwhile", status.LeadNegotiating, "win", status.LeadClosedLost},
		{"contacted meanwhile", status.LeadNew, "contact", status.LeadContacted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			l := f.seedLead("kit", tt.from)
			f.db.beforeStatusWrite = func(db *memDB) {
				raced := db.leads[l.ID]
				raced.Status = tt.raced
				db.leads[l.ID] = raced
			}

			_, err := f.svc.ApplyLeadAction(staffCtx(), l.ID, tt.action)
			if !apperr.IsCode(err, apperr.CodeInvalidTransition) {
				t.Fatalf("err = %v, want %s", err, apperr.CodeInvalidTransition)
			}
			if meta := apperr.GetMetadata(err); meta["from"] != string(tt.from) {
				t.Errorf("metadata = %v", meta)
			}
			if got := f.db.leads[l.ID].Status; got != tt.raced {
				t.Fatalf("status = %s, want the concurrent write %s kept", got, tt.raced)
			}
			if len(f.db.history) != 0 {
				t.Fatalf("history = %+v, want none", f.db.history)
			}
		})
	}
}

func TestForceSetLeadStatusIgnoresConcurrentWrite(t *testing.T) {
	f := newFixture()
	l := f.seedLead("lee", status.LeadNegotiating)
	f.db.beforeStatusWrite = func(db *memDB) {
		raced := db.leads[l.ID]
		raced.Status = status.LeadClosedWon
		db.leads[l.ID] = raced
	}

	got, err := f.svc.ForceSetLeadStatus(adminCtx(), l.ID, status.LeadNew, "reopened by client")
	if err != nil {
		t.Fatalf("ForceSetLeadStatus: %v", err)
	}
	if got.Status != status.LeadNew || f.db.leads[l.ID].Status != status.LeadNew {
		t.Fatalf("status = %s / %s, want new", got.Status, f.db.leads[l.ID].Status)
	}
}

func TestTransitionErrorNamesAllowedTargets(t *testing.T) {
	f := newFixture()
	l := f.seedLead("gil", status.LeadNew)

	_, err := f.svc.UpdateLeadStatus(staffCtx(), l.ID, status.LeadNegotiating)
	meta := apperr.GetMetadata(err)
	if meta["from"] != "new" || meta["to"] != "negotiating" {
		t.Fatalf("metadata = %v", meta)
	}
	if !strings.Contains(meta["allowed"], "contacted") || !strings.Contains(meta["allowed"], "closed_lost") {
		t.Fatalf("allowed = %q", meta["allowed"])
	}
}

func TestMutationsRequireSession(t *testing.T) {
	f := newFixture()
	l := f.seedLead("hal", status.LeadNew)

	_, err := f.svc.ApplyLeadAction(context.Background(), l.ID, "contact")
	if !apperr.IsCode(err, apperr.CodeUnauthenticated) {
		t.Fatalf("no session: err = %v", err)
	}

	_, err = f.svc.ForceSetLeadStatus(staffCtx(), l.ID, status.LeadClosedWon, "signed offline")
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("staff force: err = %v", err)
	}

	if err := f.svc.DeleteLead(staffCtx(), l.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("staff delete: err = %v", err)
	}

	f.svc.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	_, err = f.svc.ApplyLeadAction(staffCtx(), l.ID, "contact")
	if !apperr.IsCode(err, apperr.CodeSessionExpired) {
		t.Fatalf("expired session: err = %v", err)
	}
}

func TestForceSetLeadStatus(t *testing.T) {
	f := newFixture()
	l := f.seedLead("ivy", status.LeadClosedLost)

	_, err := f.svc.ForceSetLeadStatus(adminCtx(), l.ID, status.LeadNew, "  ")
	if !apperr.IsCode(err, apperr.CodeInvalidInput) {
		t.Fatalf("empty reason: err = %v", err)
	}

	got, err := f.svc.ForceSetLeadStatus(adminCtx(), l.ID, status.LeadNew, "lost by mistake")
	if err != nil {
		t.Fatalf("ForceSetLeadStatus: %v", err)
	}
	if got.Status != status.LeadNew {
		t.Fatalf("status = %s", got.Status)
	}
	if len(f.db.history) != 1 || !f.db.history[0].Forced || f.db.history[0].Reason != "lost by mistake" {
		t.Fatalf("history = %+v", f.db.history)
	}
}

func TestUpdateStatusDispatch(t *testing.T) {
	f := newFixture()
	l := f.seedLead("jo", status.LeadNew)
	p := f.seedProject("Site", status.ProjectPending, 500)
	_ = f.svc.LoadAll(context.Background())
	ctx := staffCtx()

	if err := f.svc.UpdateStatus(ctx, TargetLead, l.ID, "contacted"); err != nil {
		t.Fatalf("lead: %v", err)
	}
	if err := f.svc.UpdateStatus(ctx, TargetProject, p.ID, "in_progress"); err != nil {
		t.Fatalf("project: %v", err)
	}
	if f.db.projects[p.ID].Status != status.ProjectInProgress {
		t.Fatalf("project status = %s", f.db.projects[p.ID].Status)
	}
	if err := f.svc.UpdateStatus(ctx, TargetProject, p.ID, "archived"); !apperr.IsCode(err, apperr.CodeUnknownStatus) {
		t.Fatalf("unknown status: err = %v", err)
	}
	if f.db.upserts == 0 {
		t.Fatal("project status change should recompute revenue")
	}
}

func TestCreateLeadScoresAndSuppressesDuplicates(t *testing.T) {
	f := newFixture()
	in := LeadInput{
		Name:        "Kim",
		Email:       "Kim@Example.com",
		ServiceType: "web-development",
		BudgetRange: model.BudgetOver100k,
		Source:      "location_page_austin",
	}

	l, err := f.svc.CreateLead(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if l.Email != "kim@example.com" || l.Status != status.LeadNew {
		t.Fatalf("lead = %+v", l)
	}
	if l.Priority != model.PriorityUrgent {
		t.Fatalf("priority = %s, want urgent for over-100k", l.Priority)
	}
	if l.Location != "austin" {
		t.Fatalf("location = %q", l.Location)
	}
	if l.LeadScore <= 0 {
		t.Fatalf("score = %d", l.LeadScore)
	}

	_, err = f.svc.CreateLead(context.Background(), in)
	if !apperr.IsCode(err, apperr.CodeDuplicateIntake) {
		t.Fatalf("second submission: err = %v", err)
	}
	if len(f.db.leads) != 1 {
		t.Fatalf("leads = %d, want 1", len(f.db.leads))
	}
}

func TestCreateLeadValidation(t *testing.T) {
	neg := -5.0
	tests := []struct {
		name string
		in   LeadInput
		code apperr.Code
	}{
		{"missing name", LeadInput{Email: "a@b.co"}, apperr.CodeInvalidInput},
		{"bad email", LeadInput{Name: "A", Email: "not-an-email"}, apperr.CodeInvalidInput},
		{"bad budget", LeadInput{Name: "A", Email: "a@b.co", BudgetRange: "lots"}, apperr.CodeInvalidInput},
		{"bad source", LeadInput{Name: "A", Email: "a@b.co", Source: "billboard"}, apperr.CodeInvalidInput},
		{"negative value", LeadInput{Name: "A", Email: "a@b.co", EstimatedValue: &neg}, apperr.CodeNegativeAmount},
		{"manual without session", LeadInput{Name: "A", Email: "a@b.co", Source: model.SourceManual}, apperr.CodeUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if _, err := f.svc.CreateLead(context.Background(), tt.in); !apperr.IsCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestFilteredViewOrdersQueue(t *testing.T) {
	f := newFixture()
	for _, p := range []model.Priority{model.PriorityLow, model.PriorityUrgent, model.PriorityMedium} {
		l := model.Lead{Name: string(p), Email: string(p) + "@x.co", Priority: p, Status: status.LeadNew}
		_ = leadStore{f.db}.Create(context.Background(), &l)
	}
	f.seedLead("won", status.LeadClosedWon)
	_ = f.svc.LoadAll(context.Background())

	items := f.svc.FilteredView(queue.ViewQueue, queue.Filter{})
	if len(items) != 3 {
		t.Fatalf("queue = %d items, want 3", len(items))
	}
	if items[0].Priority != model.PriorityUrgent || items[2].Priority != model.PriorityLow {
		t.Fatalf("order = %s, %s, %s", items[0].Priority, items[1].Priority, items[2].Priority)
	}
}

func TestMoveCardConfirmed(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Shop", status.ProjectInProgress, 1000)
	_ = f.svc.LoadAll(context.Background())

	res, err := f.svc.MoveCard(staffCtx(), board.Move{
		ProjectID:   p.ID,
		Source:      status.ColumnInProgress,
		Destination: status.ColumnAwaitingPayment,
	})
	if err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	if res.Outcome != board.OutcomeConfirmed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	got, _ := f.svc.GetProject(p.ID)
	if got.Status != status.ProjectOnHold {
		t.Fatalf("snapshot status = %s, want on_hold", got.Status)
	}
	if f.svc.IsTentative(p.ID) {
		t.Fatal("confirmed move left a tentative mark")
	}
	if f.db.upserts != 1 {
		t.Fatalf("revenue upserts = %d, want 1", f.db.upserts)
	}
	rec := f.svc.MonthlyRevenue()
	if len(rec) != 1 || rec[0].Month != "March" || rec[0].TotalRevenue != 1000 {
		t.Fatalf("revenue = %+v", rec)
	}
}

func TestMoveCardRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Shop", status.ProjectInProgress, 1000)
	_ = f.svc.LoadAll(context.Background())
	f.db.statusErr = errors.New("connection reset by peer")

	res, err := f.svc.MoveCard(staffCtx(), board.Move{
		ProjectID:   p.ID,
		Source:      status.ColumnInProgress,
		Destination: status.ColumnAwaitingPayment,
	})
	if !apperr.IsCode(err, apperr.CodePersistence) {
		t.Fatalf("err = %v, want persistence", err)
	}
	if res.Outcome != board.OutcomeReconciled {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	got, _ := f.svc.GetProject(p.ID)
	if got.Status != status.ProjectInProgress {
		t.Fatalf("snapshot status = %s, want in_progress from the store", got.Status)
	}
	if f.db.upserts != 0 {
		t.Fatal("failed move must not recompute revenue")
	}
	if ev := f.feed.Recent(); len(ev) == 0 || ev[0].Level != notify.LevelFailure {
		t.Fatalf("notifications = %+v", ev)
	}
}

func TestMoveCardRequiresPermission(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Shop", status.ProjectInProgress, 1000)
	_ = f.svc.LoadAll(context.Background())

	_, err := f.svc.MoveCard(context.Background(), board.Move{ProjectID: p.ID, Source: status.ColumnInProgress, Destination: status.ColumnCompleted})
	if !apperr.IsCode(err, apperr.CodeUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
	if f.db.projects[p.ID].Status != status.ProjectInProgress {
		t.Fatal("unauthenticated move reached the store")
	}
}

func TestDeleteProjectCascadesMilestones(t *testing.T) {
	f := newFixture()
	ctx := adminCtx()
	keep := f.seedProject("Keep", status.ProjectPending, 100)
	_ = f.svc.LoadAll(context.Background())

	p, err := f.svc.CreateProject(ctx, ProjectInput{
		ClientName:  "Acme",
		ProjectName: "Portal",
		Amount:      2000,
		Deposit:     500,
		Milestones: []MilestoneInput{
			{Name: "Design", DueDate: testNow.AddDate(0, 0, 7)},
			{Name: "Launch", DueDate: testNow.AddDate(0, 1, 0)},
		},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.RemainingBalance != 1500 {
		t.Fatalf("remaining = %v", p.RemainingBalance)
	}
	if _, err := f.svc.CreateMilestone(ctx, keep.ID, MilestoneInput{Name: "Kickoff", DueDate: testNow}); err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}
	if n := len(f.svc.ProjectMilestones(p.ID)); n != 2 {
		t.Fatalf("milestones before delete = %d", n)
	}

	if err := f.svc.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	for _, m := range f.svc.Milestones() {
		if m.ProjectID == p.ID {
			t.Fatalf("orphan milestone %+v", m)
		}
	}
	if n := len(f.svc.ProjectMilestones(keep.ID)); n != 1 {
		t.Fatalf("other project's milestones = %d, want 1", n)
	}
	if _, err := f.svc.GetProject(p.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("deleted project still visible: %v", err)
	}
}

func TestCreateProjectRejectsDepositAboveAmount(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateProject(staffCtx(), ProjectInput{ClientName: "A", ProjectName: "B", Amount: 100, Deposit: 150})
	if !apperr.IsCode(err, apperr.CodeDepositExceeds) {
		t.Fatalf("err = %v", err)
	}
	if len(f.db.projects) != 0 {
		t.Fatal("rejected project was stored")
	}
}

func TestUpdateProjectKeepsRemainingBalance(t *testing.T) {
	tests := []struct {
		name        string
		amount      float64
		deposit     float64
		code        apperr.Code
		wantBalance float64
	}{
		{"partial deposit", 1000, 250, "", 750},
		{"paid in full", 1000, 1000, "", 0},
		{"no deposit", 800, 0, "", 800},
		{"deposit above amount", 100, 150, apperr.CodeDepositExceeds, 0},
		{"negative amount", -5, 0, apperr.CodeNegativeAmount, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			seeded := f.seedProject("Shop", status.ProjectInProgress, 500)
			_ = f.svc.LoadAll(context.Background())

			got, err := f.svc.UpdateProject(staffCtx(), seeded.ID, ProjectInput{
				ClientName: "Acme", ProjectName: "Shop v2", Amount: tt.amount, Deposit: tt.deposit,
			})
			if tt.code != "" {
				if !apperr.IsCode(err, tt.code) {
					t.Fatalf("err = %v, want %s", err, tt.code)
				}
				stored := f.db.projects[seeded.ID]
				if stored.Amount != 500 || stored.Deposit != 0 || stored.ProjectName != "Shop" {
					t.Fatalf("rejected update reached the store: %+v", stored)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateProject: %v", err)
			}
			if got.RemainingBalance != tt.wantBalance {
				t.Errorf("returned balance = %v, want %v", got.RemainingBalance, tt.wantBalance)
			}
			if b := f.db.projects[seeded.ID].RemainingBalance; b != tt.wantBalance {
				t.Errorf("stored balance = %v, want %v", b, tt.wantBalance)
			}
			snap, err := f.svc.GetProject(seeded.ID)
			if err != nil {
				t.Fatalf("GetProject: %v", err)
			}
			if snap.RemainingBalance != tt.wantBalance || snap.Amount-snap.Deposit != snap.RemainingBalance {
				t.Errorf("snapshot = amount %v deposit %v balance %v", snap.Amount, snap.Deposit, snap.RemainingBalance)
			}
		})
	}
}

func TestPromoteLead(t *testing.T) {
	f := newFixture()
	value := 12000.0
	won := model.Lead{Name: "Lou", Email: "lou@x.co", Company: "Lou Co", ServiceType: "SEO", Status: status.LeadClosedWon, EstimatedValue: &value}
	_ = leadStore{f.db}.Create(context.Background(), &won)
	open := f.seedLead("max", status.LeadNegotiating)

	if _, _, err := f.svc.PromoteLead(staffCtx(), open.ID); !apperr.IsCode(err, apperr.CodeLeadNotWon) {
		t.Fatalf("open lead: err = %v", err)
	}

	p, created, err := f.svc.PromoteLead(staffCtx(), won.ID)
	if err != nil || !created {
		t.Fatalf("PromoteLead: created=%v err=%v", created, err)
	}
	if p.LeadID == nil || *p.LeadID != won.ID || p.ClientName != "Lou Co" || p.Amount != 12000 || p.Status != status.ProjectPending {
		t.Fatalf("project = %+v", p)
	}

	again, created, err := f.svc.PromoteLead(staffCtx(), won.ID)
	if err != nil || created || again.ID != p.ID {
		t.Fatalf("second promote: id=%s created=%v err=%v", again.ID, created, err)
	}
	if len(f.db.projects) != 1 {
		t.Fatalf("projects = %d, want 1", len(f.db.projects))
	}
}

func TestAttachFilesReportsPerFileFailures(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Docs", status.ProjectInProgress, 100)
	_ = f.svc.LoadAll(context.Background())

	stored, failed, err := f.svc.AttachFiles(staffCtx(), p.ID, []Upload{
		{Name: "brief.pdf", MimeType: "application/pdf", Body: strings.NewReader("pdf")},
		{Name: "huge.zip", MimeType: "application/zip", Body: strings.NewReader("zip")},
	})
	if err != nil {
		t.Fatalf("AttachFiles: %v", err)
	}
	if len(stored) != 1 || stored[0].Name != "brief.pdf" {
		t.Fatalf("stored = %+v", stored)
	}
	if len(failed) != 1 || failed[0].Name != "huge.zip" {
		t.Fatalf("failed = %+v", failed)
	}
	if got := f.db.projects[p.ID].Files; len(got) != 1 {
		t.Fatalf("project files = %+v", got)
	}
}

func TestAttachFilesDeletesUploadsWhenProjectWriteFails(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Docs", status.ProjectInProgress, 100)
	_ = f.svc.LoadAll(context.Background())
	f.db.appendErr = errors.New("connection reset")

	stored, failed, err := f.svc.AttachFiles(staffCtx(), p.ID, []Upload{
		{Name: "brief.pdf", MimeType: "application/pdf", Body: strings.NewReader("pdf")},
		{Name: "logo.png", MimeType: "image/png", Body: strings.NewReader("png")},
		{Name: "huge.zip", MimeType: "application/zip", Body: strings.NewReader("zip")},
	})
	if !apperr.IsCode(err, apperr.CodePersistence) {
		t.Fatalf("err = %v, want %s", err, apperr.CodePersistence)
	}
	if stored != nil {
		t.Fatalf("stored = %+v, want nil", stored)
	}
	if len(failed) != 1 || failed[0].Name != "huge.zip" {
		t.Fatalf("failed = %+v", failed)
	}
	want := []string{"projects/" + p.ID + "/brief.pdf", "projects/" + p.ID + "/logo.png"}
	if len(f.files.deleted) != len(want) {
		t.Fatalf("deleted = %v, want %v", f.files.deleted, want)
	}
	for i, key := range want {
		if f.files.deleted[i] != key {
			t.Errorf("deleted[%d] = %s, want %s", i, f.files.deleted[i], key)
		}
	}
	if got := f.db.projects[p.ID].Files; len(got) != 0 {
		t.Fatalf("project files = %+v", got)
	}
}

func TestLoadAllMergesPortfolioReadOnly(t *testing.T) {
	f := newFixture()
	f.seedProject("Own", status.ProjectPending, 100)
	f.db.portfolio = []model.PortfolioProject{{ID: "pf-1", Title: "Case study", IsPublished: true}}

	if err := f.svc.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	pf, err := f.svc.GetProject("pf-1")
	if err != nil {
		t.Fatalf("portfolio project missing: %v", err)
	}
	if !pf.ReadOnly || pf.Amount != 100000 || pf.Deposit != 30000 {
		t.Fatalf("portfolio project = %+v", pf)
	}

	if _, err := f.svc.UpdateProjectStatus(staffCtx(), "pf-1", status.ProjectCompleted); !apperr.IsCode(err, apperr.CodeReadOnlyProject) {
		t.Fatalf("editing portfolio: err = %v", err)
	}
}

func TestLoadAllDegradesWithoutPortfolio(t *testing.T) {
	f := newFixture()
	f.seedProject("Own", status.ProjectPending, 100)
	f.db.portfolio = []model.PortfolioProject{{ID: "pf-1", Title: "Case study"}}
	f.db.portfolioErr = errors.New("relation portfolio_projects does not exist")

	if err := f.svc.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if n := len(f.svc.Projects()); n != 1 {
		t.Fatalf("projects = %d, want only the owned one", n)
	}
}

func TestCheckOverdueMilestonesOncePerMilestone(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Late", status.ProjectInProgress, 100)
	f.db.milestones["ms-late"] = model.Milestone{ID: "ms-late", ProjectID: p.ID, Name: "Beta", DueDate: testNow.AddDate(0, 0, -2)}
	f.db.milestones["ms-done"] = model.Milestone{ID: "ms-done", ProjectID: p.ID, Name: "Alpha", DueDate: testNow.AddDate(0, 0, -9), Completed: true}
	f.db.milestones["ms-next"] = model.Milestone{ID: "ms-next", ProjectID: p.ID, Name: "Launch", DueDate: testNow.AddDate(0, 0, 5)}
	_ = f.svc.LoadAll(context.Background())

	n, err := f.svc.CheckOverdueMilestones(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("first scan: n=%d err=%v", n, err)
	}
	n, err = f.svc.CheckOverdueMilestones(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second scan: n=%d err=%v", n, err)
	}

	notes := f.svc.Notifications()
	if len(notes) != 1 || notes[0].Type != model.NotificationDeadline || *notes[0].MilestoneID != "ms-late" {
		t.Fatalf("notifications = %+v", notes)
	}
	if !strings.HasPrefix(notes[0].Message, "Late: ") {
		t.Fatalf("message = %q", notes[0].Message)
	}
	if f.svc.UnreadCount() != 1 {
		t.Fatalf("unread = %d", f.svc.UnreadCount())
	}

	if n, err := f.svc.MarkAllNotificationsRead(staffCtx()); err != nil || n != 1 {
		t.Fatalf("MarkAllNotificationsRead: n=%d err=%v", n, err)
	}
	if f.svc.UnreadCount() != 0 {
		t.Fatal("unread after read-all")
	}
}

func TestToggleMilestoneAndCalendar(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Cal", status.ProjectInProgress, 100)
	f.db.milestones["ms-1"] = model.Milestone{ID: "ms-1", ProjectID: p.ID, Name: "Review", DueDate: testNow.Add(-time.Hour)}
	_ = f.svc.LoadAll(context.Background())

	cal := f.svc.Calendar(testNow)
	if len(cal.Overdue) != 1 || cal.Overdue[0].MilestoneID != "ms-1" {
		t.Fatalf("overdue = %+v", cal.Overdue)
	}

	m, err := f.svc.ToggleMilestone(staffCtx(), "ms-1")
	if err != nil || !m.Completed {
		t.Fatalf("ToggleMilestone: %+v, %v", m, err)
	}
	if cal := f.svc.Calendar(testNow); len(cal.Overdue) != 0 {
		t.Fatalf("completed milestone still overdue: %+v", cal.Overdue)
	}
	if _, err := f.svc.ToggleMilestone(staffCtx(), "missing"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("missing milestone: err = %v", err)
	}
}

func TestMilestoneWritesReadTheStore(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Cal", status.ProjectInProgress, 100)
	f.db.milestones["ms-1"] = model.Milestone{ID: "ms-1", ProjectID: p.ID, Name: "Review", DueDate: testNow.AddDate(0, 0, 3)}
	_ = f.svc.LoadAll(context.Background())

	// Another instance completes ms-1 and adds ms-2; this snapshot sees neither.
	done := f.db.milestones["ms-1"]
	done.Completed = true
	f.db.milestones["ms-1"] = done
	f.db.milestones["ms-2"] = model.Milestone{ID: "ms-2", ProjectID: p.ID, Name: "Launch", DueDate: testNow.AddDate(0, 0, 7)}

	m, err := f.svc.ToggleMilestone(staffCtx(), "ms-1")
	if err != nil {
		t.Fatalf("ToggleMilestone: %v", err)
	}
	if m.Completed || f.db.milestones["ms-1"].Completed {
		t.Fatalf("toggle flipped the stale snapshot value: returned %v, stored %v", m.Completed, f.db.milestones["ms-1"].Completed)
	}

	updated, err := f.svc.UpdateMilestone(staffCtx(), "ms-2", MilestoneInput{Name: "Go live", DueDate: testNow.AddDate(0, 0, 10)})
	if err != nil {
		t.Fatalf("UpdateMilestone on a milestone missing from the snapshot: %v", err)
	}
	if updated.ProjectID != p.ID || f.db.milestones["ms-2"].Name != "Go live" {
		t.Fatalf("updated = %+v, stored = %+v", updated, f.db.milestones["ms-2"])
	}
	if _, err := f.svc.UpdateMilestone(staffCtx(), "missing", MilestoneInput{Name: "x", DueDate: testNow}); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("missing milestone: err = %v", err)
	}
}

func TestBoardGroupsByColumn(t *testing.T) {
	f := newFixture()
	f.seedProject("A", status.ProjectPending, 100)
	f.seedProject("B", status.ProjectOnHold, 200)
	f.seedProject("C", status.ProjectOnHold, 300)
	_ = f.svc.LoadAll(context.Background())

	cols := f.svc.Board()
	if len(cols) != 4 {
		t.Fatalf("columns = %d", len(cols))
	}
	if cols[0].ID != status.ColumnNewLead || len(cols[0].Projects) != 1 {
		t.Fatalf("new_lead column = %+v", cols[0])
	}
	if cols[2].ID != status.ColumnAwaitingPayment || len(cols[2].Projects) != 2 || cols[2].Total != 500 {
		t.Fatalf("awaiting_payment column = %+v", cols[2])
	}
	if len(cols[3].Projects) != 0 {
		t.Fatal("completed column should be empty")
	}
}

func TestRecomputeRevenueIsIdempotent(t *testing.T) {
	f := newFixture()
	f.seedProject("A", status.ProjectCompleted, 100)
	f.seedProject("B", status.ProjectPending, 200)

	for i := 0; i < 2; i++ {
		rec, err := f.svc.RecomputeRevenue(adminCtx())
		if err != nil {
			t.Fatalf("RecomputeRevenue: %v", err)
		}
		if rec.TotalRevenue != 300 || rec.TotalProjects != 2 || rec.CompletedProjects != 1 {
			t.Fatalf("run %d: record = %+v", i, rec)
		}
	}
	if len(f.db.revenue) != 1 {
		t.Fatalf("revenue rows = %d, want 1", len(f.db.revenue))
	}
	if _, err := f.svc.RecomputeRevenue(staffCtx()); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("staff recompute: err = %v", err)
	}
}

func TestRunPeriodicScansOnStartAndStops(t *testing.T) {
	f := newFixture()
	p := f.seedProject("Site", status.ProjectInProgress, 1000)
	f.db.milestones["ms-late"] = model.Milestone{ID: "ms-late", ProjectID: p.ID, Name: "Launch", DueDate: testNow.AddDate(0, 0, -2)}
	_ = f.svc.LoadAll(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunPeriodic(ctx, 0, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for f.svc.UnreadCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("startup scan created no notification")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not return after cancel")
	}
}

func TestRunPeriodicRecomputesRevenue(t *testing.T) {
	f := newFixture()
	f.seedProject("Site", status.ProjectCompleted, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunPeriodic(ctx, 10*time.Millisecond, 0)
		close(done)
	}()

	upserted := func() bool {
		f.db.mu.Lock()
		defer f.db.mu.Unlock()
		return f.db.upserts > 0
	}
	deadline := time.After(2 * time.Second)
	for !upserted() {
		select {
		case <-deadline:
			t.Fatal("poll tick never recomputed monthly revenue")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not return after cancel")
	}

	rec := f.svc.MonthlyRevenue()
	if len(rec) != 1 || rec[0].Year != 2026 || rec[0].Month != "March" || rec[0].TotalRevenue != 1000 {
		t.Fatalf("revenue snapshot = %+v", rec)
	}
}
