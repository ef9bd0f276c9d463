package status

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to LeadStatus
		want     bool
	}{
		{LeadNew, LeadContacted, true},
		{LeadContacted, LeadQualified, true},
		{LeadQualified, LeadProposalSent, true},
		{LeadProposalSent, LeadNegotiating, true},
		{LeadNegotiating, LeadClosedWon, true},
		{LeadNew, LeadClosedLost, true},
		{LeadNegotiating, LeadClosedLost, true},
		{LeadNew, LeadQualified, false},
		{LeadNew, LeadClosedWon, false},
		{LeadContacted, LeadNew, false},
		{LeadClosedWon, LeadContacted, false},
		{LeadClosedLost, LeadNew, false},
		{LeadStatus("nurturing"), LeadContacted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, term := range []LeadStatus{LeadClosedWon, LeadClosedLost} {
		if !term.IsTerminal() {
			t.Fatalf("%s should be terminal", term)
		}
		for _, to := range LeadStatuses {
			if CanTransition(term, to) {
				t.Fatalf("terminal %s allows transition to %s", term, to)
			}
		}
		if got := ActionsFrom(term); len(got) != 0 {
			t.Fatalf("terminal %s exposes actions %v", term, got)
		}
	}
}

func TestClosedLostReachableFromEveryOpenStatus(t *testing.T) {
	for _, s := range LeadStatuses {
		if s.IsTerminal() {
			continue
		}
		if !CanTransition(s, LeadClosedLost) {
			t.Errorf("closed_lost not reachable from %s", s)
		}
	}
}

func TestActionTargets(t *testing.T) {
	want := map[LeadAction]LeadStatus{
		ActionContact:   LeadContacted,
		ActionQualify:   LeadQualified,
		ActionProposal:  LeadProposalSent,
		ActionNegotiate: LeadNegotiating,
		ActionWin:       LeadClosedWon,
		ActionLose:      LeadClosedLost,
	}
	for a, s := range want {
		got, ok := a.Target()
		if !ok || got != s {
			t.Errorf("%s.Target() = %s, %v; want %s", a, got, ok, s)
		}
	}
	if _, ok := LeadAction("archive").Target(); ok {
		t.Fatal("unknown action should have no target")
	}
}

func TestActionsFrom(t *testing.T) {
	got := ActionsFrom(LeadNew)
	if len(got) != 2 || got[0] != ActionContact || got[1] != ActionLose {
		t.Fatalf("ActionsFrom(new) = %v", got)
	}
}

func TestAllowedFrom(t *testing.T) {
	got := AllowedFrom(LeadProposalSent)
	if len(got) != 2 || got[0] != LeadNegotiating || got[1] != LeadClosedLost {
		t.Fatalf("AllowedFrom(proposal_sent) = %v", got)
	}
}

func TestColumnMappingRoundTrip(t *testing.T) {
	for _, s := range ProjectStatuses {
		c := ColumnFor(s)
		back, ok := StatusFor(c)
		if !ok || back != s {
			t.Errorf("status %s -> column %s -> %s (%v)", s, c, back, ok)
		}
	}
	if ColumnFor(ProjectOnHold) != ColumnAwaitingPayment {
		t.Fatalf("on_hold should map to awaiting_payment")
	}
}

func TestUnknownProjectStatusFallsBackToNewLead(t *testing.T) {
	if got := ColumnFor(ProjectStatus("archived")); got != ColumnNewLead {
		t.Fatalf("ColumnFor(archived) = %s, want new_lead", got)
	}
	if _, ok := StatusFor(Column("backlog")); ok {
		t.Fatal("unknown column should not map to a status")
	}
}

func TestParse(t *testing.T) {
	if s, ok := ParseLeadStatus(" Closed_Won "); !ok || s != LeadClosedWon {
		t.Fatalf("ParseLeadStatus = %s, %v", s, ok)
	}
	if _, ok := ParseLeadStatus("nurturing"); ok {
		t.Fatal("nurturing is not a pipeline status")
	}
	if s, ok := ParseProjectStatus("ON_HOLD"); !ok || s != ProjectOnHold {
		t.Fatalf("ParseProjectStatus = %s, %v", s, ok)
	}
}
