package queue

import (
	"fmt"
	"testing"
	"time"

	"lunexops/internal/model"
	"lunexops/internal/status"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func lead(id string, p model.Priority, s status.LeadStatus, ageHours int) model.Lead {
	return model.Lead{
		ID:        id,
		Name:      "Lead " + id,
		Email:     id + "@example.com",
		Priority:  p,
		Status:    s,
		CreatedAt: base.Add(-time.Duration(ageHours) * time.Hour),
	}
}

func ids(leads []model.Lead) string {
	out := ""
	for _, l := range leads {
		out += l.ID
	}
	return out
}

func TestSortByTierThenAge(t *testing.T) {
	// created_at ascending: 1, 2, 3, 4
	leads := []model.Lead{
		lead("1", model.PriorityLow, status.LeadNew, 4),
		lead("2", model.PriorityUrgent, status.LeadNew, 3),
		lead("3", model.PriorityMedium, status.LeadNew, 2),
		lead("4", model.PriorityUrgent, status.LeadNew, 1),
	}
	got := ids(Sort(leads))
	if got != "2431" {
		t.Fatalf("order = %s, want 2431", got)
	}
	if ids(leads) != "1234" {
		t.Fatal("Sort must not reorder its input")
	}
}

func TestSortIsStableOnTies(t *testing.T) {
	leads := []model.Lead{
		lead("a", model.PriorityHigh, status.LeadNew, 1),
		lead("b", model.PriorityHigh, status.LeadNew, 1),
		lead("c", model.PriorityHigh, status.LeadNew, 1),
	}
	if got := ids(Sort(leads)); got != "abc" {
		t.Fatalf("order = %s, want abc", got)
	}
}

func TestUnknownPriorityRanksLast(t *testing.T) {
	leads := []model.Lead{
		lead("x", model.Priority("critical"), status.LeadNew, 10),
		lead("y", model.PriorityLow, status.LeadNew, 1),
	}
	if got := ids(Sort(leads)); got != "yx" {
		t.Fatalf("order = %s, want yx", got)
	}
}

func TestApplyFilters(t *testing.T) {
	l1 := lead("1", model.PriorityHigh, status.LeadNew, 1)
	l1.Company = "Sandton Legal"
	l2 := lead("2", model.PriorityLow, status.LeadContacted, 1)
	l2.ServiceType = "ecommerce"
	l3 := lead("3", model.PriorityHigh, status.LeadContacted, 1)
	leads := []model.Lead{l1, l2, l3}

	tests := []struct {
		f    Filter
		want string
	}{
		{Filter{}, "123"},
		{Filter{Status: "all", Priority: "all"}, "123"},
		{Filter{Search: "LEGAL"}, "1"},
		{Filter{Search: "commerce"}, "2"},
		{Filter{Search: "3@example"}, "3"},
		{Filter{Status: "contacted"}, "23"},
		{Filter{Status: "contacted", Priority: "high"}, "3"},
		{Filter{Priority: "urgent"}, ""},
	}
	for _, tt := range tests {
		if got := ids(Apply(leads, tt.f)); got != tt.want {
			t.Errorf("Apply(%+v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestViewModes(t *testing.T) {
	leads := []model.Lead{
		lead("n", model.PriorityLow, status.LeadNew, 5),
		lead("c", model.PriorityLow, status.LeadContacted, 5),
		lead("g", model.PriorityLow, status.LeadNegotiating, 5),
		lead("w", model.PriorityLow, status.LeadClosedWon, 5),
		lead("l", model.PriorityLow, status.LeadClosedLost, 5),
	}
	tests := []struct {
		mode ViewMode
		want int
	}{
		{ViewQueue, 1},
		{ViewInProgress, 2},
		{ViewConverted, 1},
		{ViewAll, 5},
	}
	for _, tt := range tests {
		if got := View(leads, tt.mode, Filter{}, 0, base); len(got) != tt.want {
			t.Errorf("View(%s) returned %d items, want %d", tt.mode, len(got), tt.want)
		}
	}
}

func TestQueueViewCapsAtLimit(t *testing.T) {
	var leads []model.Lead
	for i := 0; i < 15; i++ {
		leads = append(leads, lead(fmt.Sprint(i), model.PriorityMedium, status.LeadNew, 20-i))
	}
	items := View(leads, ViewQueue, Filter{}, 0, base)
	if len(items) != DefaultLimit {
		t.Fatalf("queue returned %d items, want %d", len(items), DefaultLimit)
	}
	if items[0].ID != "0" {
		t.Fatalf("oldest lead should lead the queue, got %s", items[0].ID)
	}
	if items[0].HoursSinceCreated != 20 {
		t.Fatalf("hours since created = %d, want 20", items[0].HoursSinceCreated)
	}

	all := View(leads, ViewAll, Filter{}, 0, base)
	if len(all) != 15 {
		t.Fatalf("all view should not be capped, got %d", len(all))
	}
}

func TestViewAnnotatesActions(t *testing.T) {
	items := View([]model.Lead{lead("1", model.PriorityLow, status.LeadClosedWon, 1)}, ViewAll, Filter{}, 0, base)
	if len(items[0].Actions) != 0 {
		t.Fatalf("won lead should have no actions, got %v", items[0].Actions)
	}
}

func TestHoursSinceNeverNegative(t *testing.T) {
	if got := HoursSince(base.Add(time.Hour), base); got != 0 {
		t.Fatalf("HoursSince(future) = %d", got)
	}
}
