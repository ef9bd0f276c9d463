// Package queue orders and filters leads for staff triage.
package queue

import (
	"slices"
	"strings"
	"time"

	"lunexops/internal/model"
	"lunexops/internal/status"
)

// DefaultLimit caps the "queue" view.
const DefaultLimit = 10

type ViewMode string

const (
	ViewQueue      ViewMode = "queue"
	ViewInProgress ViewMode = "in_progress"
	ViewConverted  ViewMode = "converted"
	ViewAll        ViewMode = "all"
)

// ParseViewMode falls back to ViewAll for unknown modes.
func ParseViewMode(s string) ViewMode {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ViewQueue, ViewInProgress, ViewConverted, ViewAll:
		return m
	}
	return ViewAll
}

// Filter narrows a lead set. Empty or "all" facets match everything.
type Filter struct {
	Search   string
	Status   string
	Priority string
}

// Tier ranks a priority: urgent 4, high 3, medium 2, low 1, anything else 0.
func Tier(p model.Priority) int {
	switch p {
	case model.PriorityUrgent:
		return 4
	case model.PriorityHigh:
		return 3
	case model.PriorityMedium:
		return 2
	case model.PriorityLow:
		return 1
	default:
		return 0
	}
}

// Sort returns a copy of leads ordered by tier descending, then oldest first.
// Leads equal on both keys keep their input order.
func Sort(leads []model.Lead) []model.Lead {
	out := slices.Clone(leads)
	slices.SortStableFunc(out, func(a, b model.Lead) int {
		if ta, tb := Tier(a.Priority), Tier(b.Priority); ta != tb {
			return tb - ta
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Apply keeps the leads matching every facet of f.
func Apply(leads []model.Lead, f Filter) []model.Lead {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if !facetMatches(f.Status, string(l.Status)) || !facetMatches(f.Priority, string(l.Priority)) {
			continue
		}
		if search != "" && !matchesSearch(l, search) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func facetMatches(want, got string) bool {
	want = strings.TrimSpace(want)
	if want == "" || strings.EqualFold(want, "all") {
		return true
	}
	return strings.EqualFold(want, got)
}

func matchesSearch(l model.Lead, needle string) bool {
	for _, field := range []string{l.Name, l.Email, l.Company, l.ServiceType} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func inView(mode ViewMode, s status.LeadStatus) bool {
	switch mode {
	case ViewQueue:
		return s == status.LeadNew
	case ViewInProgress:
		return s.IsActive()
	case ViewConverted:
		return s == status.LeadClosedWon
	default:
		return true
	}
}

// View filters, orders and annotates leads for a view mode. limit applies
// only to ViewQueue; a non-positive limit means DefaultLimit.
func View(leads []model.Lead, mode ViewMode, f Filter, limit int, now time.Time) []model.LeadQueueItem {
	if limit <= 0 {
		limit = DefaultLimit
	}

	scoped := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if inView(mode, l.Status) {
			scoped = append(scoped, l)
		}
	}
	ordered := Sort(Apply(scoped, f))
	if mode == ViewQueue && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	items := make([]model.LeadQueueItem, len(ordered))
	for i, l := range ordered {
		items[i] = model.LeadQueueItem{
			Lead:              l,
			HoursSinceCreated: HoursSince(l.CreatedAt, now),
			Actions:           status.ActionsFrom(l.Status),
		}
	}
	return items
}

// HoursSince returns whole hours elapsed since t, never negative.
func HoursSince(t, now time.Time) int {
	h := int(now.Sub(t) / time.Hour)
	if h < 0 {
		return 0
	}
	return h
}
