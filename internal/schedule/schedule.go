// Package schedule builds the delivery calendar from projects and milestones.
package schedule

import (
	"slices"
	"time"

	"lunexops/internal/model"
)

type EventKind string

const (
	KindProjectStart       EventKind = "project_start"
	KindMilestoneDue       EventKind = "milestone_due"
	KindMilestoneCompleted EventKind = "milestone_completed"
)

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Kind        EventKind `json:"kind"`
	ProjectID   string    `json:"project_id"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	Overdue     bool      `json:"overdue"`
}

// IsOverdue reports whether an open milestone is past its due date.
func IsOverdue(m model.Milestone, now time.Time) bool {
	return !m.Completed && m.DueDate.Before(now)
}

// Timeline merges project starts and milestones into one list ordered by
// date. Events on the same instant keep insertion order: projects first,
// then milestones, each in input order.
func Timeline(projects []model.Project, milestones []model.Milestone, now time.Time) []Event {
	names := make(map[string]string, len(projects))
	events := make([]Event, 0, len(projects)+len(milestones))

	for _, p := range projects {
		names[p.ID] = p.ProjectName
		events = append(events, Event{
			ID:        "project-" + p.ID,
			Title:     p.ProjectName + " starts",
			Date:      p.StartDate,
			Kind:      KindProjectStart,
			ProjectID: p.ID,
		})
	}

	for _, m := range milestones {
		kind := KindMilestoneDue
		if m.Completed {
			kind = KindMilestoneCompleted
		}
		title := m.Name
		if pn := names[m.ProjectID]; pn != "" {
			title = pn + ": " + m.Name
		}
		events = append(events, Event{
			ID:          "milestone-" + m.ID,
			Title:       title,
			Date:        m.DueDate,
			Kind:        kind,
			ProjectID:   m.ProjectID,
			MilestoneID: m.ID,
			Overdue:     IsOverdue(m, now),
		})
	}

	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Date.Compare(b.Date)
	})
	return events
}

// Upcoming keeps events dated at or after now.
func Upcoming(events []Event, now time.Time) []Event {
	var out []Event
	for _, e := range events {
		if !e.Date.Before(now) {
			out = append(out, e)
		}
	}
	return out
}

// Overdue keeps events flagged overdue.
func Overdue(events []Event) []Event {
	var out []Event
	for _, e := range events {
		if e.Overdue {
			out = append(out, e)
		}
	}
	return out
}

// On keeps events falling on the calendar day of day, in day's location.
func On(events []Event, day time.Time) []Event {
	y, m, d := day.Date()
	var out []Event
	for _, e := range events {
		ey, em, ed := e.Date.In(day.Location()).Date()
		if ey == y && em == m && ed == d {
			out = append(out, e)
		}
	}
	return out
}

// OverdueMilestones returns the open milestones past due.
func OverdueMilestones(milestones []model.Milestone, now time.Time) []model.Milestone {
	var out []model.Milestone
	for _, m := range milestones {
		if IsOverdue(m, now) {
			out = append(out, m)
		}
	}
	return out
}
