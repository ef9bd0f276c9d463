package status

import "strings"

// ProjectStatus is the delivery state of a signed project.
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectOnHold     ProjectStatus = "on_hold"
	ProjectCompleted  ProjectStatus = "completed"
)

// ProjectStatuses lists project statuses in board order.
var ProjectStatuses = []ProjectStatus{
	ProjectPending,
	ProjectInProgress,
	ProjectOnHold,
	ProjectCompleted,
}

// Column is a board column identifier.
type Column string

const (
	ColumnNewLead         Column = "new_lead"
	ColumnInProgress      Column = "in_progress"
	ColumnAwaitingPayment Column = "awaiting_payment"
	ColumnCompleted       Column = "completed"
)

// Columns lists board columns left to right.
var Columns = []Column{
	ColumnNewLead,
	ColumnInProgress,
	ColumnAwaitingPayment,
	ColumnCompleted,
}

var columnByStatus = map[ProjectStatus]Column{
	ProjectPending:    ColumnNewLead,
	ProjectInProgress: ColumnInProgress,
	ProjectOnHold:     ColumnAwaitingPayment,
	ProjectCompleted:  ColumnCompleted,
}

var statusByColumn = map[Column]ProjectStatus{
	ColumnNewLead:         ProjectPending,
	ColumnInProgress:      ProjectInProgress,
	ColumnAwaitingPayment: ProjectOnHold,
	ColumnCompleted:       ProjectCompleted,
}

func (s ProjectStatus) Valid() bool {
	_, ok := columnByStatus[s]
	return ok
}

// ParseProjectStatus normalizes s and reports whether it names a known status.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	ps := ProjectStatus(strings.ToLower(strings.TrimSpace(s)))
	return ps, ps.Valid()
}

// ColumnFor returns the board column of s. Unknown statuses land in new_lead.
func ColumnFor(s ProjectStatus) Column {
	if c, ok := columnByStatus[s]; ok {
		return c
	}
	return ColumnNewLead
}

// StatusFor returns the project status a column represents.
func StatusFor(c Column) (ProjectStatus, bool) {
	s, ok := statusByColumn[c]
	return s, ok
}
