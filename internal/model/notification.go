package model

import "time"

const (
	NotificationMilestone = "milestone"
	NotificationPayment   = "payment"
	NotificationDeadline  = "deadline"
	NotificationReminder  = "reminder"
)

type Notification struct {
	ID           string     `json:"id"`
	ProjectID    *string    `json:"project_id,omitempty"`
	MilestoneID  *string    `json:"milestone_id,omitempty"`
	Message      string     `json:"message"`
	Type         string     `json:"type"`
	Priority     Priority   `json:"priority"`
	Read         bool       `json:"read"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
