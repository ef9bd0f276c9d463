package mq

import "time"

const (
	RoutingNotificationCreated = "notification.created"
	RoutingNotificationEmitted = "notification.emitted"
)

// NotificationCreatedPayload announces a persisted notification row.
type NotificationCreatedPayload struct {
	NotificationID string    `json:"notification_id"`
	ProjectID      string    `json:"project_id,omitempty"`
	MilestoneID    string    `json:"milestone_id,omitempty"`
	Type           string    `json:"type"` // milestone / payment / deadline / reminder
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// NotificationEmittedPayload is a transient success/failure notice.
type NotificationEmittedPayload struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ProjectID string    `json:"project_id,omitempty"`
	LeadID    string    `json:"lead_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
