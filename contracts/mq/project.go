package mq

import "time"

const RoutingProjectChanged = "project.changed"

type ProjectChangedPayload struct {
	ProjectID string    `json:"project_id"`
	Op        string    `json:"op"`
	Status    string    `json:"status,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
