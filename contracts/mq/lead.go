package mq

import "time"

const (
	RoutingLeadChanged          = "lead.changed"
	RoutingLeadStatusForced     = "lead.status_forced"
	RoutingCommunicationCreated = "communication.created"
)

// Change operations carried in change payloads.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type LeadChangedPayload struct {
	LeadID    string    `json:"lead_id"`
	Op        string    `json:"op"`
	Status    string    `json:"status,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type LeadStatusForcedPayload struct {
	LeadID    string    `json:"lead_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason"`
	TraceID   string    `json:"trace_id,omitempty"`
	ForcedAt  time.Time `json:"forced_at"`
}

type CommunicationCreatedPayload struct {
	CommunicationID string    `json:"communication_id"`
	LeadID          string    `json:"lead_id"`
	Type            string    `json:"type"`
	TraceID         string    `json:"trace_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
