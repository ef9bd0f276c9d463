package model

import (
	"time"

	"lunexops/internal/status"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Budget buckets offered by the public forms.
const (
	BudgetUnder10k  = "under-10k"
	Budget10kTo25k  = "10k-25k"
	Budget25kTo50k  = "25k-50k"
	Budget50kTo100k = "50k-100k"
	BudgetOver100k  = "over-100k"
)

const (
	SourceContactForm = "contact_form"
	SourceManual      = "manual"
	// location pages submit as "location_page_<city>"
	SourceLocationPagePrefix = "location_page_"
)

type Lead struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone,omitempty"`
	Company         string            `json:"company,omitempty"`
	ServiceType     string            `json:"service_type"`
	BudgetRange     string            `json:"budget_range"`
	Timeline        string            `json:"timeline,omitempty"`
	Message         string            `json:"message,omitempty"`
	WebsiteURL      string            `json:"website_url,omitempty"`
	Location        string            `json:"location,omitempty"`
	Source          string            `json:"source"`
	Priority        Priority          `json:"priority"`
	Status          status.LeadStatus `json:"status"`
	LeadScore       int               `json:"lead_score"`
	EstimatedValue  *float64          `json:"estimated_value"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	LastContactedAt *time.Time        `json:"last_contacted_at"`
}

// LeadQueueItem is a lead as shown in the triage queue.
type LeadQueueItem struct {
	Lead
	HoursSinceCreated int                 `json:"hours_since_created"`
	Actions           []status.LeadAction `json:"actions"`
}

type Communication struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Type      string    `json:"type"`      // email / phone / meeting / note
	Direction string    `json:"direction"` // inbound / outbound
	Subject   string    `json:"subject"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// LeadStatusChange is one row of the lead status audit trail.
type LeadStatusChange struct {
	ID        string            `json:"id"`
	LeadID    string            `json:"lead_id"`
	OldStatus status.LeadStatus `json:"old_status"`
	NewStatus status.LeadStatus `json:"new_status"`
	Actor     string            `json:"actor"`
	Reason    string            `json:"reason,omitempty"`
	Forced    bool              `json:"forced"`
	CreatedAt time.Time         `json:"created_at"`
}
