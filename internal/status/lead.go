package status

import "strings"

// LeadStatus is a stage in the sales pipeline.
type LeadStatus string

const (
	LeadNew          LeadStatus = "new"
	LeadContacted    LeadStatus = "contacted"
	LeadQualified    LeadStatus = "qualified"
	LeadProposalSent LeadStatus = "proposal_sent"
	LeadNegotiating  LeadStatus = "negotiating"
	LeadClosedWon    LeadStatus = "closed_won"
	LeadClosedLost   LeadStatus = "closed_lost"
)

// LeadStatuses lists every lead status in pipeline order.
var LeadStatuses = []LeadStatus{
	LeadNew,
	LeadContacted,
	LeadQualified,
	LeadProposalSent,
	LeadNegotiating,
	LeadClosedWon,
	LeadClosedLost,
}

// leadTransitions 允许的状态流转表；终态没有出边
var leadTransitions = map[LeadStatus]map[LeadStatus]bool{
	LeadNew: {
		LeadContacted:  true,
		LeadClosedLost: true,
	},
	LeadContacted: {
		LeadQualified:  true,
		LeadClosedLost: true,
	},
	LeadQualified: {
		LeadProposalSent: true,
		LeadClosedLost:   true,
	},
	LeadProposalSent: {
		LeadNegotiating: true,
		LeadClosedLost:  true,
	},
	LeadNegotiating: {
		LeadClosedWon:  true,
		LeadClosedLost: true,
	},
	LeadClosedWon:  {},
	LeadClosedLost: {},
}

// ParseLeadStatus normalizes s and reports whether it names a known status.
func ParseLeadStatus(s string) (LeadStatus, bool) {
	ls := LeadStatus(strings.ToLower(strings.TrimSpace(s)))
	_, ok := leadTransitions[ls]
	return ls, ok
}

func (s LeadStatus) Valid() bool {
	_, ok := leadTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible from s.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadClosedWon || s == LeadClosedLost
}

// CanTransition reports whether from -> to is an edge of the lead pipeline.
func CanTransition(from, to LeadStatus) bool {
	next, ok := leadTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// AllowedFrom returns the legal targets of from, in pipeline order.
func AllowedFrom(from LeadStatus) []LeadStatus {
	next := leadTransitions[from]
	out := make([]LeadStatus, 0, len(next))
	for _, s := range LeadStatuses {
		if next[s] {
			out = append(out, s)
		}
	}
	return out
}

// IsActive reports whether the lead is being worked but not yet decided.
func (s LeadStatus) IsActive() bool {
	switch s {
	case LeadContacted, LeadQualified, LeadProposalSent, LeadNegotiating:
		return true
	}
	return false
}
