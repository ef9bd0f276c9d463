package status

// LeadAction is a named staff action that moves a lead along the pipeline.
type LeadAction string

const (
	ActionContact   LeadAction = "contact"
	ActionQualify   LeadAction = "qualify"
	ActionProposal  LeadAction = "proposal"
	ActionNegotiate LeadAction = "negotiate"
	ActionWin       LeadAction = "win"
	ActionLose      LeadAction = "lose"
)

var actionTargets = map[LeadAction]LeadStatus{
	ActionContact:   LeadContacted,
	ActionQualify:   LeadQualified,
	ActionProposal:  LeadProposalSent,
	ActionNegotiate: LeadNegotiating,
	ActionWin:       LeadClosedWon,
	ActionLose:      LeadClosedLost,
}

// Target returns the status an action moves a lead to.
func (a LeadAction) Target() (LeadStatus, bool) {
	s, ok := actionTargets[a]
	return s, ok
}

// ActionsFrom lists the actions legal for a lead currently in s.
func ActionsFrom(s LeadStatus) []LeadAction {
	var out []LeadAction
	for _, a := range []LeadAction{ActionContact, ActionQualify, ActionProposal, ActionNegotiate, ActionWin, ActionLose} {
		if CanTransition(s, actionTargets[a]) {
			out = append(out, a)
		}
	}
	return out
}
