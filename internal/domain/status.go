package domain

// CaseStatus is the status vocabulary for test cases. The set below is what
// the system itself writes, but the storage boundary is deliberately open:
// an agent may report any literal and it is persisted as-is. The mapping to
// a closed vocabulary happens only in the report adapter.
type CaseStatus string

const (
	CasePending CaseStatus = "Pending"
	CaseRunning CaseStatus = "Running"
	CasePassed  CaseStatus = "Passed"
	CaseFailed  CaseStatus = "Failed"
	CaseBlocked CaseStatus = "Blocked"
	CaseSkipped CaseStatus = "Skipped"
)

// Known reports whether s is part of the closed vocabulary the system
// itself uses.
func (s CaseStatus) Known() bool {
	switch s {
	case CasePending, CaseRunning, CasePassed, CaseFailed, CaseBlocked, CaseSkipped:
		return true
	}
	return false
}

// Terminal reports whether s is a verdict the orchestrator will not touch
// again during the current run. Pending is not terminal: an executing unit
// that errors before reporting leaves the case Pending.
func (s CaseStatus) Terminal() bool {
	switch s {
	case CasePassed, CaseFailed, CaseBlocked, CaseSkipped:
		return true
	}
	return false
}

// CoalesceCaseStatus maps an absent status to Pending, matching the store
// default.
func CoalesceCaseStatus(s CaseStatus) CaseStatus {
	if s == "" {
		return CasePending
	}
	return s
}

// CoalesceSessionStatus maps an absent session status to InProgress.
func CoalesceSessionStatus(s SessionStatus) SessionStatus {
	if s == "" {
		return SessionInProgress
	}
	return s
}

// CanAdvance reports whether a session may move from one status to another.
// Sessions only move forward; re-asserting the current status is allowed so
// that re-running execution over a Completed session stays legal.
func CanAdvance(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	return from == SessionInProgress && to == SessionCompleted
}
