package domain

type OrderState string

const (
	StateCreated          OrderState = "CREATED"
	StateAwaitingEvidence OrderState = "AWAITING_EVIDENCE"
	StateUnderReview      OrderState = "UNDER_REVIEW"
	StateApproved         OrderState = "APPROVED"
	StateRejected         OrderState = "REJECTED"
	StateFulfilled        OrderState = "FULFILLED"
	StateCancelled        OrderState = "CANCELLED"
)

// transitions is the only legal edge set. Every state change goes through
// OrderRepo.CompareAndTransition, which refuses edges not listed here.
var transitions = map[OrderState][]OrderState{
	StateCreated:          {StateAwaitingEvidence},
	StateAwaitingEvidence: {StateUnderReview, StateCancelled},
	StateUnderReview:      {StateApproved, StateRejected},
	StateApproved:         {StateFulfilled},
}

func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s OrderState) Terminal() bool {
	return s == StateFulfilled || s == StateRejected || s == StateCancelled
}

type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictReject  Verdict = "REJECT"
)

// OwnerDecision is an input to the approval coordinator; it only becomes
// ledger state once its compare-and-transition commits.
type OwnerDecision struct {
	OrderID string
	OwnerID string
	Verdict Verdict
	Reason  string
}

type TargetStatus string

const (
	TargetPending   TargetStatus = "pending"
	TargetDelivered TargetStatus = "delivered"
	TargetFailed    TargetStatus = "failed"
	TargetBlocked   TargetStatus = "blocked"
	TargetSkipped   TargetStatus = "skipped"
)

// Terminal reports whether a per-recipient status may no longer change
// within its job.
func (s TargetStatus) Terminal() bool {
	switch s {
	case TargetDelivered, TargetFailed, TargetBlocked, TargetSkipped:
		return true
	}
	return false
}
