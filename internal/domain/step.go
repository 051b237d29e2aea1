package domain

type Step string

const (
	StepVerifyIdentity      Step = "VERIFY_IDENTITY"
	StepSelectPaymentMethod Step = "SELECT_PAYMENT_METHOD"
	StepReviewOrder         Step = "REVIEW_ORDER"
	StepUploadProof         Step = "UPLOAD_PROOF"
	StepManualHandOff       Step = "MANUAL_HAND_OFF"
	StepRedirected          Step = "REDIRECTED"
	StepCompleted           Step = "COMPLETED"
	StepLeft                Step = "LEFT"
)

func (s Step) IsTerminal() bool {
	switch s {
	case StepManualHandOff, StepRedirected, StepCompleted, StepLeft:
		return true
	}
	return false
}

// BeforeOrder reports whether the step precedes order creation. The
// empty-cart guard only applies to these steps, and only while no order
// is held.
func (s Step) BeforeOrder() bool {
	switch s {
	case StepVerifyIdentity, StepSelectPaymentMethod, StepReviewOrder:
		return true
	}
	return false
}

// String representation (for logging)
func (s Step) String() string {
	return string(s)
}

var transitions = map[Step][]Step{
	StepVerifyIdentity:      {StepSelectPaymentMethod, StepManualHandOff, StepLeft},
	StepSelectPaymentMethod: {StepReviewOrder, StepManualHandOff, StepLeft},
	StepReviewOrder:         {StepSelectPaymentMethod, StepUploadProof, StepRedirected, StepManualHandOff, StepLeft},
	StepUploadProof:         {StepReviewOrder, StepCompleted, StepManualHandOff, StepLeft},
}

// CanTransitionTo reports whether the checkout may move from one step to another.
func CanTransitionTo(from, to Step) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
