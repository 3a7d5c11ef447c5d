package workflow

// NextAfterSubmit returns the status a submit moves current to.
func NextAfterSubmit(current Status) (Status, bool) {
	switch current {
	case StatusDraft:
		return StatusSubmitted, true
	case StatusScrubQuestions:
		return StatusScrubReview, true
	case StatusCommitteeQuestions:
		return StatusCommitteeReview, true
	default:
		return current, false
	}
}

// NextAfterReview returns the status after a decision in gate. allApproved
// must already include the decision being recorded.
//
// An approval that does not satisfy the gate keeps a request that is in the
// questions status there, even when the approving reviewer did not raise the
// question.
func NextAfterReview(gate Gate, current Status, decision Decision, allApproved bool) (Status, bool) {
	if !gate.Accepts(current) || !decision.Valid() {
		return current, false
	}
	switch decision {
	case DecisionReject:
		return StatusRejected, true
	case DecisionNeedInfo:
		return gate.questionsStatus(), true
	}
	if allApproved {
		return gate.passedStatus(), true
	}
	if current == gate.questionsStatus() {
		return current, true
	}
	return gate.reviewStatus(), true
}

func NextAfterStartDevelopment(current Status) (Status, bool) {
	if current != StatusApproved {
		return current, false
	}
	return StatusDevelopment, true
}
