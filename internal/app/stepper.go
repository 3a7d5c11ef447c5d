package app

import (
	"intake/api/internal/rbac"
	"intake/api/internal/workflow"
)

type Step struct {
	Label     string            `json:"label"`
	Statuses  []workflow.Status `json:"statuses"`
	Completed bool              `json:"completed"`
	Active    bool              `json:"active"`
	Rejected  bool              `json:"rejected"`
}

var pipeline = []struct {
	label    string
	statuses []workflow.Status
}{
	{label: "Intake Form", statuses: []workflow.Status{workflow.StatusDraft, workflow.StatusSubmitted}},
	{label: "Scrub Team", statuses: []workflow.Status{workflow.StatusScrubReview, workflow.StatusScrubQuestions}},
	{label: "Committee Team", statuses: []workflow.Status{workflow.StatusCommitteeReview, workflow.StatusCommitteeQuestions}},
	{label: "Approved", statuses: []workflow.Status{workflow.StatusApproved, workflow.StatusRejected}},
	{label: "Development", statuses: []workflow.Status{workflow.StatusDevelopment}},
}

// Steps places status on the five-step pipeline. A rejected request marks
// the Approved step as rejected and leaves Development untouched.
func Steps(status workflow.Status) []Step {
	active := 0
	for i, step := range pipeline {
		for _, candidate := range step.statuses {
			if candidate == status {
				active = i
			}
		}
	}

	steps := make([]Step, 0, len(pipeline))
	for i, step := range pipeline {
		item := Step{
			Label:     step.label,
			Statuses:  step.statuses,
			Completed: i < active,
			Active:    i == active,
		}
		if i == active && status == workflow.StatusRejected {
			item.Rejected = true
		}
		if i == active && status == workflow.StatusDevelopment {
			item.Completed = true
		}
		steps = append(steps, item)
	}
	return steps
}

// AllowedActions tells a client which buttons to show. It mirrors the
// engine's rules but the engine stays authoritative.
type AllowedActions struct {
	CanSubmit                   bool `json:"canSubmit"`
	CanEdit                     bool `json:"canEdit"`
	CanScrubReview              bool `json:"canScrubReview"`
	CanCommitteeReview          bool `json:"canCommitteeReview"`
	CanStartDevelopment         bool `json:"canStartDevelopment"`
	CanReplyToScrub             bool `json:"canReplyToScrub"`
	CanReplyToCommittee         bool `json:"canReplyToCommittee"`
	HasPendingScrubQuestion     bool `json:"hasPendingScrubQuestion"`
	HasPendingCommitteeQuestion bool `json:"hasPendingCommitteeQuestion"`
}

type actionInput struct {
	Actor            workflow.Actor
	Request          workflow.Request
	ScrubReviews     []workflow.Review
	CommitteeReviews []workflow.Review
	Comments         []workflow.Comment
}

func allowedActions(in actionInput) AllowedActions {
	actor := in.Actor
	request := in.Request
	ownerOrAdmin := request.RequestorID == actor.ID || actor.Role == rbac.RoleAdmin

	var actions AllowedActions
	_, submittable := workflow.NextAfterSubmit(request.Status)
	actions.CanSubmit = submittable && (request.RequestorID == actor.ID || rbac.Can(actor.Role, rbac.ActionSubmitAny))
	actions.CanEdit = request.Status.Editable() && (request.RequestorID == actor.ID || rbac.Can(actor.Role, rbac.ActionEditAny))

	if workflow.GateScrub.Eligible(actor.Role) {
		actions.HasPendingScrubQuestion = workflow.HasPendingQuestion(in.ScrubReviews, in.Comments, request.RequestorID, actor.ID)
		actions.CanScrubReview = workflow.GateScrub.Accepts(request.Status) && !actions.HasPendingScrubQuestion
	}
	if workflow.GateCommittee.Eligible(actor.Role) {
		actions.HasPendingCommitteeQuestion = workflow.HasPendingQuestion(in.CommitteeReviews, in.Comments, request.RequestorID, actor.ID)
		actions.CanCommitteeReview = workflow.GateCommittee.Accepts(request.Status) && !actions.HasPendingCommitteeQuestion
	}

	_, developable := workflow.NextAfterStartDevelopment(request.Status)
	actions.CanStartDevelopment = developable && rbac.Can(actor.Role, rbac.ActionStartDevelopment)
	actions.CanReplyToScrub = request.Status == workflow.StatusScrubQuestions && ownerOrAdmin
	actions.CanReplyToCommittee = request.Status == workflow.StatusCommitteeQuestions && ownerOrAdmin
	return actions
}
