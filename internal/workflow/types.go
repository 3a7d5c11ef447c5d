// Package workflow holds the intake request state machine: the per-gate
// review aggregation, the transition rules, the reconstruction of
// reviewer/submitter conversations and the guard around editing an open
// question. Everything here works on already-loaded records; persistence is
// reached only through Repository.
package workflow

import (
	"context"
	"time"

	"intake/api/internal/rbac"
)

type Status string

const (
	StatusDraft              Status = "draft"
	StatusSubmitted          Status = "submitted"
	StatusScrubReview        Status = "scrub_review"
	StatusScrubQuestions     Status = "scrub_questions"
	StatusCommitteeReview    Status = "committee_review"
	StatusCommitteeQuestions Status = "committee_questions"
	StatusApproved           Status = "approved"
	StatusRejected           Status = "rejected"
	StatusDevelopment        Status = "development"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusScrubReview,
	StatusScrubQuestions,
	StatusCommitteeReview,
	StatusCommitteeQuestions,
	StatusApproved,
	StatusRejected,
	StatusDevelopment,
}

func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Editable reports whether the owner may still change the request fields.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusScrubQuestions || s == StatusCommitteeQuestions
}

func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	return status, status.Valid()
}

type Decision string

const (
	DecisionApprove  Decision = "approve"
	DecisionReject   Decision = "reject"
	DecisionNeedInfo Decision = "need_info"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionNeedInfo:
		return true
	default:
		return false
	}
}

func ParseDecision(value string) (Decision, error) {
	decision := Decision(value)
	if !decision.Valid() {
		return "", &Error{Kind: KindInvalidDecision, Value: value}
	}
	return decision, nil
}

// Gate is one review stage with its own reviewer pool.
type Gate string

const (
	GateScrub     Gate = "scrub"
	GateCommittee Gate = "committee"
)

func ParseGate(value string) (Gate, bool) {
	switch Gate(value) {
	case GateScrub, GateCommittee:
		return Gate(value), true
	default:
		return "", false
	}
}

func (g Gate) Valid() bool {
	return g == GateScrub || g == GateCommittee
}

func (g Gate) reviewAction() rbac.Action {
	if g == GateCommittee {
		return rbac.ActionCommitteeReview
	}
	return rbac.ActionScrubReview
}

// Eligible reports whether role may render decisions in this gate.
func (g Gate) Eligible(role rbac.Role) bool {
	return rbac.Can(role, g.reviewAction())
}

func (g Gate) reviewStatus() Status {
	if g == GateCommittee {
		return StatusCommitteeReview
	}
	return StatusScrubReview
}

func (g Gate) questionsStatus() Status {
	if g == GateCommittee {
		return StatusCommitteeQuestions
	}
	return StatusScrubQuestions
}

func (g Gate) passedStatus() Status {
	if g == GateCommittee {
		return StatusApproved
	}
	return StatusCommitteeReview
}

// Accepts reports whether a review for this gate can be recorded while the
// request is in status.
func (g Gate) Accepts(status Status) bool {
	switch g {
	case GateScrub:
		return status == StatusSubmitted || status == StatusScrubReview || status == StatusScrubQuestions
	case GateCommittee:
		return status == StatusCommitteeReview || status == StatusCommitteeQuestions
	default:
		return false
	}
}

// Actor is the already-authenticated caller.
type Actor struct {
	ID       string
	Role     rbac.Role
	FullName string
}

type Request struct {
	ID               string
	RequestorID      string
	Status           Status
	DateOfSubmission *time.Time
}

type Review struct {
	ID           string
	RequestID    string
	ReviewerID   string
	ReviewerName string
	Decision     Decision
	Remarks      string
	CreatedAt    time.Time
}

type Comment struct {
	ID        string
	RequestID string
	UserID    string
	UserName  string
	Message   string
	CreatedAt time.Time
}

// StatusChange is a conditional status write: it applies only while the
// stored status still equals Expected.
type StatusChange struct {
	RequestID   string
	Expected    Status
	Next        Status
	SubmittedAt *time.Time
}

// Repository is the storage port. Implementations return ErrNotFound for
// missing records and ErrConflict when a StatusChange finds a different
// stored status. ListReviews and ListComments are ordered by created_at.
type Repository interface {
	GetRequest(ctx context.Context, id string) (Request, error)
	ListReviews(ctx context.Context, requestID string, gate Gate) ([]Review, error)
	ListComments(ctx context.Context, requestID string) ([]Comment, error)
	InsertReview(ctx context.Context, gate Gate, review Review) (string, error)
	UpdateReviewRemarks(ctx context.Context, gate Gate, id, remarks string) error
	SetStatus(ctx context.Context, change StatusChange) error
	// InTx runs fn against a repository bound to one transaction; Request
	// reads inside it lock the row until commit.
	InTx(ctx context.Context, fn func(Repository) error) error
}
