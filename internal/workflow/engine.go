package workflow

import (
	"context"
	"time"

	"intake/api/internal/rbac"
	"intake/api/internal/util"
)

// Transition describes a status change the engine has committed.
type Transition struct {
	RequestID string
	From      Status
	To        Status
	ReviewID  string
	Decision  Decision
	Remarks   string
	At        time.Time
}

type Engine struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(repo Repository, opts ...Option) *Engine {
	engine := &Engine{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return util.NewID("rev") },
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Submit hands the request (back) to reviewers. Only the owner or an
// admin may submit.
func (e *Engine) Submit(ctx context.Context, requestID string, actor Actor) (Transition, error) {
	const op = "submit"
	var result Transition
	err := e.repo.InTx(ctx, func(repo Repository) error {
		request, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}
		if request.RequestorID != actor.ID && !rbac.Can(actor.Role, rbac.ActionSubmitAny) {
			return forbidden(op)
		}
		next, ok := NextAfterSubmit(request.Status)
		if !ok {
			return invalidTransition(op, request.Status, StatusSubmitted)
		}

		now := e.now()
		if err := e.setStatus(ctx, repo, op, StatusChange{
			RequestID:   requestID,
			Expected:    request.Status,
			Next:        next,
			SubmittedAt: &now,
		}); err != nil {
			return err
		}
		result = Transition{RequestID: requestID, From: request.Status, To: next, At: now}
		return nil
	})
	return result, err
}

// ReviewGate records actor's decision for gate and moves the request
// according to the gate's tally including that decision.
func (e *Engine) ReviewGate(ctx context.Context, gate Gate, requestID string, actor Actor, decision Decision, remarks string) (Transition, error) {
	op := string(gate) + "_review"
	if !gate.Valid() {
		return Transition{}, &Error{Kind: KindNotFound, Op: op, Resource: "gate", ID: string(gate)}
	}
	if !gate.Eligible(actor.Role) {
		return Transition{}, forbidden(op)
	}
	if !decision.Valid() {
		return Transition{}, &Error{Kind: KindInvalidDecision, Op: op, Value: string(decision)}
	}

	var result Transition
	err := e.repo.InTx(ctx, func(repo Repository) error {
		request, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}
		if !gate.Accepts(request.Status) {
			return invalidTransition(op, request.Status, gate.reviewStatus())
		}
		reviews, err := repo.ListReviews(ctx, requestID, gate)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}

		review := Review{
			ID:           e.newID(),
			RequestID:    requestID,
			ReviewerID:   actor.ID,
			ReviewerName: actor.FullName,
			Decision:     decision,
			Remarks:      remarks,
			CreatedAt:    e.now(),
		}
		tally := Aggregate(append(append([]Review(nil), reviews...), review))
		next, _ := NextAfterReview(gate, request.Status, decision, tally.AllApproved)

		reviewID, err := repo.InsertReview(ctx, gate, review)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}
		// An unchanged status is still written so that a concurrent
		// transition surfaces as a conflict.
		if err := e.setStatus(ctx, repo, op, StatusChange{
			RequestID: requestID,
			Expected:  request.Status,
			Next:      next,
		}); err != nil {
			return err
		}
		result = Transition{
			RequestID: requestID,
			From:      request.Status,
			To:        next,
			ReviewID:  reviewID,
			Decision:  decision,
			Remarks:   remarks,
			At:        review.CreatedAt,
		}
		return nil
	})
	return result, err
}

func (e *Engine) StartDevelopment(ctx context.Context, requestID string, actor Actor) (Transition, error) {
	const op = "start_development"
	if !rbac.Can(actor.Role, rbac.ActionStartDevelopment) {
		return Transition{}, forbidden(op)
	}
	var result Transition
	err := e.repo.InTx(ctx, func(repo Repository) error {
		request, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}
		next, ok := NextAfterStartDevelopment(request.Status)
		if !ok {
			return invalidTransition(op, request.Status, StatusDevelopment)
		}
		if err := e.setStatus(ctx, repo, op, StatusChange{
			RequestID: requestID,
			Expected:  request.Status,
			Next:      next,
		}); err != nil {
			return err
		}
		result = Transition{RequestID: requestID, From: request.Status, To: next, At: e.now()}
		return nil
	})
	return result, err
}

// EditReview replaces the remarks of an open need_info question.
func (e *Engine) EditReview(ctx context.Context, gate Gate, requestID, reviewID string, actor Actor, remarks string) (Review, error) {
	op := "edit_" + string(gate) + "_review"
	if !gate.Valid() {
		return Review{}, &Error{Kind: KindNotFound, Op: op, Resource: "gate", ID: string(gate)}
	}
	if !gate.Eligible(actor.Role) {
		return Review{}, forbidden(op)
	}

	var updated Review
	err := e.repo.InTx(ctx, func(repo Repository) error {
		request, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}
		reviews, err := repo.ListReviews(ctx, requestID, gate)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}
		comments, err := repo.ListComments(ctx, requestID)
		if err != nil {
			return repoError(op, "request", requestID, err)
		}

		target, err := CheckEdit(EditInput{
			Reviews:     reviews,
			Comments:    comments,
			RequestorID: request.RequestorID,
			ReviewID:    reviewID,
			Actor:       actor,
		})
		if err != nil {
			return err
		}
		if err := repo.UpdateReviewRemarks(ctx, gate, reviewID, remarks); err != nil {
			return repoError(op, "review", reviewID, err)
		}
		target.Remarks = remarks
		updated = target
		return nil
	})
	return updated, err
}

// Conversations rebuilds the gate's dialogues. viewer may be nil.
func (e *Engine) Conversations(ctx context.Context, gate Gate, requestID string, viewer *Actor) ([]ConversationGroup, error) {
	const op = "conversations"
	if !gate.Valid() {
		return nil, &Error{Kind: KindNotFound, Op: op, Resource: "gate", ID: string(gate)}
	}
	request, err := e.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, repoError(op, "request", requestID, err)
	}
	reviews, err := e.repo.ListReviews(ctx, requestID, gate)
	if err != nil {
		return nil, repoError(op, "request", requestID, err)
	}
	comments, err := e.repo.ListComments(ctx, requestID)
	if err != nil {
		return nil, repoError(op, "request", requestID, err)
	}
	groups := BuildConversations(ConversationInput{
		Gate:        gate,
		Reviews:     reviews,
		Comments:    comments,
		RequestorID: request.RequestorID,
		Viewer:      viewer,
	})
	return groups, nil
}

func (e *Engine) setStatus(ctx context.Context, repo Repository, op string, change StatusChange) error {
	err := repo.SetStatus(ctx, change)
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return &Error{
			Kind:      KindConflict,
			Op:        op,
			ID:        change.RequestID,
			Current:   change.Expected,
			Requested: change.Next,
			Err:       err,
		}
	}
	return repoError(op, "request", change.RequestID, err)
}
