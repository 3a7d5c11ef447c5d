package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("status changed concurrently")
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidDecision   Kind = "invalid_decision"
	KindEditNotAllowed    Kind = "edit_not_allowed"
	KindConflict          Kind = "conflict"
	KindStorage           Kind = "storage"
)

// EditCondition names the rule an edit attempt failed.
type EditCondition string

const (
	EditWrongAuthor    EditCondition = "wrong_author"
	EditWrongDecision  EditCondition = "wrong_decision"
	EditNotLatest      EditCondition = "not_latest"
	EditAlreadyReplied EditCondition = "already_replied"
)

// Error is the single error type returned by the engine. Only the fields
// relevant to Kind are set.
type Error struct {
	Kind      Kind
	Op        string
	Resource  string
	ID        string
	Current   Status
	Requested Status
	Value     string
	Condition EditCondition
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	case KindForbidden:
		return fmt.Sprintf("%s: forbidden", e.Op)
	case KindInvalidTransition:
		return fmt.Sprintf("%s: cannot move from %s toward %s", e.Op, e.Current, e.Requested)
	case KindInvalidDecision:
		return fmt.Sprintf("invalid decision %q", e.Value)
	case KindEditNotAllowed:
		return fmt.Sprintf("review %s cannot be edited: %s", e.ID, e.Condition)
	case KindConflict:
		return fmt.Sprintf("%s: request %s is no longer %s", e.Op, e.ID, e.Current)
	case KindStorage:
		return fmt.Sprintf("%s: storage: %v", e.Op, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}

// repoError classifies an error coming back from the Repository.
func repoError(op, resource, id string, err error) error {
	var wfErr *Error
	switch {
	case errors.As(err, &wfErr):
		return err
	case errors.Is(err, ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Resource: resource, ID: id, Err: err}
	default:
		return &Error{Kind: KindStorage, Op: op, Err: err}
	}
}

func forbidden(op string) error {
	return &Error{Kind: KindForbidden, Op: op}
}

func invalidTransition(op string, current, requested Status) error {
	return &Error{Kind: KindInvalidTransition, Op: op, Current: current, Requested: requested}
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
