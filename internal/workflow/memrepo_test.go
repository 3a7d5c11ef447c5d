package workflow

import (
	"context"
	"fmt"
	"sync"
)

type memRepo struct {
	mu        sync.Mutex
	requests  map[string]Request
	reviews   map[Gate][]Review
	comments  []Comment
	setErr    error
	insertErr error
	changes   []StatusChange
}

func newMemRepo(requests ...Request) *memRepo {
	repo := &memRepo{
		requests: make(map[string]Request),
		reviews:  make(map[Gate][]Review),
	}
	for _, request := range requests {
		repo.requests[request.ID] = request
	}
	return repo
}

func (m *memRepo) GetRequest(_ context.Context, id string) (Request, error) {
	request, ok := m.requests[id]
	if !ok {
		return Request{}, fmt.Errorf("get request %s: %w", id, ErrNotFound)
	}
	return request, nil
}

func (m *memRepo) ListReviews(_ context.Context, requestID string, gate Gate) ([]Review, error) {
	items := make([]Review, 0)
	for _, review := range m.reviews[gate] {
		if review.RequestID == requestID {
			items = append(items, review)
		}
	}
	return sortReviews(items), nil
}

func (m *memRepo) ListComments(_ context.Context, requestID string) ([]Comment, error) {
	items := make([]Comment, 0)
	for _, comment := range m.comments {
		if comment.RequestID == requestID {
			items = append(items, comment)
		}
	}
	return sortComments(items), nil
}

func (m *memRepo) InsertReview(_ context.Context, gate Gate, review Review) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.reviews[gate] = append(m.reviews[gate], review)
	return review.ID, nil
}

func (m *memRepo) UpdateReviewRemarks(_ context.Context, gate Gate, id, remarks string) error {
	for i := range m.reviews[gate] {
		if m.reviews[gate][i].ID == id {
			m.reviews[gate][i].Remarks = remarks
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRepo) SetStatus(_ context.Context, change StatusChange) error {
	if m.setErr != nil {
		return m.setErr
	}
	request, ok := m.requests[change.RequestID]
	if !ok {
		return ErrNotFound
	}
	if request.Status != change.Expected {
		return ErrConflict
	}
	request.Status = change.Next
	if change.SubmittedAt != nil {
		submitted := *change.SubmittedAt
		request.DateOfSubmission = &submitted
	}
	m.requests[change.RequestID] = request
	m.changes = append(m.changes, change)
	return nil
}

// InTx restores the previous state when fn fails.
func (m *memRepo) InTx(_ context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make(map[string]Request, len(m.requests))
	for id, request := range m.requests {
		requests[id] = request
	}
	reviews := make(map[Gate][]Review, len(m.reviews))
	for gate, items := range m.reviews {
		reviews[gate] = append([]Review(nil), items...)
	}
	if err := fn(m); err != nil {
		m.requests = requests
		m.reviews = reviews
		return err
	}
	return nil
}

func (m *memRepo) addComment(comment Comment) {
	m.comments = append(m.comments, comment)
}
