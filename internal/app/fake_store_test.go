package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"intake/api/internal/config"
	"intake/api/internal/rbac"
	"intake/api/internal/store"
	"intake/api/internal/workflow"
)

// fakeStore is an in-memory dataStore. InTx runs fn against the same maps;
// tests never exercise rollback here.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]store.User
	requests    map[string]store.RequestRecord
	reviews     map[workflow.Gate][]workflow.Review
	comments    []workflow.Comment
	attachments []store.Attachment
	setStatusFn func(workflow.StatusChange) error
	pingFn      func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]store.User),
		requests: make(map[string]store.RequestRecord),
		reviews:  make(map[workflow.Gate][]workflow.Review),
	}
}

func (f *fakeStore) addUser(id, name, role string) store.User {
	user := store.User{ID: id, Email: id + "@example.com", FullName: name, Role: role}
	f.users[id] = user
	return user
}

func (f *fakeStore) addRequest(id, requestorID string, status workflow.Status) {
	f.requests[id] = store.RequestRecord{
		ID:            id,
		RequestorID:   requestorID,
		ProjectTitle:  "Request " + id,
		PriorityLevel: "medium",
		Status:        status,
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) InTx(_ context.Context, fn func(workflow.Repository) error) error {
	return fn(f)
}

func (f *fakeStore) GetRequest(_ context.Context, id string) (workflow.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.requests[id]
	if !ok {
		return workflow.Request{}, fmt.Errorf("request %s: %w", id, workflow.ErrNotFound)
	}
	return workflow.Request{ID: record.ID, RequestorID: record.RequestorID, Status: record.Status, DateOfSubmission: record.DateOfSubmission}, nil
}

func (f *fakeStore) ListReviews(_ context.Context, requestID string, gate workflow.Gate) ([]workflow.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]workflow.Review, 0)
	for _, review := range f.reviews[gate] {
		if review.RequestID == requestID {
			review.ReviewerName = f.users[review.ReviewerID].FullName
			items = append(items, review)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) ListComments(ctx context.Context, requestID string) ([]workflow.Comment, error) {
	views, err := f.ListCommentViews(ctx, requestID)
	if err != nil {
		return nil, err
	}
	items := make([]workflow.Comment, 0, len(views))
	for _, view := range views {
		items = append(items, view.Comment)
	}
	return items, nil
}

func (f *fakeStore) InsertReview(_ context.Context, gate workflow.Gate, review workflow.Review) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[gate] = append(f.reviews[gate], review)
	return review.ID, nil
}

func (f *fakeStore) UpdateReviewRemarks(_ context.Context, gate workflow.Gate, id, remarks string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.reviews[gate] {
		if f.reviews[gate][i].ID == id {
			f.reviews[gate][i].Remarks = remarks
			return nil
		}
	}
	return fmt.Errorf("review %s: %w", id, workflow.ErrNotFound)
}

func (f *fakeStore) SetStatus(_ context.Context, change workflow.StatusChange) error {
	if f.setStatusFn != nil {
		if err := f.setStatusFn(change); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.requests[change.RequestID]
	if !ok {
		return workflow.ErrNotFound
	}
	if record.Status != change.Expected {
		return workflow.ErrConflict
	}
	record.Status = change.Next
	if change.SubmittedAt != nil {
		submitted := *change.SubmittedAt
		record.DateOfSubmission = &submitted
	}
	f.requests[change.RequestID] = record
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, workflow.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, workflow.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.CreatedAt = time.Now().UTC()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) InsertRequest(_ context.Context, record store.RequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt
	f.requests[record.ID] = record
	return nil
}

func (f *fakeStore) UpdateRequest(_ context.Context, record store.RequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.requests[record.ID]
	if !ok {
		return workflow.ErrNotFound
	}
	record.Status = current.Status
	record.UpdatedAt = time.Now().UTC()
	f.requests[record.ID] = record
	return nil
}

func (f *fakeStore) GetRequestRecord(_ context.Context, id string) (store.RequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.requests[id]
	if !ok {
		return store.RequestRecord{}, fmt.Errorf("request %s: %w", id, workflow.ErrNotFound)
	}
	owner := f.users[record.RequestorID]
	record.RequestorName = owner.FullName
	record.RequestorEmail = owner.Email
	record.RequestorDepartment = owner.Department
	return record, nil
}

func (f *fakeStore) ListRequests(_ context.Context, filter store.RequestFilter) ([]store.RequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.RequestRecord, 0)
	for _, record := range f.requests {
		if filter.RequestorID != "" && record.RequestorID != filter.RequestorID {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		items = append(items, record)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) InsertComment(_ context.Context, comment workflow.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, comment)
	return nil
}

func (f *fakeStore) ListCommentViews(_ context.Context, requestID string) ([]store.CommentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.CommentView, 0)
	for _, comment := range f.comments {
		if comment.RequestID != requestID {
			continue
		}
		author := f.users[comment.UserID]
		comment.UserName = author.FullName
		items = append(items, store.CommentView{Comment: comment, UserRole: author.Role})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeStore) InsertAttachment(_ context.Context, item store.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments = append(f.attachments, item)
	return nil
}

func (f *fakeStore) ListAttachments(_ context.Context, requestID string) ([]store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Attachment, 0)
	for i := len(f.attachments) - 1; i >= 0; i-- {
		if f.attachments[i].RequestID == requestID {
			items = append(items, f.attachments[i])
		}
	}
	return items, nil
}

func (f *fakeStore) GetAttachment(_ context.Context, id string) (store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.attachments {
		if item.ID == id {
			return item, nil
		}
	}
	return store.Attachment{}, fmt.Errorf("attachment %s: %w", id, workflow.ErrNotFound)
}

// steppingClock returns a time one second later on every call so ordering
// by timestamp is deterministic.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newTestService(fs *fakeStore, components Components) *Service {
	svc := New(config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, fs, components)
	svc.now = steppingClock()
	svc.async = func(fn func()) { fn() }
	return svc
}

func sessionFor(user store.User) Session {
	return Session{UserID: user.ID, Email: user.Email, FullName: user.FullName, Role: rbac.Normalize(user.Role)}
}
