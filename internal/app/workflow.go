package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"intake/api/internal/export"
	"intake/api/internal/history"
	"intake/api/internal/notify"
	"intake/api/internal/rbac"
	"intake/api/internal/search"
	"intake/api/internal/store"
	"intake/api/internal/workflow"
)

// TransitionView is the response body of every workflow action.
type TransitionView struct {
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	From      workflow.Status `json:"from"`
	Status    workflow.Status `json:"status"`
	ReviewID  string          `json:"review_id,omitempty"`
}

func transitionView(message string, t workflow.Transition) TransitionView {
	return TransitionView{
		Message:   message,
		RequestID: t.RequestID,
		From:      t.From,
		Status:    t.To,
		ReviewID:  t.ReviewID,
	}
}

func (s *Service) Submit(ctx context.Context, sess Session, requestID string) (TransitionView, error) {
	t, err := s.engine.Submit(ctx, requestID, sess.Actor())
	if err != nil {
		return TransitionView{}, err
	}
	s.afterTransition(ctx, sess, t, "", "Submit request")
	return transitionView("Request submitted", t), nil
}

func (s *Service) Review(ctx context.Context, sess Session, gate workflow.Gate, requestID, decision, remarks string) (TransitionView, error) {
	t, err := s.engine.ReviewGate(ctx, gate, requestID, sess.Actor(), workflow.Decision(strings.TrimSpace(decision)), strings.TrimSpace(remarks))
	if err != nil {
		return TransitionView{}, err
	}
	s.afterTransition(ctx, sess, t, gate, fmt.Sprintf("%s review: %s", gateTitle(gate), t.Decision))
	return transitionView(fmt.Sprintf("%s review recorded", gateTitle(gate)), t), nil
}

func (s *Service) EditReview(ctx context.Context, sess Session, gate workflow.Gate, requestID, reviewID, remarks string) (ReviewView, error) {
	review, err := s.engine.EditReview(ctx, gate, requestID, reviewID, sess.Actor(), strings.TrimSpace(remarks))
	if err != nil {
		return ReviewView{}, err
	}
	if s.search != nil {
		s.search.IndexReview(s.reviewRecord(ctx, gate, review))
	}
	return reviewViews([]workflow.Review{review})[0], nil
}

func (s *Service) StartDevelopment(ctx context.Context, sess Session, requestID string) (TransitionView, error) {
	t, err := s.engine.StartDevelopment(ctx, requestID, sess.Actor())
	if err != nil {
		return TransitionView{}, err
	}
	s.afterTransition(ctx, sess, t, "", "Start development")
	return transitionView("Development started", t), nil
}

func (s *Service) Conversations(ctx context.Context, sess Session, gate workflow.Gate, requestID string) ([]workflow.ConversationGroup, error) {
	if _, err := s.visibleRequest(ctx, sess, requestID); err != nil {
		return nil, err
	}
	actor := sess.Actor()
	return s.engine.Conversations(ctx, gate, requestID, &actor)
}

func gateTitle(gate workflow.Gate) string {
	if gate == workflow.GateCommittee {
		return "Committee"
	}
	return "Scrub"
}

// afterTransition runs the best-effort side effects of a committed
// transition. Failures are logged and never reach the caller.
func (s *Service) afterTransition(ctx context.Context, sess Session, t workflow.Transition, gate workflow.Gate, message string) {
	record, err := s.store.GetRequestRecord(ctx, t.RequestID)
	if err != nil {
		slog.Warn("reload request after transition", "request_id", t.RequestID, "error", err)
		return
	}
	s.recordChange(sess, record, message)
	s.indexRequest(record)
	if t.ReviewID != "" && s.search != nil {
		s.search.IndexReview(search.ReviewRecord{
			ID:          t.ReviewID,
			RequestID:   t.RequestID,
			RequestorID: record.RequestorID,
			Gate:        string(gate),
			Decision:    string(t.Decision),
			Remarks:     t.Remarks,
			Reviewer:    sess.FullName,
		})
	}
	if s.notifier == nil {
		return
	}
	notice := notify.TransitionNotice{
		To:            record.RequestorEmail,
		RequestorName: record.RequestorName,
		RequestID:     record.ID,
		ProjectTitle:  record.ProjectTitle,
		FromStatus:    string(t.From),
		ToStatus:      string(t.To),
		Decision:      string(t.Decision),
		ReviewerName:  sess.FullName,
		Remarks:       t.Remarks,
	}
	s.async(func() {
		if err := s.notifier.NotifyTransition(notice); err != nil {
			slog.Warn("notify transition", "request_id", notice.RequestID, "to_status", notice.ToStatus, "error", err)
		}
	})
}

func (s *Service) recordChange(sess Session, record store.RequestRecord, message string) {
	if s.history == nil {
		return
	}
	author := history.Author{Name: sess.FullName, Email: sess.Email}
	if _, err := s.history.Record(record.ID, requestView(record), author, message); err != nil {
		slog.Warn("record request history", "request_id", record.ID, "error", err)
	}
}

func (s *Service) indexRequest(record store.RequestRecord) {
	if s.search == nil {
		return
	}
	item := search.RequestRecord{
		ID:            record.ID,
		ProjectTitle:  record.ProjectTitle,
		Domain:        record.Domain,
		TypeOfRequest: record.TypeOfRequest,
		Status:        string(record.Status),
		RequestorID:   record.RequestorID,
	}
	if record.ProjectSpecs != nil {
		item.Description = record.ProjectSpecs.Description
		item.BusinessJustification = record.ProjectSpecs.BusinessJustification
	}
	s.search.IndexRequest(item)
}

func (s *Service) reviewRecord(ctx context.Context, gate workflow.Gate, review workflow.Review) search.ReviewRecord {
	item := search.ReviewRecord{
		ID:        review.ID,
		RequestID: review.RequestID,
		Gate:      string(gate),
		Decision:  string(review.Decision),
		Remarks:   review.Remarks,
		Reviewer:  review.ReviewerName,
	}
	if request, err := s.store.GetRequest(ctx, review.RequestID); err == nil {
		item.RequestorID = request.RequestorID
	}
	return item
}

// Search

func (s *Service) Search(ctx context.Context, sess Session, text, status string, limit int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if status = strings.TrimSpace(status); status != "" {
		if _, ok := workflow.ParseStatus(status); !ok {
			return search.Response{}, badRequest(fmt.Sprintf("status %q is not valid", status))
		}
	}
	if text == "" || s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	query := search.Query{Text: text, Status: status, Limit: limit}
	if !rbac.Can(sess.Role, rbac.ActionViewAll) {
		query.RequestorID = sess.UserID
	}
	return s.search.Search(ctx, query), nil
}

// Export

func (s *Service) Export(ctx context.Context, sess Session, requestID, format string) (*export.Result, error) {
	parsed, ok := export.ParseFormat(strings.ToLower(strings.TrimSpace(format)))
	if !ok {
		return nil, badRequest(fmt.Sprintf("format %q is not supported", format))
	}
	detail, err := s.GetRequest(ctx, sess, requestID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, dossier(detail, s.now()), parsed)
}

// History

func (s *Service) History(ctx context.Context, sess Session, requestID string, limit int) ([]history.Commit, error) {
	if _, err := s.visibleRequest(ctx, sess, requestID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.Commit{}, nil
	}
	return s.history.History(requestID, limit)
}

// Snapshot returns the request as it was recorded at commit hash.
func (s *Service) Snapshot(ctx context.Context, sess Session, requestID, hash string) (json.RawMessage, error) {
	if _, err := s.visibleRequest(ctx, sess, requestID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, history.ErrNoHistory
	}
	return s.history.Snapshot(requestID, hash)
}
