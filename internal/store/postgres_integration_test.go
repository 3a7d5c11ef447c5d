package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"intake/api/internal/workflow"
)

func seedRequest(t *testing.T, s *PostgresStore, id, requestorID string, status workflow.Status) {
	t.Helper()
	budget := 1200.5
	err := s.InsertRequest(context.Background(), RequestRecord{
		ID:              id,
		RequestorID:     requestorID,
		ProjectTitle:    "Billing revamp",
		Domain:          "finance",
		EstimatedBudget: &budget,
		PriorityLevel:   "high",
		Status:          status,
		RequestorInfo:   &RequestorInfo{Department: "Ops", ManagerName: "Pat"},
		ProjectSpecs:    &ProjectSpecs{Description: "Replace the invoicing pipeline"},
	})
	if err != nil {
		t.Fatalf("insert request: %v", err)
	}
}

func TestPostgresStoreRequestRoundTrip(t *testing.T) {
	s, _ := startMigratedStore(t)
	ctx := context.Background()
	seedUser(t, s, "usr_alice", "requestor", "Alice")
	seedRequest(t, s, "req_1", "usr_alice", workflow.StatusDraft)

	record, err := s.GetRequestRecord(ctx, "req_1")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if record.RequestorName != "Alice" || record.Status != workflow.StatusDraft {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.EstimatedBudget == nil || *record.EstimatedBudget != 1200.5 {
		t.Fatalf("expected budget 1200.5, got %v", record.EstimatedBudget)
	}
	if record.RequestorInfo == nil || record.RequestorInfo.ManagerName != "Pat" {
		t.Fatalf("expected requestor info, got %+v", record.RequestorInfo)
	}
	if record.ProjectSpecs == nil || record.ProjectSpecs.Description == "" {
		t.Fatalf("expected project specs, got %+v", record.ProjectSpecs)
	}

	record.ProjectTitle = "Billing revamp v2"
	record.ProjectSpecs.Risks = "vendor lock-in"
	if err := s.UpdateRequest(ctx, record); err != nil {
		t.Fatalf("update request: %v", err)
	}
	updated, err := s.GetRequestRecord(ctx, "req_1")
	if err != nil {
		t.Fatalf("get updated request: %v", err)
	}
	if updated.ProjectTitle != "Billing revamp v2" || updated.ProjectSpecs.Risks != "vendor lock-in" {
		t.Fatalf("update not persisted: %+v", updated)
	}

	list, err := s.ListRequests(ctx, RequestFilter{RequestorID: "usr_alice", Status: workflow.StatusDraft})
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one request, got %d", len(list))
	}
	list, err = s.ListRequests(ctx, RequestFilter{Status: workflow.StatusApproved})
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no approved requests, got %d", len(list))
	}

	if _, err := s.GetRequestRecord(ctx, "req_missing"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreSetStatusIsConditional(t *testing.T) {
	s, _ := startMigratedStore(t)
	ctx := context.Background()
	seedUser(t, s, "usr_alice", "requestor", "Alice")
	seedRequest(t, s, "req_1", "usr_alice", workflow.StatusDraft)

	submittedAt := time.Now().UTC().Truncate(time.Second)
	if err := s.SetStatus(ctx, workflow.StatusChange{
		RequestID:   "req_1",
		Expected:    workflow.StatusDraft,
		Next:        workflow.StatusSubmitted,
		SubmittedAt: &submittedAt,
	}); err != nil {
		t.Fatalf("set status: %v", err)
	}

	err := s.SetStatus(ctx, workflow.StatusChange{RequestID: "req_1", Expected: workflow.StatusDraft, Next: workflow.StatusSubmitted})
	if !errors.Is(err, workflow.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale expected status, got %v", err)
	}

	err = s.SetStatus(ctx, workflow.StatusChange{RequestID: "req_missing", Expected: workflow.StatusDraft, Next: workflow.StatusSubmitted})
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	request, err := s.GetRequest(ctx, "req_1")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.Status != workflow.StatusSubmitted || request.DateOfSubmission == nil {
		t.Fatalf("unexpected request: %+v", request)
	}
}

func TestPostgresStoreReviewsAndTransactions(t *testing.T) {
	s, _ := startMigratedStore(t)
	ctx := context.Background()
	seedUser(t, s, "usr_alice", "requestor", "Alice")
	seedUser(t, s, "usr_sam", "scrub_team", "Sam")
	seedRequest(t, s, "req_1", "usr_alice", workflow.StatusSubmitted)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.InsertReview(ctx, workflow.GateScrub, workflow.Review{
		ID: "rev_1", RequestID: "req_1", ReviewerID: "usr_sam", Decision: workflow.DecisionNeedInfo, Remarks: "Budget?", CreatedAt: base,
	}); err != nil {
		t.Fatalf("insert review: %v", err)
	}

	// A failing status write rolls back the review inserted in the same tx.
	err := s.InTx(ctx, func(repo workflow.Repository) error {
		if _, err := repo.InsertReview(ctx, workflow.GateScrub, workflow.Review{
			ID: "rev_2", RequestID: "req_1", ReviewerID: "usr_sam", Decision: workflow.DecisionApprove, CreatedAt: base.Add(time.Minute),
		}); err != nil {
			return err
		}
		return repo.SetStatus(ctx, workflow.StatusChange{RequestID: "req_1", Expected: workflow.StatusDraft, Next: workflow.StatusScrubReview})
	})
	if !errors.Is(err, workflow.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	reviews, err := s.ListReviews(ctx, "req_1", workflow.GateScrub)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].ID != "rev_1" || reviews[0].ReviewerName != "Sam" {
		t.Fatalf("expected only rev_1 to survive, got %+v", reviews)
	}

	committee, err := s.ListReviews(ctx, "req_1", workflow.GateCommittee)
	if err != nil {
		t.Fatalf("list committee reviews: %v", err)
	}
	if len(committee) != 0 {
		t.Fatalf("expected no committee reviews, got %d", len(committee))
	}

	if err := s.UpdateReviewRemarks(ctx, workflow.GateScrub, "rev_1", "What is the budget ceiling?"); err != nil {
		t.Fatalf("update remarks: %v", err)
	}
	if err := s.UpdateReviewRemarks(ctx, workflow.GateScrub, "rev_missing", "x"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreCommentsAndAttachments(t *testing.T) {
	s, _ := startMigratedStore(t)
	ctx := context.Background()
	seedUser(t, s, "usr_alice", "requestor", "Alice")
	seedRequest(t, s, "req_1", "usr_alice", workflow.StatusScrubQuestions)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, message := range []string{"first", "second"} {
		if err := s.InsertComment(ctx, workflow.Comment{
			ID: "cmt_" + message, RequestID: "req_1", UserID: "usr_alice", Message: message, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("insert comment: %v", err)
		}
	}
	views, err := s.ListCommentViews(ctx, "req_1")
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(views) != 2 || views[0].Message != "first" || views[0].UserRole != "requestor" || views[0].UserName != "Alice" {
		t.Fatalf("unexpected comments: %+v", views)
	}

	if err := s.InsertAttachment(ctx, Attachment{
		ID: "att_1", RequestID: "req_1", OriginalName: "plan.pdf", Filename: "1-abc.pdf", Filepath: "uploads/1-abc.pdf",
		Mimetype: "application/pdf", Size: 42, UploadedBy: "usr_alice",
	}); err != nil {
		t.Fatalf("insert attachment: %v", err)
	}
	attachment, err := s.GetAttachment(ctx, "att_1")
	if err != nil {
		t.Fatalf("get attachment: %v", err)
	}
	if attachment.Size != 42 || attachment.OriginalName != "plan.pdf" {
		t.Fatalf("unexpected attachment: %+v", attachment)
	}
	items, err := s.ListAttachments(ctx, "req_1")
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one attachment, got %d", len(items))
	}
}

func TestReviewHistoryGuardBlocksRewrites(t *testing.T) {
	s, db := startMigratedStore(t)
	ctx := context.Background()
	seedUser(t, s, "usr_alice", "requestor", "Alice")
	seedUser(t, s, "usr_sam", "scrub_team", "Sam")
	seedRequest(t, s, "req_1", "usr_alice", workflow.StatusScrubReview)

	if _, err := s.InsertReview(ctx, workflow.GateScrub, workflow.Review{
		ID: "rev_1", RequestID: "req_1", ReviewerID: "usr_sam", Decision: workflow.DecisionNeedInfo,
	}); err != nil {
		t.Fatalf("insert review: %v", err)
	}
	if err := s.InsertComment(ctx, workflow.Comment{ID: "cmt_1", RequestID: "req_1", UserID: "usr_alice", Message: "hi"}); err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	cases := []struct {
		name  string
		query string
	}{
		{name: "review decision", query: `UPDATE scrub_reviews SET decision='approve' WHERE id='rev_1'`},
		{name: "review delete", query: `DELETE FROM scrub_reviews WHERE id='rev_1'`},
		{name: "comment update", query: `UPDATE comments SET message='edited' WHERE id='cmt_1'`},
		{name: "comment delete", query: `DELETE FROM comments WHERE id='cmt_1'`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.ExecContext(ctx, tc.query)
			if err == nil {
				t.Fatal("expected statement to be blocked")
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				t.Fatalf("expected PostgreSQL error, got: %v", err)
			}
			if pgErr.SQLState() != "55000" {
				t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
			}
		})
	}

	if _, err := db.ExecContext(ctx, `UPDATE scrub_reviews SET remarks='edited' WHERE id='rev_1'`); err != nil {
		t.Fatalf("remarks update should be allowed: %v", err)
	}
}
