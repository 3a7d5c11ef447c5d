package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intake/api/internal/blob"
	"intake/api/internal/rbac"
	"intake/api/internal/store"
	"intake/api/internal/util"
	"intake/api/internal/workflow"
)

var allowedPriorities = map[string]struct{}{
	"low":      {},
	"medium":   {},
	"high":     {},
	"critical": {},
}

type RequestInput struct {
	ProjectTitle            string               `json:"project_title"`
	Domain                  string               `json:"domain"`
	EstimatedBudget         *float64             `json:"estimated_budget"`
	TypeOfRequest           string               `json:"type_of_request"`
	PriorityLevel           string               `json:"priority_level"`
	EstimatedCompletionDate string               `json:"estimated_completion_date"`
	RequestorInfo           *store.RequestorInfo `json:"requestor_info"`
	ProjectSpecs            *store.ProjectSpecs  `json:"project_specs"`
}

type RequestView struct {
	ID                      string               `json:"id"`
	RequestorID             string               `json:"requestor_id"`
	Requestor               RequestorView        `json:"requestor"`
	ProjectTitle            string               `json:"project_title"`
	Domain                  string               `json:"domain"`
	EstimatedBudget         *float64             `json:"estimated_budget"`
	TypeOfRequest           string               `json:"type_of_request"`
	PriorityLevel           string               `json:"priority_level"`
	Status                  workflow.Status      `json:"status"`
	DateOfSubmission        *time.Time           `json:"date_of_submission"`
	EstimatedCompletionDate *time.Time           `json:"estimated_completion_date"`
	CreatedAt               time.Time            `json:"created_at"`
	UpdatedAt               time.Time            `json:"updated_at"`
	RequestorInfo           *store.RequestorInfo `json:"requestor_info"`
	ProjectSpecs            *store.ProjectSpecs  `json:"project_specs"`
}

type RequestorView struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

type ReviewView struct {
	ID           string            `json:"id"`
	ReviewerID   string            `json:"reviewer_id"`
	ReviewerName string            `json:"reviewer_name"`
	Decision     workflow.Decision `json:"decision"`
	Remarks      string            `json:"remarks"`
	CreatedAt    time.Time         `json:"created_at"`
}

type CommentView struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	User      UserBrief `json:"user"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type UserBrief struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type AttachmentView struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	OriginalName string    `json:"original_name"`
	Filename     string    `json:"filename"`
	Mimetype     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	UploadedBy   string    `json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// RequestDetail is everything a caller needs to render one request.
type RequestDetail struct {
	RequestView
	ScrubReviews           []ReviewView                 `json:"scrub_reviews"`
	CommitteeReviews       []ReviewView                 `json:"committee_reviews"`
	Comments               []CommentView                `json:"comments"`
	Attachments            []AttachmentView             `json:"attachments"`
	ScrubConversations     []workflow.ConversationGroup `json:"scrub_conversations"`
	CommitteeConversations []workflow.ConversationGroup `json:"committee_conversations"`
	Steps                  []Step                       `json:"workflow_steps"`
	AllowedActions         AllowedActions               `json:"allowed_actions"`
}

func requestView(record store.RequestRecord) RequestView {
	return RequestView{
		ID:          record.ID,
		RequestorID: record.RequestorID,
		Requestor: RequestorView{
			ID:         record.RequestorID,
			FullName:   record.RequestorName,
			Email:      record.RequestorEmail,
			Department: record.RequestorDepartment,
		},
		ProjectTitle:            record.ProjectTitle,
		Domain:                  record.Domain,
		EstimatedBudget:         record.EstimatedBudget,
		TypeOfRequest:           record.TypeOfRequest,
		PriorityLevel:           record.PriorityLevel,
		Status:                  record.Status,
		DateOfSubmission:        record.DateOfSubmission,
		EstimatedCompletionDate: record.EstimatedCompletionDate,
		CreatedAt:               record.CreatedAt,
		UpdatedAt:               record.UpdatedAt,
		RequestorInfo:           record.RequestorInfo,
		ProjectSpecs:            record.ProjectSpecs,
	}
}

func reviewViews(reviews []workflow.Review) []ReviewView {
	items := make([]ReviewView, 0, len(reviews))
	for _, review := range reviews {
		items = append(items, ReviewView{
			ID:           review.ID,
			ReviewerID:   review.ReviewerID,
			ReviewerName: review.ReviewerName,
			Decision:     review.Decision,
			Remarks:      review.Remarks,
			CreatedAt:    review.CreatedAt,
		})
	}
	return items
}

func commentView(comment store.CommentView) CommentView {
	return CommentView{
		ID:        comment.ID,
		RequestID: comment.RequestID,
		UserID:    comment.UserID,
		User:      UserBrief{ID: comment.UserID, FullName: comment.UserName, Role: comment.UserRole},
		Message:   comment.Message,
		CreatedAt: comment.CreatedAt,
	}
}

func attachmentView(item store.Attachment) AttachmentView {
	return AttachmentView{
		ID:           item.ID,
		RequestID:    item.RequestID,
		OriginalName: item.OriginalName,
		Filename:     item.Filename,
		Mimetype:     item.Mimetype,
		Size:         item.Size,
		UploadedBy:   item.UploadedBy,
		CreatedAt:    item.CreatedAt,
	}
}

// applyInput validates input and copies it onto record.
func applyInput(record *store.RequestRecord, input RequestInput) error {
	title := strings.TrimSpace(input.ProjectTitle)
	if title == "" {
		return badRequest("project_title is required")
	}
	priority := strings.ToLower(strings.TrimSpace(input.PriorityLevel))
	if priority == "" {
		priority = "medium"
	}
	if _, ok := allowedPriorities[priority]; !ok {
		return badRequest(fmt.Sprintf("priority_level %q is not valid", input.PriorityLevel))
	}
	if input.EstimatedBudget != nil && *input.EstimatedBudget < 0 {
		return badRequest("estimated_budget cannot be negative")
	}
	completion, err := parseDate(input.EstimatedCompletionDate)
	if err != nil {
		return badRequest("estimated_completion_date must be YYYY-MM-DD")
	}

	record.ProjectTitle = title
	record.Domain = strings.TrimSpace(input.Domain)
	record.EstimatedBudget = input.EstimatedBudget
	record.TypeOfRequest = strings.TrimSpace(input.TypeOfRequest)
	record.PriorityLevel = priority
	record.EstimatedCompletionDate = completion
	record.RequestorInfo = input.RequestorInfo
	record.ProjectSpecs = input.ProjectSpecs
	return nil
}

func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("parse date %q", value)
}

func (s *Service) CreateRequest(ctx context.Context, sess Session, input RequestInput) (RequestView, error) {
	record := store.RequestRecord{
		ID:          util.NewID("req"),
		RequestorID: sess.UserID,
		Status:      workflow.StatusDraft,
	}
	if err := applyInput(&record, input); err != nil {
		return RequestView{}, err
	}
	if err := s.store.InsertRequest(ctx, record); err != nil {
		return RequestView{}, err
	}
	saved, err := s.store.GetRequestRecord(ctx, record.ID)
	if err != nil {
		return RequestView{}, err
	}
	s.recordChange(sess, saved, "Create request")
	s.indexRequest(saved)
	return requestView(saved), nil
}

// UpdateRequest rewrites the request fields. Only the owner or an admin may
// edit, and only while the request is in an editable status.
func (s *Service) UpdateRequest(ctx context.Context, sess Session, requestID string, input RequestInput) (RequestView, error) {
	record, err := s.store.GetRequestRecord(ctx, requestID)
	if err != nil {
		return RequestView{}, err
	}
	if record.RequestorID != sess.UserID && !rbac.Can(sess.Role, rbac.ActionEditAny) {
		return RequestView{}, forbiddenError()
	}
	if !record.Status.Editable() {
		return RequestView{}, domainError(http.StatusConflict, "NOT_EDITABLE",
			fmt.Sprintf("request cannot be edited while %s", record.Status),
			map[string]any{"status": record.Status})
	}
	if err := applyInput(&record, input); err != nil {
		return RequestView{}, err
	}
	if err := s.store.UpdateRequest(ctx, record); err != nil {
		return RequestView{}, err
	}
	saved, err := s.store.GetRequestRecord(ctx, requestID)
	if err != nil {
		return RequestView{}, err
	}
	s.recordChange(sess, saved, "Update request")
	s.indexRequest(saved)
	return requestView(saved), nil
}

func (s *Service) ListRequests(ctx context.Context, sess Session, status string) ([]RequestView, error) {
	filter := store.RequestFilter{}
	if status = strings.TrimSpace(status); status != "" {
		parsed, ok := workflow.ParseStatus(status)
		if !ok {
			return nil, badRequest(fmt.Sprintf("status %q is not valid", status))
		}
		filter.Status = parsed
	}
	if !rbac.Can(sess.Role, rbac.ActionViewAll) {
		filter.RequestorID = sess.UserID
	}
	records, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]RequestView, 0, len(records))
	for _, record := range records {
		items = append(items, requestView(record))
	}
	return items, nil
}

func (s *Service) GetRequest(ctx context.Context, sess Session, requestID string) (RequestDetail, error) {
	record, err := s.visibleRequest(ctx, sess, requestID)
	if err != nil {
		return RequestDetail{}, err
	}
	scrub, err := s.store.ListReviews(ctx, requestID, workflow.GateScrub)
	if err != nil {
		return RequestDetail{}, err
	}
	committee, err := s.store.ListReviews(ctx, requestID, workflow.GateCommittee)
	if err != nil {
		return RequestDetail{}, err
	}
	commentRows, err := s.store.ListCommentViews(ctx, requestID)
	if err != nil {
		return RequestDetail{}, err
	}
	attachments, err := s.store.ListAttachments(ctx, requestID)
	if err != nil {
		return RequestDetail{}, err
	}

	comments := make([]workflow.Comment, 0, len(commentRows))
	commentItems := make([]CommentView, 0, len(commentRows))
	for _, row := range commentRows {
		comments = append(comments, row.Comment)
		commentItems = append(commentItems, commentView(row))
	}
	attachmentItems := make([]AttachmentView, 0, len(attachments))
	for _, item := range attachments {
		attachmentItems = append(attachmentItems, attachmentView(item))
	}

	actor := sess.Actor()
	conversations := func(gate workflow.Gate, reviews []workflow.Review) []workflow.ConversationGroup {
		return workflow.BuildConversations(workflow.ConversationInput{
			Gate:        gate,
			Reviews:     reviews,
			Comments:    comments,
			RequestorID: record.RequestorID,
			Viewer:      &actor,
		})
	}

	return RequestDetail{
		RequestView:            requestView(record),
		ScrubReviews:           reviewViews(scrub),
		CommitteeReviews:       reviewViews(committee),
		Comments:               commentItems,
		Attachments:            attachmentItems,
		ScrubConversations:     conversations(workflow.GateScrub, scrub),
		CommitteeConversations: conversations(workflow.GateCommittee, committee),
		Steps:                  Steps(record.Status),
		AllowedActions: allowedActions(actionInput{
			Actor:            actor,
			Request:          workflow.Request{ID: record.ID, RequestorID: record.RequestorID, Status: record.Status},
			ScrubReviews:     scrub,
			CommitteeReviews: committee,
			Comments:         comments,
		}),
	}, nil
}

// Comments

type CommentInput struct {
	Message string `json:"message"`
	// ReplyTo is a reviewer id or display name; the message is then tagged
	// so the conversation view routes it to that reviewer.
	ReplyTo string `json:"reply_to"`
}

func (s *Service) AddComment(ctx context.Context, sess Session, requestID string, input CommentInput) (CommentView, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return CommentView{}, badRequest("message is required")
	}
	if _, err := s.visibleRequest(ctx, sess, requestID); err != nil {
		return CommentView{}, err
	}
	if replyTo := strings.TrimSpace(input.ReplyTo); replyTo != "" {
		name, err := s.reviewerName(ctx, requestID, replyTo)
		if err != nil {
			return CommentView{}, err
		}
		message = workflow.TagReply(name, message)
	}

	comment := workflow.Comment{
		ID:        util.NewID("cmt"),
		RequestID: requestID,
		UserID:    sess.UserID,
		UserName:  sess.FullName,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return CommentView{}, err
	}
	return commentView(store.CommentView{Comment: comment, UserRole: string(sess.Role)}), nil
}

// reviewerName resolves reply_to against the reviewers of both gates.
func (s *Service) reviewerName(ctx context.Context, requestID, replyTo string) (string, error) {
	for _, gate := range []workflow.Gate{workflow.GateScrub, workflow.GateCommittee} {
		reviews, err := s.store.ListReviews(ctx, requestID, gate)
		if err != nil {
			return "", err
		}
		for _, review := range reviews {
			if review.ReviewerName == "" {
				continue
			}
			if review.ReviewerID == replyTo || strings.EqualFold(review.ReviewerName, replyTo) {
				return review.ReviewerName, nil
			}
		}
	}
	return "", badRequest("reply_to does not name a reviewer of this request")
}

func (s *Service) ListComments(ctx context.Context, sess Session, requestID string) ([]CommentView, error) {
	if _, err := s.visibleRequest(ctx, sess, requestID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListCommentViews(ctx, requestID)
	if err != nil {
		return nil, err
	}
	items := make([]CommentView, 0, len(rows))
	for _, row := range rows {
		items = append(items, commentView(row))
	}
	return items, nil
}

// Attachments

// Upload is one incoming file. Open is called once, after validation of the
// whole batch.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

func (s *Service) UploadAttachments(ctx context.Context, sess Session, requestID string, uploads []Upload) ([]AttachmentView, error) {
	if s.blobs == nil {
		return nil, unavailable("STORAGE_UNAVAILABLE", "Attachment storage not configured")
	}
	if _, err := s.visibleRequest(ctx, sess, requestID); err != nil {
		return nil, err
	}
	files := make([]blob.File, 0, len(uploads))
	for _, upload := range uploads {
		files = append(files, blob.File{Name: upload.Name, Size: upload.Size})
	}
	if err := blob.Validate(files); err != nil {
		return nil, err
	}

	items := make([]AttachmentView, 0, len(uploads))
	for _, upload := range uploads {
		item, err := s.storeUpload(ctx, sess, requestID, upload)
		if err != nil {
			return nil, err
		}
		items = append(items, attachmentView(item))
	}
	return items, nil
}

func (s *Service) storeUpload(ctx context.Context, sess Session, requestID string, upload Upload) (store.Attachment, error) {
	filename, err := blob.NewFilename(upload.Name, s.now())
	if err != nil {
		return store.Attachment{}, err
	}
	reader, err := upload.Open()
	if err != nil {
		return store.Attachment{}, fmt.Errorf("open upload %s: %w", upload.Name, err)
	}
	defer reader.Close()

	contentType := blob.ContentType(upload.Name, upload.ContentType)
	location, err := s.blobs.Put(ctx, filename, reader, upload.Size, contentType)
	if err != nil {
		return store.Attachment{}, err
	}
	item := store.Attachment{
		ID:           util.NewID("att"),
		RequestID:    requestID,
		OriginalName: upload.Name,
		Filename:     filename,
		Filepath:     location,
		Mimetype:     contentType,
		Size:         upload.Size,
		UploadedBy:   sess.UserID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertAttachment(ctx, item); err != nil {
		_ = s.blobs.Delete(ctx, location)
		return store.Attachment{}, err
	}
	return item, nil
}

func (s *Service) ListAttachments(ctx context.Context, sess Session, requestID string) ([]AttachmentView, error) {
	if _, err := s.visibleRequest(ctx, sess, requestID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListAttachments(ctx, requestID)
	if err != nil {
		return nil, err
	}
	items := make([]AttachmentView, 0, len(rows))
	for _, row := range rows {
		items = append(items, attachmentView(row))
	}
	return items, nil
}

// OpenAttachment returns the metadata and a reader for the stored bytes.
// The caller closes the reader.
func (s *Service) OpenAttachment(ctx context.Context, sess Session, attachmentID string) (store.Attachment, io.ReadCloser, error) {
	if s.blobs == nil {
		return store.Attachment{}, nil, unavailable("STORAGE_UNAVAILABLE", "Attachment storage not configured")
	}
	item, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	if _, err := s.visibleRequest(ctx, sess, item.RequestID); err != nil {
		return store.Attachment{}, nil, err
	}
	reader, err := s.blobs.Open(ctx, item.Filepath)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	return item, reader, nil
}
