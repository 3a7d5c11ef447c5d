package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"intake/api/internal/workflow"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements workflow.Repository plus the request, user,
// comment and attachment CRUD the service needs.
type PostgresStore struct {
	db   *sql.DB
	q    querier
	inTx bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn on a store bound to a single transaction. Nested calls reuse
// the outer transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(workflow.Repository) error) error {
	return s.withTx(ctx, func(tx *PostgresStore) error { return fn(tx) })
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*PostgresStore) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{db: s.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func reviewTable(gate workflow.Gate) (string, error) {
	switch gate {
	case workflow.GateScrub:
		return "scrub_reviews", nil
	case workflow.GateCommittee:
		return "committee_reviews", nil
	default:
		return "", fmt.Errorf("unknown gate %q", gate)
	}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, workflow.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// Workflow repository

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (workflow.Request, error) {
	query := `SELECT id, requestor_id, status, date_of_submission FROM intake_requests WHERE id=$1`
	if s.inTx {
		query += ` FOR UPDATE`
	}
	var request workflow.Request
	var status string
	if err := s.q.QueryRowContext(ctx, query, id).Scan(&request.ID, &request.RequestorID, &status, &request.DateOfSubmission); err != nil {
		return workflow.Request{}, notFound(err, "request", id)
	}
	request.Status = workflow.Status(status)
	return request, nil
}

func (s *PostgresStore) ListReviews(ctx context.Context, requestID string, gate workflow.Gate) ([]workflow.Review, error) {
	table, err := reviewTable(gate)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT r.id, r.request_id, r.reviewer_id, COALESCE(u.full_name, ''), r.decision, COALESCE(r.remarks, ''), r.created_at
		FROM `+table+` r
		LEFT JOIN users u ON u.id = r.reviewer_id
		WHERE r.request_id=$1
		ORDER BY r.created_at ASC, r.seq ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	items := make([]workflow.Review, 0)
	for rows.Next() {
		var item workflow.Review
		var decision string
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ReviewerID, &item.ReviewerName, &decision, &item.Remarks, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		item.Decision = workflow.Decision(decision)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, requestID string) ([]workflow.Comment, error) {
	views, err := s.ListCommentViews(ctx, requestID)
	if err != nil {
		return nil, err
	}
	items := make([]workflow.Comment, 0, len(views))
	for _, view := range views {
		items = append(items, view.Comment)
	}
	return items, nil
}

func (s *PostgresStore) InsertReview(ctx context.Context, gate workflow.Gate, review workflow.Review) (string, error) {
	table, err := reviewTable(gate)
	if err != nil {
		return "", err
	}
	createdAt := review.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO `+table+` (id, request_id, reviewer_id, decision, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, review.ID, review.RequestID, review.ReviewerID, string(review.Decision), nilIfEmpty(review.Remarks), createdAt); err != nil {
		return "", fmt.Errorf("insert review: %w", err)
	}
	return review.ID, nil
}

func (s *PostgresStore) UpdateReviewRemarks(ctx context.Context, gate workflow.Gate, id, remarks string) error {
	table, err := reviewTable(gate)
	if err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, `UPDATE `+table+` SET remarks=$2 WHERE id=$1`, id, nilIfEmpty(remarks))
	if err != nil {
		return fmt.Errorf("update review remarks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update review remarks rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("review %s: %w", id, workflow.ErrNotFound)
	}
	return nil
}

// SetStatus writes change.Next only while the stored status equals
// change.Expected.
func (s *PostgresStore) SetStatus(ctx context.Context, change workflow.StatusChange) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE intake_requests
		SET status=$3, date_of_submission=COALESCE($4, date_of_submission), updated_at=NOW()
		WHERE id=$1 AND status=$2
	`, change.RequestID, string(change.Expected), string(change.Next), change.SubmittedAt)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM intake_requests WHERE id=$1)`, change.RequestID).Scan(&exists); err != nil {
		return fmt.Errorf("check request: %w", err)
	}
	if !exists {
		return fmt.Errorf("request %s: %w", change.RequestID, workflow.ErrNotFound)
	}
	return fmt.Errorf("request %s: %w", change.RequestID, workflow.ErrConflict)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, role, department, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, user.ID, strings.ToLower(user.Email), user.PasswordHash, user.FullName, user.Role, nilIfEmpty(user.Department), nilIfEmpty(user.Phone)).Scan(&user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	user.Email = strings.ToLower(user.Email)
	return user, nil
}

const userColumns = `id, email, password_hash, full_name, role, COALESCE(department, ''), COALESCE(phone, ''), created_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &user.Department, &user.Phone, &user.CreatedAt)
	return user, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return User{}, notFound(err, "user", email)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return User{}, notFound(err, "user", id)
	}
	return user, nil
}

// Requests

func (s *PostgresStore) InsertRequest(ctx context.Context, record RequestRecord) error {
	return s.withTx(ctx, func(tx *PostgresStore) error {
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO intake_requests (id, requestor_id, project_title, domain, estimated_budget, type_of_request, priority_level, status, estimated_completion_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, record.ID, record.RequestorID, record.ProjectTitle, nilIfEmpty(record.Domain), record.EstimatedBudget,
			nilIfEmpty(record.TypeOfRequest), record.PriorityLevel, string(record.Status), record.EstimatedCompletionDate); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		return tx.saveSections(ctx, record)
	})
}

// UpdateRequest rewrites the editable fields. Status is never touched here.
func (s *PostgresStore) UpdateRequest(ctx context.Context, record RequestRecord) error {
	return s.withTx(ctx, func(tx *PostgresStore) error {
		result, err := tx.q.ExecContext(ctx, `
			UPDATE intake_requests
			SET project_title=$2, domain=$3, estimated_budget=$4, type_of_request=$5, priority_level=$6,
			    estimated_completion_date=$7, updated_at=NOW()
			WHERE id=$1
		`, record.ID, record.ProjectTitle, nilIfEmpty(record.Domain), record.EstimatedBudget,
			nilIfEmpty(record.TypeOfRequest), record.PriorityLevel, record.EstimatedCompletionDate)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update request rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("request %s: %w", record.ID, workflow.ErrNotFound)
		}
		return tx.saveSections(ctx, record)
	})
}

func (s *PostgresStore) saveSections(ctx context.Context, record RequestRecord) error {
	if info := record.RequestorInfo; info != nil {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO requestor_info (request_id, department, phone, manager_name, business_unit, cost_center)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (request_id) DO UPDATE SET
				department=EXCLUDED.department, phone=EXCLUDED.phone, manager_name=EXCLUDED.manager_name,
				business_unit=EXCLUDED.business_unit, cost_center=EXCLUDED.cost_center
		`, record.ID, nilIfEmpty(info.Department), nilIfEmpty(info.Phone), nilIfEmpty(info.ManagerName),
			nilIfEmpty(info.BusinessUnit), nilIfEmpty(info.CostCenter)); err != nil {
			return fmt.Errorf("upsert requestor info: %w", err)
		}
	}
	if specs := record.ProjectSpecs; specs != nil {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO project_specs (request_id, description, business_justification, expected_outcomes, technical_requirements, dependencies, risks)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (request_id) DO UPDATE SET
				description=EXCLUDED.description, business_justification=EXCLUDED.business_justification,
				expected_outcomes=EXCLUDED.expected_outcomes, technical_requirements=EXCLUDED.technical_requirements,
				dependencies=EXCLUDED.dependencies, risks=EXCLUDED.risks
		`, record.ID, nilIfEmpty(specs.Description), nilIfEmpty(specs.BusinessJustification), nilIfEmpty(specs.ExpectedOutcomes),
			nilIfEmpty(specs.TechnicalRequirements), nilIfEmpty(specs.Dependencies), nilIfEmpty(specs.Risks)); err != nil {
			return fmt.Errorf("upsert project specs: %w", err)
		}
	}
	return nil
}

const requestSelect = `
	SELECT ir.id, ir.requestor_id, COALESCE(u.full_name, ''), COALESCE(u.email, ''), COALESCE(u.department, ''),
	       ir.project_title, COALESCE(ir.domain, ''), ir.estimated_budget::float8, COALESCE(ir.type_of_request, ''),
	       ir.priority_level, ir.status, ir.date_of_submission, ir.estimated_completion_date, ir.created_at, ir.updated_at,
	       ri.request_id IS NOT NULL,
	       COALESCE(ri.department, ''), COALESCE(ri.phone, ''), COALESCE(ri.manager_name, ''),
	       COALESCE(ri.business_unit, ''), COALESCE(ri.cost_center, ''),
	       ps.request_id IS NOT NULL,
	       COALESCE(ps.description, ''), COALESCE(ps.business_justification, ''), COALESCE(ps.expected_outcomes, ''),
	       COALESCE(ps.technical_requirements, ''), COALESCE(ps.dependencies, ''), COALESCE(ps.risks, '')
	FROM intake_requests ir
	LEFT JOIN users u ON u.id = ir.requestor_id
	LEFT JOIN requestor_info ri ON ri.request_id = ir.id
	LEFT JOIN project_specs ps ON ps.request_id = ir.id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (RequestRecord, error) {
	var item RequestRecord
	var status string
	var hasInfo, hasSpecs bool
	var info RequestorInfo
	var specs ProjectSpecs
	if err := row.Scan(
		&item.ID, &item.RequestorID, &item.RequestorName, &item.RequestorEmail, &item.RequestorDepartment,
		&item.ProjectTitle, &item.Domain, &item.EstimatedBudget, &item.TypeOfRequest,
		&item.PriorityLevel, &status, &item.DateOfSubmission, &item.EstimatedCompletionDate, &item.CreatedAt, &item.UpdatedAt,
		&hasInfo,
		&info.Department, &info.Phone, &info.ManagerName, &info.BusinessUnit, &info.CostCenter,
		&hasSpecs,
		&specs.Description, &specs.BusinessJustification, &specs.ExpectedOutcomes,
		&specs.TechnicalRequirements, &specs.Dependencies, &specs.Risks,
	); err != nil {
		return RequestRecord{}, err
	}
	item.Status = workflow.Status(status)
	if hasInfo {
		item.RequestorInfo = &info
	}
	if hasSpecs {
		item.ProjectSpecs = &specs
	}
	return item, nil
}

func (s *PostgresStore) GetRequestRecord(ctx context.Context, id string) (RequestRecord, error) {
	item, err := scanRequest(s.q.QueryRowContext(ctx, requestSelect+` WHERE ir.id=$1`, id))
	if err != nil {
		return RequestRecord{}, notFound(err, "request", id)
	}
	return item, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]RequestRecord, error) {
	rows, err := s.q.QueryContext(ctx, requestSelect+`
		WHERE ($1 = '' OR ir.requestor_id = $1)
		  AND ($2 = '' OR ir.status = $2)
		ORDER BY ir.created_at DESC
	`, filter.RequestorID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]RequestRecord, 0)
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

// Comments

func (s *PostgresStore) InsertComment(ctx context.Context, comment workflow.Comment) error {
	createdAt := comment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO comments (id, request_id, user_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.RequestID, comment.UserID, comment.Message, createdAt); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCommentViews(ctx context.Context, requestID string) ([]CommentView, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.request_id, c.user_id, COALESCE(u.full_name, ''), COALESCE(u.role, ''), c.message, c.created_at
		FROM comments c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.request_id=$1
		ORDER BY c.created_at ASC, c.seq ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]CommentView, 0)
	for rows.Next() {
		var item CommentView
		if err := rows.Scan(&item.ID, &item.RequestID, &item.UserID, &item.UserName, &item.UserRole, &item.Message, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// Attachments

func (s *PostgresStore) InsertAttachment(ctx context.Context, item Attachment) error {
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO attachments (id, request_id, original_name, filename, filepath, mimetype, size, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.RequestID, item.OriginalName, item.Filename, item.Filepath, item.Mimetype, item.Size, item.UploadedBy); err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

const attachmentColumns = `id, request_id, original_name, filename, filepath, mimetype, size, uploaded_by, created_at`

func (s *PostgresStore) ListAttachments(ctx context.Context, requestID string) ([]Attachment, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE request_id=$1 ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.RequestID, &item.OriginalName, &item.Filename, &item.Filepath, &item.Mimetype, &item.Size, &item.UploadedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, id string) (Attachment, error) {
	var item Attachment
	err := s.q.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id=$1`, id).
		Scan(&item.ID, &item.RequestID, &item.OriginalName, &item.Filename, &item.Filepath, &item.Mimetype, &item.Size, &item.UploadedBy, &item.CreatedAt)
	if err != nil {
		return Attachment{}, notFound(err, "attachment", id)
	}
	return item, nil
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
