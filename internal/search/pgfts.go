package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. Without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

const (
	requestVector = `to_tsvector('english', COALESCE(ir.project_title, '') || ' ' || COALESCE(ir.domain, '') || ' ' || COALESCE(ir.type_of_request, ''))`
	specsVector   = `to_tsvector('english', COALESCE(ps.description, '') || ' ' || COALESCE(ps.business_justification, ''))`
	remarksVector = `to_tsvector('english', COALESCE(r.remarks, ''))`
)

type ftsQuery struct {
	count string
	data  string
	args  []any
}

// buildQuery assembles a UNION ALL across requests and both review tables
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func buildQuery(q Query) (ftsQuery, bool) {
	if strings.TrimSpace(q.Text) == "" {
		return ftsQuery{}, false
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	requestorFilter := ""
	if q.RequestorID != "" {
		requestorFilter = fmt.Sprintf(" AND ir.requestor_id = $%d", argN)
		args = append(args, q.RequestorID)
		argN++
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultRequest {
		where := fmt.Sprintf("(%s @@ %s OR %s @@ %s)%s", requestVector, tsQuery, specsVector, tsQuery, requestorFilter)
		if q.Status != "" {
			where += fmt.Sprintf(" AND ir.status = $%d", argN)
			args = append(args, q.Status)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'request'::text AS type, ir.id, ir.project_title AS title,
				ts_headline('english', COALESCE(ps.description, COALESCE(ir.domain, '')), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ir.id AS request_id, ir.status, ''::text AS gate,
				ts_rank(%s || %s, %s) AS rank
			FROM intake_requests ir
			LEFT JOIN project_specs ps ON ps.request_id = ir.id
			WHERE %s`, tsQuery, requestVector, specsVector, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultReview {
		for _, gate := range []struct{ table, name string }{
			{"scrub_reviews", "scrub"},
			{"committee_reviews", "committee"},
		} {
			subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'review'::text AS type, r.id, COALESCE(u.full_name, r.decision) AS title,
				ts_headline('english', COALESCE(r.remarks, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.request_id, ir.status, '%s'::text AS gate,
				ts_rank(%s, %s) AS rank
			FROM %s r
			JOIN intake_requests ir ON ir.id = r.request_id
			LEFT JOIN users u ON u.id = r.reviewer_id
			WHERE %s @@ %s%s`, tsQuery, gate.name, remarksVector, tsQuery, gate.table, remarksVector, tsQuery, requestorFilter))
		}
	}

	union := strings.Join(subQueries, " UNION ALL ")
	return ftsQuery{
		count: fmt.Sprintf("SELECT count(*) FROM (%s) sub", union),
		data: fmt.Sprintf(`SELECT type, id, title, snippet, request_id, status, gate
		FROM (%s) sub
		ORDER BY rank DESC, id ASC
		LIMIT %d OFFSET %d`, union, limit, offset),
		args: args,
	}, true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	query, ok := buildQuery(q)
	if !ok {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, query.count, query.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query.data, query.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.RequestID, &r.Status, &r.Gate); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]RequestRecord, []ReviewRecord, error) {
	requestRows, err := p.db.QueryContext(ctx, `
		SELECT ir.id, ir.project_title, COALESCE(ir.domain, ''), COALESCE(ir.type_of_request, ''),
		       COALESCE(ps.description, ''), COALESCE(ps.business_justification, ''), ir.status, ir.requestor_id
		FROM intake_requests ir
		LEFT JOIN project_specs ps ON ps.request_id = ir.id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load requests: %w", err)
	}
	defer requestRows.Close()

	requests := make([]RequestRecord, 0)
	for requestRows.Next() {
		var r RequestRecord
		if err := requestRows.Scan(&r.ID, &r.ProjectTitle, &r.Domain, &r.TypeOfRequest, &r.Description, &r.BusinessJustification, &r.Status, &r.RequestorID); err != nil {
			return nil, nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := requestRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate requests: %w", err)
	}

	reviewRows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.request_id, ir.requestor_id, 'scrub', r.decision, COALESCE(r.remarks, ''), COALESCE(u.full_name, '')
		FROM scrub_reviews r
		JOIN intake_requests ir ON ir.id = r.request_id
		LEFT JOIN users u ON u.id = r.reviewer_id
		UNION ALL
		SELECT r.id, r.request_id, ir.requestor_id, 'committee', r.decision, COALESCE(r.remarks, ''), COALESCE(u.full_name, '')
		FROM committee_reviews r
		JOIN intake_requests ir ON ir.id = r.request_id
		LEFT JOIN users u ON u.id = r.reviewer_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load reviews: %w", err)
	}
	defer reviewRows.Close()

	reviews := make([]ReviewRecord, 0)
	for reviewRows.Next() {
		var r ReviewRecord
		if err := reviewRows.Scan(&r.ID, &r.RequestID, &r.RequestorID, &r.Gate, &r.Decision, &r.Remarks, &r.Reviewer); err != nil {
			return nil, nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := reviewRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return requests, reviews, nil
}
