package search

import (
	"context"
	"log/slog"
	"sync"
)

const indexQueueSize = 256

type backend interface {
	Searcher
	Indexer
}

type loader interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]RequestRecord, []ReviewRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// Index writes run one at a time, in call order, on a single worker.
type Service struct {
	meili backend
	pgfts loader

	startOnce sync.Once
	jobs      chan func()
	pending   sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(m *Meili, pgfts *PgFTS) *Service {
	s := &Service{}
	if m != nil {
		s.meili = m
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	return s
}

func (s *Service) primary() backend {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	return s.meili
}

// Search queries Meilisearch when healthy and PG FTS otherwise.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if m := s.primary(); m != nil {
		results, total, err := m.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		slog.Warn("search: meilisearch error, falling back to pgfts", "error", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		slog.Error("search: pgfts error", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexRequest pushes a request to Meilisearch in the background.
func (s *Service) IndexRequest(record RequestRecord) {
	m := s.primary()
	if m == nil {
		return
	}
	s.enqueue(func() {
		if err := m.IndexRequests([]RequestRecord{record}); err != nil {
			slog.Warn("search: index request", "request_id", record.ID, "error", err)
		}
	})
}

// IndexReview pushes a review to Meilisearch in the background.
func (s *Service) IndexReview(record ReviewRecord) {
	m := s.primary()
	if m == nil {
		return
	}
	s.enqueue(func() {
		if err := m.IndexReviews([]ReviewRecord{record}); err != nil {
			slog.Warn("search: index review", "review_id", record.ID, "error", err)
		}
	})
}

func (s *Service) enqueue(job func()) {
	s.startOnce.Do(func() {
		s.jobs = make(chan func(), indexQueueSize)
		go func() {
			for job := range s.jobs {
				job()
				s.pending.Done()
			}
		}()
	})
	s.pending.Add(1)
	s.jobs <- job
}

// Wait blocks until every queued index write has run or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReindexAllFromPG reindexes every request and review from PostgreSQL.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	m := s.primary()
	if m == nil || s.pgfts == nil {
		return
	}
	requests, reviews, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		slog.Error("search: reindex load failed", "error", err)
		return
	}
	if err := m.IndexRequests(requests); err != nil {
		slog.Warn("search: reindex requests", "error", err)
	}
	if err := m.IndexReviews(reviews); err != nil {
		slog.Warn("search: reindex reviews", "error", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
