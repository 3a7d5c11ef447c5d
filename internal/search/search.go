package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultRequest ResultType = "request"
	ResultReview  ResultType = "review"
)

func ParseResultType(value string) (ResultType, bool) {
	switch ResultType(value) {
	case "":
		return "", true
	case ResultRequest, ResultReview:
		return ResultType(value), true
	default:
		return "", false
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	RequestID string     `json:"request_id"`
	Status    string     `json:"status,omitempty"`
	Gate      string     `json:"gate,omitempty"`
}

// Query describes a search request. RequestorID, when set, restricts hits to
// that requestor's own requests.
type Query struct {
	Text        string
	FilterType  ResultType
	Status      string
	RequestorID string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexRequests(requests []RequestRecord) error
	IndexReviews(reviews []ReviewRecord) error
	DeleteRequest(id string) error
}

// RequestRecord is the data we index for an intake request.
type RequestRecord struct {
	ID                    string `json:"id"`
	ProjectTitle          string `json:"projectTitle"`
	Domain                string `json:"domain"`
	TypeOfRequest         string `json:"typeOfRequest"`
	Description           string `json:"description"`
	BusinessJustification string `json:"businessJustification"`
	Status                string `json:"status"`
	RequestorID           string `json:"requestorId"`
}

// ReviewRecord is the data we index for a scrub or committee review.
type ReviewRecord struct {
	ID          string `json:"id"`
	RequestID   string `json:"requestId"`
	RequestorID string `json:"requestorId"`
	Gate        string `json:"gate"`
	Decision    string `json:"decision"`
	Remarks     string `json:"remarks"`
	Reviewer    string `json:"reviewer"`
}
