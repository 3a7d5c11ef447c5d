package workflow

import "sort"

// Tally is the effective state of one gate.
type Tally struct {
	LatestByReviewer map[string]Decision
	AllApproved      bool
}

// Aggregate resolves each reviewer's current stance as the decision of
// their most recent review. Reviews sharing a timestamp resolve in input
// order, the later one winning. An empty history never counts as approved.
func Aggregate(reviews []Review) Tally {
	ordered := sortReviews(reviews)
	latest := make(map[string]Decision, len(ordered))
	for _, review := range ordered {
		latest[review.ReviewerID] = review.Decision
	}

	allApproved := len(latest) > 0
	for _, decision := range latest {
		if decision != DecisionApprove {
			allApproved = false
			break
		}
	}
	return Tally{LatestByReviewer: latest, AllApproved: allApproved}
}

func sortReviews(reviews []Review) []Review {
	ordered := make([]Review, len(reviews))
	copy(ordered, reviews)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}

func sortComments(comments []Comment) []Comment {
	ordered := make([]Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}
