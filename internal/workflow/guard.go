package workflow

type EditInput struct {
	Reviews     []Review
	Comments    []Comment
	RequestorID string
	ReviewID    string
	Actor       Actor
}

// CheckEdit returns the target review when actor may still edit its
// remarks, and an EditNotAllowed error naming the failed rule otherwise.
// Any requestor comment later than the review closes it, whichever
// reviewer the comment was addressed to.
func CheckEdit(in EditInput) (Review, error) {
	var target *Review
	for i := range in.Reviews {
		if in.Reviews[i].ID == in.ReviewID {
			target = &in.Reviews[i]
			break
		}
	}
	if target == nil {
		return Review{}, &Error{Kind: KindNotFound, Op: "edit_review", Resource: "review", ID: in.ReviewID}
	}

	deny := func(condition EditCondition) (Review, error) {
		return Review{}, &Error{Kind: KindEditNotAllowed, Op: "edit_review", ID: in.ReviewID, Condition: condition}
	}
	if target.ReviewerID != in.Actor.ID {
		return deny(EditWrongAuthor)
	}
	if target.Decision != DecisionNeedInfo {
		return deny(EditWrongDecision)
	}
	for _, review := range sortReviews(in.Reviews) {
		if review.ReviewerID == in.Actor.ID && review.ID != target.ID && !review.CreatedAt.Before(target.CreatedAt) {
			if review.CreatedAt.After(target.CreatedAt) || laterInInput(in.Reviews, target.ID, review.ID) {
				return deny(EditNotLatest)
			}
		}
	}

	for _, comment := range in.Comments {
		if comment.UserID == in.RequestorID && comment.CreatedAt.After(target.CreatedAt) {
			return deny(EditAlreadyReplied)
		}
	}
	return *target, nil
}

// laterInInput reports whether id b appears after id a in reviews.
func laterInInput(reviews []Review, a, b string) bool {
	indexA, indexB := -1, -1
	for i, review := range reviews {
		switch review.ID {
		case a:
			indexA = i
		case b:
			indexB = i
		}
	}
	return indexB > indexA
}
