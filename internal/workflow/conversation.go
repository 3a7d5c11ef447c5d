package workflow

import (
	"regexp"
	"strings"
	"time"
)

// ReplyTagPattern matches the "[Reply to <Name>]" prefix that addresses a
// requestor comment to one reviewer. The name is the first submatch.
var ReplyTagPattern = regexp.MustCompile(`^\[Reply to ([^\]]+)\]\s*`)

// TagReply addresses message to reviewerName, replacing any tag it already
// carries.
func TagReply(reviewerName, message string) string {
	return "[Reply to " + reviewerName + "] " + ReplyTagPattern.ReplaceAllString(message, "")
}

type EntryKind string

const (
	EntryReview EntryKind = "review"
	EntryReply  EntryKind = "reply"
)

type ConversationEntry struct {
	Kind      EntryKind `json:"type"`
	ReviewID  string    `json:"review_id,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Decision  Decision  `json:"decision,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CanEdit   bool      `json:"can_edit,omitempty"`
}

// ConversationGroup is the dialogue between one reviewer and the submitter
// within one gate.
type ConversationGroup struct {
	ReviewerID        string              `json:"reviewer_id"`
	ReviewerName      string              `json:"reviewer_name"`
	Entries           []ConversationEntry `json:"entries"`
	FirstTimestamp    time.Time           `json:"first_timestamp"`
	LatestDecision    Decision            `json:"latest_decision,omitempty"`
	LatestReviewDate  *time.Time          `json:"latest_review_date,omitempty"`
	NeedsReply        bool                `json:"needs_reply"`
	HasSubmitterReply bool                `json:"has_submitter_reply"`
	CanDecide         bool                `json:"can_decide"`
}

type ConversationInput struct {
	Gate        Gate
	Reviews     []Review
	Comments    []Comment
	RequestorID string
	// Viewer enables per-entry CanEdit on the viewer's own group. May be nil.
	Viewer *Actor
}

type timelineEntry struct {
	entry      ConversationEntry
	reviewerID string
	name       string
}

// BuildConversations reconstructs one dialogue per reviewer of the gate from
// the review history and the submitter's comments.
//
// A reply tagged "[Reply to <Name>]" for a reviewer of this gate is routed
// to that reviewer with the tag removed. A reply tagged for a name that is
// not a reviewer here belongs to the other gate and is dropped. Untagged
// replies go to the reviewer of the closest preceding review.
func BuildConversations(in ConversationInput) []ConversationGroup {
	reviews := sortReviews(in.Reviews)
	if len(reviews) == 0 {
		return []ConversationGroup{}
	}

	reviewerByName := make(map[string]string, len(reviews))
	nameByReviewer := make(map[string]string, len(reviews))
	// Names are keys: reviewers sharing a label (every unnamed one is
	// "Reviewer") collapse into whoever reviewed last.
	for _, review := range reviews {
		reviewerByName[strings.ToLower(reviewerLabel(review))] = review.ReviewerID
		if _, ok := nameByReviewer[review.ReviewerID]; !ok {
			nameByReviewer[review.ReviewerID] = reviewerLabel(review)
		}
	}
	earliest := reviews[0].CreatedAt

	timeline := make([]timelineEntry, 0, len(reviews)+len(in.Comments))
	for _, review := range reviews {
		timeline = append(timeline, timelineEntry{
			reviewerID: review.ReviewerID,
			name:       reviewerLabel(review),
			entry: ConversationEntry{
				Kind:      EntryReview,
				ReviewID:  review.ID,
				Author:    reviewerLabel(review),
				Message:   review.Remarks,
				Decision:  review.Decision,
				CreatedAt: review.CreatedAt,
			},
		})
	}
	for _, comment := range sortComments(in.Comments) {
		if comment.UserID != in.RequestorID {
			continue
		}
		if comment.CreatedAt.Before(earliest) {
			continue
		}
		if match := ReplyTagPattern.FindStringSubmatch(comment.Message); match != nil {
			if _, ok := reviewerByName[strings.ToLower(match[1])]; !ok {
				continue
			}
		}
		author := comment.UserName
		if author == "" {
			author = "Submitter"
		}
		timeline = append(timeline, timelineEntry{
			entry: ConversationEntry{
				Kind:      EntryReply,
				CommentID: comment.ID,
				Author:    author,
				Message:   comment.Message,
				CreatedAt: comment.CreatedAt,
			},
		})
	}
	timeline = mergeTimeline(timeline, len(reviews))

	currentID := reviews[0].ReviewerID
	currentName := reviewerLabel(reviews[0])
	for i := range timeline {
		item := &timeline[i]
		if item.entry.Kind == EntryReview {
			currentID = item.reviewerID
			currentName = item.name
			continue
		}
		if match := ReplyTagPattern.FindStringSubmatch(item.entry.Message); match != nil {
			if taggedID, ok := reviewerByName[strings.ToLower(match[1])]; ok {
				item.reviewerID = taggedID
				item.name = nameByReviewer[taggedID]
				item.entry.Message = item.entry.Message[len(match[0]):]
				continue
			}
		}
		item.reviewerID = currentID
		item.name = currentName
	}

	order := make([]string, 0)
	groups := make(map[string]*ConversationGroup)
	for _, item := range timeline {
		group, ok := groups[item.reviewerID]
		if !ok {
			group = &ConversationGroup{
				ReviewerID:     item.reviewerID,
				ReviewerName:   item.name,
				FirstTimestamp: item.entry.CreatedAt,
			}
			groups[item.reviewerID] = group
			order = append(order, item.reviewerID)
		}
		group.Entries = append(group.Entries, item.entry)
	}

	viewerMayEdit := in.Viewer != nil && in.Gate.Eligible(in.Viewer.Role)
	result := make([]ConversationGroup, 0, len(order))
	for _, reviewerID := range order {
		group := groups[reviewerID]
		deriveFlags(group)
		if viewerMayEdit && reviewerID == in.Viewer.ID {
			markEditable(group)
		}
		result = append(result, *group)
	}
	// First-appearance order already follows FirstTimestamp because the
	// timeline is time ordered.
	return result
}

// mergeTimeline orders the timeline by time. reviews occupy the first
// reviewCount slots; on equal timestamps reviews come before replies.
func mergeTimeline(timeline []timelineEntry, reviewCount int) []timelineEntry {
	reviews := timeline[:reviewCount]
	replies := timeline[reviewCount:]
	merged := make([]timelineEntry, 0, len(timeline))
	i, j := 0, 0
	for i < len(reviews) && j < len(replies) {
		if replies[j].entry.CreatedAt.Before(reviews[i].entry.CreatedAt) {
			merged = append(merged, replies[j])
			j++
			continue
		}
		merged = append(merged, reviews[i])
		i++
	}
	merged = append(merged, reviews[i:]...)
	merged = append(merged, replies[j:]...)
	return merged
}

func deriveFlags(group *ConversationGroup) {
	lastNeedInfo := -1
	for i, entry := range group.Entries {
		if entry.Kind != EntryReview {
			continue
		}
		group.LatestDecision = entry.Decision
		createdAt := entry.CreatedAt
		group.LatestReviewDate = &createdAt
		if entry.Decision == DecisionNeedInfo {
			lastNeedInfo = i
		}
	}
	if lastNeedInfo < 0 {
		return
	}
	replied := replyFollows(group.Entries, lastNeedInfo)
	group.NeedsReply = !replied
	group.HasSubmitterReply = replied
	group.CanDecide = replied && group.LatestDecision == DecisionNeedInfo
}

func markEditable(group *ConversationGroup) {
	for i := len(group.Entries) - 1; i >= 0; i-- {
		entry := &group.Entries[i]
		if entry.Kind == EntryReview && entry.Decision == DecisionNeedInfo {
			entry.CanEdit = !replyFollows(group.Entries, i)
		}
	}
}

func replyFollows(entries []ConversationEntry, index int) bool {
	for _, entry := range entries[index+1:] {
		if entry.Kind == EntryReply {
			return true
		}
	}
	return false
}

func reviewerLabel(review Review) string {
	if strings.TrimSpace(review.ReviewerName) == "" {
		return "Reviewer"
	}
	return review.ReviewerName
}

// HasPendingQuestion reports whether reviewerID's latest review in reviews
// is need_info with no later comment from the requestor. It is advisory:
// the engine still accepts a fresh decision.
func HasPendingQuestion(reviews []Review, comments []Comment, requestorID, reviewerID string) bool {
	var latest *Review
	for _, review := range sortReviews(reviews) {
		if review.ReviewerID == reviewerID {
			current := review
			latest = &current
		}
	}
	if latest == nil || latest.Decision != DecisionNeedInfo {
		return false
	}
	for _, comment := range comments {
		if comment.UserID == requestorID && comment.CreatedAt.After(latest.CreatedAt) {
			return false
		}
	}
	return true
}
