package rbac

type Role string
type Action string

const (
	RoleRequestor Role = "requestor"
	RoleScrubTeam Role = "scrub_team"
	RoleCommittee Role = "committee"
	RoleAdmin     Role = "admin"
)

const (
	ActionScrubReview      Action = "scrub_review"
	ActionCommitteeReview  Action = "committee_review"
	ActionStartDevelopment Action = "start_development"
	ActionViewAll          Action = "view_all"
	ActionEditAny          Action = "edit_any"
	ActionSubmitAny        Action = "submit_any"
)

// Can reports whether role may perform action regardless of ownership.
// Owner-scoped actions (submitting or editing one's own request) are
// checked by the caller against the request's requestor.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleScrubTeam:
		return action == ActionScrubReview || action == ActionViewAll
	case RoleCommittee:
		return action == ActionCommitteeReview || action == ActionStartDevelopment || action == ActionViewAll
	case RoleRequestor:
		return false
	default:
		return false
	}
}

func Valid(role string) bool {
	switch Role(role) {
	case RoleRequestor, RoleScrubTeam, RoleCommittee, RoleAdmin:
		return true
	default:
		return false
	}
}

func Normalize(role string) Role {
	if Valid(role) {
		return Role(role)
	}
	return RoleRequestor
}
