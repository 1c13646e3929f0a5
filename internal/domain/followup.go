package domain

// FollowUpType classifies a conversation turn against already-computed
// results. It is a closed enum; dispatch goes through an explicit handler
// table in the orchestrator, never string comparison.
type FollowUpType int

// Follow-up actions.
const (
	FollowUpNewSearch FollowUpType = iota
	FollowUpExclude
	FollowUpCategory
	FollowUpLocation
	FollowUpExpand
	FollowUpDetail
	FollowUpConfirm
)

func (t FollowUpType) String() string {
	switch t {
	case FollowUpExclude:
		return "exclude"
	case FollowUpCategory:
		return "category_filter"
	case FollowUpLocation:
		return "location_filter"
	case FollowUpExpand:
		return "expand"
	case FollowUpDetail:
		return "detail"
	case FollowUpConfirm:
		return "confirm"
	default:
		return "new_search"
	}
}

// FollowUp is a classified turn: the action plus its extracted target
// (shop name, category keyword, or region keyword, depending on the type).
type FollowUp struct {
	Type   FollowUpType
	Target string
}
