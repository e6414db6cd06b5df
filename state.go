package appraise

import "fmt"

// State is the review lifecycle state of an assignment. The graph over these
// states is irregular and is defined exhaustively in machine.go rather than
// computed from the ordering of the constants.
type State int

const (
	StateUnknown                 State = 0
	StateAssigned                State = 1
	StateInitialized             State = 2
	StateEmployeeInProgress      State = 3
	StateManagerInProgress       State = 4
	StateBothInProgress          State = 5
	StateEmployeeSubmitted       State = 6
	StateManagerSubmitted        State = 7
	StateBothSubmitted           State = 8
	StateInReview                State = 9
	StateEmployeeReviewConfirmed State = 10
	StateManagerReviewConfirmed  State = 11
	StateFinalized               State = 12
	stateSentinel                State = 13
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateAssigned:
		return "Assigned"
	case StateInitialized:
		return "Initialized"
	case StateEmployeeInProgress:
		return "EmployeeInProgress"
	case StateManagerInProgress:
		return "ManagerInProgress"
	case StateBothInProgress:
		return "BothInProgress"
	case StateEmployeeSubmitted:
		return "EmployeeSubmitted"
	case StateManagerSubmitted:
		return "ManagerSubmitted"
	case StateBothSubmitted:
		return "BothSubmitted"
	case StateInReview:
		return "InReview"
	case StateEmployeeReviewConfirmed:
		return "EmployeeReviewConfirmed"
	case StateManagerReviewConfirmed:
		return "ManagerReviewConfirmed"
	case StateFinalized:
		return "Finalized"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

func (s State) Valid() bool {
	return s > StateUnknown && s < stateSentinel
}

// Terminal reports whether the state is absorbing. Finalized is the only
// terminal lifecycle state - no transition, forward or backward, leaves it.
func (s State) Terminal() bool {
	return s == StateFinalized
}

// Roles are plain strings so that callers can feed them straight from their
// own auth layer.
const (
	RoleAdmin    = "Admin"
	RoleHR       = "HR"
	RoleTeamLead = "TeamLead"
)
