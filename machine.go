package appraise

import (
	"fmt"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Machine is the pure decision component for assignment lifecycle changes. It
// does no I/O and holds no mutable state, so a single instance is safe to
// share across any number of goroutines.
//
// Forward transitions are an exhaustive allow-table because the graph is
// irregular: it cannot be derived from the numeric ordering of the states.
// Backward transitions ("reopening") are a separate table keyed by the state
// being reopened, each entry naming the state it reopens to and the roles
// allowed to do so.
type Machine struct {
	forward map[State][]State
	reopen  map[State]reopenRule
}

type reopenRule struct {
	to    State
	roles []string
}

// NewMachine builds the transition tables once. The tables are never mutated
// after construction.
func NewMachine() *Machine {
	m := &Machine{
		forward: make(map[State][]State),
		reopen:  make(map[State]reopenRule),
	}

	add := func(from State, to ...State) {
		m.forward[from] = to
	}

	add(StateAssigned, StateInitialized)
	add(StateInitialized, StateEmployeeInProgress, StateManagerInProgress, StateBothInProgress)
	add(StateEmployeeInProgress, StateBothInProgress, StateEmployeeSubmitted)
	add(StateManagerInProgress, StateBothInProgress, StateManagerSubmitted)
	add(StateBothInProgress, StateBothSubmitted)
	// EmployeeSubmitted can finalize directly when no manager review is
	// configured for the assignment.
	add(StateEmployeeSubmitted, StateBothSubmitted, StateFinalized)
	add(StateManagerSubmitted, StateBothSubmitted)
	add(StateBothSubmitted, StateInReview)
	add(StateInReview, StateManagerReviewConfirmed, StateEmployeeReviewConfirmed)
	add(StateEmployeeReviewConfirmed, StateFinalized)
	add(StateManagerReviewConfirmed, StateFinalized)

	// Submission-tier states may be reopened by team leads; the review
	// confirmation tier is restricted to Admin and HR.
	submitterRoles := []string{RoleAdmin, RoleHR, RoleTeamLead}
	reviewerRoles := []string{RoleAdmin, RoleHR}

	m.reopen[StateEmployeeSubmitted] = reopenRule{to: StateEmployeeInProgress, roles: submitterRoles}
	m.reopen[StateManagerSubmitted] = reopenRule{to: StateManagerInProgress, roles: submitterRoles}
	m.reopen[StateBothSubmitted] = reopenRule{to: StateBothInProgress, roles: submitterRoles}
	m.reopen[StateEmployeeReviewConfirmed] = reopenRule{to: StateInReview, roles: reviewerRoles}
	m.reopen[StateManagerReviewConfirmed] = reopenRule{to: StateInReview, roles: reviewerRoles}

	return m
}

// CanTransitionForward returns nil when from -> to is in the forward
// allow-table and an ErrInvalidTransition carrying a displayable reason when
// it is not.
func (m *Machine) CanTransitionForward(from, to State) error {
	if from.Terminal() {
		msg := fmt.Sprintf("%v is a terminal state and cannot transition to %v", from, to)
		return errors.Wrap(ErrInvalidTransition, msg, j.MKV{
			"from": from.String(),
			"to":   to.String(),
		})
	}

	for _, valid := range m.forward[from] {
		if valid == to {
			return nil
		}
	}

	msg := fmt.Sprintf("cannot transition from %v to %v", from, to)
	return errors.Wrap(ErrInvalidTransition, msg, j.MKV{
		"from": from.String(),
		"to":   to.String(),
	})
}

// CanTransitionBackward validates a reopen request. Only the three Submitted
// states and the two ReviewConfirmed states are reopenable, each to a single
// earlier state, and only for the roles configured for that tier.
func (m *Machine) CanTransitionBackward(from, to State, role string) error {
	if from.Terminal() {
		msg := fmt.Sprintf("%v is a terminal state and cannot be reopened", from)
		return errors.Wrap(ErrReopenDenied, msg, j.MKV{
			"from": from.String(),
			"to":   to.String(),
			"role": role,
		})
	}

	rule, ok := m.reopen[from]
	if !ok {
		msg := fmt.Sprintf("%v cannot be reopened", from)
		return errors.Wrap(ErrReopenDenied, msg, j.MKV{
			"from": from.String(),
			"to":   to.String(),
			"role": role,
		})
	}

	if rule.to != to {
		msg := fmt.Sprintf("%v reopens to %v, not %v", from, rule.to, to)
		return errors.Wrap(ErrReopenDenied, msg, j.MKV{
			"from": from.String(),
			"to":   to.String(),
			"role": role,
		})
	}

	for _, r := range rule.roles {
		if r == role {
			return nil
		}
	}

	msg := fmt.Sprintf("role %v may not reopen %v", role, from)
	return errors.Wrap(ErrReopenDenied, msg, j.MKV{
		"from": from.String(),
		"to":   to.String(),
		"role": role,
	})
}

// ValidNextStates enumerates the forward allow-table's row for the given
// state. Finalized has no row and returns nil.
func (m *Machine) ValidNextStates(from State) []State {
	row := m.forward[from]
	out := make([]State, len(row))
	copy(out, row)
	return out
}

// IsReopenable reports whether the state appears in the reopen table.
func (m *Machine) IsReopenable(s State) bool {
	_, ok := m.reopen[s]
	return ok
}

// RolesWhoCanReopen returns the roles allowed to reopen the given state, or
// nil when the state is not reopenable.
func (m *Machine) RolesWhoCanReopen(s State) []string {
	rule, ok := m.reopen[s]
	if !ok {
		return nil
	}

	out := make([]string, len(rule.roles))
	copy(out, rule.roles)
	return out
}

// DetermineProgressState computes the in-progress state from which parties
// have saved draft content. Once the assignment has moved past the
// in-progress tier the current state is returned unchanged: detecting new
// draft edits must never regress a submitted assignment.
func (m *Machine) DetermineProgressState(hasEmployeeProgress, hasManagerProgress bool, current State) State {
	switch current {
	case StateAssigned, StateInitialized, StateEmployeeInProgress, StateManagerInProgress, StateBothInProgress:
	default:
		return current
	}

	switch {
	case hasEmployeeProgress && hasManagerProgress:
		return StateBothInProgress
	case hasEmployeeProgress:
		return StateEmployeeInProgress
	case hasManagerProgress:
		return StateManagerInProgress
	default:
		return StateInitialized
	}
}

// DetermineSubmissionState computes the state after a submission. Submitting
// with nothing submitted is a caller error. When only the employee has
// submitted and no manager review is required the assignment auto-finalizes.
func (m *Machine) DetermineSubmissionState(employeeSubmitted, managerSubmitted, requiresManagerReview bool) (State, error) {
	switch {
	case employeeSubmitted && managerSubmitted:
		return StateBothSubmitted, nil
	case employeeSubmitted && !requiresManagerReview:
		return StateFinalized, nil
	case employeeSubmitted:
		return StateEmployeeSubmitted, nil
	case managerSubmitted:
		return StateManagerSubmitted, nil
	default:
		return StateUnknown, errors.Wrap(ErrNothingSubmitted, "")
	}
}
