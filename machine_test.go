package appraise_test

import (
	"strings"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"

	"github.com/appraisehq/appraise"
)

func allStates() []appraise.State {
	return []appraise.State{
		appraise.StateAssigned,
		appraise.StateInitialized,
		appraise.StateEmployeeInProgress,
		appraise.StateManagerInProgress,
		appraise.StateBothInProgress,
		appraise.StateEmployeeSubmitted,
		appraise.StateManagerSubmitted,
		appraise.StateBothSubmitted,
		appraise.StateInReview,
		appraise.StateEmployeeReviewConfirmed,
		appraise.StateManagerReviewConfirmed,
		appraise.StateFinalized,
	}
}

func TestForwardAllowTable(t *testing.T) {
	m := appraise.NewMachine()

	allowed := map[appraise.State][]appraise.State{
		appraise.StateAssigned:                {appraise.StateInitialized},
		appraise.StateInitialized:             {appraise.StateEmployeeInProgress, appraise.StateManagerInProgress, appraise.StateBothInProgress},
		appraise.StateEmployeeInProgress:      {appraise.StateBothInProgress, appraise.StateEmployeeSubmitted},
		appraise.StateManagerInProgress:       {appraise.StateBothInProgress, appraise.StateManagerSubmitted},
		appraise.StateBothInProgress:          {appraise.StateBothSubmitted},
		appraise.StateEmployeeSubmitted:       {appraise.StateBothSubmitted, appraise.StateFinalized},
		appraise.StateManagerSubmitted:        {appraise.StateBothSubmitted},
		appraise.StateBothSubmitted:           {appraise.StateInReview},
		appraise.StateInReview:                {appraise.StateManagerReviewConfirmed, appraise.StateEmployeeReviewConfirmed},
		appraise.StateEmployeeReviewConfirmed: {appraise.StateFinalized},
		appraise.StateManagerReviewConfirmed:  {appraise.StateFinalized},
		appraise.StateFinalized:               {},
	}

	// Every (from, to) pair not in the table is invalid; every pair in the
	// table is valid.
	for _, from := range allStates() {
		valid := make(map[appraise.State]bool)
		for _, to := range allowed[from] {
			valid[to] = true
		}

		for _, to := range allStates() {
			err := m.CanTransitionForward(from, to)
			if valid[to] {
				require.NoError(t, err, "%v -> %v should be allowed", from, to)
			} else {
				require.Error(t, err, "%v -> %v should be invalid", from, to)
				require.True(t, errors.Is(err, appraise.ErrInvalidTransition))
			}
		}

		require.ElementsMatch(t, allowed[from], m.ValidNextStates(from))
	}
}

func TestFinalizedIsAbsorbing(t *testing.T) {
	m := appraise.NewMachine()

	for _, to := range allStates() {
		err := m.CanTransitionForward(appraise.StateFinalized, to)
		require.Error(t, err)
		require.Contains(t, err.Error(), "Finalized")

		for _, role := range []string{appraise.RoleAdmin, appraise.RoleHR, appraise.RoleTeamLead, "Employee"} {
			err := m.CanTransitionBackward(appraise.StateFinalized, to, role)
			require.Error(t, err)
			require.Contains(t, err.Error(), "Finalized")
		}
	}

	require.Empty(t, m.ValidNextStates(appraise.StateFinalized))
}

func TestIsReopenable(t *testing.T) {
	m := appraise.NewMachine()

	reopenable := map[appraise.State]bool{
		appraise.StateEmployeeSubmitted:       true,
		appraise.StateManagerSubmitted:        true,
		appraise.StateBothSubmitted:           true,
		appraise.StateEmployeeReviewConfirmed: true,
		appraise.StateManagerReviewConfirmed:  true,
	}

	for _, s := range allStates() {
		require.Equal(t, reopenable[s], m.IsReopenable(s), "state %v", s)
	}
}

func TestRolesWhoCanReopen(t *testing.T) {
	m := appraise.NewMachine()

	tests := []struct {
		name     string
		state    appraise.State
		contains []string
		excludes []string
	}{
		{
			name:     "submission tier includes team leads",
			state:    appraise.StateEmployeeSubmitted,
			contains: []string{appraise.RoleAdmin, appraise.RoleHR, appraise.RoleTeamLead},
		},
		{
			name:     "confirmation tier excludes team leads",
			state:    appraise.StateManagerReviewConfirmed,
			contains: []string{appraise.RoleAdmin, appraise.RoleHR},
			excludes: []string{appraise.RoleTeamLead},
		},
		{
			name:     "non-reopenable state has no roles",
			state:    appraise.StateInReview,
			excludes: []string{appraise.RoleAdmin, appraise.RoleHR, appraise.RoleTeamLead},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			roles := m.RolesWhoCanReopen(tc.state)
			for _, role := range tc.contains {
				require.Contains(t, roles, role)
			}
			for _, role := range tc.excludes {
				require.NotContains(t, roles, role)
			}
		})
	}
}

func TestCanTransitionBackward(t *testing.T) {
	m := appraise.NewMachine()

	tests := []struct {
		name       string
		from       appraise.State
		to         appraise.State
		role       string
		wantErr    bool
		wantReason string
	}{
		{
			name: "admin reopens employee submission",
			from: appraise.StateEmployeeSubmitted,
			to:   appraise.StateEmployeeInProgress,
			role: appraise.RoleAdmin,
		},
		{
			name: "team lead reopens both submitted",
			from: appraise.StateBothSubmitted,
			to:   appraise.StateBothInProgress,
			role: appraise.RoleTeamLead,
		},
		{
			name: "hr reopens manager confirmation",
			from: appraise.StateManagerReviewConfirmed,
			to:   appraise.StateInReview,
			role: appraise.RoleHR,
		},
		{
			name:       "team lead denied on confirmation tier",
			from:       appraise.StateManagerReviewConfirmed,
			to:         appraise.StateInReview,
			role:       appraise.RoleTeamLead,
			wantErr:    true,
			wantReason: "TeamLead",
		},
		{
			name:       "unknown role denied and named",
			from:       appraise.StateEmployeeSubmitted,
			to:         appraise.StateEmployeeInProgress,
			role:       "Employee",
			wantErr:    true,
			wantReason: "Employee",
		},
		{
			name:    "wrong target state",
			from:    appraise.StateEmployeeSubmitted,
			to:      appraise.StateManagerInProgress,
			role:    appraise.RoleAdmin,
			wantErr: true,
		},
		{
			name:    "in progress state not reopenable",
			from:    appraise.StateBothInProgress,
			to:      appraise.StateInitialized,
			role:    appraise.RoleAdmin,
			wantErr: true,
		},
		{
			name:    "assigned not reopenable",
			from:    appraise.StateAssigned,
			to:      appraise.StateAssigned,
			role:    appraise.RoleAdmin,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := m.CanTransitionBackward(tc.from, tc.to, tc.role)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			require.True(t, errors.Is(err, appraise.ErrReopenDenied))
			if tc.wantReason != "" {
				require.True(t, strings.Contains(err.Error(), tc.wantReason),
					"reason %q should contain %q", err.Error(), tc.wantReason)
			}
		})
	}
}

func TestDetermineProgressState(t *testing.T) {
	m := appraise.NewMachine()

	tests := []struct {
		name     string
		employee bool
		manager  bool
		current  appraise.State
		want     appraise.State
	}{
		{name: "neither", current: appraise.StateInitialized, want: appraise.StateInitialized},
		{name: "employee only", employee: true, current: appraise.StateInitialized, want: appraise.StateEmployeeInProgress},
		{name: "manager only", manager: true, current: appraise.StateInitialized, want: appraise.StateManagerInProgress},
		{name: "both", employee: true, manager: true, current: appraise.StateEmployeeInProgress, want: appraise.StateBothInProgress},
		{name: "no regression past submission", employee: true, manager: true, current: appraise.StateEmployeeSubmitted, want: appraise.StateEmployeeSubmitted},
		{name: "no regression in review", employee: true, current: appraise.StateInReview, want: appraise.StateInReview},
		{name: "no regression when finalized", manager: true, current: appraise.StateFinalized, want: appraise.StateFinalized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := m.DetermineProgressState(tc.employee, tc.manager, tc.current)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDetermineSubmissionState(t *testing.T) {
	m := appraise.NewMachine()

	tests := []struct {
		name            string
		employee        bool
		manager         bool
		requiresManager bool
		want            appraise.State
		wantErr         bool
	}{
		{name: "both submitted", employee: true, manager: true, requiresManager: true, want: appraise.StateBothSubmitted},
		{name: "both submitted without review", employee: true, manager: true, want: appraise.StateBothSubmitted},
		{name: "auto finalize", employee: true, want: appraise.StateFinalized},
		{name: "employee submitted awaiting manager", employee: true, requiresManager: true, want: appraise.StateEmployeeSubmitted},
		{name: "manager submitted", manager: true, requiresManager: true, want: appraise.StateManagerSubmitted},
		{name: "nothing submitted", wantErr: true},
		{name: "nothing submitted without review", requiresManager: false, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.DetermineSubmissionState(tc.employee, tc.manager, tc.requiresManager)
			if tc.wantErr {
				require.True(t, errors.Is(err, appraise.ErrNothingSubmitted))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
