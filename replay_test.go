package appraise_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/appraisehq/appraise"
)

func startedReplay(t *testing.T) *appraise.Replay {
	t.Helper()

	r := appraise.NewReplay(uuid.New())
	err := r.Start("assignment_summaries", "ops@example.com", "schema change", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, appraise.ReplayStatusPending, r.Status())

	return r
}

func TestReplayLifecycle(t *testing.T) {
	r := startedReplay(t)

	require.NoError(t, r.SetTotalEvents(10))
	require.Equal(t, int64(10), r.TotalEvents())

	require.NoError(t, r.UpdateProgress(appraise.ReplayStatusValidating, 0))
	require.Equal(t, appraise.ReplayStatusValidating, r.Status())

	require.NoError(t, r.UpdateProgress(appraise.ReplayStatusDeletingSnapshots, 0))
	require.NoError(t, r.UpdateProgress(appraise.ReplayStatusReplaying, 5))
	require.Equal(t, int64(5), r.ProcessedEvents())
	require.Equal(t, 50, r.ProgressPercentage())

	now := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)
	require.NoError(t, r.Complete(now))
	require.Equal(t, appraise.ReplayStatusCompleted, r.Status())
	require.Equal(t, now, r.FinishedAt())
}

func TestReplayTerminalStatusIsImmutable(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)

	tests := []struct {
		name     string
		finish   func(r *appraise.Replay) error
		expected appraise.ReplayStatus
	}{
		{
			name:     "completed",
			finish:   func(r *appraise.Replay) error { return r.Complete(now) },
			expected: appraise.ReplayStatusCompleted,
		},
		{
			name:     "failed",
			finish:   func(r *appraise.Replay) error { return r.Fail("boom", now) },
			expected: appraise.ReplayStatusFailed,
		},
		{
			name:     "cancelled",
			finish:   func(r *appraise.Replay) error { return r.Cancel("ops@example.com", now) },
			expected: appraise.ReplayStatusCancelled,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := startedReplay(t)
			require.NoError(t, r.SetTotalEvents(10))
			require.NoError(t, r.UpdateProgress(appraise.ReplayStatusReplaying, 4))

			require.NoError(t, tc.finish(r))
			require.Equal(t, tc.expected, r.Status())
			versionAtFinish := r.Version()

			// Progress updates and repeated terminal commands are no-ops by
			// invariant, not errors.
			require.NoError(t, r.UpdateProgress(appraise.ReplayStatusReplaying, 9))
			require.NoError(t, r.SetTotalEvents(100))
			require.NoError(t, r.Complete(now.Add(time.Minute)))
			require.NoError(t, r.Fail("late", now.Add(time.Minute)))
			require.NoError(t, r.Cancel("late", now.Add(time.Minute)))

			require.Equal(t, tc.expected, r.Status())
			require.Equal(t, int64(4), r.ProcessedEvents())
			require.Equal(t, int64(10), r.TotalEvents())
			require.Equal(t, now, r.FinishedAt())
			require.Equal(t, versionAtFinish, r.Version(), "no facts may be raised after a terminal status")
		})
	}
}

func TestReplayProgressPercentage(t *testing.T) {
	r := startedReplay(t)

	// Zero total never divides by zero.
	require.Equal(t, 0, r.ProgressPercentage())
	require.NoError(t, r.UpdateProgress(appraise.ReplayStatusReplaying, 5))
	require.Equal(t, 0, r.ProgressPercentage())

	require.NoError(t, r.SetTotalEvents(10))
	require.NoError(t, r.UpdateProgress(appraise.ReplayStatusReplaying, 5))
	require.Equal(t, 50, r.ProgressPercentage())

	// Processed counts are capped at the total so the percentage can never
	// exceed 100.
	require.NoError(t, r.UpdateProgress(appraise.ReplayStatusReplaying, 42))
	require.Equal(t, int64(10), r.ProcessedEvents())
	require.Equal(t, 100, r.ProgressPercentage())
}

func TestReplayIgnoresTerminalProgressStatus(t *testing.T) {
	r := startedReplay(t)
	require.NoError(t, r.SetTotalEvents(10))

	// UpdateProgress may only move through non-terminal statuses; terminal
	// transitions go through Complete, Fail or Cancel.
	require.NoError(t, r.UpdateProgress(appraise.ReplayStatusCompleted, 10))
	require.Equal(t, appraise.ReplayStatusPending, r.Status())
}
