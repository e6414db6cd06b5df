package appraise_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"

	"github.com/appraisehq/appraise"
	"github.com/appraisehq/appraise/adapters/memstore"
)

func noopProjector(context.Context, appraise.Event, appraise.SnapshotStore) error {
	return nil
}

func descriptor(name string, rebuildable bool) appraise.Descriptor {
	return appraise.Descriptor{
		Name:        name,
		Description: name + " docs",
		DocType:     name,
		TableName:   "appraise_" + name,
		Rebuildable: rebuildable,
		Apply:       noopProjector,
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := appraise.NewRegistry(
		descriptor("summaries", true),
		descriptor("summaries", true),
	)
	require.True(t, errors.Is(err, appraise.ErrMisconfigured))

	_, err = appraise.NewRegistry(appraise.Descriptor{Rebuildable: true})
	require.True(t, errors.Is(err, appraise.ErrMisconfigured))
}

func TestRegistryLookup(t *testing.T) {
	r, err := appraise.NewRegistry(
		descriptor("summaries", true),
		descriptor("audit_log", false),
	)
	require.NoError(t, err)

	d, ok := r.Lookup("summaries")
	require.True(t, ok)
	require.Equal(t, "summaries", d.Name)

	_, ok = r.Lookup("missing")
	require.False(t, ok)

	require.True(t, r.CanRebuild("summaries"))
	require.False(t, r.CanRebuild("audit_log"))
	require.False(t, r.CanRebuild("missing"))

	all := r.All()
	require.Len(t, all, 2)
	require.Equal(t, "summaries", all[0].Name)
	require.Equal(t, "audit_log", all[1].Name)
}

func TestRegistryList(t *testing.T) {
	r, err := appraise.NewRegistry(
		descriptor("summaries", true),
		descriptor("audit_log", false),
	)
	require.NoError(t, err)

	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Upsert(ctx, "summaries", "1", []byte(`{}`)))
	require.NoError(t, store.Upsert(ctx, "summaries", "2", []byte(`{}`)))

	infos, err := r.List(ctx, store, false)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, int64(2), infos[0].SnapshotCount)
	require.Equal(t, int64(0), infos[1].SnapshotCount)

	infos, err = r.List(ctx, store, true)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "summaries", infos[0].Name)
}

func TestAssignmentSummariesProjection(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	repo := appraise.NewRepository(store, appraise.NewAssignment)

	id := uuid.New()
	a := appraise.NewAssignment(id)
	require.NoError(t, a.Create("emp-1", "mgr-1", appraise.WithoutManagerReview()))
	require.NoError(t, a.Activate())
	require.NoError(t, a.SaveDraft(appraise.PartyEmployee))
	require.NoError(t, a.Submit(appraise.PartyEmployee))
	require.NoError(t, repo.Store(ctx, a))

	d := appraise.AssignmentSummaries()
	events, err := store.ReadAll(ctx, 0, 100)
	require.NoError(t, err)
	for _, e := range events {
		require.NoError(t, d.Apply(ctx, e, store))
	}

	doc, ok, err := store.Lookup(ctx, d.DocType, id.String())
	require.NoError(t, err)
	require.True(t, ok)

	var summary appraise.AssignmentSummary
	require.NoError(t, appraise.Unmarshal(doc, &summary))
	require.Equal(t, id.String(), summary.AssignmentID)
	require.Equal(t, "emp-1", summary.EmployeeID)
	require.Equal(t, "mgr-1", summary.ManagerID)
	require.Equal(t, int(appraise.StateFinalized), summary.State)
	require.True(t, summary.EmployeeSubmitted)
	require.False(t, summary.ManagerSubmitted)
	require.Equal(t, int64(5), summary.FactCount)
}

func TestAssignmentSummariesSkipsForeignFacts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	d := appraise.AssignmentSummaries()
	e := appraise.Event{
		ID:       1,
		StreamID: uuid.New(),
		Sequence: 1,
		Type:     appraise.FactReplayStarted,
		Object:   []byte(`{}`),
	}
	require.NoError(t, d.Apply(ctx, e, store))

	count, err := store.Count(ctx, d.DocType)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}
