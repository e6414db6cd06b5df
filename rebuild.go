package appraise

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/appraisehq/appraise/internal/metrics"
)

const (
	defaultBatchSize      = 1000
	storeConflictAttempts = 5
)

// ProgressFunc is called with the cumulative processed count as a rebuild
// advances. It is guaranteed to be called at least once on completion.
type ProgressFunc func(projection string, processed, total int64)

// Rebuilder regenerates snapshot collections from the full event history.
// Every run is represented and audited as a Replay aggregate persisted in the
// same event store it replays from, proving the log is the sole source of
// truth.
type Rebuilder struct {
	events    EventStore
	snapshots SnapshotStore
	registry  *Registry
	replays   *Repository[*Replay]

	clock     clock.Clock
	logger    Logger
	batchSize int
	progress  ProgressFunc

	mu      sync.Mutex
	running map[string]bool
}

func NewRebuilder(events EventStore, snapshots SnapshotStore, registry *Registry, opts ...RebuilderOption) *Rebuilder {
	// Set option defaults
	opt := rebuilderOptions{
		clock:     clock.RealClock{},
		logger:    noopLogger{},
		batchSize: defaultBatchSize,
	}

	// Set option overrides
	for _, o := range opts {
		o(&opt)
	}

	return &Rebuilder{
		events:    events,
		snapshots: snapshots,
		registry:  registry,
		replays:   NewRepository(events, NewReplay, WithClock(opt.clock)),
		clock:     opt.clock,
		logger:    opt.logger,
		batchSize: opt.batchSize,
		progress:  opt.progress,
		running:   make(map[string]bool),
	}
}

type rebuilderOptions struct {
	clock     clock.Clock
	logger    Logger
	batchSize int
	progress  ProgressFunc
}

type RebuilderOption func(o *rebuilderOptions)

func WithRebuilderClock(c clock.Clock) RebuilderOption {
	return func(o *rebuilderOptions) {
		o.clock = c
	}
}

func WithRebuilderLogger(l Logger) RebuilderOption {
	return func(o *rebuilderOptions) {
		o.logger = l
	}
}

// WithBatchSize sets how many events are replayed between progress writes and
// cancellation checks.
func WithBatchSize(n int) RebuilderOption {
	return func(o *rebuilderOptions) {
		o.batchSize = n
	}
}

func WithProgressFunc(fn ProgressFunc) RebuilderOption {
	return func(o *rebuilderOptions) {
		o.progress = fn
	}
}

// Validate checks every precondition of a rebuild before anything destructive
// runs: the projection must exist, be rebuildable, carry a storage target and
// the snapshot store must be reachable.
func (r *Rebuilder) Validate(ctx context.Context, name string) error {
	d, ok := r.registry.Lookup(name)
	if !ok {
		return errors.Wrap(ErrProjectionNotFound, "", j.KV("projection", name))
	}

	if !d.Rebuildable {
		return errors.Wrap(ErrNotRebuildable, "", j.KV("projection", name))
	}

	if d.DocType == "" || d.TableName == "" || d.Apply == nil {
		return errors.Wrap(ErrMisconfigured, "", j.KV("projection", name))
	}

	// Live connectivity check against the snapshot store.
	_, err := r.snapshots.Count(ctx, d.DocType)
	if err != nil {
		return errors.Wrap(err, "snapshot store unreachable", j.KV("projection", name))
	}

	return nil
}

// CountEventsForProjection returns the total number of facts a rebuild of the
// projection will replay. It is a proxy for total work, not for the number of
// documents the projection will produce.
func (r *Rebuilder) CountEventsForProjection(ctx context.Context, name string) (int64, error) {
	if _, ok := r.registry.Lookup(name); !ok {
		return 0, errors.Wrap(ErrProjectionNotFound, "", j.KV("projection", name))
	}

	return r.events.CountAll(ctx)
}

// DeleteSnapshots empties the projection's snapshot collection. It fails fast
// when the projection is not rebuildable since the documents could not be
// regenerated afterwards.
func (r *Rebuilder) DeleteSnapshots(ctx context.Context, name string) error {
	d, ok := r.registry.Lookup(name)
	if !ok {
		return errors.Wrap(ErrProjectionNotFound, "", j.KV("projection", name))
	}

	if !d.Rebuildable {
		return errors.Wrap(ErrNotRebuildable, "", j.KV("projection", name))
	}

	return r.snapshots.DeleteAll(ctx, d.DocType)
}

// Start validates the rebuild, records a Pending replay and launches the run
// in the background. The returned replay ID drives Cancel and Status. The
// provided ctx must outlive the rebuild; cancelling it cancels the run.
//
// Only one rebuild per projection may be in flight; a second Start returns
// ErrRebuildInProgress.
func (r *Rebuilder) Start(ctx context.Context, name, initiatedBy, reason string) (uuid.UUID, error) {
	err := r.Validate(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}

	d, _ := r.registry.Lookup(name)

	r.mu.Lock()
	if r.running[name] {
		r.mu.Unlock()
		return uuid.Nil, errors.Wrap(ErrRebuildInProgress, "", j.KV("projection", name))
	}
	r.running[name] = true
	r.mu.Unlock()

	replayID, err := r.startReplay(ctx, name, initiatedBy, reason)
	if err != nil {
		r.release(name)
		return uuid.Nil, err
	}

	go func() {
		defer r.release(name)

		err := r.run(ctx, replayID, d)
		if err != nil {
			// NoReturnErr: The failure is recorded on the replay record; all
			// that is left is to alert via the logs.
			r.logger.Error(ctx, errors.Wrap(err, "projection rebuild failed", j.MKV{
				"projection": name,
				"replay_id":  replayID.String(),
			}))
		}
	}()

	return replayID, nil
}

func (r *Rebuilder) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, name)
}

func (r *Rebuilder) startReplay(ctx context.Context, name, initiatedBy, reason string) (uuid.UUID, error) {
	replayID := uuid.New()
	rep := NewReplay(replayID)

	err := rep.Start(name, initiatedBy, reason, r.clock.Now())
	if err != nil {
		return uuid.Nil, err
	}

	err = r.replays.Store(ctx, rep)
	if err != nil {
		return uuid.Nil, err
	}

	return replayID, nil
}

// Cancel asks an in-flight rebuild to stop. The replay loop observes the
// Cancelled status between batches and stops cleanly, leaving the snapshot
// collection deleted-but-incomplete and visibly marked Cancelled.
func (r *Rebuilder) Cancel(ctx context.Context, replayID uuid.UUID, cancelledBy string) error {
	return r.updateReplay(ctx, replayID, func(rep *Replay) error {
		return rep.Cancel(cancelledBy, r.clock.Now())
	})
}

// ReplayInfo is the operator view of one rebuild run.
type ReplayInfo struct {
	ReplayID           uuid.UUID
	Projection         string
	Status             ReplayStatus
	ProcessedEvents    int64
	TotalEvents        int64
	ProgressPercentage int
	ErrMessage         string
	InitiatedBy        string
	Reason             string
	StartedAt          time.Time
	FinishedAt         time.Time
}

// Status returns the current state of one rebuild run.
func (r *Rebuilder) Status(ctx context.Context, replayID uuid.UUID) (ReplayInfo, error) {
	rep, ok, err := r.replays.Load(ctx, replayID)
	if err != nil {
		return ReplayInfo{}, err
	}

	if !ok {
		return ReplayInfo{}, errors.Wrap(ErrReplayNotFound, "", j.KV("replay_id", replayID.String()))
	}

	return replayInfo(rep), nil
}

// History returns up to limit past and present rebuild runs, most recent
// first. It pages through the global log to find replay streams, which is
// acceptable for an operator surface.
func (r *Rebuilder) History(ctx context.Context, limit int) ([]ReplayInfo, error) {
	var ids []uuid.UUID
	var after int64
	for {
		batch, err := r.events.ReadAll(ctx, after, r.batchSize)
		if err != nil {
			return nil, err
		}

		if len(batch) == 0 {
			break
		}

		for _, e := range batch {
			if e.Type == FactReplayStarted {
				ids = append(ids, e.StreamID)
			}
		}

		after = batch[len(batch)-1].ID
	}

	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	out := make([]ReplayInfo, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		rep, err := r.replays.LoadRequired(ctx, ids[i])
		if err != nil {
			return nil, err
		}

		out = append(out, replayInfo(rep))
	}

	return out, nil
}

func replayInfo(rep *Replay) ReplayInfo {
	return ReplayInfo{
		ReplayID:           rep.ID(),
		Projection:         rep.Projection(),
		Status:             rep.Status(),
		ProcessedEvents:    rep.ProcessedEvents(),
		TotalEvents:        rep.TotalEvents(),
		ProgressPercentage: rep.ProgressPercentage(),
		ErrMessage:         rep.ErrMessage(),
		InitiatedBy:        rep.InitiatedBy(),
		Reason:             rep.Reason(),
		StartedAt:          rep.StartedAt(),
		FinishedAt:         rep.FinishedAt(),
	}
}

// run executes the rebuild lifecycle against the replay record. Any error
// during the delete or replay phases is recorded as Failed on the record and
// returned to the caller - a failure after deletion leaves the snapshots
// genuinely incomplete and must be visible, never swallowed.
func (r *Rebuilder) run(ctx context.Context, replayID uuid.UUID, d Descriptor) error {
	err := r.updateReplay(ctx, replayID, func(rep *Replay) error {
		return rep.UpdateProgress(ReplayStatusValidating, 0)
	})
	if err != nil {
		return err
	}
	metrics.ReplayState.WithLabelValues(d.Name).Set(float64(ReplayStatusValidating))

	err = r.Validate(ctx, d.Name)
	if err != nil {
		return r.fail(ctx, replayID, d, err)
	}

	// The denominator and ceiling are captured at the moment the rebuild
	// starts. Facts appended while it runs, including this replay's own
	// progress facts, fall outside this run.
	total, err := r.events.CountAll(ctx)
	if err != nil {
		return r.fail(ctx, replayID, d, err)
	}

	ceiling, err := r.events.LatestOffset(ctx)
	if err != nil {
		return r.fail(ctx, replayID, d, err)
	}

	err = r.updateReplay(ctx, replayID, func(rep *Replay) error {
		return rep.SetTotalEvents(total)
	})
	if err != nil {
		return err
	}

	err = r.updateReplay(ctx, replayID, func(rep *Replay) error {
		return rep.UpdateProgress(ReplayStatusDeletingSnapshots, 0)
	})
	if err != nil {
		return err
	}
	metrics.ReplayState.WithLabelValues(d.Name).Set(float64(ReplayStatusDeletingSnapshots))

	err = r.snapshots.DeleteAll(ctx, d.DocType)
	if err != nil {
		return r.fail(ctx, replayID, d, err)
	}

	err = r.updateReplay(ctx, replayID, func(rep *Replay) error {
		return rep.UpdateProgress(ReplayStatusReplaying, 0)
	})
	if err != nil {
		return err
	}
	metrics.ReplayState.WithLabelValues(d.Name).Set(float64(ReplayStatusReplaying))

	var processed int64
	var after int64
	for after < ceiling {
		cancelled, err := r.cancelled(ctx, replayID)
		if err != nil {
			return err
		}

		if cancelled {
			r.logger.Debug(ctx, "rebuild cancelled", MKV{
				"projection": d.Name,
				"replay_id":  replayID.String(),
			})
			metrics.ReplayState.WithLabelValues(d.Name).Set(float64(ReplayStatusCancelled))
			return nil
		}

		if ctx.Err() != nil {
			// The worker context died mid replay. Record the cancellation on
			// a detached context so the record never silently stays
			// non-terminal.
			stop := context.WithoutCancel(ctx)
			err := r.Cancel(stop, replayID, "context cancelled")
			if err != nil {
				r.logger.Error(stop, errors.Wrap(err, "mark replay cancelled"))
			}

			metrics.ReplayState.WithLabelValues(d.Name).Set(float64(ReplayStatusCancelled))
			return ctx.Err()
		}

		t0 := r.clock.Now()

		batch, err := r.events.ReadAll(ctx, after, r.batchSize)
		if err != nil {
			return r.fail(ctx, replayID, d, err)
		}

		if len(batch) == 0 {
			break
		}

		var applied int64
		for _, e := range batch {
			if e.ID > ceiling {
				break
			}

			err := d.Apply(ctx, e, r.snapshots)
			if err != nil {
				return r.fail(ctx, replayID, d, errors.Wrap(err, "apply projection", j.MKV{
					"fact_type": e.Type,
					"event_id":  e.ID,
				}))
			}

			applied++
			processed++
			after = e.ID
		}

		metrics.ReplayEventsProcessed.WithLabelValues(d.Name).Add(float64(applied))
		metrics.ReplayBatchLatency.WithLabelValues(d.Name).Observe(r.clock.Since(t0).Seconds())

		err = r.updateReplay(ctx, replayID, func(rep *Replay) error {
			return rep.UpdateProgress(ReplayStatusReplaying, processed)
		})
		if err != nil {
			return err
		}

		if r.progress != nil {
			r.progress(d.Name, processed, total)
		}

		r.logger.Debug(ctx, "rebuild batch replayed", MKV{
			"projection": d.Name,
			"replay_id":  replayID.String(),
		})
	}

	err = r.updateReplay(ctx, replayID, func(rep *Replay) error {
		return rep.Complete(r.clock.Now())
	})
	if err != nil {
		return err
	}
	metrics.ReplayState.WithLabelValues(d.Name).Set(float64(ReplayStatusCompleted))

	if r.progress != nil {
		r.progress(d.Name, processed, total)
	}

	return nil
}

func (r *Rebuilder) fail(ctx context.Context, replayID uuid.UUID, d Descriptor, cause error) error {
	metrics.ReplayErrors.WithLabelValues(d.Name).Inc()
	metrics.ReplayState.WithLabelValues(d.Name).Set(float64(ReplayStatusFailed))

	err := r.updateReplay(ctx, replayID, func(rep *Replay) error {
		return rep.Fail(cause.Error(), r.clock.Now())
	})
	if err != nil {
		r.logger.Error(ctx, errors.Wrap(err, "record replay failure"))
	}

	return cause
}

// cancelled reloads the replay record to observe operator cancellations that
// raced the in-flight run.
func (r *Rebuilder) cancelled(ctx context.Context, replayID uuid.UUID) (bool, error) {
	rep, err := r.replays.LoadRequired(ctx, replayID)
	if err != nil {
		return false, err
	}

	return rep.Status() == ReplayStatusCancelled, nil
}

// updateReplay applies fn to a freshly loaded replay and stores it, retrying
// on version conflicts with concurrent writers such as an operator Cancel.
func (r *Rebuilder) updateReplay(ctx context.Context, replayID uuid.UUID, fn func(rep *Replay) error) error {
	for i := 0; i < storeConflictAttempts; i++ {
		rep, err := r.replays.LoadRequired(ctx, replayID)
		if err != nil {
			return err
		}

		err = fn(rep)
		if err != nil {
			return err
		}

		err = r.replays.Store(ctx, rep)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}

		return err
	}

	return errors.Wrap(ErrVersionConflict, "replay update contention", j.KV("replay_id", replayID.String()))
}
