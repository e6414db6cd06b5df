package appraise

import (
	"context"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"
)

// NewFunc constructs an empty aggregate for the given identity, ready to have
// its history folded into it.
type NewFunc[T Aggregate] func(id uuid.UUID) T

// Repository loads and stores one aggregate type over an EventStore. Load and
// Store form the unit of optimistic concurrency: many callers may load the
// same stream, only the first Store from a given observed version wins.
type Repository[T Aggregate] struct {
	store  EventStore
	newFn  NewFunc[T]
	clock  clock.PassiveClock
	logger Logger
	sender EventSender
}

func NewRepository[T Aggregate](store EventStore, newFn NewFunc[T], opts ...RepositoryOption) *Repository[T] {
	// Set option defaults
	opt := repositoryOptions{
		clock:  clock.RealClock{},
		logger: noopLogger{},
	}

	// Set option overrides
	for _, o := range opts {
		o(&opt)
	}

	return &Repository[T]{
		store:  store,
		newFn:  newFn,
		clock:  opt.clock,
		logger: opt.logger,
		sender: opt.sender,
	}
}

type repositoryOptions struct {
	clock  clock.PassiveClock
	logger Logger
	sender EventSender
}

type RepositoryOption func(o *repositoryOptions)

// WithClock overrides the default real clock, for example in tests.
func WithClock(c clock.PassiveClock) RepositoryOption {
	return func(o *repositoryOptions) {
		o.clock = c
	}
}

func WithLogger(l Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = l
	}
}

// WithSender announces every stored fact on the given sender. Send failures
// are logged and do not fail the store - the stream is already durable.
func WithSender(s EventSender) RepositoryOption {
	return func(o *repositoryOptions) {
		o.sender = s
	}
}

// Load folds the full history for id and reports whether the stream exists. A
// zero-length history means the aggregate was never created.
func (r *Repository[T]) Load(ctx context.Context, id uuid.UUID) (T, bool, error) {
	return r.load(ctx, id, 0)
}

// LoadAt folds the history up to and including the given version ceiling.
func (r *Repository[T]) LoadAt(ctx context.Context, id uuid.UUID, ceiling int64) (T, bool, error) {
	return r.load(ctx, id, ceiling)
}

// LoadRequired is Load for callers that cannot proceed without the aggregate.
// A missing stream returns ErrAggregateNotFound instead of an empty result.
func (r *Repository[T]) LoadRequired(ctx context.Context, id uuid.UUID) (T, error) {
	a, ok, err := r.load(ctx, id, 0)
	if err != nil {
		return a, err
	}

	if !ok {
		return a, errors.Wrap(ErrAggregateNotFound, "", j.KV("stream_id", id.String()))
	}

	return a, nil
}

func (r *Repository[T]) load(ctx context.Context, id uuid.UUID, ceiling int64) (T, bool, error) {
	a := r.newFn(id)

	events, err := r.store.ReadStream(ctx, id)
	if err != nil {
		return a, false, err
	}

	if len(events) == 0 {
		return a, false, nil
	}

	for _, e := range events {
		if ceiling > 0 && e.Sequence > ceiling {
			break
		}

		err := fold(a, e)
		if err != nil {
			return a, false, errors.Wrap(err, "fold stream", j.MKV{
				"stream_id": id.String(),
				"sequence":  e.Sequence,
				"fact_type": e.Type,
			})
		}
	}

	return a, true, nil
}

// Store appends the aggregate's pending facts to its stream, asserting that
// the stream is still at the version observed at load time. On success the
// pending facts are adopted as durable; on ErrVersionConflict nothing is
// appended and the caller decides whether to reload and retry.
func (r *Repository[T]) Store(ctx context.Context, a T) error {
	rt := a.root()
	if len(rt.pending) == 0 {
		return nil
	}

	now := r.clock.Now()
	for i := range rt.pending {
		if rt.pending[i].CreatedAt.IsZero() {
			rt.pending[i].CreatedAt = now
		}
	}

	err := r.store.Append(ctx, rt.id, rt.version, rt.pending)
	if err != nil {
		return errors.Wrap(err, "append pending facts", j.MKV{
			"stream_id":        rt.id.String(),
			"expected_version": rt.version,
			"fact_count":       len(rt.pending),
		})
	}

	stored := rt.pending
	rt.adopt()

	if r.sender != nil {
		for _, e := range stored {
			err := r.sender.Send(ctx, e)
			if err != nil {
				// NoReturnErr: The append is durable; announcing it is best
				// effort and must not surface as a store failure.
				r.logger.Error(ctx, errors.Wrap(err, "send fact announcement"))
			}
		}
	}

	return nil
}
