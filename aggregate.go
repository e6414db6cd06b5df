package appraise

import (
	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Aggregate is the materialised result of folding one stream. Every field of
// an implementation must be derived exclusively from applied facts - Apply is
// the only mutation path, both during reconstruction and when new facts are
// raised.
type Aggregate interface {
	// ID is the stream identity of the aggregate.
	ID() uuid.UUID

	// Version is the number of facts folded into the aggregate, including
	// facts raised in memory that have not been stored yet.
	Version() int64

	// Apply folds a single fact into the aggregate. Apply must dispatch on
	// Event.Type to exactly one mutation rule and must wrap
	// ErrUnknownFactType for a type it does not recognise - that is a
	// programming error, not a user condition.
	Apply(e Event) error

	root() *Root
}

// Root carries the stream identity, the durable version and the facts raised
// in memory since the last store. Aggregates embed Root to satisfy the
// non-domain half of the Aggregate interface.
type Root struct {
	id      uuid.UUID
	version int64
	pending []Event
}

func NewRoot(id uuid.UUID) Root {
	return Root{id: id}
}

func (r *Root) ID() uuid.UUID {
	return r.id
}

// Version includes pending facts so that two raises in a row assign
// consecutive sequences.
func (r *Root) Version() int64 {
	return r.version + int64(len(r.pending))
}

// Pending returns the facts raised in memory that have not been appended to
// the stream yet.
func (r *Root) Pending() []Event {
	return r.pending
}

func (r *Root) root() *Root {
	return r
}

// Raise folds a new fact into the aggregate and queues it for storage. The
// fact is applied immediately so the in-memory state and version always agree
// with the stream the next Store call will produce.
func Raise[P any](a Aggregate, factType string, payload *P) error {
	b, err := Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal fact payload", j.KV("fact_type", factType))
	}

	e := Event{
		StreamID: a.ID(),
		Sequence: a.Version() + 1,
		Type:     factType,
		Object:   b,
	}

	err = a.Apply(e)
	if err != nil {
		return err
	}

	rt := a.root()
	rt.pending = append(rt.pending, e)
	return nil
}

// adopt marks all pending facts as durable after a successful append.
func (r *Root) adopt() {
	r.version += int64(len(r.pending))
	r.pending = nil
}

// fold replays a persisted fact during reconstruction, advancing the durable
// version.
func fold(a Aggregate, e Event) error {
	err := a.Apply(e)
	if err != nil {
		return err
	}

	a.root().version = e.Sequence
	return nil
}
