// Package memstore provides in-memory implementations of the event store and
// snapshot store contracts. It is intended for testing and prototyping.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/appraisehq/appraise"
)

// New constructs an in-memory Store. The default clock is the real clock and
// may be overridden with WithClock for deterministic timestamps in tests.
func New(opts ...Option) *Store {
	// Set option defaults
	opt := options{
		clock: clock.RealClock{},
	}

	// Set option overrides
	for _, o := range opts {
		o(&opt)
	}

	return &Store{
		clock:   opt.clock,
		streams: make(map[uuid.UUID][]appraise.Event),
		docs:    make(map[string]map[string][]byte),
	}
}

type options struct {
	clock clock.PassiveClock
}

type Option func(o *options)

// WithClock returns an Option that sets the clock used to fill event
// timestamps that were not set by the caller.
func WithClock(c clock.PassiveClock) Option {
	return func(o *options) {
		o.clock = c
	}
}

var (
	_ appraise.EventStore    = (*Store)(nil)
	_ appraise.SnapshotStore = (*Store)(nil)
)

type Store struct {
	mu    sync.Mutex
	clock clock.PassiveClock

	streams map[uuid.UUID][]appraise.Event
	log     []appraise.Event

	docs map[string]map[string][]byte
}

func (s *Store) Append(ctx context.Context, streamID uuid.UUID, expectedVersion int64, events []appraise.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamID]
	if int64(len(stream)) != expectedVersion {
		return errors.Wrap(appraise.ErrVersionConflict, "", j.MKV{
			"stream_id":        streamID.String(),
			"expected_version": expectedVersion,
			"actual_version":   len(stream),
		})
	}

	// Validate the whole batch before touching state so a bad event cannot
	// partially apply.
	for i, e := range events {
		want := expectedVersion + int64(i) + 1
		if e.Sequence != want {
			return errors.Wrap(appraise.ErrVersionConflict, "non-contiguous sequence", j.MKV{
				"stream_id": streamID.String(),
				"sequence":  e.Sequence,
				"want":      want,
			})
		}
	}

	now := s.clock.Now()
	for _, e := range events {
		e.StreamID = streamID
		e.ID = int64(len(s.log)) + 1
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}

		s.log = append(s.log, e)
		s.streams[streamID] = append(s.streams[streamID], e)
	}

	return nil
}

func (s *Store) ReadStream(ctx context.Context, streamID uuid.UUID) ([]appraise.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamID]
	out := make([]appraise.Event, len(stream))
	copy(out, stream)
	return out, nil
}

func (s *Store) ReadAll(ctx context.Context, afterID int64, limit int) ([]appraise.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if afterID < 0 {
		afterID = 0
	}

	if afterID >= int64(len(s.log)) {
		return nil, nil
	}

	rest := s.log[afterID:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}

	out := make([]appraise.Event, len(rest))
	copy(out, rest)
	return out, nil
}

func (s *Store) CountAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.log)), nil
}

func (s *Store) LatestOffset(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.log)), nil
}

func (s *Store) Upsert(ctx context.Context, docType, docID string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[docType] == nil {
		s.docs[docType] = make(map[string][]byte)
	}

	cp := make([]byte, len(doc))
	copy(cp, doc)
	s.docs[docType][docID] = cp
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, docType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, docType)
	return nil
}

func (s *Store) Count(ctx context.Context, docType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.docs[docType])), nil
}

func (s *Store) Lookup(ctx context.Context, docType, docID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docType][docID]
	if !ok {
		return nil, false, nil
	}

	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, true, nil
}
