package appraise

import (
	"context"

	"github.com/google/uuid"
)

// EventStore is the append-only log underneath every aggregate. Implementations
// must assign contiguous global IDs on append and must make Append atomic: a
// version conflict leaves the stream untouched.
type EventStore interface {
	// Append adds events to the stream identified by streamID. expectedVersion
	// is the stream length the caller observed at load time; if the stream has
	// since grown the append must fail with ErrVersionConflict and write
	// nothing. The first event of a new stream is appended with
	// expectedVersion 0.
	Append(ctx context.Context, streamID uuid.UUID, expectedVersion int64, events []Event) error

	// ReadStream returns the full ordered history for one stream. An unknown
	// stream returns an empty slice, not an error.
	ReadStream(ctx context.Context, streamID uuid.UUID) ([]Event, error)

	// ReadAll returns up to limit events across all streams with a global ID
	// greater than afterID, ordered by global ID. Used for full history
	// replays which page through the log in batches.
	ReadAll(ctx context.Context, afterID int64, limit int) ([]Event, error)

	// CountAll returns the total number of events across all streams.
	CountAll(ctx context.Context) (int64, error)

	// LatestOffset returns the global ID of the most recently appended event,
	// 0 when the log is empty. Replays capture it once at the start of a run
	// so that facts appended mid-replay fall outside that run.
	LatestOffset(ctx context.Context) (int64, error)
}

// SnapshotStore holds the derived read-optimised documents that projections
// maintain. Documents are namespaced by their document type so that one
// projection's rebuild cannot touch another's rows.
type SnapshotStore interface {
	Upsert(ctx context.Context, docType, docID string, doc []byte) error

	// Lookup returns one document and whether it exists. Projections use it
	// to fold a new fact into the document they derived so far.
	Lookup(ctx context.Context, docType, docID string) ([]byte, bool, error)

	// DeleteAll empties every document of the given type. Only the rebuilder
	// should call this and only after the projection passed validation.
	DeleteAll(ctx context.Context, docType string) error

	Count(ctx context.Context, docType string) (int64, error)
}

// EventSender announces appended facts to an external stream, for example a
// Kafka topic. Sending is best effort and happens after the durable append;
// failures are logged by the repository, never folded back into the append.
type EventSender interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
