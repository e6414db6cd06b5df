package appraise

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single immutable fact about one aggregate. Events are identified
// by their position in a stream and are never updated or deleted once they
// have been appended.
type Event struct {
	// ID is the global position of the event across all streams. It is
	// assigned by the event store on append and is zero before that.
	ID int64

	// StreamID identifies the aggregate the event belongs to.
	StreamID uuid.UUID

	// Sequence is the 1-based position of the event within its stream.
	// Sequences are contiguous with no gaps or duplicates.
	Sequence int64

	// Type discriminates the fact so that the owning aggregate can dispatch
	// it to exactly one mutation rule.
	Type string

	// Object is the JSON encoded fact payload. Event is the serializable
	// representation of a fact and carries no typed view of the payload.
	Object []byte

	CreatedAt time.Time
}
