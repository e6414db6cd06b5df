package appraise

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// ReplayStatus is the lifecycle state of a single rebuild run.
type ReplayStatus int

const (
	ReplayStatusUnknown           ReplayStatus = 0
	ReplayStatusPending           ReplayStatus = 1
	ReplayStatusValidating        ReplayStatus = 2
	ReplayStatusDeletingSnapshots ReplayStatus = 3
	ReplayStatusReplaying         ReplayStatus = 4
	ReplayStatusCompleted         ReplayStatus = 5
	ReplayStatusFailed            ReplayStatus = 6
	ReplayStatusCancelled         ReplayStatus = 7
	replayStatusSentinel          ReplayStatus = 8
)

func (s ReplayStatus) String() string {
	switch s {
	case ReplayStatusUnknown:
		return "Unknown"
	case ReplayStatusPending:
		return "Pending"
	case ReplayStatusValidating:
		return "Validating"
	case ReplayStatusDeletingSnapshots:
		return "DeletingSnapshots"
	case ReplayStatusReplaying:
		return "Replaying"
	case ReplayStatusCompleted:
		return "Completed"
	case ReplayStatusFailed:
		return "Failed"
	case ReplayStatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("ReplayStatus(%d)", s)
	}
}

func (s ReplayStatus) Valid() bool {
	return s > ReplayStatusUnknown && s < replayStatusSentinel
}

// Terminal reports whether the status is final. Once a replay reaches a
// terminal status no further update may mutate it.
func (s ReplayStatus) Terminal() bool {
	switch s {
	case ReplayStatusCompleted, ReplayStatusFailed, ReplayStatusCancelled:
		return true
	default:
		return false
	}
}

// Fact types of the Replay aggregate.
const (
	FactReplayStarted    = "replay/started"
	FactReplayTotalSet   = "replay/total_set"
	FactReplayProgressed = "replay/progressed"
	FactReplayCompleted  = "replay/completed"
	FactReplayFailed     = "replay/failed"
	FactReplayCancelled  = "replay/cancelled"
)

type replayStarted struct {
	Projection  string    `json:"projection"`
	InitiatedBy string    `json:"initiated_by"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

type replayTotalSet struct {
	Total int64 `json:"total"`
}

type replayProgressed struct {
	Status    int   `json:"status"`
	Processed int64 `json:"processed"`
}

type replayCompleted struct {
	At time.Time `json:"at"`
}

type replayFailed struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type replayCancelled struct {
	By string    `json:"by"`
	At time.Time `json:"at"`
}

// Replay is the event-sourced audit record of one projection rebuild. Its
// terminal statuses are enforced as an invariant: progress updates and
// repeated terminal commands against a finished replay are no-ops, which is
// what makes concurrent status reads safe without locks once a run ends.
type Replay struct {
	Root

	projection  string
	status      ReplayStatus
	initiatedBy string
	reason      string
	cancelledBy string
	errMessage  string
	startedAt   time.Time
	finishedAt  time.Time
	total       int64
	processed   int64
}

func NewReplay(id uuid.UUID) *Replay {
	return &Replay{Root: NewRoot(id)}
}

func (r *Replay) Projection() string {
	return r.projection
}

func (r *Replay) Status() ReplayStatus {
	return r.status
}

func (r *Replay) InitiatedBy() string {
	return r.initiatedBy
}

func (r *Replay) Reason() string {
	return r.reason
}

func (r *Replay) ErrMessage() string {
	return r.errMessage
}

func (r *Replay) CancelledBy() string {
	return r.cancelledBy
}

func (r *Replay) StartedAt() time.Time {
	return r.startedAt
}

func (r *Replay) FinishedAt() time.Time {
	return r.finishedAt
}

func (r *Replay) TotalEvents() int64 {
	return r.total
}

func (r *Replay) ProcessedEvents() int64 {
	return r.processed
}

// ProgressPercentage is computed, never stored. It is 0 when the total is
// unknown and cannot exceed 100 because processed is capped at the total.
func (r *Replay) ProgressPercentage() int {
	if r.total <= 0 {
		return 0
	}

	return int(r.processed * 100 / r.total)
}

// Start raises the first fact of the replay stream.
func (r *Replay) Start(projection, initiatedBy, reason string, now time.Time) error {
	return Raise(r, FactReplayStarted, &replayStarted{
		Projection:  projection,
		InitiatedBy: initiatedBy,
		Reason:      reason,
		At:          now,
	})
}

// SetTotalEvents records the work denominator once it is known. A no-op once
// the replay is terminal.
func (r *Replay) SetTotalEvents(total int64) error {
	if r.status.Terminal() {
		return nil
	}

	return Raise(r, FactReplayTotalSet, &replayTotalSet{Total: total})
}

// UpdateProgress moves the replay through its non-terminal statuses and
// records the cumulative processed count. Updates against a terminal replay
// are no-ops by invariant. Processed counts are capped at the recorded total.
func (r *Replay) UpdateProgress(status ReplayStatus, processed int64) error {
	if r.status.Terminal() {
		return nil
	}

	if status.Terminal() || !status.Valid() {
		return nil
	}

	if r.total > 0 && processed > r.total {
		processed = r.total
	}

	return Raise(r, FactReplayProgressed, &replayProgressed{Status: int(status), Processed: processed})
}

// Complete transitions to Completed exactly once; repeated terminal commands
// are no-ops, not errors.
func (r *Replay) Complete(now time.Time) error {
	if r.status.Terminal() {
		return nil
	}

	return Raise(r, FactReplayCompleted, &replayCompleted{At: now})
}

// Fail transitions to Failed, recording the underlying message.
func (r *Replay) Fail(message string, now time.Time) error {
	if r.status.Terminal() {
		return nil
	}

	return Raise(r, FactReplayFailed, &replayFailed{Message: message, At: now})
}

// Cancel transitions to Cancelled, recording who asked for it.
func (r *Replay) Cancel(by string, now time.Time) error {
	if r.status.Terminal() {
		return nil
	}

	return Raise(r, FactReplayCancelled, &replayCancelled{By: by, At: now})
}

func (r *Replay) Apply(e Event) error {
	switch e.Type {
	case FactReplayStarted:
		var s replayStarted
		if err := Unmarshal(e.Object, &s); err != nil {
			return err
		}
		r.projection = s.Projection
		r.initiatedBy = s.InitiatedBy
		r.reason = s.Reason
		r.startedAt = s.At
		r.status = ReplayStatusPending
	case FactReplayTotalSet:
		var t replayTotalSet
		if err := Unmarshal(e.Object, &t); err != nil {
			return err
		}
		r.total = t.Total
	case FactReplayProgressed:
		var p replayProgressed
		if err := Unmarshal(e.Object, &p); err != nil {
			return err
		}
		r.status = ReplayStatus(p.Status)
		r.processed = p.Processed
	case FactReplayCompleted:
		var c replayCompleted
		if err := Unmarshal(e.Object, &c); err != nil {
			return err
		}
		r.status = ReplayStatusCompleted
		r.finishedAt = c.At
	case FactReplayFailed:
		var f replayFailed
		if err := Unmarshal(e.Object, &f); err != nil {
			return err
		}
		r.status = ReplayStatusFailed
		r.errMessage = f.Message
		r.finishedAt = f.At
	case FactReplayCancelled:
		var c replayCancelled
		if err := Unmarshal(e.Object, &c); err != nil {
			return err
		}
		r.status = ReplayStatusCancelled
		r.cancelledBy = c.By
		r.finishedAt = c.At
	default:
		return errors.Wrap(ErrUnknownFactType, "", j.KV("fact_type", e.Type))
	}

	return nil
}
