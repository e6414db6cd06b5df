package appraise

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// AssignmentSummary is the read-optimised document derived from an
// assignment's stream. It answers list and dashboard queries without folding
// the stream and is rebuilt from scratch by replaying the log.
type AssignmentSummary struct {
	AssignmentID      string `json:"assignment_id"`
	EmployeeID        string `json:"employee_id"`
	ManagerID         string `json:"manager_id"`
	State             int    `json:"state"`
	EmployeeSubmitted bool   `json:"employee_submitted"`
	ManagerSubmitted  bool   `json:"manager_submitted"`
	Archived          bool   `json:"archived"`
	FactCount         int64  `json:"fact_count"`
}

const summaryDocType = "assignment_summary"

var summaryMachine = NewMachine()

// AssignmentSummaries returns the registry descriptor for the assignment
// summary projection. The transformation function is a fold of single facts
// into the document derived so far, which makes incremental updates and full
// rebuilds the same code path.
func AssignmentSummaries() Descriptor {
	return Descriptor{
		Name:        "assignment_summaries",
		Description: "One row per assignment with its current review state",
		DocType:     summaryDocType,
		TableName:   "appraise_assignment_summaries",
		Rebuildable: true,
		Apply:       applyAssignmentSummary,
	}
}

func applyAssignmentSummary(ctx context.Context, e Event, snapshots SnapshotStore) error {
	var summary AssignmentSummary

	docID := e.StreamID.String()

	existing, ok, err := snapshots.Lookup(ctx, summaryDocType, docID)
	if err != nil {
		return err
	}

	if ok {
		err := Unmarshal(existing, &summary)
		if err != nil {
			return errors.Wrap(err, "decode summary", j.KV("doc_id", docID))
		}
	}

	changed, err := foldSummary(&summary, e)
	if err != nil {
		return err
	}

	if !changed {
		return nil
	}

	summary.AssignmentID = docID
	summary.FactCount++

	doc, err := Marshal(&summary)
	if err != nil {
		return errors.Wrap(err, "encode summary", j.KV("doc_id", docID))
	}

	return snapshots.Upsert(ctx, summaryDocType, docID, doc)
}

// foldSummary mutates the summary for assignment facts and reports whether
// the event belonged to this projection. Facts of other aggregates, such as
// replay audit records, are skipped.
func foldSummary(s *AssignmentSummary, e Event) (bool, error) {
	switch e.Type {
	case FactAssignmentCreated:
		var c assignmentCreated
		if err := Unmarshal(e.Object, &c); err != nil {
			return false, err
		}
		s.EmployeeID = c.EmployeeID
		s.ManagerID = c.ManagerID
		s.State = int(StateAssigned)
	case FactAssignmentActivated:
		s.State = int(StateInitialized)
	case FactDraftSaved:
		var d draftSaved
		if err := Unmarshal(e.Object, &d); err != nil {
			return false, err
		}
		hasEmp := d.Party == PartyEmployee || State(s.State) == StateEmployeeInProgress || State(s.State) == StateBothInProgress
		hasMgr := d.Party == PartyManager || State(s.State) == StateManagerInProgress || State(s.State) == StateBothInProgress
		s.State = int(summaryMachine.DetermineProgressState(hasEmp, hasMgr, State(s.State)))
	case FactSubmitted:
		var sub submitted
		if err := Unmarshal(e.Object, &sub); err != nil {
			return false, err
		}
		for _, p := range sub.Parties {
			if p == PartyEmployee {
				s.EmployeeSubmitted = true
			} else {
				s.ManagerSubmitted = true
			}
		}
		s.State = sub.To
	case FactReviewStarted:
		s.State = int(StateInReview)
	case FactReviewConfirmed:
		var c reviewConfirmed
		if err := Unmarshal(e.Object, &c); err != nil {
			return false, err
		}
		s.State = c.To
	case FactFinalized:
		s.State = int(StateFinalized)
	case FactReopened:
		var r reopened
		if err := Unmarshal(e.Object, &r); err != nil {
			return false, err
		}
		s.State = r.To
		if State(r.To) == StateEmployeeInProgress || State(r.To) == StateBothInProgress {
			s.EmployeeSubmitted = false
		}
		if State(r.To) == StateManagerInProgress || State(r.To) == StateBothInProgress {
			s.ManagerSubmitted = false
		}
	case FactArchived:
		s.Archived = true
	default:
		return false, nil
	}

	return true, nil
}
