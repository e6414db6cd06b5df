package appraise

import (
	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Party identifies which side of the review a command acts for.
type Party string

const (
	PartyEmployee Party = "employee"
	PartyManager  Party = "manager"
)

// Fact types of the Assignment aggregate. The Apply switch below is the
// closed set of mutation rules for these types.
const (
	FactAssignmentCreated   = "assignment/created"
	FactAssignmentActivated = "assignment/activated"
	FactDraftSaved          = "assignment/draft_saved"
	FactSubmitted           = "assignment/submitted"
	FactReviewStarted       = "assignment/review_started"
	FactReviewConfirmed     = "assignment/review_confirmed"
	FactFinalized           = "assignment/finalized"
	FactReopened            = "assignment/reopened"
	FactArchived            = "assignment/archived"
)

type assignmentCreated struct {
	EmployeeID            string `json:"employee_id"`
	ManagerID             string `json:"manager_id"`
	RequiresManagerReview bool   `json:"requires_manager_review"`
	RequireBothConfirm    bool   `json:"require_both_confirm"`
}

type assignmentActivated struct{}

type draftSaved struct {
	Party Party `json:"party"`
}

type submitted struct {
	Parties []Party `json:"parties"`
	To      int     `json:"to"`
}

type reviewStarted struct{}

type reviewConfirmed struct {
	Party Party `json:"party"`
	To    int   `json:"to"`
}

type finalized struct{}

type reopened struct {
	To     int    `json:"to"`
	Role   string `json:"role"`
	By     string `json:"by"`
	Reason string `json:"reason"`
}

type archived struct {
	By string `json:"by"`
}

// Assignment is the reviewable questionnaire assignment. All fields are
// derived from its facts; command methods validate against the Machine before
// raising anything.
type Assignment struct {
	Root

	machine *Machine

	state                 State
	employeeID            string
	managerID             string
	requiresManagerReview bool
	requireBothConfirm    bool

	employeeDraft     bool
	managerDraft      bool
	employeeSubmitted bool
	managerSubmitted  bool
	employeeConfirmed bool
	managerConfirmed  bool

	archived bool
}

// NewAssignment returns an empty assignment for the repository to fold a
// stream into.
func NewAssignment(id uuid.UUID) *Assignment {
	return &Assignment{
		Root:    NewRoot(id),
		machine: NewMachine(),
	}
}

func (a *Assignment) State() State {
	return a.state
}

func (a *Assignment) EmployeeID() string {
	return a.employeeID
}

func (a *Assignment) ManagerID() string {
	return a.managerID
}

func (a *Assignment) RequiresManagerReview() bool {
	return a.requiresManagerReview
}

func (a *Assignment) Archived() bool {
	return a.archived
}

// CreateOption adjusts how an assignment is created.
type CreateOption func(*assignmentCreated)

// WithoutManagerReview configures the assignment to auto-finalize on employee
// submission instead of entering the review phase.
func WithoutManagerReview() CreateOption {
	return func(c *assignmentCreated) {
		c.RequiresManagerReview = false
	}
}

// WithEitherConfirmSufficient relaxes the default that both parties must
// confirm the review before the assignment can finalize.
func WithEitherConfirmSufficient() CreateOption {
	return func(c *assignmentCreated) {
		c.RequireBothConfirm = false
	}
}

// Create raises the first fact of the stream. It may only be called on an
// assignment with no history.
func (a *Assignment) Create(employeeID, managerID string, opts ...CreateOption) error {
	if a.state != StateUnknown {
		return errors.Wrap(ErrInvalidTransition, "assignment already created", j.KV("state", a.state.String()))
	}

	c := assignmentCreated{
		EmployeeID:            employeeID,
		ManagerID:             managerID,
		RequiresManagerReview: true,
		RequireBothConfirm:    true,
	}
	for _, opt := range opts {
		opt(&c)
	}

	return Raise(a, FactAssignmentCreated, &c)
}

// Activate moves the assignment from Assigned to Initialized, making it
// visible to both parties.
func (a *Assignment) Activate() error {
	err := a.machine.CanTransitionForward(a.state, StateInitialized)
	if err != nil {
		return err
	}

	return Raise(a, FactAssignmentActivated, &assignmentActivated{})
}

// SaveDraft records that a party saved draft content and moves the assignment
// to the matching in-progress state. Past the in-progress tier the state is
// left untouched and only the draft fact is recorded.
func (a *Assignment) SaveDraft(p Party) error {
	hasEmployee := a.employeeDraft || p == PartyEmployee
	hasManager := a.managerDraft || p == PartyManager

	next := a.machine.DetermineProgressState(hasEmployee, hasManager, a.state)
	if next != a.state {
		err := a.machine.CanTransitionForward(a.state, next)
		if err != nil {
			return err
		}
	}

	return Raise(a, FactDraftSaved, &draftSaved{Party: p})
}

// Submit records one or both parties' submissions as a single fact. The
// resulting state is computed from which parties have now submitted and
// whether manager review is configured, then validated as a forward
// transition from the current state. BothInProgress only exits via both
// submissions landing together.
func (a *Assignment) Submit(parties ...Party) error {
	if len(parties) == 0 {
		return errors.Wrap(ErrNothingSubmitted, "")
	}

	empSubmitted := a.employeeSubmitted
	mgrSubmitted := a.managerSubmitted
	for _, p := range parties {
		if p == PartyEmployee {
			empSubmitted = true
		} else {
			mgrSubmitted = true
		}
	}

	next, err := a.machine.DetermineSubmissionState(empSubmitted, mgrSubmitted, a.requiresManagerReview)
	if err != nil {
		return err
	}

	// An auto-finalizing submission still lands on the submitted tier first;
	// Finalized is reached through that state, not directly.
	submitTo := next
	if next == StateFinalized {
		submitTo = StateEmployeeSubmitted
	}

	err = a.machine.CanTransitionForward(a.state, submitTo)
	if err != nil {
		return err
	}

	err = Raise(a, FactSubmitted, &submitted{Parties: parties, To: int(submitTo)})
	if err != nil {
		return err
	}

	if next != StateFinalized {
		return nil
	}

	err = a.machine.CanTransitionForward(a.state, StateFinalized)
	if err != nil {
		return err
	}

	return Raise(a, FactFinalized, &finalized{})
}

// StartReview moves a fully submitted assignment into the review phase.
func (a *Assignment) StartReview() error {
	err := a.machine.CanTransitionForward(a.state, StateInReview)
	if err != nil {
		return err
	}

	return Raise(a, FactReviewStarted, &reviewStarted{})
}

// ConfirmReview records a party's confirmation of the review outcome. The
// first confirmation moves the state to the matching confirmed state; a
// second confirmation from the other party is recorded without a further
// state change.
func (a *Assignment) ConfirmReview(p Party) error {
	if (p == PartyEmployee && a.employeeConfirmed) || (p == PartyManager && a.managerConfirmed) {
		return errors.Wrap(ErrInvalidTransition, "review already confirmed by party", j.MKV{
			"state": a.state.String(),
			"party": string(p),
		})
	}

	next := a.state
	if a.state == StateInReview {
		next = StateEmployeeReviewConfirmed
		if p == PartyManager {
			next = StateManagerReviewConfirmed
		}

		err := a.machine.CanTransitionForward(a.state, next)
		if err != nil {
			return err
		}
	} else if a.state != StateEmployeeReviewConfirmed && a.state != StateManagerReviewConfirmed {
		return errors.Wrap(ErrInvalidTransition, "assignment is not in review", j.KV("state", a.state.String()))
	}

	return Raise(a, FactReviewConfirmed, &reviewConfirmed{Party: p, To: int(next)})
}

// Finalize closes the assignment permanently. With the default
// both-confirm-required configuration, both parties must have confirmed the
// review first.
func (a *Assignment) Finalize() error {
	err := a.machine.CanTransitionForward(a.state, StateFinalized)
	if err != nil {
		return err
	}

	if a.requireBothConfirm && !(a.employeeConfirmed && a.managerConfirmed) {
		return errors.Wrap(ErrInvalidTransition, "both parties must confirm the review before finalizing", j.MKV{
			"state":              a.state.String(),
			"employee_confirmed": a.employeeConfirmed,
			"manager_confirmed":  a.managerConfirmed,
		})
	}

	return Raise(a, FactFinalized, &finalized{})
}

// Reopen performs an authorized backward transition, un-submitting or
// un-confirming a stage so it can be corrected.
func (a *Assignment) Reopen(to State, role, by, reason string) error {
	err := a.machine.CanTransitionBackward(a.state, to, role)
	if err != nil {
		return err
	}

	return Raise(a, FactReopened, &reopened{To: int(to), Role: role, By: by, Reason: reason})
}

// Archive raises the tombstone fact. The aggregate and its history remain; a
// deleted assignment is one more fact in its stream.
func (a *Assignment) Archive(by string) error {
	if a.archived {
		return nil
	}

	return Raise(a, FactArchived, &archived{By: by})
}

// Apply folds a single fact. The switch is the complete dispatch table for
// the assignment's fact types.
func (a *Assignment) Apply(e Event) error {
	switch e.Type {
	case FactAssignmentCreated:
		var c assignmentCreated
		if err := Unmarshal(e.Object, &c); err != nil {
			return err
		}
		a.employeeID = c.EmployeeID
		a.managerID = c.ManagerID
		a.requiresManagerReview = c.RequiresManagerReview
		a.requireBothConfirm = c.RequireBothConfirm
		a.state = StateAssigned
	case FactAssignmentActivated:
		a.state = StateInitialized
	case FactDraftSaved:
		var d draftSaved
		if err := Unmarshal(e.Object, &d); err != nil {
			return err
		}
		if d.Party == PartyEmployee {
			a.employeeDraft = true
		} else {
			a.managerDraft = true
		}
		a.state = a.machine.DetermineProgressState(a.employeeDraft, a.managerDraft, a.state)
	case FactSubmitted:
		var s submitted
		if err := Unmarshal(e.Object, &s); err != nil {
			return err
		}
		for _, p := range s.Parties {
			if p == PartyEmployee {
				a.employeeSubmitted = true
			} else {
				a.managerSubmitted = true
			}
		}
		a.state = State(s.To)
	case FactReviewStarted:
		a.state = StateInReview
	case FactReviewConfirmed:
		var c reviewConfirmed
		if err := Unmarshal(e.Object, &c); err != nil {
			return err
		}
		if c.Party == PartyEmployee {
			a.employeeConfirmed = true
		} else {
			a.managerConfirmed = true
		}
		a.state = State(c.To)
	case FactFinalized:
		a.state = StateFinalized
	case FactReopened:
		var r reopened
		if err := Unmarshal(e.Object, &r); err != nil {
			return err
		}
		a.state = State(r.To)
		a.applyReopen(State(r.To))
	case FactArchived:
		a.archived = true
	default:
		return errors.Wrap(ErrUnknownFactType, "", j.KV("fact_type", e.Type))
	}

	return nil
}

// applyReopen rolls the submission or confirmation flags back to match the
// state the assignment reopened to.
func (a *Assignment) applyReopen(to State) {
	switch to {
	case StateEmployeeInProgress:
		a.employeeSubmitted = false
	case StateManagerInProgress:
		a.managerSubmitted = false
	case StateBothInProgress:
		a.employeeSubmitted = false
		a.managerSubmitted = false
	case StateInReview:
		a.employeeConfirmed = false
		a.managerConfirmed = false
	}
}
