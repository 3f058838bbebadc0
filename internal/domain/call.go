package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority represents the urgency an agent gives to a call attempt.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityP1     Priority = "P1"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityNormal, PriorityP1:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Result is the outcome label recorded on a call attempt. Labels outside the
// known taxonomy are accepted and treated as non-definitive.
type Result string

const (
	// ResultPlanned marks a pending attempt awaiting a future contact.
	ResultPlanned Result = "Planned"

	ResultNoAnswer    Result = "No answer"
	ResultUnreachable Result = "Unreachable"
	ResultCallBack    Result = "Call back"

	ResultQualified     Result = "Qualified"
	ResultNotInterested Result = "Not interested"
	ResultCancelled     Result = "Cancelled"
)

var knownResults = []Result{
	ResultPlanned,
	ResultNoAnswer,
	ResultUnreachable,
	ResultCallBack,
	ResultQualified,
	ResultNotInterested,
	ResultCancelled,
}

func (r Result) String() string { return string(r) }

// IsDefinitive reports whether the result closes the lead for good.
func (r Result) IsDefinitive() bool {
	switch r {
	case ResultQualified, ResultNotInterested, ResultCancelled:
		return true
	}
	return false
}

func (r Result) IsPlanned() bool { return r == ResultPlanned }

// ParseResultFromString trims the label and canonicalizes known results
// case-insensitively. Free-form labels are kept verbatim.
func ParseResultFromString(s string) (Result, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", fmt.Errorf("%w: result is required", ErrValidation)
	}
	for _, known := range knownResults {
		if strings.EqualFold(trimmed, known.String()) {
			return known, nil
		}
	}
	return Result(trimmed), nil
}

// CallState is derived from which of NextCallAt and DoneAt is set.
type CallState string

const (
	CallStatePending CallState = "PENDING"
	CallStateClosed  CallState = "CLOSED"
	// CallStateOrphan is never written by the engine; it only shows up in legacy rows.
	CallStateOrphan CallState = "ORPHAN"
)

func (s CallState) String() string { return string(s) }

// CallAttempt is one contact attempt (executed or planned) owned by a lead.
type CallAttempt struct {
	ID           int64
	LeadID       int64
	Agent        string
	AttemptLevel int
	Result       Result
	Priority     Priority
	NextCallAt   *time.Time
	DoneAt       *time.Time
	RemindedAt   *time.Time
	CreatedAt    time.Time
}

func (c *CallAttempt) State() CallState {
	switch {
	case c.DoneAt != nil:
		return CallStateClosed
	case c.NextCallAt != nil:
		return CallStatePending
	default:
		return CallStateOrphan
	}
}

func (c *CallAttempt) IsPending() bool { return c.State() == CallStatePending }

func (c *CallAttempt) IsClosed() bool { return c.State() == CallStateClosed }

func (c *CallAttempt) Validate() error {
	if strings.TrimSpace(c.Agent) == "" {
		return fmt.Errorf("%w: agent is required", ErrValidation)
	}
	if c.AttemptLevel < 1 {
		return fmt.Errorf("%w: attempt level must be >= 1 (got %d)", ErrValidation, c.AttemptLevel)
	}
	if strings.TrimSpace(c.Result.String()) == "" {
		return fmt.Errorf("%w: result is required", ErrValidation)
	}
	if !c.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, c.Priority)
	}
	if c.DoneAt != nil && c.NextCallAt != nil {
		return fmt.Errorf("%w: attempt cannot be both pending and closed", ErrValidation)
	}
	if c.State() == CallStateOrphan {
		return fmt.Errorf("%w: attempt must be pending or closed", ErrValidation)
	}
	if c.IsPending() && !c.Result.IsPlanned() {
		return fmt.Errorf("%w: pending attempt must carry result %q", ErrValidation, ResultPlanned)
	}
	if c.IsClosed() && c.Result.IsPlanned() {
		return fmt.Errorf("%w: result %q is reserved for scheduled follow-ups", ErrValidation, ResultPlanned)
	}
	return nil
}

// CallView is a call attempt joined with the context of its lead.
type CallView struct {
	CallAttempt
	LeadKey       string
	Phone         *string
	Project       string
	LeadType      string
	LeadCreatedAt time.Time
}
