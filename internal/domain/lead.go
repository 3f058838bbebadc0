package domain

import (
	"fmt"
	"strings"
	"time"
)

// Lead is a prospect received from the CRM and worked by the call center.
type Lead struct {
	ID            int64
	LeadKey       string
	Phone         *string
	Project       string
	LeadType      string
	LeadCreatedAt time.Time
	CreatedAt     time.Time
}

func (l *Lead) Validate() error {
	if l.LeadKey == "" {
		return fmt.Errorf("%w: lead key is required", ErrValidation)
	}
	if l.Project == "" {
		return fmt.Errorf("%w: project is required", ErrValidation)
	}
	if l.LeadType == "" {
		return fmt.Errorf("%w: lead type is required", ErrValidation)
	}
	if l.LeadCreatedAt.IsZero() {
		return fmt.Errorf("%w: lead creation date is required", ErrValidation)
	}
	return nil
}

// NormalizePhone trims the number and requires it to be digits only, e.g. 33612345678.
func NormalizePhone(phone string) (string, error) {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return "", fmt.Errorf("%w: phone is required", ErrValidation)
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: phone must be digits only (ex: 337XXXXXXXX)", ErrValidation)
		}
	}
	return trimmed, nil
}

// LeadFilter narrows list and dashboard queries. Empty fields match everything.
type LeadFilter struct {
	Project  string
	LeadType string
}

// FollowUp describes the next contact to plan when an attempt is recorded or completed.
type FollowUp struct {
	AttemptLevel int
	At           time.Time
	Priority     Priority
}

func (f *FollowUp) Validate() error {
	if f.AttemptLevel < 1 {
		return fmt.Errorf("%w: follow-up attempt level must be >= 1 (got %d)", ErrValidation, f.AttemptLevel)
	}
	if f.At.IsZero() {
		return fmt.Errorf("%w: follow-up date is required", ErrValidation)
	}
	if !f.Priority.IsValid() {
		return fmt.Errorf("%w: invalid follow-up priority %q", ErrValidation, f.Priority)
	}
	return nil
}

// RecordCall is an executed call, optionally chained with the next planned contact.
type RecordCall struct {
	LeadID       int64
	Phone        string
	Agent        string
	AttemptLevel int
	Result       Result
	Priority     Priority
	FollowUp     *FollowUp
}

func (c *RecordCall) Validate() error {
	if c.LeadID <= 0 {
		return fmt.Errorf("%w: lead id is required", ErrValidation)
	}
	phone, err := NormalizePhone(c.Phone)
	if err != nil {
		return err
	}
	c.Phone = phone
	c.Agent = strings.TrimSpace(c.Agent)

	attempt := CallAttempt{
		Agent:        c.Agent,
		AttemptLevel: c.AttemptLevel,
		Result:       c.Result,
		Priority:     c.Priority,
		DoneAt:       &time.Time{},
	}
	if err := attempt.Validate(); err != nil {
		return err
	}
	if c.FollowUp != nil {
		return c.FollowUp.Validate()
	}
	return nil
}

// ScheduleFollowUp plans a future contact without recording an executed call.
type ScheduleFollowUp struct {
	LeadID       int64
	Agent        string
	AttemptLevel int
	Priority     Priority
	At           time.Time
}

func (c *ScheduleFollowUp) Validate() error {
	if c.LeadID <= 0 {
		return fmt.Errorf("%w: lead id is required", ErrValidation)
	}
	c.Agent = strings.TrimSpace(c.Agent)
	if c.Agent == "" {
		return fmt.Errorf("%w: agent is required", ErrValidation)
	}
	f := FollowUp{AttemptLevel: c.AttemptLevel, At: c.At, Priority: c.Priority}
	return f.Validate()
}

// CompleteFollowUp closes a pending attempt, optionally planning the next one.
type CompleteFollowUp struct {
	CallID   int64
	Result   Result
	Priority Priority
	FollowUp *FollowUp
}

func (c *CompleteFollowUp) Validate() error {
	if c.CallID <= 0 {
		return fmt.Errorf("%w: call id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Result.String()) == "" {
		return fmt.Errorf("%w: result is required", ErrValidation)
	}
	if c.Result.IsPlanned() {
		return fmt.Errorf("%w: result %q is reserved for scheduled follow-ups", ErrValidation, ResultPlanned)
	}
	if !c.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, c.Priority)
	}
	if c.FollowUp != nil {
		return c.FollowUp.Validate()
	}
	return nil
}

// Completion is the outcome of closing a pending attempt: the closed row and, when
// chained, the new pending row.
type Completion struct {
	Closed CallAttempt
	Next   *CallAttempt
}

// LeadStats is a lead with the aggregates derived from its closed attempts.
type LeadStats struct {
	Lead
	CallCount   int
	FirstCallAt *time.Time
	LastDoneAt  *time.Time
	LastResult  *Result
}
