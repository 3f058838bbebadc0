package repository

import (
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
)

// LeadModel is the persistence model for the leads table.
type LeadModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	LeadKey       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_leads_lead_key"`
	Phone         *string   `gorm:"type:varchar(32)"`
	Project       string    `gorm:"type:varchar(100);not null;index:idx_leads_project_type"`
	LeadType      string    `gorm:"type:varchar(100);not null;index:idx_leads_project_type"`
	LeadCreatedAt time.Time `gorm:"not null"`
	CreatedAt     time.Time
}

func (LeadModel) TableName() string {
	return "leads"
}

// CallAttemptModel is the persistence model for call_attempts.
type CallAttemptModel struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	LeadID       int64           `gorm:"not null;index:idx_call_attempts_lead_id"`
	Lead         *LeadModel      `gorm:"foreignKey:LeadID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Agent        string          `gorm:"type:varchar(100);not null"`
	AttemptLevel int             `gorm:"not null"`
	Result       domain.Result   `gorm:"type:varchar(100);not null"`
	Priority     domain.Priority `gorm:"type:varchar(10);not null"`
	NextCallAt   *time.Time
	DoneAt       *time.Time
	RemindedAt   *time.Time
	CreatedAt    time.Time
}

func (CallAttemptModel) TableName() string {
	return "call_attempts"
}

// callViewRow is a call attempt joined with its lead.
type callViewRow struct {
	ID            int64
	LeadID        int64
	Agent         string
	AttemptLevel  int
	Result        domain.Result
	Priority      domain.Priority
	NextCallAt    *time.Time
	DoneAt        *time.Time
	RemindedAt    *time.Time
	CreatedAt     time.Time
	LeadKey       string
	Phone         *string
	Project       string
	LeadType      string
	LeadCreatedAt time.Time
}

const callViewColumns = "call_attempts.id, call_attempts.lead_id, call_attempts.agent, call_attempts.attempt_level, " +
	"call_attempts.result, call_attempts.priority, call_attempts.next_call_at, call_attempts.done_at, " +
	"call_attempts.reminded_at, call_attempts.created_at, leads.lead_key, leads.phone, leads.project, " +
	"leads.lead_type, leads.lead_created_at"

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func leadModelFromDomain(l *domain.Lead) *LeadModel {
	if l == nil {
		return nil
	}

	return &LeadModel{
		ID:            l.ID,
		LeadKey:       l.LeadKey,
		Phone:         l.Phone,
		Project:       l.Project,
		LeadType:      l.LeadType,
		LeadCreatedAt: l.LeadCreatedAt.UTC(),
		CreatedAt:     l.CreatedAt.UTC(),
	}
}

func leadModelToDomain(m *LeadModel) *domain.Lead {
	if m == nil {
		return nil
	}

	return &domain.Lead{
		ID:            m.ID,
		LeadKey:       m.LeadKey,
		Phone:         m.Phone,
		Project:       m.Project,
		LeadType:      m.LeadType,
		LeadCreatedAt: m.LeadCreatedAt.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

func callModelFromDomain(c *domain.CallAttempt) *CallAttemptModel {
	if c == nil {
		return nil
	}

	return &CallAttemptModel{
		ID:           c.ID,
		LeadID:       c.LeadID,
		Agent:        c.Agent,
		AttemptLevel: c.AttemptLevel,
		Result:       c.Result,
		Priority:     c.Priority,
		NextCallAt:   utcPtr(c.NextCallAt),
		DoneAt:       utcPtr(c.DoneAt),
		RemindedAt:   utcPtr(c.RemindedAt),
		CreatedAt:    c.CreatedAt.UTC(),
	}
}

func callModelToDomain(m *CallAttemptModel) *domain.CallAttempt {
	if m == nil {
		return nil
	}

	return &domain.CallAttempt{
		ID:           m.ID,
		LeadID:       m.LeadID,
		Agent:        m.Agent,
		AttemptLevel: m.AttemptLevel,
		Result:       m.Result,
		Priority:     m.Priority,
		NextCallAt:   utcPtr(m.NextCallAt),
		DoneAt:       utcPtr(m.DoneAt),
		RemindedAt:   utcPtr(m.RemindedAt),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

func callViewRowToDomain(r *callViewRow) *domain.CallView {
	if r == nil {
		return nil
	}

	return &domain.CallView{
		CallAttempt: domain.CallAttempt{
			ID:           r.ID,
			LeadID:       r.LeadID,
			Agent:        r.Agent,
			AttemptLevel: r.AttemptLevel,
			Result:       r.Result,
			Priority:     r.Priority,
			NextCallAt:   utcPtr(r.NextCallAt),
			DoneAt:       utcPtr(r.DoneAt),
			RemindedAt:   utcPtr(r.RemindedAt),
			CreatedAt:    r.CreatedAt.UTC(),
		},
		LeadKey:       r.LeadKey,
		Phone:         r.Phone,
		Project:       r.Project,
		LeadType:      r.LeadType,
		LeadCreatedAt: r.LeadCreatedAt.UTC(),
	}
}

// ReminderDeliveryModel is the persistence model for reminder_deliveries.
type ReminderDeliveryModel struct {
	ID            string `gorm:"type:varchar(36);primaryKey"`
	CallID        int64  `gorm:"not null;index:idx_reminder_deliveries_call_id"`
	AttemptNumber int    `gorm:"not null"`
	StatusCode    *int
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (ReminderDeliveryModel) TableName() string {
	return "reminder_deliveries"
}

func deliveryModelFromDomain(d *domain.ReminderDelivery) *ReminderDeliveryModel {
	if d == nil {
		return nil
	}

	return &ReminderDeliveryModel{
		ID:            d.ID,
		CallID:        d.CallID,
		AttemptNumber: d.AttemptNumber,
		StatusCode:    d.StatusCode,
		ResponseBody:  d.ResponseBody,
		Error:         d.Error,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

func deliveryModelToDomain(m *ReminderDeliveryModel) *domain.ReminderDelivery {
	if m == nil {
		return nil
	}

	return &domain.ReminderDelivery{
		ID:            m.ID,
		CallID:        m.CallID,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt.UTC(),
	}
}
