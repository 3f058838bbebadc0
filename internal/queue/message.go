package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
)

// FollowUpDueMessage announces that a pending follow-up reached its planned time.
type FollowUpDueMessage struct {
	MessageID     string          `json:"messageId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CallID        int64           `json:"callId"`
	LeadID        int64           `json:"leadId"`
	LeadKey       string          `json:"leadKey"`
	Agent         string          `json:"agent"`
	Project       string          `json:"project"`
	AttemptLevel  int             `json:"attemptLevel"`
	Priority      domain.Priority `json:"priority"`
	NextCallAt    time.Time       `json:"nextCallAt"`
	// ClaimedAt is the reminded_at value written by the scan that published this
	// message. A later claim supersedes it.
	ClaimedAt     time.Time       `json:"claimedAt,omitzero"`
}

func (m FollowUpDueMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("messageId is required")
	}
	if m.CallID <= 0 {
		return fmt.Errorf("callId is required")
	}
	if strings.TrimSpace(m.Agent) == "" {
		return fmt.Errorf("agent is required")
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}
