package provider

import (
	"context"

	"github.com/kursadbilgin/relance-engine/internal/domain"
)

// Dialer is the outbound click-to-call port used to put a due follow-up on an
// agent's softphone.
type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (*ProviderResponse, error)
}

// DialRequest is one due follow-up to present to an agent.
type DialRequest struct {
	CallID       int64
	LeadKey      string
	Phone        string
	Agent        string
	Project      string
	AttemptLevel int
	Priority     domain.Priority
}

// ProviderResponse stores dialer call metadata for logging.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
