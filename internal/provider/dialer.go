package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nyaruka/phonenumbers"
)

const (
	defaultDialerTimeout = 10 * time.Second
	defaultRegion        = "FR"
)

type dialRequestBody struct {
	CallID       int64  `json:"callId"`
	LeadKey      string `json:"leadKey"`
	To           string `json:"to"`
	Agent        string `json:"agent"`
	Project      string `json:"project"`
	AttemptLevel int    `json:"attemptLevel"`
	Priority     string `json:"priority"`
}

// DialerProvider posts click-to-call requests to a dialer webhook.
type DialerProvider struct {
	client   *resty.Client
	endpoint string
}

func NewDialerProvider(endpoint string) (*DialerProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultDialerTimeout)
	client.SetRetryCount(0)

	return NewDialerProviderWithClient(endpoint, client)
}

func NewDialerProviderWithClient(endpoint string, client *resty.Client) (*DialerProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("dialer endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid dialer endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDialerTimeout)
	}
	client.SetRetryCount(0)

	return &DialerProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *DialerProvider) Dial(ctx context.Context, req DialRequest) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("dialer is not initialized")
	}

	to, err := ToE164(req.Phone)
	if err != nil {
		return nil, &ProviderError{Message: "invalid lead phone", Transient: false, Cause: err}
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(dialRequestBody{
			CallID:       req.CallID,
			LeadKey:      req.LeadKey,
			To:           to,
			Agent:        req.Agent,
			Project:      req.Project,
			AttemptLevel: req.AttemptLevel,
			Priority:     req.Priority.String(),
		}).
		Post(p.endpoint)
	if err != nil {
		return nil, requestError(err)
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "dialer returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  providerMessageID(response),
		}, nil
	}

	return nil, statusError(statusCode, responseBody)
}

// ToE164 formats a digits-only international number (e.g. 33612345678) as E.164.
func ToE164(digits string) (string, error) {
	trimmed := strings.TrimSpace(digits)
	if trimmed == "" {
		return "", fmt.Errorf("phone is empty")
	}

	number, err := phonenumbers.Parse("+"+strings.TrimPrefix(trimmed, "+"), defaultRegion)
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", trimmed, err)
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("phone %q is not a valid number", trimmed)
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}

func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
