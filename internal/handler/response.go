package handler

import (
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
	"github.com/kursadbilgin/relance-engine/internal/service"
)

// Timestamps are rendered as RFC 3339 in the call center's timezone.

type listResponse[T any] struct {
	Data []T      `json:"data"`
	Meta listMeta `json:"meta"`
}

type listMeta struct {
	Page              int   `json:"page"`
	PageSize          int   `json:"pageSize"`
	Total             int64 `json:"total"`
	Pages             int64 `json:"pages"`
	IntegrityWarnings int64 `json:"integrityWarnings"`
}

type leadResponse struct {
	ID                int64      `json:"id"`
	LeadKey           string     `json:"leadKey"`
	Phone             *string    `json:"phone,omitempty"`
	Project           string     `json:"project"`
	LeadType          string     `json:"leadType"`
	LeadCreatedAt     time.Time  `json:"leadCreatedAt"`
	CallCount         int        `json:"callCount"`
	FirstCallAt       *time.Time `json:"firstCallAt,omitempty"`
	LastDoneAt        *time.Time `json:"lastDoneAt,omitempty"`
	LastResult        *string    `json:"lastResult,omitempty"`
	ReactivityMinutes *int64     `json:"reactivityMinutes"`
	ReactivityInScope int        `json:"reactivityInScope"`
}

type createLeadResponse struct {
	ID            int64     `json:"id"`
	LeadKey       string    `json:"leadKey"`
	Project       string    `json:"project"`
	LeadType      string    `json:"leadType"`
	LeadCreatedAt time.Time `json:"leadCreatedAt"`
	Created       bool      `json:"created"`
}

type leadDetailResponse struct {
	Lead    leadResponse   `json:"lead"`
	History []callResponse `json:"history"`
}

type callResponse struct {
	ID           int64      `json:"id"`
	LeadID       int64      `json:"leadId"`
	Agent        string     `json:"agent"`
	AttemptLevel int        `json:"attemptLevel"`
	Result       string     `json:"result"`
	Priority     string     `json:"priority"`
	State        string     `json:"state"`
	NextCallAt   *time.Time `json:"nextCallAt,omitempty"`
	DoneAt       *time.Time `json:"doneAt,omitempty"`
	RemindedAt   *time.Time `json:"remindedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type callViewResponse struct {
	callResponse
	LeadKey       string    `json:"leadKey"`
	Phone         *string   `json:"phone,omitempty"`
	Project       string    `json:"project"`
	LeadType      string    `json:"leadType"`
	LeadCreatedAt time.Time `json:"leadCreatedAt"`
}

type completionResponse struct {
	Closed callResponse  `json:"closed"`
	Next   *callResponse `json:"next,omitempty"`
}

type deliveryResponse struct {
	ID            string    `json:"id"`
	AttemptNumber int       `json:"attemptNumber"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	Error         *string   `json:"error,omitempty"`
	Succeeded     bool      `json:"succeeded"`
	CreatedAt     time.Time `json:"createdAt"`
}

type followUpContextResponse struct {
	Call       callViewResponse   `json:"call"`
	History    []callResponse     `json:"history"`
	Deliveries []deliveryResponse `json:"deliveries"`
}

type dashboardResponse struct {
	LeadsTotal              int      `json:"leadsTotal"`
	CallsTotal              int      `json:"callsTotal"`
	Combativity             float64  `json:"combativity"`
	ReactivityMeasured      int      `json:"reactivityMeasured"`
	ReactivityMean          *float64 `json:"reactivityMean"`
	ReactivityMedian        *float64 `json:"reactivityMedian"`
	ReactivityPctUnderLimit float64  `json:"reactivityPctUnder45"`
	ReactivityTargetMinutes int      `json:"reactivityTargetMinutes"`
	NegativeReactivity      int      `json:"negativeReactivity"`
}

func toListMeta[T any](page domain.Page[T]) listMeta {
	return listMeta{
		Page:              page.Page,
		PageSize:          page.PageSize,
		Total:             page.Total,
		Pages:             page.Pages(),
		IntegrityWarnings: page.IntegrityWarnings,
	}
}

func toLeadResponse(s kpi.LeadSummary, loc *time.Location) leadResponse {
	resp := leadResponse{
		ID:                s.ID,
		LeadKey:           s.LeadKey,
		Phone:             s.Phone,
		Project:           s.Project,
		LeadType:          s.LeadType,
		LeadCreatedAt:     s.LeadCreatedAt.In(loc),
		CallCount:         s.CallCount,
		FirstCallAt:       localTime(s.FirstCallAt, loc),
		LastDoneAt:        localTime(s.LastDoneAt, loc),
		ReactivityMinutes: s.ReactivityMinutes,
		ReactivityInScope: s.ReactivityInScope,
	}
	if s.LastResult != nil {
		result := s.LastResult.String()
		resp.LastResult = &result
	}
	return resp
}

func toLeadResponses(summaries []kpi.LeadSummary, loc *time.Location) []leadResponse {
	out := make([]leadResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toLeadResponse(s, loc))
	}
	return out
}

func toCallResponse(a domain.CallAttempt, loc *time.Location) callResponse {
	return callResponse{
		ID:           a.ID,
		LeadID:       a.LeadID,
		Agent:        a.Agent,
		AttemptLevel: a.AttemptLevel,
		Result:       a.Result.String(),
		Priority:     a.Priority.String(),
		State:        a.State().String(),
		NextCallAt:   localTime(a.NextCallAt, loc),
		DoneAt:       localTime(a.DoneAt, loc),
		RemindedAt:   localTime(a.RemindedAt, loc),
		CreatedAt:    a.CreatedAt.In(loc),
	}
}

func toCallResponses(attempts []domain.CallAttempt, loc *time.Location) []callResponse {
	out := make([]callResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, toCallResponse(a, loc))
	}
	return out
}

func toCallViewResponse(v domain.CallView, loc *time.Location) callViewResponse {
	return callViewResponse{
		callResponse:  toCallResponse(v.CallAttempt, loc),
		LeadKey:       v.LeadKey,
		Phone:         v.Phone,
		Project:       v.Project,
		LeadType:      v.LeadType,
		LeadCreatedAt: v.LeadCreatedAt.In(loc),
	}
}

func toCallViewResponses(views []domain.CallView, loc *time.Location) []callViewResponse {
	out := make([]callViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toCallViewResponse(v, loc))
	}
	return out
}

func toCompletionResponse(c *domain.Completion, loc *time.Location) completionResponse {
	resp := completionResponse{Closed: toCallResponse(c.Closed, loc)}
	if c.Next != nil {
		next := toCallResponse(*c.Next, loc)
		resp.Next = &next
	}
	return resp
}

func toFollowUpContextResponse(fc *service.FollowUpContext, loc *time.Location) followUpContextResponse {
	deliveries := make([]deliveryResponse, 0, len(fc.Deliveries))
	for _, d := range fc.Deliveries {
		deliveries = append(deliveries, deliveryResponse{
			ID:            d.ID,
			AttemptNumber: d.AttemptNumber,
			StatusCode:    d.StatusCode,
			Error:         d.Error,
			Succeeded:     d.Succeeded(),
			CreatedAt:     d.CreatedAt.In(loc),
		})
	}

	return followUpContextResponse{
		Call:       toCallViewResponse(fc.Call, loc),
		History:    toCallResponses(fc.History, loc),
		Deliveries: deliveries,
	}
}

func toDashboardResponse(d kpi.Dashboard) dashboardResponse {
	return dashboardResponse{
		LeadsTotal:              d.LeadsTotal,
		CallsTotal:              d.CallsTotal,
		Combativity:             d.Combativity,
		ReactivityMeasured:      d.ReactivityMeasured,
		ReactivityMean:          d.ReactivityMean,
		ReactivityMedian:        d.ReactivityMedian,
		ReactivityPctUnderLimit: d.ReactivityPctUnder45,
		ReactivityTargetMinutes: kpi.ReactivityTargetMinutes,
		NegativeReactivity:      d.NegativeReactivity,
	}
}

func localTime(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	local := t.In(loc)
	return &local
}
