package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/service"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
)

type FollowUpService interface {
	RecordCall(ctx context.Context, cmd domain.RecordCall) (*domain.Completion, error)
	ScheduleFollowUp(ctx context.Context, cmd domain.ScheduleFollowUp) (*domain.CallAttempt, error)
	CompleteFollowUp(ctx context.Context, cmd domain.CompleteFollowUp) (*domain.Completion, error)
	GetFollowUp(ctx context.Context, callID int64) (*service.FollowUpContext, error)
	ListPending(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error)
	ListClosed(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error)
}

// FollowUpHandler serves executed calls and the follow-up worklist.
type FollowUpHandler struct {
	service FollowUpService
	clock   *temporal.Clock
}

func NewFollowUpHandler(service FollowUpService, clock *temporal.Clock) (*FollowUpHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("follow-up service is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &FollowUpHandler{service: service, clock: clock}, nil
}

func RegisterFollowUpRoutes(router fiber.Router, service FollowUpService, clock *temporal.Clock) error {
	h, err := NewFollowUpHandler(service, clock)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/calls", h.RecordCall)
	v1.Get("/calls", h.ListClosedCalls)
	v1.Post("/followups", h.ScheduleFollowUp)
	v1.Get("/followups", h.ListPendingFollowUps)
	v1.Get("/followups/:id", h.GetFollowUp)
	v1.Post("/followups/:id/complete", h.CompleteFollowUp)

	return nil
}

type followUpRequest struct {
	AttemptLevel int    `json:"attemptLevel" validate:"required,min=1"`
	At           string `json:"at" validate:"required"`
	Priority     string `json:"priority" validate:"required,oneof=NORMAL P1 normal p1"`
}

type recordCallRequest struct {
	LeadID       int64            `json:"leadId" validate:"required,min=1"`
	Phone        string           `json:"phone" validate:"required,numeric"`
	Agent        string           `json:"agent" validate:"required"`
	AttemptLevel int              `json:"attemptLevel" validate:"required,min=1"`
	Result       string           `json:"result" validate:"required"`
	Priority     string           `json:"priority" validate:"required,oneof=NORMAL P1 normal p1"`
	FollowUp     *followUpRequest `json:"followUp" validate:"omitempty"`
}

type scheduleFollowUpRequest struct {
	LeadID       int64  `json:"leadId" validate:"required,min=1"`
	Agent        string `json:"agent" validate:"required"`
	AttemptLevel int    `json:"attemptLevel" validate:"required,min=1"`
	Priority     string `json:"priority" validate:"required,oneof=NORMAL P1 normal p1"`
	At           string `json:"at" validate:"required"`
}

type completeFollowUpRequest struct {
	Result   string           `json:"result" validate:"required"`
	Priority string           `json:"priority" validate:"required,oneof=NORMAL P1 normal p1"`
	FollowUp *followUpRequest `json:"followUp" validate:"omitempty"`
}

func (h *FollowUpHandler) RecordCall(c *fiber.Ctx) error {
	var req recordCallRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	result, err := domain.ParseResultFromString(req.Result)
	if err != nil {
		return err
	}
	priority, err := domain.ParsePriorityFromString(req.Priority)
	if err != nil {
		return err
	}
	followUp, err := h.toFollowUp(req.FollowUp)
	if err != nil {
		return err
	}

	completion, err := h.service.RecordCall(c.UserContext(), domain.RecordCall{
		LeadID:       req.LeadID,
		Phone:        req.Phone,
		Agent:        req.Agent,
		AttemptLevel: req.AttemptLevel,
		Result:       result,
		Priority:     priority,
		FollowUp:     followUp,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toCompletionResponse(completion, h.clock.Location()))
}

func (h *FollowUpHandler) ScheduleFollowUp(c *fiber.Ctx) error {
	var req scheduleFollowUpRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	priority, err := domain.ParsePriorityFromString(req.Priority)
	if err != nil {
		return err
	}
	at, err := h.clock.ParseCivil(req.At)
	if err != nil {
		return err
	}

	scheduled, err := h.service.ScheduleFollowUp(c.UserContext(), domain.ScheduleFollowUp{
		LeadID:       req.LeadID,
		Agent:        req.Agent,
		AttemptLevel: req.AttemptLevel,
		Priority:     priority,
		At:           at,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toCallResponse(*scheduled, h.clock.Location()))
}

func (h *FollowUpHandler) CompleteFollowUp(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req completeFollowUpRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	result, err := domain.ParseResultFromString(req.Result)
	if err != nil {
		return err
	}
	priority, err := domain.ParsePriorityFromString(req.Priority)
	if err != nil {
		return err
	}
	followUp, err := h.toFollowUp(req.FollowUp)
	if err != nil {
		return err
	}

	completion, err := h.service.CompleteFollowUp(c.UserContext(), domain.CompleteFollowUp{
		CallID:   id,
		Result:   result,
		Priority: priority,
		FollowUp: followUp,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toCompletionResponse(completion, h.clock.Location()))
}

func (h *FollowUpHandler) GetFollowUp(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	fc, err := h.service.GetFollowUp(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toFollowUpContextResponse(fc, h.clock.Location()))
}

func (h *FollowUpHandler) ListPendingFollowUps(c *fiber.Ctx) error {
	return h.listViews(c, h.service.ListPending)
}

func (h *FollowUpHandler) ListClosedCalls(c *fiber.Ctx) error {
	return h.listViews(c, h.service.ListClosed)
}

func (h *FollowUpHandler) listViews(
	c *fiber.Ctx,
	list func(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error),
) error {
	page, err := parsePage(c)
	if err != nil {
		return err
	}

	result, err := list(c.UserContext(), parseFilter(c), page)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(listResponse[callViewResponse]{
		Data: toCallViewResponses(result.Items, h.clock.Location()),
		Meta: toListMeta(result),
	})
}

func (h *FollowUpHandler) toFollowUp(req *followUpRequest) (*domain.FollowUp, error) {
	if req == nil {
		return nil, nil
	}

	priority, err := domain.ParsePriorityFromString(req.Priority)
	if err != nil {
		return nil, err
	}
	at, err := h.clock.ParseCivil(req.At)
	if err != nil {
		return nil, err
	}

	return &domain.FollowUp{
		AttemptLevel: req.AttemptLevel,
		At:           at,
		Priority:     priority,
	}, nil
}
