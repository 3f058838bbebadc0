package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
	"github.com/kursadbilgin/relance-engine/internal/service"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
)

type LeadService interface {
	CreateLead(ctx context.Context, in service.CreateLeadInput) (*domain.Lead, bool, error)
	GetLead(ctx context.Context, id int64) (*service.LeadDetail, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[kpi.LeadSummary], error)
	Clock() *temporal.Clock
}

type LeadHandler struct {
	service LeadService
}

func NewLeadHandler(service LeadService) (*LeadHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("lead service is required")
	}
	return &LeadHandler{service: service}, nil
}

func RegisterLeadRoutes(router fiber.Router, service LeadService) error {
	h, err := NewLeadHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/leads", h.CreateLead)
	v1.Get("/leads", h.ListLeads)
	v1.Get("/leads/:id", h.GetLead)

	return nil
}

// createLeadRequest is the CRM push. leadCreatedAt accepts DD/MM/YYYY HH:mm,
// ISO civil time or RFC 3339.
type createLeadRequest struct {
	LeadKey       string `json:"leadKey" validate:"required"`
	Project       string `json:"project" validate:"required"`
	LeadType      string `json:"leadType" validate:"required"`
	LeadCreatedAt string `json:"leadCreatedAt" validate:"required"`
}

// CreateLead answers 201 for a new lead and 200 when the key was already known.
func (h *LeadHandler) CreateLead(c *fiber.Ctx) error {
	var req createLeadRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	lead, created, err := h.service.CreateLead(c.UserContext(), service.CreateLeadInput{
		LeadKey:       req.LeadKey,
		Project:       req.Project,
		LeadType:      req.LeadType,
		LeadCreatedAt: req.LeadCreatedAt,
	})
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(createLeadResponse{
		ID:            lead.ID,
		LeadKey:       lead.LeadKey,
		Project:       lead.Project,
		LeadType:      lead.LeadType,
		LeadCreatedAt: lead.LeadCreatedAt.In(h.location()),
		Created:       created,
	})
}

func (h *LeadHandler) GetLead(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	detail, err := h.service.GetLead(c.UserContext(), id)
	if err != nil {
		return err
	}

	loc := h.location()
	return c.Status(fiber.StatusOK).JSON(leadDetailResponse{
		Lead:    toLeadResponse(detail.Summary, loc),
		History: toCallResponses(detail.History, loc),
	})
}

func (h *LeadHandler) ListLeads(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return err
	}

	result, err := h.service.ListLeads(c.UserContext(), parseFilter(c), page)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(listResponse[leadResponse]{
		Data: toLeadResponses(result.Items, h.location()),
		Meta: toListMeta(result),
	})
}

func (h *LeadHandler) location() *time.Location {
	return h.service.Clock().Location()
}
