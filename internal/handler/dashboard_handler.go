package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
)

type DashboardService interface {
	GetDashboard(ctx context.Context, filter domain.LeadFilter) (kpi.Dashboard, error)
}

func RegisterDashboardRoutes(router fiber.Router, service DashboardService) error {
	if service == nil {
		return fmt.Errorf("dashboard service is required")
	}

	router.Group("/v1").Get("/dashboard", func(c *fiber.Ctx) error {
		dashboard, err := service.GetDashboard(c.UserContext(), parseFilter(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusOK).JSON(toDashboardResponse(dashboard))
	})

	return nil
}
