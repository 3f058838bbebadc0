package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"go.uber.org/zap"
)

// busyRetryAfterSeconds is advertised to clients when storage contention outlasted
// the retry budget.
const busyRetryAfterSeconds = "1"

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := StatusFor(err)
		if code == fiber.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, busyRetryAfterSeconds)
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if requestID := c.GetRespHeader(fiber.HeaderXRequestID); requestID != "" {
			fields = append(fields, zap.String("correlationId", requestID))
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// StatusFor maps an error returned by a handler to its HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrBusy):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
