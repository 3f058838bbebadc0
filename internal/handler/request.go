package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/relance-engine/internal/domain"
)

var requestValidator = newRequestValidator()

// newRequestValidator reports fields by their JSON names.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// bindRequest parses the JSON body into req and checks its struct tags.
func bindRequest(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return validateRequest(req)
}

func validateRequest(req any) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), firstSegment(fe.Namespace())+".")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "numeric":
		return field + " must be digits only"
	case "min", "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

func firstSegment(namespace string) string {
	head, _, _ := strings.Cut(namespace, ".")
	return head
}

func parseIDParam(c *fiber.Ctx, name string) (int64, error) {
	raw := strings.TrimSpace(c.Params(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrValidation, name)
	}
	return id, nil
}

// parseFilter reads the optional project and leadType query parameters.
func parseFilter(c *fiber.Ctx) domain.LeadFilter {
	return domain.LeadFilter{
		Project:  strings.TrimSpace(c.Query("project")),
		LeadType: strings.TrimSpace(c.Query("leadType")),
	}
}

// parsePage reads page and pageSize. Out-of-range values are clamped by the
// repositories, so only non-numeric input is rejected.
func parsePage(c *fiber.Ctx) (domain.PageRequest, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return domain.PageRequest{}, err
	}
	size, err := queryInt(c, "pageSize")
	if err != nil {
		return domain.PageRequest{}, err
	}
	return domain.PageRequest{Page: page, PageSize: size}.Normalize(), nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, key)
	}
	return v, nil
}
