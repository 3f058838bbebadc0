package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CorrelationHeader carries the request correlation id in and out of the API.
const CorrelationHeader = "X-Request-ID"

type correlationIDKey struct{}

// maxCorrelationIDLength bounds caller-supplied ids; longer ones are replaced.
const maxCorrelationIDLength = 128

// NewLogger builds the JSON production logger; every entry carries the component name.
func NewLogger(component, level string) (*zap.Logger, error) {
	cfg, err := loggerConfig(component, level)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func loggerConfig(component, level string) (zap.Config, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if component = strings.TrimSpace(component); component != "" {
		cfg.InitialFields = map[string]any{"component": component}
	}
	return cfg, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	correlationID, ok := ctx.Value(correlationIDKey{}).(string)
	if !ok || correlationID == "" {
		return "", false
	}

	return correlationID, true
}

func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return logger
	}

	return logger.With(zap.String("correlationId", correlationID))
}

// CorrelationMiddleware reuses the caller's X-Request-ID or mints one, echoes it on
// the response and stores it on the request's user context.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := strings.TrimSpace(c.Get(CorrelationHeader))
		if correlationID == "" || len(correlationID) > maxCorrelationIDLength {
			correlationID = uuid.NewString()
		}

		c.Set(CorrelationHeader, correlationID)
		c.SetUserContext(WithCorrelationID(c.UserContext(), correlationID))
		return c.Next()
	}
}
