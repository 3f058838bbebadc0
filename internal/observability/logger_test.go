package observability

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		component string
		level     string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "debug worker", component: "worker", level: "debug", wantLevel: zapcore.DebugLevel},
		{name: "upper case warn", component: "api", level: " WARN ", wantLevel: zapcore.WarnLevel},
		{name: "empty level is info", component: "scanner", level: "", wantLevel: zapcore.InfoLevel},
		{name: "no component", level: "error", wantLevel: zapcore.ErrorLevel},
		{name: "unknown level", component: "api", level: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := loggerConfig(tt.component, tt.level)
			if tt.wantErr {
				if err == nil {
					t.Fatal("loggerConfig() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("loggerConfig() error = %v", err)
			}

			if got := cfg.Level.Level(); got != tt.wantLevel {
				t.Fatalf("level = %v, want %v", got, tt.wantLevel)
			}
			if cfg.EncoderConfig.TimeKey != "timestamp" {
				t.Fatalf("time key = %q, want timestamp", cfg.EncoderConfig.TimeKey)
			}
			got, ok := cfg.InitialFields["component"]
			if tt.component == "" {
				if ok {
					t.Fatalf("component field = %v, want none", got)
				}
				return
			}
			if got != tt.component {
				t.Fatalf("component field = %v, want %q", got, tt.component)
			}
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("worker", "verbose")
	if err == nil || logger != nil {
		t.Fatalf("NewLogger() = %v, %v; want nil logger and error", logger, err)
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "tagged context", ctx: WithCorrelationID(context.Background(), "scan-17"), want: "scan-17"},
		{name: "empty id is ignored", ctx: WithCorrelationID(context.Background(), "")},
		{name: "untagged context", ctx: context.Background()},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, recorded := observer.New(zapcore.InfoLevel)
			WithContextLogger(zap.New(core), tt.ctx).Info("follow-up scheduled")

			entries := recorded.All()
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			got, ok := entries[0].ContextMap()["correlationId"]
			if tt.want == "" {
				if ok {
					t.Fatalf("correlationId = %v, want absent", got)
				}
				return
			}
			if got != tt.want {
				t.Fatalf("correlationId = %v, want %q", got, tt.want)
			}
		})
	}

	if WithContextLogger(nil, context.Background()) != nil {
		t.Fatal("nil logger must stay nil")
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(CorrelationMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		correlationID, _ := CorrelationIDFromContext(c.UserContext())
		return c.SendString(correlationID)
	})

	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{name: "reuses caller id", incoming: "crm-req-42", wantSame: true},
		{name: "mints id when missing", incoming: ""},
		{name: "replaces oversized id", incoming: strings.Repeat("x", maxCorrelationIDLength+1)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/ping", nil)
			if tt.incoming != "" {
				req.Header.Set(CorrelationHeader, tt.incoming)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}

			got := resp.Header.Get(CorrelationHeader)
			if tt.wantSame && got != tt.incoming {
				t.Fatalf("correlation id = %q, want %q", got, tt.incoming)
			}
			if !tt.wantSame && len(got) != 36 {
				t.Fatalf("minted correlation id = %q, want uuid", got)
			}
		})
	}
}
