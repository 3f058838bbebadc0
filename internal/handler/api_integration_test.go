package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/relance-engine/internal/infra/migrations"
	"github.com/kursadbilgin/relance-engine/internal/infra/sqlite"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"github.com/kursadbilgin/relance-engine/internal/service"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
	"github.com/kursadbilgin/relance-engine/internal/transport"
	"go.uber.org/zap"
)

// mondayMorning is Monday 2 March 2026, 10:00 in Paris.
var mondayMorning = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	app *fiber.App
	now time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqlite.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	if err := migrations.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	clock, err := temporal.LoadClock(temporal.DefaultTimezone)
	if err != nil {
		t.Fatalf("LoadClock() error = %v", err)
	}

	api := &testAPI{now: mondayMorning}
	withNow := repository.WithNow(func() time.Time { return api.now })
	leadRepo := repository.NewGormLeadRepo(db, withNow)
	callRepo := repository.NewGormCallRepo(db, withNow)
	deliveryRepo := repository.NewGormDeliveryRepo(db, withNow)

	leads, err := service.NewLeadService(leadRepo, callRepo, nil, clock, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLeadService() error = %v", err)
	}
	followUps, err := service.NewFollowUpService(callRepo, deliveryRepo, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFollowUpService() error = %v", err)
	}
	dashboard, err := service.NewDashboardService(leadRepo, nil, clock, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDashboardService() error = %v", err)
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	RegisterHealthRoutes(app, map[string]ReadinessCheck{"database": DatabaseCheck(sqlDB)})
	RegisterMetricsRoute(app, metrics)
	if err := RegisterLeadRoutes(app, leads); err != nil {
		t.Fatalf("RegisterLeadRoutes() error = %v", err)
	}
	if err := RegisterFollowUpRoutes(app, followUps, clock); err != nil {
		t.Fatalf("RegisterFollowUpRoutes() error = %v", err)
	}
	if err := RegisterDashboardRoutes(app, dashboard); err != nil {
		t.Fatalf("RegisterDashboardRoutes() error = %v", err)
	}

	api.app = app
	return api
}

func (a *testAPI) createLead(t *testing.T, key string) int64 {
	t.Helper()

	body := fmt.Sprintf(`{"leadKey":%q,"project":"Colisée","leadType":"Web","leadCreatedAt":"02/03/2026 10:00"}`, key)
	resp, raw := performRequest(t, a.app, http.MethodPost, "/v1/leads", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create lead status = %d, body=%s", resp.StatusCode, raw)
	}
	var created createLeadResponse
	decodeJSON(t, raw, &created)
	return created.ID
}

func TestLeadRoutes(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	body := `{"leadKey":"CRM-001","project":"Colisée","leadType":"Web","leadCreatedAt":"02/03/2026 10:00"}`
	resp, raw := performRequest(t, api.app, http.MethodPost, "/v1/leads", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, raw)
	}
	var first createLeadResponse
	decodeJSON(t, raw, &first)
	if !first.Created || first.ID == 0 {
		t.Fatalf("first create = %+v, want created with id", first)
	}
	if !first.LeadCreatedAt.Equal(mondayMorning) {
		t.Fatalf("leadCreatedAt = %v, want %v", first.LeadCreatedAt, mondayMorning)
	}

	resp, raw = performRequest(t, api.app, http.MethodPost, "/v1/leads",
		`{"leadKey":"CRM-001","project":"Nohée","leadType":"Web","leadCreatedAt":"03/03/2026 11:00"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 for known key, body=%s", resp.StatusCode, raw)
	}
	var again createLeadResponse
	decodeJSON(t, raw, &again)
	if again.Created || again.ID != first.ID || again.Project != "Colisée" {
		t.Fatalf("repeated create = %+v, want untouched lead %d", again, first.ID)
	}

	resp, raw = performRequest(t, api.app, http.MethodGet, fmt.Sprintf("/v1/leads/%d", first.ID), "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get status = %d, body=%s", resp.StatusCode, raw)
	}
	var detail leadDetailResponse
	decodeJSON(t, raw, &detail)
	if detail.Lead.LeadKey != "CRM-001" || detail.Lead.CallCount != 0 || detail.Lead.ReactivityMinutes != nil {
		t.Fatalf("lead detail = %+v", detail.Lead)
	}

	resp, raw = performRequest(t, api.app, http.MethodGet, "/v1/leads?project=Noh%C3%A9e", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list status = %d, body=%s", resp.StatusCode, raw)
	}
	var filtered listResponse[leadResponse]
	decodeJSON(t, raw, &filtered)
	if filtered.Meta.Total != 0 || len(filtered.Data) != 0 {
		t.Fatalf("filtered list = %+v, want empty", filtered)
	}

	resp, _ = performRequest(t, api.app, http.MethodGet, "/v1/leads/999", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown lead", resp.StatusCode)
	}
}

func TestLeadRoutesRejectInvalidInput(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantError string
	}{
		{
			name:      "missing project",
			method:    http.MethodPost,
			path:      "/v1/leads",
			body:      `{"leadKey":"CRM-1","leadType":"Web","leadCreatedAt":"02/03/2026 10:00"}`,
			wantError: "project is required",
		},
		{
			name:      "nonexistent civil time",
			method:    http.MethodPost,
			path:      "/v1/leads",
			body:      `{"leadKey":"CRM-1","project":"Colisée","leadType":"Web","leadCreatedAt":"29/03/2026 02:30"}`,
			wantError: "DST gap",
		},
		{
			name:      "malformed body",
			method:    http.MethodPost,
			path:      "/v1/leads",
			body:      `{"leadKey":`,
			wantError: "invalid request body",
		},
		{
			name:      "non numeric id",
			method:    http.MethodGet,
			path:      "/v1/leads/abc",
			wantError: "id must be a positive integer",
		},
		{
			name:      "non numeric page",
			method:    http.MethodGet,
			path:      "/v1/leads?page=two",
			wantError: "page must be an integer",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := performRequest(t, api.app, tt.method, tt.path, tt.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, raw)
			}
			if !strings.Contains(string(raw), tt.wantError) {
				t.Fatalf("body = %s, want error containing %q", raw, tt.wantError)
			}
		})
	}
}

func TestFollowUpLifecycle(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	leadID := api.createLead(t, "CRM-100")

	api.now = mondayMorning.Add(10 * time.Minute)
	recordBody := fmt.Sprintf(`{
		"leadId": %d,
		"phone": "33612345678",
		"agent": "Luisa",
		"attemptLevel": 1,
		"result": "no answer",
		"priority": "normal",
		"followUp": {"attemptLevel": 2, "at": "2026-03-02T11:30", "priority": "P1"}
	}`, leadID)
	resp, raw := performRequest(t, api.app, http.MethodPost, "/v1/calls", recordBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("record status = %d, want 201, body=%s", resp.StatusCode, raw)
	}
	var recorded completionResponse
	decodeJSON(t, raw, &recorded)
	if recorded.Closed.State != "CLOSED" || recorded.Closed.Result != "No answer" {
		t.Fatalf("closed = %+v", recorded.Closed)
	}
	if recorded.Next == nil || recorded.Next.State != "PENDING" || recorded.Next.Priority != "P1" {
		t.Fatalf("next = %+v, want pending P1", recorded.Next)
	}
	wantNext := mondayMorning.Add(90 * time.Minute)
	if recorded.Next.NextCallAt == nil || !recorded.Next.NextCallAt.Equal(wantNext) {
		t.Fatalf("nextCallAt = %v, want %v", recorded.Next.NextCallAt, wantNext)
	}

	resp, raw = performRequest(t, api.app, http.MethodGet, "/v1/followups", "")
	var pending listResponse[callViewResponse]
	decodeJSON(t, raw, &pending)
	if resp.StatusCode != fiber.StatusOK || pending.Meta.Total != 1 || pending.Data[0].ID != recorded.Next.ID {
		t.Fatalf("pending = %+v", pending)
	}
	if pending.Data[0].LeadKey != "CRM-100" || pending.Data[0].Phone == nil || *pending.Data[0].Phone != "33612345678" {
		t.Fatalf("pending view = %+v, want lead context", pending.Data[0])
	}

	resp, raw = performRequest(t, api.app, http.MethodGet, fmt.Sprintf("/v1/followups/%d", recorded.Next.ID), "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get follow-up status = %d, body=%s", resp.StatusCode, raw)
	}
	var fc followUpContextResponse
	decodeJSON(t, raw, &fc)
	if len(fc.History) != 2 || len(fc.Deliveries) != 0 {
		t.Fatalf("context = %+v, want 2 history rows and no deliveries", fc)
	}

	api.now = mondayMorning.Add(2 * time.Hour)
	completePath := fmt.Sprintf("/v1/followups/%d/complete", recorded.Next.ID)
	resp, raw = performRequest(t, api.app, http.MethodPost, completePath, `{"result":"Qualified","priority":"NORMAL"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("complete status = %d, body=%s", resp.StatusCode, raw)
	}
	var completed completionResponse
	decodeJSON(t, raw, &completed)
	if completed.Closed.ID != recorded.Next.ID || completed.Closed.NextCallAt != nil || completed.Next != nil {
		t.Fatalf("completion = %+v", completed)
	}

	resp, _ = performRequest(t, api.app, http.MethodPost, completePath, `{"result":"Qualified","priority":"NORMAL"}`)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 when completing twice", resp.StatusCode)
	}

	resp, _ = performRequest(t, api.app, http.MethodPost, "/v1/followups/9999/complete", `{"result":"Qualified","priority":"NORMAL"}`)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown follow-up", resp.StatusCode)
	}

	_, raw = performRequest(t, api.app, http.MethodGet, "/v1/followups", "")
	decodeJSON(t, raw, &pending)
	if pending.Meta.Total != 0 {
		t.Fatalf("pending total = %d, want 0", pending.Meta.Total)
	}

	_, raw = performRequest(t, api.app, http.MethodGet, "/v1/calls?pageSize=1", "")
	var closed listResponse[callViewResponse]
	decodeJSON(t, raw, &closed)
	if closed.Meta.Total != 2 || closed.Meta.Pages != 2 || len(closed.Data) != 1 {
		t.Fatalf("closed meta = %+v, want 2 rows over 2 pages", closed.Meta)
	}
	if closed.Data[0].Result != "Qualified" {
		t.Fatalf("most recent closed result = %s, want Qualified", closed.Data[0].Result)
	}
}

func TestScheduleFollowUpRoute(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	leadID := api.createLead(t, "CRM-200")

	body := fmt.Sprintf(`{"leadId":%d,"agent":"Clara","attemptLevel":1,"priority":"NORMAL","at":"02/03/2026 14:00"}`, leadID)
	for i := 0; i < 2; i++ {
		resp, raw := performRequest(t, api.app, http.MethodPost, "/v1/followups", body)
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("schedule status = %d, body=%s", resp.StatusCode, raw)
		}
	}

	_, raw := performRequest(t, api.app, http.MethodGet, "/v1/followups?project=Colis%C3%A9e", "")
	var pending listResponse[callViewResponse]
	decodeJSON(t, raw, &pending)
	if pending.Meta.Total != 2 {
		t.Fatalf("pending total = %d, want 2 independent follow-ups", pending.Meta.Total)
	}

	unknownLead := `{"leadId":4242,"agent":"Clara","attemptLevel":1,"priority":"NORMAL","at":"02/03/2026 14:00"}`
	resp, _ := performRequest(t, api.app, http.MethodPost, "/v1/followups", unknownLead)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown lead", resp.StatusCode)
	}

	badPriority := fmt.Sprintf(`{"leadId":%d,"agent":"Clara","attemptLevel":1,"priority":"URGENT","at":"02/03/2026 14:00"}`, leadID)
	resp, raw = performRequest(t, api.app, http.MethodPost, "/v1/followups", badPriority)
	if resp.StatusCode != fiber.StatusBadRequest || !strings.Contains(string(raw), "priority must be one of") {
		t.Fatalf("status = %d body=%s, want 400 for invalid priority", resp.StatusCode, raw)
	}
}

func TestRecordCallRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	leadID := api.createLead(t, "CRM-300")

	tests := []struct {
		name string
		body string
	}{
		{name: "phone with letters", body: fmt.Sprintf(`{"leadId":%d,"phone":"06AB","agent":"Luisa","attemptLevel":1,"result":"No answer","priority":"NORMAL"}`, leadID)},
		{name: "missing agent", body: fmt.Sprintf(`{"leadId":%d,"phone":"33612345678","attemptLevel":1,"result":"No answer","priority":"NORMAL"}`, leadID)},
		{name: "attempt level zero", body: fmt.Sprintf(`{"leadId":%d,"phone":"33612345678","agent":"Luisa","attemptLevel":0,"result":"No answer","priority":"NORMAL"}`, leadID)},
		{name: "planned result", body: fmt.Sprintf(`{"leadId":%d,"phone":"33612345678","agent":"Luisa","attemptLevel":1,"result":"Planned","priority":"NORMAL"}`, leadID)},
		{name: "follow-up without date", body: fmt.Sprintf(`{"leadId":%d,"phone":"33612345678","agent":"Luisa","attemptLevel":1,"result":"No answer","priority":"NORMAL","followUp":{"attemptLevel":2,"priority":"P1"}}`, leadID)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := performRequest(t, api.app, http.MethodPost, "/v1/calls", tt.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, raw)
			}
		})
	}

	_, raw := performRequest(t, api.app, http.MethodGet, "/v1/calls", "")
	var closed listResponse[callViewResponse]
	decodeJSON(t, raw, &closed)
	if closed.Meta.Total != 0 {
		t.Fatalf("closed total = %d, rejected calls must not be stored", closed.Meta.Total)
	}
}

func TestDashboardRoute(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	leadID := api.createLead(t, "CRM-400")

	api.now = mondayMorning.Add(44*time.Minute + 30*time.Second)
	body := fmt.Sprintf(`{"leadId":%d,"phone":"33612345678","agent":"Luisa","attemptLevel":1,"result":"No answer","priority":"NORMAL"}`, leadID)
	resp, raw := performRequest(t, api.app, http.MethodPost, "/v1/calls", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("record status = %d, body=%s", resp.StatusCode, raw)
	}

	resp, raw = performRequest(t, api.app, http.MethodGet, "/v1/dashboard?project=Colis%C3%A9e", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("dashboard status = %d, body=%s", resp.StatusCode, raw)
	}
	var dashboard dashboardResponse
	decodeJSON(t, raw, &dashboard)
	if dashboard.LeadsTotal != 1 || dashboard.CallsTotal != 1 || dashboard.Combativity != 1 {
		t.Fatalf("dashboard = %+v", dashboard)
	}
	if dashboard.ReactivityMean == nil || *dashboard.ReactivityMean != 44 {
		t.Fatalf("reactivityMean = %v, want 44", dashboard.ReactivityMean)
	}
	if dashboard.ReactivityPctUnderLimit != 100 || dashboard.ReactivityTargetMinutes != 45 {
		t.Fatalf("dashboard = %+v, want 100%% under 45 minutes", dashboard)
	}

	_, raw = performRequest(t, api.app, http.MethodGet, "/v1/dashboard?project=Noh%C3%A9e", "")
	decodeJSON(t, raw, &dashboard)
	if dashboard.LeadsTotal != 0 || dashboard.ReactivityMean != nil {
		t.Fatalf("empty dashboard = %+v", dashboard)
	}
}

func TestCorrelationHeaderIsEchoed(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(observability.CorrelationHeader, "req-42")
	resp, err := api.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()

	if got := resp.Header.Get(observability.CorrelationHeader); got != "req-42" {
		t.Fatalf("correlation header = %q, want req-42", got)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	t.Run("livez and readyz with healthy dependencies", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t)

		resp, raw := performRequest(t, api.app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("livez status = %d, body=%s", resp.StatusCode, raw)
		}
		resp, raw = performRequest(t, api.app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(raw), `"database":"ok"`) {
			t.Fatalf("readyz status = %d, body=%s", resp.StatusCode, raw)
		}
	})

	t.Run("readyz returns 503 when a dependency is down", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, map[string]ReadinessCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("redis down") },
		})

		resp, raw := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, raw)
		}
		if !strings.Contains(string(raw), `"redis":"down"`) {
			t.Fatalf("body = %s, want redis reported down", raw)
		}
	})

	t.Run("metrics exposes relance collectors", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t)
		performRequest(t, api.app, http.MethodGet, "/livez", "")

		resp, raw := performRequest(t, api.app, http.MethodGet, "/metrics", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("metrics status = %d", resp.StatusCode)
		}
		if !strings.Contains(string(raw), "relance_http_requests_total") {
			t.Fatalf("metrics output missing http counter:\n%s", raw)
		}
	})
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func decodeJSON(t *testing.T, raw []byte, v any) {
	t.Helper()

	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("json unmarshal error = %v, body=%s", err, raw)
	}
}
