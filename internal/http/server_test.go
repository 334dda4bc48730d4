package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lifeplan/internal/core"
	"lifeplan/internal/log"
	"lifeplan/internal/plans/memory"
	"lifeplan/internal/services"
	"lifeplan/internal/settings"
)

func scenarioPlan() core.Plan {
	item := func(c core.Category, name, date, v string) core.PlanItem {
		return core.PlanItem{Category: c, Name: name, Date: date, Value: decimal.RequireFromString(v)}
	}
	return core.Plan{
		ID:        "p1",
		Name:      "Scenario",
		TermYears: 1,
		Items: []core.PlanItem{
			item(core.Income, "Salary", "2024-01-01", "1000"),
			item(core.Income, "Salary", "2024-02-01", "1000"),
			item(core.Costs, "Rent", "2024-01-01", "400"),
			item(core.Costs, "Rent", "2024-02-01", "500"),
			item(core.Investments, "Reserve", "2024-01-01", "5000"),
			item(core.Investments, "Reserve", "2024-02-01", "0"),
		},
	}
}

func newTestServer(t *testing.T, cfg Config) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New(scenarioPlan())
	plans := services.NewPlanService(store)
	srv := NewServer(cfg, Dependencies{
		Plans:    plans,
		Sessions: services.NewSessionManager(plans, 16, time.Hour),
		Settings: settings.NewMemoryStore(settings.Default()),
		Logger:   log.New(log.Config{Output: io.Discard}),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

type apiResponse struct {
	Data         json.RawMessage `json:"data"`
	Notification *Notification   `json:"notification"`
	Error        *ErrorBody      `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "203.0.113.10:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	var out apiResponse
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") && rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr, out
}

func decodeView(t *testing.T, raw json.RawMessage) services.SessionView {
	t.Helper()
	var v services.SessionView
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	return v
}

func TestHealthReadyMetrics(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr, _ := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}
	rr, _ := do(t, srv, http.MethodGet, "/metrics", "")
	if !strings.Contains(rr.Body.String(), "http_requests_total 3") {
		t.Fatalf("metrics should count earlier requests:\n%s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("trace middleware not applied")
	}
}

func TestPagesRender(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rr, _ := do(t, srv, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, `href="/plans/p1"`) || !strings.Contains(body, `data-theme="light"`) {
		t.Fatalf("index missing plan link or theme:\n%s", body)
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("security headers not applied")
	}

	rr, _ = do(t, srv, http.MethodGet, "/plans/p1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("plan page status=%d body=%s", rr.Code, rr.Body.String())
	}
	body = rr.Body.String()
	for _, want := range []string{"<title>Scenario · Life plan</title>", "5500.00", `data-category="profitLoss"`} {
		if !strings.Contains(body, want) {
			t.Errorf("plan page missing %q", want)
		}
	}

	rr, _ = do(t, srv, http.MethodGet, "/plans/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing plan page status=%d", rr.Code)
	}

	rr, _ = do(t, srv, http.MethodGet, "/static/app.css", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Fatalf("static asset status=%d cache=%q", rr.Code, rr.Header().Get("Cache-Control"))
	}
}

func TestCreateListDeletePlan(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rr, res := do(t, srv, http.MethodPost, "/api/plans", `{"name":"Retirement","start":"2025-01","term":2}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created core.PlanSummary
	if err := json.Unmarshal(res.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.TermYears != 2 || rr.Header().Get("Location") != "/plans/"+created.ID {
		t.Fatalf("unexpected plan %+v location=%q", created, rr.Header().Get("Location"))
	}
	if res.Notification == nil || res.Notification.Type != NotificationSuccess {
		t.Fatalf("expected success notification, got %+v", res.Notification)
	}

	_, res = do(t, srv, http.MethodGet, "/api/plans", "")
	var list []core.PlanSummary
	_ = json.Unmarshal(res.Data, &list)
	if len(list) != 2 {
		t.Fatalf("list = %+v", list)
	}

	rr, _ = do(t, srv, http.MethodGet, "/api/plans/"+created.ID+"/dashboard", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d", rr.Code)
	}

	rr, _ = do(t, srv, http.MethodDelete, "/api/plans/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr, res = do(t, srv, http.MethodGet, "/api/plans/"+created.ID+"/dashboard", "")
	if rr.Code != http.StatusNotFound || res.Error == nil || res.Error.Code != "plan_not_found" {
		t.Fatalf("deleted dashboard status=%d error=%+v", rr.Code, res.Error)
	}
}

func TestCreatePlanValidation(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty name", `{"name":"  ","start":"2024-01","term":1}`, http.StatusUnprocessableEntity},
		{"bad term", `{"name":"x","start":"2024-01","term":500}`, http.StatusUnprocessableEntity},
		{"bad start", `{"name":"x","start":"soon","term":1}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"name":"x","colour":"red"}`, http.StatusBadRequest},
		{"not json", `name=x`, http.StatusBadRequest},
		{"two objects", `{"name":"x"}{"name":"y"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, res := do(t, srv, http.MethodPost, "/api/plans", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if res.Notification == nil || res.Notification.Type != NotificationError {
				t.Fatalf("expected error notification, got %+v", res.Notification)
			}
		})
	}
}

func TestAPIRoutesLogUnderTheirComponent(t *testing.T) {
	var buf bytes.Buffer
	store := memory.New(scenarioPlan())
	plans := services.NewPlanService(store)
	srv := NewServer(Config{}, Dependencies{
		Plans:    plans,
		Sessions: services.NewSessionManager(plans, 16, time.Hour),
		Logger:   log.New(log.Config{Output: &buf}),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	if rr, _ := do(t, srv, http.MethodPost, "/api/plans", `{"name":"Retirement","start":"2025-01","term":1}`); rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}

	_, res := do(t, srv, http.MethodPost, "/api/plans/p1/sessions", "")
	base := "/api/sessions/" + decodeView(t, res.Data).ID
	do(t, srv, http.MethodPost, base+"/rows", `{"category":"investments","name":"ETF"}`)
	if rr, _ := do(t, srv, http.MethodPut, base+"/cells", `{"category":"investments","row":1,"date":"2024-01","value":"6000"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("ceiling status=%d", rr.Code)
	}

	tests := []struct{ msg, component string }{
		{`msg="Plan created"`, "component=plans"},
		{`msg="Investment rejected by reserve ceiling"`, "component=sessions"},
	}
	for _, tt := range tests {
		var line string
		for _, l := range strings.Split(buf.String(), "\n") {
			if strings.Contains(l, tt.msg) {
				line = l
			}
		}
		if line == "" {
			t.Fatalf("no %s log line in:\n%s", tt.msg, buf.String())
		}
		if !strings.Contains(line, tt.component) || !strings.Contains(line, "request_id=") {
			t.Errorf("%s logged as %q, want %s with a request id", tt.msg, line, tt.component)
		}
	}
}

func TestEditingSessionFlow(t *testing.T) {
	srv, store := newTestServer(t, Config{})

	rr, res := do(t, srv, http.MethodPost, "/api/plans/p1/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("open status=%d body=%s", rr.Code, rr.Body.String())
	}
	view := decodeView(t, res.Data)
	base := "/api/sessions/" + view.ID
	if got := view.Table.Reserve[1]; !got.Equal(decimal.NewFromInt(5500)) {
		t.Fatalf("reserve(2024-02) = %s", got)
	}

	// Raising February rent lowers the closing reserve.
	rr, res = do(t, srv, http.MethodPut, base+"/cells", `{"category":"costs","row":0,"date":"2024-02","value":"600"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set cell status=%d body=%s", rr.Code, rr.Body.String())
	}
	view = decodeView(t, res.Data)
	if !view.Dirty || !view.Table.Reserve[1].Equal(decimal.NewFromInt(5400)) {
		t.Fatalf("dirty=%v reserve=%s", view.Dirty, view.Table.Reserve[1])
	}

	rr, res = do(t, srv, http.MethodPost, base+"/rows", `{"category":"investments","name":"ETF"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add row status=%d body=%s", rr.Code, rr.Body.String())
	}
	var added struct {
		RowID int `json:"row_id"`
	}
	_ = json.Unmarshal(res.Data, &added)
	if added.RowID != 1 {
		t.Fatalf("row id = %d", added.RowID)
	}

	rr, res = do(t, srv, http.MethodPut, base+"/cells", `{"category":"investments","row":1,"date":"2024-01","value":"6000"}`)
	if rr.Code != http.StatusUnprocessableEntity || res.Error == nil || res.Error.Code != "ceiling_exceeded" {
		t.Fatalf("ceiling status=%d error=%+v", rr.Code, res.Error)
	}
	detail, _ := res.Error.Detail.(map[string]any)
	if detail["available"] != "5000.00" {
		t.Fatalf("ceiling detail = %+v", res.Error.Detail)
	}
	if len(res.Data) == 0 {
		t.Fatalf("rejected edit should still return the session view")
	}

	rr, res = do(t, srv, http.MethodPost, base+"/select", `{"category":"profitLoss","row":0,"field":"value","date":"2024-01"}`)
	if rr.Code != http.StatusForbidden || res.Error.Code != "locked" {
		t.Fatalf("select profit/loss status=%d error=%+v", rr.Code, res.Error)
	}

	rr, _ = do(t, srv, http.MethodPut, base+"/rows/investments/1/name", `{"name":"World ETF"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("rename status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr, _ = do(t, srv, http.MethodDelete, base+"/rows/investments/0", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("removing the reserve row status=%d", rr.Code)
	}

	rr, res = do(t, srv, http.MethodPost, base+"/save", "")
	if rr.Code != http.StatusOK || res.Notification == nil || res.Notification.Type != NotificationSuccess {
		t.Fatalf("save status=%d notification=%+v", rr.Code, res.Notification)
	}
	if view = decodeView(t, res.Data); view.Dirty || view.Version != 2 {
		t.Fatalf("after save dirty=%v version=%d", view.Dirty, view.Version)
	}
	stored, _ := store.GetPlan(context.Background(), "p1")
	if stored.Version != 2 {
		t.Fatalf("stored version = %d", stored.Version)
	}

	rr, res = do(t, srv, http.MethodPost, base+"/save", "")
	if rr.Code != http.StatusOK || res.Notification == nil || res.Notification.Type != NotificationInfo {
		t.Fatalf("empty save status=%d notification=%+v", rr.Code, res.Notification)
	}

	rr, _ = do(t, srv, http.MethodDelete, base, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("close status=%d", rr.Code)
	}
	rr, res = do(t, srv, http.MethodGet, base, "")
	if rr.Code != http.StatusNotFound || res.Error.Code != "session_not_found" {
		t.Fatalf("closed session status=%d error=%+v", rr.Code, res.Error)
	}
}

func TestSelectCommitAndDiscard(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	_, res := do(t, srv, http.MethodPost, "/api/plans/p1/sessions", "")
	base := "/api/sessions/" + decodeView(t, res.Data).ID

	rr, res := do(t, srv, http.MethodPost, base+"/select", `{"category":"income","row":0,"field":"value","date":"2024-01"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("select status=%d body=%s", rr.Code, rr.Body.String())
	}
	if v := decodeView(t, res.Data); v.Active == nil || v.CellState != core.CellEditing {
		t.Fatalf("active=%+v state=%s", v.Active, v.CellState)
	}

	_, res = do(t, srv, http.MethodPost, base+"/commit", `{"value":"1,500.50"}`)
	v := decodeView(t, res.Data)
	if v.Active != nil || !v.Table.ProfitLoss[0].Equal(decimal.RequireFromString("1100.50")) {
		t.Fatalf("after commit active=%+v profit/loss=%s", v.Active, v.Table.ProfitLoss[0])
	}

	rr, _ = do(t, srv, http.MethodPost, base+"/commit", `{"value":"1"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("commit without active cell status=%d", rr.Code)
	}

	rr, _ = do(t, srv, http.MethodPost, base+"/select", `{"category":"income","row":0,"field":"colour"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad field status=%d", rr.Code)
	}

	_, res = do(t, srv, http.MethodPost, base+"/discard", "")
	if v := decodeView(t, res.Data); v.Dirty || !v.Table.ProfitLoss[0].Equal(decimal.NewFromInt(600)) {
		t.Fatalf("discard did not restore: dirty=%v pl=%s", v.Dirty, v.Table.ProfitLoss[0])
	}
}

func TestExport(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rr, _ := do(t, srv, http.MethodGet, "/api/plans/p1/export?format=csv", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("csv status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("content type %q", rr.Header().Get("Content-Type"))
	}
	if rr.Header().Get("Content-Disposition") != `attachment; filename="Scenario.csv"` {
		t.Fatalf("disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rr.Body.String(), "reserve,balance") {
		t.Fatalf("csv missing reserve line:\n%s", rr.Body.String())
	}

	rr, res := do(t, srv, http.MethodGet, "/api/plans/p1/export?format=pdf", "")
	if rr.Code != http.StatusUnprocessableEntity || res.Error == nil {
		t.Fatalf("pdf without remote backend status=%d", rr.Code)
	}
	rr, _ = do(t, srv, http.MethodGet, "/api/plans/p1/export?format=docx", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown format status=%d", rr.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rr, res := do(t, srv, http.MethodPut, "/api/settings", `{"theme":"DARK"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got settings.Settings
	_ = json.Unmarshal(res.Data, &got)
	if got.Theme != settings.ThemeDark || got.Locale != "en" {
		t.Fatalf("settings = %+v", got)
	}

	rr, _ = do(t, srv, http.MethodPut, "/api/settings", `{"theme":"sepia"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad theme status=%d", rr.Code)
	}

	_, res = do(t, srv, http.MethodPost, "/api/settings/theme", "")
	_ = json.Unmarshal(res.Data, &got)
	if got.Theme != settings.ThemeLight {
		t.Fatalf("toggle = %+v", got)
	}

	rr, _ = do(t, srv, http.MethodGet, "/", "")
	if !strings.Contains(rr.Body.String(), `data-theme="light"`) {
		t.Fatalf("page should follow stored theme")
	}
}

func TestRateLimitOnlyAffectsMutations(t *testing.T) {
	srv, _ := newTestServer(t, Config{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr, _ := do(t, srv, http.MethodPost, "/api/settings/theme", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i+1, rr.Code)
		}
	}
	rr, res := do(t, srv, http.MethodPost, "/api/settings/theme", "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("status=%d retry-after=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
	if res.Notification == nil || res.Notification.Type != NotificationWarning {
		t.Fatalf("expected warning notification, got %+v", res.Notification)
	}
	if rr, _ := do(t, srv, http.MethodGet, "/api/settings", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rr.Code)
	}
}

func TestSuspiciousRequestsCanBeBlocked(t *testing.T) {
	srv, _ := newTestServer(t, Config{BlockSuspicious: true})
	rr, _ := do(t, srv, http.MethodGet, "/.env", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	if srv.securityDetector.GetMetrics().BlockedRequests != 1 {
		t.Fatalf("blocked request not counted")
	}
}

func TestReadyFailsWithoutBackend(t *testing.T) {
	srv := NewServer(Config{}, Dependencies{Logger: log.New(log.Config{Output: io.Discard})})
	defer srv.Shutdown(context.Background())

	rr, _ := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}
