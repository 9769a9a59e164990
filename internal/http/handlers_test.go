package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/eligibility"
	"drmp-assignment/internal/events"
	"drmp-assignment/internal/metrics"
	"drmp-assignment/internal/repository"
	"drmp-assignment/internal/service"
	"drmp-assignment/internal/strategy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func floatPtr(v float64) *float64 { return &v }

func setupRouter(t *testing.T) *Router {
	t.Helper()
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	published := now.Add(-time.Hour)

	packages := repository.NewMemoryPackagesRepo(&domain.CasePackage{
		PackageID: "P1", Status: domain.PackageStatusPublished, TotalAmount: 500000, RemainingAmount: 500000,
		CaseCount: 120, Region: "Beijing", SourceOrgID: "bank-1", PublishedAt: &published,
		CreatedAt: published, UpdatedAt: published,
	})
	orgs := repository.NewMemoryOrganizationsRepo(
		domain.Organization{OrgID: "O1", OrgName: "Beijing Law Firm", Status: domain.OrgStatusActive, MembershipPaid: true,
			ServiceRegions: []string{"Beijing"}, MonthlyCaseCapacity: 200, CurrentLoadPercentage: floatPtr(10)},
		domain.Organization{OrgID: "O2", OrgName: "Shanghai Mediation", Status: domain.OrgStatusActive, MembershipPaid: true,
			ServiceRegions: []string{"Shanghai"}, MonthlyCaseCapacity: 200, CurrentLoadPercentage: floatPtr(80)},
	)
	rules := repository.NewMemoryRulesRepo(domain.AssignmentRule{
		RuleID: "R1", RuleName: "north", RuleType: domain.RuleTypeRegionBased, Enabled: true,
		Conditions: domain.RuleConditions{Regions: []string{"Shanghai"}},
	})
	flow := repository.NewMemoryFlowEventsRepo()
	sink := events.NewRepositorySink(flow)
	strategies := strategy.NewManager(strategy.ManagerConfig{})
	filter := eligibility.NewFilter(0)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")
	logger := zap.NewNop()

	assignSvc := service.NewAssignmentService(service.AssignmentDeps{
		Packages: packages, Organizations: orgs, Rules: rules,
		Strategies: strategies, Eligibility: filter, Sink: sink, Metrics: m, Logger: logger,
	}, service.AssignmentConfig{})
	ruleSvc := service.NewRuleService(rules, packages, orgs, strategies, filter, logger)
	statusSvc := service.NewPackageStatusService(packages, orgs, flow, nil, sink, m, logger)

	r := NewRouter(logger)
	r.RegisterHealthRoutes()
	r.RegisterAssignmentRoutes(NewAssignmentHandler(assignSvc, logger))
	r.RegisterRuleRoutes(NewRuleHandler(ruleSvc, logger))
	r.RegisterPackageRoutes(NewPackageHandler(statusSvc, logger))
	r.HandleHandler("GET /metrics", metrics.Handler(reg))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User-Id", "u-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var out Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRecommendationsEndpoint(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodGet, "/api/v1/assignment/packages/P1/recommendations?limit=1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[service.RecommendationsResponse](t, rec)
	assert.Equal(t, ResultSuccess, res.Code)
	require.Len(t, res.Result.Recommendations, 1)
	assert.Equal(t, "O1", res.Result.Recommendations[0].OrgID)
}

func TestNotFoundMapsTo404(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodGet, "/api/v1/assignment/packages/P404/recommendations", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	res := decode[ErrorDetail](t, rec)
	assert.Equal(t, ResultError, res.Code)
	assert.Equal(t, "NOT_FOUND", res.Result.ErrorCode)
}

func TestAutoAssignEndpoint_RuleNotMatched(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodPost, "/api/v1/assignment/packages/P1/auto", `{"rule_id":"R1"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "RULE_NOT_MATCHED", decode[ErrorDetail](t, rec).Result.ErrorCode)
}

func TestBatchEndpoint(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodPost, "/api/v1/assignment/batch", `{"package_ids":["P1","P9"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[domain.BatchAssignmentResult](t, rec)
	assert.Equal(t, 1, res.Result.SuccessCount)
	assert.Equal(t, 1, res.Result.FailedCount)
	assert.Equal(t, domain.KindNotFound, res.Result.Results[1].ErrorCode)

	rec = do(r, http.MethodGet, "/api/v1/packages/P1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.CaseFlowEvent](t, rec).Result, 1)

	rec = do(r, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "test_assignment_batch_size_count 1")
}

func TestBatchEndpoint_BadBody(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodPost, "/api/v1/assignment/batch", `{"package_ids":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuleEndpoints(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodPost, "/api/v1/rules",
		`{"rule_name":"bj","rule_type":"REGION_BASED","priority":3,"conditions":{"regions":["Beijing"]},"actions":{}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.AssignmentRule](t, rec).Result
	assert.NotEmpty(t, created.RuleID)

	rec = do(r, http.MethodPost, "/api/v1/rules/"+created.RuleID+"/test", `{"package_id":"P1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tested := decode[service.RuleTestResult](t, rec).Result
	assert.True(t, tested.WouldAssign)
	assert.Equal(t, "O1", tested.SelectedOrgID)

	rec = do(r, http.MethodPost, "/api/v1/rules", `{"rule_name":"x","rule_type":"REGION_BASED","conditions":{"bogus":1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/v1/rules?enabled_only=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.AssignmentRule](t, rec).Result, 2)

	rec = do(r, http.MethodDelete, "/api/v1/rules/"+created.RuleID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(r, http.MethodGet, "/api/v1/rules/"+created.RuleID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPackageEndpoints(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodPost, "/api/v1/packages",
		`{"package_id":"P2","total_amount":100,"remaining_amount":100,"case_count":0,"source_org_id":"bank-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.PackageStatusDraft, decode[domain.CasePackage](t, rec).Result.Status)

	rec = do(r, http.MethodPost, "/api/v1/packages/P2/transitions", `{"event":"PUBLISH"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no cases")

	rec = do(r, http.MethodPost, "/api/v1/packages/P1/transitions", `{"event":"ACCEPT"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(r, http.MethodPost, "/api/v1/packages/P1/transitions", `{"event":"ASSIGN","disposal_org_id":"O2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PackageStatusAssigned, decode[domain.CasePackage](t, rec).Result.Status)

	rec = do(r, http.MethodGet, "/api/v1/packages/P1/next-statuses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "IN_PROGRESS")

	rec = do(r, http.MethodGet, "/api/v1/transitions/validate?from=DRAFT&to=ASSIGNED&event=ASSIGN", "")
	assert.Equal(t, false, decode[map[string]bool](t, rec).Result["valid"])

	rec = do(r, http.MethodGet, "/api/v1/transitions/required-event?from=ASSIGNED&to=IN_PROGRESS", "")
	assert.Equal(t, "ACCEPT", decode[map[string]string](t, rec).Result["event"])

	rec = do(r, http.MethodGet, "/api/v1/transitions/required-event?from=DRAFT&to=COMPLETED", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStrategiesAndHealth(t *testing.T) {
	r := setupRouter(t)

	rec := do(r, http.MethodGet, "/api/v1/assignment/strategies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]strategy.Info](t, rec).Result, 4)

	rec = do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/api/v1/assignment/assess?org_id=O1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/v1/assignment/assess?org_id=O1&package_id=P1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallerFromReq(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, domain.SystemCaller, callerFromReq(req))

	req.Header.Set("X-User-Id", "u-9")
	req.Header.Set("X-Org-Id", "bank-1")
	c := callerFromReq(req)
	assert.Equal(t, "u-9", c.UserID)
	assert.Equal(t, "bank-1", c.OrgID)
}
