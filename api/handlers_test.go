/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Speculative admission (approve, reject, input errors)
- Commitment lifecycle (create, reject, lock, stale version)
- Governance compare-and-swap
- Roadmap, buckets, alert, roles, metrics, rate limiting
*/
package api

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

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/store/sqlite"
)

var testNow = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupTestServer(t *testing.T, opts RouterOptions) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := capacity.NewService(store, func() time.Time { return testNow })
	h := NewHandler(svc, quietLogger())
	router, err := NewRouter(h, opts)
	require.NoError(t, err)
	return h, router
}

func setupTestRouter(t *testing.T) http.Handler {
	t.Helper()
	opts := DefaultRouterOptions()
	opts.ValidateRate = "1000-S"
	_, router := setupTestServer(t, opts)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerActor, "test-admin")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// staffFE publishes FE 10 heads at efficiency 1.0 (client quota 0.5 -> 5 FTE/week).
func staffFE(t *testing.T, router http.Handler) {
	t.Helper()
	rec := do(t, router, http.MethodPut, "/api/governance/team", map[string]any{
		"team": map[string]any{"FE": map[string]any{"team_size": 10, "efficiency": 1.0}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func marchCommitment(title string, fe float64) map[string]any {
	return map[string]any{
		"title":         title,
		"portfolio":     "client",
		"role_fte":      map[string]float64{"FE": fe},
		"planned_start": "2025-03-01",
		"planned_end":   "2025-03-31",
	}
}

// =============================================================================
// ADMISSION
// =============================================================================

func TestValidate_RejectsOverCapacity(t *testing.T) {
	// GIVEN: FE client capacity 5 FTE/week and 4 FTE already committed in March
	router := setupTestRouter(t)
	staffFE(t, router)
	rec := do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Portal", 4))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Checking 2 more FE in the first week of March
	rec = do(t, router, http.MethodPost, "/api/capacity/validate", map[string]any{
		"portfolio": "client",
		"role_fte":  map[string]float64{"FE": 2},
	})

	// THEN: 6 / 5 = 120% is rejected and FE is the breach role
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[ValidationResultDTO](t, rec)
	assert.Equal(t, "REJECTED", res.Status)
	assert.Equal(t, []string{"FE"}, res.BreachRoles)
	assert.Equal(t, "120.0%", res.Utilization["FE"].String())
	assert.Equal(t, "2025-03-03", res.Window.Start)
	assert.Equal(t, "2025-03-09", res.Window.End)
	assert.Contains(t, res.Reason, "FE")
}

func TestValidate_ApprovesWithinCapacity(t *testing.T) {
	router := setupTestRouter(t)
	staffFE(t, router)

	rec := do(t, router, http.MethodPost, "/api/capacity/validate", map[string]any{
		"portfolio":     "client",
		"role_fte":      map[string]float64{"FE": 4},
		"planned_start": "2025-03-01",
		"planned_end":   "2025-03-31",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[ValidationResultDTO](t, rec)
	assert.Equal(t, "APPROVED", res.Status)
	assert.Empty(t, res.BreachRoles)
	assert.Equal(t, "80.0%", res.Utilization["FE"].String())
	assert.Equal(t, 5.0, res.Capacity["FE"])
}

func TestValidate_InputErrors(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing portfolio", map[string]any{"role_fte": map[string]float64{"FE": 1}}},
		{"unknown portfolio", map[string]any{"portfolio": "partner", "role_fte": map[string]float64{"FE": 1}}},
		{"inverted window", map[string]any{"portfolio": "client", "planned_start": "2025-04-01", "planned_end": "2025-03-01"}},
		{"bad date", map[string]any{"portfolio": "client", "planned_start": "April"}},
		{"unknown role", map[string]any{"portfolio": "client", "role_fte": map[string]float64{"UX": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/capacity/validate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestValidate_NegativeFTEIsWarnedNotFailed(t *testing.T) {
	router := setupTestRouter(t)
	staffFE(t, router)

	rec := do(t, router, http.MethodPost, "/api/capacity/validate", map[string]any{
		"portfolio": "client",
		"role_fte":  map[string]float64{"FE": -3},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[ValidationResultDTO](t, rec)
	assert.Equal(t, "APPROVED", res.Status)
	assert.NotEmpty(t, res.InputWarnings)
	assert.Equal(t, "0.0%", res.Utilization["FE"].String())
}

func TestValidate_RateLimited(t *testing.T) {
	// GIVEN: A limit of one check per minute
	opts := DefaultRouterOptions()
	opts.ValidateRate = "1-M"
	_, router := setupTestServer(t, opts)
	body := map[string]any{"portfolio": "client"}

	// WHEN: Two checks arrive back to back
	first := do(t, router, http.MethodPost, "/api/capacity/validate", body)
	second := do(t, router, http.MethodPost, "/api/capacity/validate", body)

	// THEN: The second is throttled; other endpoints are not
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/governance", nil).Code)
}

func TestAnalyze_ReportsGap(t *testing.T) {
	router := setupTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/capacity/analyze", map[string]any{
		"activities":     []string{"[FE] Checkout | Complex", "[FE] Cart | Complex", "[BE] API | Simple"},
		"role_fte":       map[string]float64{"FE": 0.1, "BE": 1},
		"duration_weeks": 1,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[AnalysisDTO](t, rec)
	assert.Equal(t, 3, res.TotalActivities)
	assert.Equal(t, 2, res.ByRole["FE"])
	assert.NotEmpty(t, res.ValidationID)
	require.NotEmpty(t, res.Gaps)
	assert.Equal(t, "FE", res.Gaps[0].Role)
	assert.Equal(t, "HIGH", res.Gaps[0].Severity)
}

func TestAnalyze_RequiresActivities(t *testing.T) {
	rec := do(t, setupTestRouter(t), http.MethodPost, "/api/capacity/analyze", map[string]any{"activities": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// COMMITMENTS
// =============================================================================

func TestCreateCommitment_RejectedIsNotStored(t *testing.T) {
	// GIVEN: 4 FE committed against 5 FE capacity
	router := setupTestRouter(t)
	staffFE(t, router)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Portal", 4)).Code)

	// WHEN: Committing 2 more FE over the same window
	rec := do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Addon", 2))

	// THEN: 422 with the decision, and the list still holds one commitment
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	errResp := decodeBody[ErrorResponse](t, rec)
	require.NotNil(t, errResp.Validation)
	assert.Equal(t, "REJECTED", errResp.Validation.Status)

	list := decodeBody[[]CommitmentDTO](t, do(t, router, http.MethodGet, "/api/commitments", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "Portal", list[0].Title)
}

func TestCommitment_LockBlocksFTEChanges(t *testing.T) {
	// GIVEN: A locked commitment
	router := setupTestRouter(t)
	staffFE(t, router)
	created := decodeBody[CommitmentWriteResponse](t, do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Portal", 2)))
	id := created.Commitment.ID
	require.NotEmpty(t, id)

	locked := decodeBody[CommitmentDTO](t, do(t, router, http.MethodPost, "/api/commitments/"+id+"/lock", nil))
	assert.True(t, locked.Locked)

	// WHEN: Changing its FTE
	edit := marchCommitment("Portal", 3)
	rec := do(t, router, http.MethodPut, "/api/commitments/"+id, edit)

	// THEN: Conflict; a title-only edit still succeeds
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rename := marchCommitment("Portal v2", 2)
	rec = do(t, router, http.MethodPut, "/api/commitments/"+id, rename)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[CommitmentWriteResponse](t, rec)
	assert.Equal(t, "Portal v2", updated.Commitment.Title)
	assert.Nil(t, updated.Validation)

	unlocked := decodeBody[CommitmentDTO](t, do(t, router, http.MethodPost, "/api/commitments/"+id+"/unlock", nil))
	assert.False(t, unlocked.Locked)
}

func TestCommitment_StaleVersionConflicts(t *testing.T) {
	router := setupTestRouter(t)
	staffFE(t, router)
	created := decodeBody[CommitmentWriteResponse](t, do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Portal", 1)))
	id := created.Commitment.ID

	first := marchCommitment("Portal A", 1)
	first["version"] = 1
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/api/commitments/"+id, first).Code)

	second := marchCommitment("Portal B", 1)
	second["version"] = 1
	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPut, "/api/commitments/"+id, second).Code)
}

func TestCommitment_NotFound(t *testing.T) {
	router := setupTestRouter(t)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/commitments/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/commitments/missing/lock", nil).Code)
}

func TestCommitment_Buckets(t *testing.T) {
	router := setupTestRouter(t)
	staffFE(t, router)
	body := marchCommitment("Portal", 1)
	body["tentative_duration_weeks"] = 4
	body["activities"] = []string{"a", "b"}
	created := decodeBody[CommitmentWriteResponse](t, do(t, router, http.MethodPost, "/api/commitments", body))

	rec := do(t, router, http.MethodGet, "/api/commitments/"+created.Commitment.ID+"/buckets?scheme=fiscal", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[BucketsResponse](t, rec)
	require.Len(t, res.Slices, 2)
	assert.Equal(t, "Q4", res.Slices[0].Bucket)
	assert.InDelta(t, 4.0, res.TotalWeeks, 0.05)

	bad := do(t, router, http.MethodGet, "/api/commitments/"+created.Commitment.ID+"/buckets?scheme=lunar", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

// =============================================================================
// GOVERNANCE
// =============================================================================

func TestGovernance_SeededOnFirstRead(t *testing.T) {
	rec := do(t, setupTestRouter(t), http.MethodGet, "/api/governance", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	gov := decodeBody[GovernanceDTO](t, rec)
	assert.Equal(t, int64(1), gov.Version)
	assert.Equal(t, []string{"FE", "BE", "AI", "PM"}, gov.Roles)
	assert.Equal(t, 0.5, gov.Quotas.Client)
}

func TestGovernance_StaleExpectedVersionConflicts(t *testing.T) {
	// GIVEN: Two admins who both read version 1
	router := setupTestRouter(t)
	gov := decodeBody[GovernanceDTO](t, do(t, router, http.MethodGet, "/api/governance", nil))

	// WHEN: Both write against version 1
	first := do(t, router, http.MethodPut, "/api/governance/quotas", map[string]any{
		"client": 0.6, "internal": 0.4, "expected_version": gov.Version,
	})
	second := do(t, router, http.MethodPut, "/api/governance/team", map[string]any{
		"team":             map[string]any{"FE": map[string]any{"team_size": 3, "efficiency": 1}},
		"expected_version": gov.Version,
	})

	// THEN: The first wins and the second gets 409
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, http.StatusConflict, second.Code)

	after := decodeBody[GovernanceDTO](t, do(t, router, http.MethodGet, "/api/governance", nil))
	assert.Equal(t, gov.Version+1, after.Version)
	assert.Equal(t, 0, after.Team["FE"].TeamSize)
	assert.Equal(t, "test-admin", after.QuotaUpdatedBy)
}

func TestGovernance_NegativeInputsClampedWithNotices(t *testing.T) {
	router := setupTestRouter(t)

	rec := do(t, router, http.MethodPut, "/api/governance/team", map[string]any{
		"team": map[string]any{"BE": map[string]any{"team_size": -2, "efficiency": 1}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[GovernanceUpdateResponse](t, rec)
	assert.Equal(t, 0, res.Governance.Team["BE"].TeamSize)
	require.Len(t, res.Notices, 1)
	assert.Contains(t, res.Notices[0], "team_size.BE")
}

func TestGovernance_QuotaWarning(t *testing.T) {
	rec := do(t, setupTestRouter(t), http.MethodPut, "/api/governance/quotas", map[string]any{"client": 0.7, "internal": 0.5})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[GovernanceUpdateResponse](t, rec)
	assert.NotEmpty(t, res.Governance.QuotaWarning)
}

func TestAlert_WarningNearLimit(t *testing.T) {
	// GIVEN: 4.5 of 5 FE committed (90%)
	router := setupTestRouter(t)
	staffFE(t, router)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Portal", 4.5)).Code)

	// WHEN: Reading the alert
	rec := do(t, router, http.MethodGet, "/api/governance/alert", nil)

	// THEN: FE is a warning role
	require.Equal(t, http.StatusOK, rec.Code)
	alert := decodeBody[AlertDTO](t, rec)
	assert.Equal(t, "WARNING", alert.Status)
	assert.Equal(t, []string{"FE"}, alert.WarningRoles)
	assert.Empty(t, alert.ShortageRoles)
}

// =============================================================================
// ROADMAP & ROLES
// =============================================================================

func TestRoadmap_FiltersAndGroups(t *testing.T) {
	router := setupTestRouter(t)
	staffFE(t, router)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Portal", 2)).Code)

	rec := do(t, router, http.MethodGet, "/api/roadmap?year=2025&scheme=calendar&quarter=Q1&type=client", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rm := decodeBody[RoadmapDTO](t, rec)
	assert.Equal(t, 2025, rm.Year)
	assert.Equal(t, "Q1", rm.Quarter)
	require.Len(t, rm.Items, 1)
	assert.Equal(t, "X", rm.Items[0].Marks[2])
	assert.Equal(t, 1, rm.Metrics.Items)

	empty := decodeBody[RoadmapDTO](t, do(t, router, http.MethodGet, "/api/roadmap?year=2025&type=internal", nil))
	assert.Empty(t, empty.Items)

	for _, q := range []string{"year=abc", "scheme=lunar", "quarter=Q9", "type=partner"} {
		assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/roadmap?"+q, nil).Code, q)
	}
}

func TestRoles_AddJoinsGovernance(t *testing.T) {
	router := setupTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/roles", map[string]any{
		"abbreviation": "qa", "name": "Quality", "default_efficiency": 0.8,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	gov := decodeBody[GovernanceDTO](t, do(t, router, http.MethodGet, "/api/governance", nil))
	assert.Equal(t, []string{"FE", "BE", "AI", "PM", "QA"}, gov.Roles)
	assert.Equal(t, 0.8, gov.Team["QA"].Efficiency)

	dup := do(t, router, http.MethodPost, "/api/roles", map[string]any{"abbreviation": "QA", "name": "Again"})
	assert.Equal(t, http.StatusConflict, dup.Code)

	rec = do(t, router, http.MethodPut, "/api/roles/QA", map[string]any{"name": "Quality", "active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gov = decodeBody[GovernanceDTO](t, do(t, router, http.MethodGet, "/api/governance", nil))
	assert.NotContains(t, gov.Roles, "QA")

	missing := do(t, router, http.MethodPut, "/api/roles/ZZ", map[string]any{"name": "Nobody"})
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	router := setupTestRouter(t)
	staffFE(t, router)
	do(t, router, http.MethodPost, "/api/capacity/validate", map[string]any{"portfolio": "client"})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", nil).Code)

	rec := do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "capacity_admission_decisions_total"))
	assert.True(t, strings.Contains(body, "capacity_api_requests_total"))
}

func TestAlertMonitor_CheckPublishesGauges(t *testing.T) {
	h, router := setupTestServer(t, DefaultRouterOptions())
	staffFE(t, router)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/commitments", marchCommitment("Portal", 4.5)).Code)

	m := NewAlertMonitor(h.Service, quietLogger())
	alert, err := m.Check(context.Background())

	require.NoError(t, err)
	assert.Equal(t, capacity.AlertWarning, alert.Status)
	assert.Equal(t, capacity.AlertWarning, m.last)
}

func TestAlertMonitor_StartStop(t *testing.T) {
	h, _ := setupTestServer(t, DefaultRouterOptions())
	m := NewAlertMonitor(h.Service, quietLogger())
	m.CheckInterval = 10 * time.Millisecond

	m.Start()
	m.Start() // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop()

	disabled := NewAlertMonitor(h.Service, quietLogger())
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
}
