package capacity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/capacity-engine/capacity"
)

func TestParseActivity(t *testing.T) {
	pa := capacity.ParseActivity("[fe/BE] Build dashboard | Complex")
	assert.Equal(t, []capacity.Role{capacity.RoleFE, capacity.RoleBE}, pa.Roles)
	assert.Equal(t, capacity.ComplexityComplex, pa.Complexity)
	assert.Equal(t, "Build dashboard", pa.Text)

	pa = capacity.ParseActivity("Write docs")
	assert.Empty(t, pa.Roles)
	assert.Equal(t, capacity.ComplexityMedium, pa.Complexity)

	pa = capacity.ParseActivity("Kickoff |Simple")
	assert.Equal(t, capacity.ComplexitySimple, pa.Complexity)
	assert.Equal(t, "Kickoff", pa.Text)
}

func TestAnalyzeResourceAllocation_GradesGaps(t *testing.T) {
	// GIVEN: Ten tagged activities over 2 weeks
	activities := []string{
		"[BE] Implement API | Medium",
		"[BE] Data model | Medium",
		"[BE] Migrations | Medium",
		"[BE] Auth | Medium",
		"[BE] Webhooks | Medium",
		"[FE] Dashboard | Medium",
		"[FE] Settings | Medium",
		"[FE/BE] Reports | Medium",
		"[AI] Train model | Medium",
		"[PM] Planning | Medium",
	}
	proposed := fte(map[capacity.Role]float64{
		capacity.RoleBE: 0.2,
		capacity.RoleFE: 0.25,
		capacity.RoleAI: 0.1,
		capacity.RolePM: 0.1,
	})

	// WHEN: Analyzing with every activity at 8 hours
	res := capacity.AnalyzeResourceAllocation(activities, proposed, 2, capacity.DefaultRoles)

	// THEN: Required FTE follows count x 8 / 40 / 2
	require.Len(t, res.Gaps, 4)
	byRole := map[capacity.Role]capacity.RoleGap{}
	for _, g := range res.Gaps {
		byRole[g.Role] = g
	}

	be := byRole[capacity.RoleBE] // 6 activities -> 0.60 required
	assert.Equal(t, 6, be.Activities)
	assert.Equal(t, "0.60", be.RequiredFTE.StringFixed(2))
	assert.Equal(t, "-0.40", be.Gap.StringFixed(2))
	assert.Equal(t, capacity.SeverityHigh, be.Severity)

	fe := byRole[capacity.RoleFE] // 3 activities -> 0.30 required, gap -16.7%
	assert.Equal(t, capacity.SeverityLow, fe.Severity)

	assert.Equal(t, capacity.SeverityNone, byRole[capacity.RoleAI].Severity)
	assert.Equal(t, 11, res.TotalActivities)
	assert.Equal(t, "1", res.Confidence.String())
	assert.Contains(t, res.Message, "Critical gaps detected: BE (6 activities")
	assert.NotEmpty(t, res.ValidationID)
}

func TestAnalyzeResourceAllocation_MediumSeverityAndBalanced(t *testing.T) {
	res := capacity.AnalyzeResourceAllocation([]string{"[AI] Eval | Complex"}, fte(map[capacity.Role]float64{capacity.RoleAI: 0.3}), 1, capacity.DefaultRoles)
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, "0.40", res.Gaps[0].RequiredFTE.StringFixed(2))
	assert.Equal(t, capacity.SeverityMedium, res.Gaps[0].Severity) // -25%
	assert.Equal(t, "0.1", res.Confidence.String())

	res = capacity.AnalyzeResourceAllocation(nil, fte(map[capacity.Role]float64{capacity.RolePM: 1}), 4, capacity.DefaultRoles)
	require.Len(t, res.Gaps, 1)
	assert.True(t, res.Gaps[0].RequiredFTE.IsZero())
	assert.Equal(t, capacity.SeverityNone, res.Gaps[0].Severity)
	assert.Contains(t, res.Message, "looks balanced")
}
