package capacity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ACTIVITY ANALYSIS - estimate FTE needs from an activity breakdown
// =============================================================================
//
// Activities use the form "[FE/BE] Build dashboard | Complex". The bracket
// tags name the roles involved; the suffix after "|" is the complexity.
// Untagged activities still count toward complexity, but toward no role.

// Complexity grades the effort of one activity.
type Complexity string

const (
	ComplexitySimple  Complexity = "Simple"
	ComplexityMedium  Complexity = "Medium"
	ComplexityComplex Complexity = "Complex"
)

// Complexities lists every grade in ascending effort.
var Complexities = []Complexity{ComplexitySimple, ComplexityMedium, ComplexityComplex}

// Hours is the effort of one activity of this grade.
func (c Complexity) Hours() int64 {
	switch c {
	case ComplexitySimple:
		return 4
	case ComplexityComplex:
		return 16
	default:
		return 8
	}
}

// WeeklyHours is the working week used to convert hours into FTE.
const WeeklyHours = 40

// Severity grades a staffing gap.
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ParsedActivity is one activity with its tags and grade extracted.
type ParsedActivity struct {
	Text       string
	Roles      []Role
	Complexity Complexity
}

// ParseActivity splits "[FE/BE] text | Complex". Missing complexity is Medium.
func ParseActivity(s string) ParsedActivity {
	pa := ParsedActivity{Text: strings.TrimSpace(s), Complexity: ComplexityMedium}
	rest := s
	if open := strings.Index(s, "["); open >= 0 {
		if end := strings.Index(s, "]"); end > open {
			for _, tag := range strings.Split(s[open+1:end], "/") {
				if tag = strings.TrimSpace(tag); tag != "" {
					pa.Roles = append(pa.Roles, NormalizeRole(tag))
				}
			}
			rest = s[end+1:]
		}
	}
	if bar := strings.LastIndex(rest, "|"); bar >= 0 {
		suffix := strings.TrimSpace(rest[bar+1:])
		for _, c := range Complexities {
			if strings.HasPrefix(suffix, string(c)) {
				pa.Complexity = c
				break
			}
		}
		rest = rest[:bar]
	}
	pa.Text = strings.TrimSpace(rest)
	return pa
}

// RoleGap compares proposed and estimated FTE for one role.
type RoleGap struct {
	Role           Role
	Activities     int
	ProposedFTE    decimal.Decimal
	RequiredFTE    decimal.Decimal
	Gap            decimal.Decimal
	EstimatedWeeks int
	Severity       Severity
}

// ResourceAnalysis is the result of AnalyzeResourceAllocation.
type ResourceAnalysis struct {
	ValidationID    string
	TotalActivities int // sum of role tag occurrences
	ByRole          map[Role]int
	ByComplexity    map[Complexity]int
	Gaps            []RoleGap
	Message         string
	Confidence      decimal.Decimal
}

// AnalyzeResourceAllocation estimates required FTE per role from activity
// tags and complexities, and grades the gap against the proposed FTE.
//
//	required = activities x avg_hours / 40 / weeks, rounded to 2 decimals
//	gap%     = (proposed - required) / required x 100
//	HIGH <= -50%, MEDIUM <= -20%, LOW < 0, else NONE
//
// Roles with neither activities nor proposed FTE are omitted.
func AnalyzeResourceAllocation(activities []string, proposed RoleTotals, weeks int, roles []Role) ResourceAnalysis {
	res := ResourceAnalysis{
		ValidationID: uuid.NewString(),
		ByRole:       make(map[Role]int, len(roles)),
		ByComplexity: make(map[Complexity]int, len(Complexities)),
	}
	for _, r := range roles {
		res.ByRole[r] = 0
	}
	for _, c := range Complexities {
		res.ByComplexity[c] = 0
	}

	for _, a := range activities {
		pa := ParseActivity(a)
		res.ByComplexity[pa.Complexity]++
		for _, r := range pa.Roles {
			if _, ok := res.ByRole[r]; ok {
				res.ByRole[r]++
				res.TotalActivities++
			}
		}
	}

	avg := averageHours(res.ByComplexity)
	for _, r := range roles {
		count := res.ByRole[r]
		prop := clampZero(proposed.Get(r))
		if count == 0 && prop.IsZero() {
			continue
		}
		required := requiredFTE(count, avg, weeks)
		gap := prop.Sub(required)
		gapPct := decimal.Zero
		if required.IsPositive() {
			gapPct = gap.Div(required).Mul(hundred)
		}
		res.Gaps = append(res.Gaps, RoleGap{
			Role:           r,
			Activities:     count,
			ProposedFTE:    prop.Round(2),
			RequiredFTE:    required,
			Gap:            gap.Round(2),
			EstimatedWeeks: weeks,
			Severity:       severity(gapPct),
		})
	}

	res.Message = analysisMessage(res.Gaps)
	conf := decimal.NewFromInt(int64(res.TotalActivities)).Div(decimal.NewFromInt(10))
	res.Confidence = decimal.Min(decimal.NewFromInt(1), conf).Round(2)
	return res
}

func averageHours(counts map[Complexity]int) decimal.Decimal {
	total, weighted := int64(0), int64(0)
	for c, n := range counts {
		total += int64(n)
		weighted += int64(n) * c.Hours()
	}
	if total == 0 {
		return decimal.NewFromInt(ComplexityMedium.Hours())
	}
	return decimal.NewFromInt(weighted).Div(decimal.NewFromInt(total))
}

func requiredFTE(count int, avgHours decimal.Decimal, weeks int) decimal.Decimal {
	if weeks <= 0 {
		return decimal.Zero
	}
	hours := decimal.NewFromInt(int64(count)).Mul(avgHours)
	return hours.Div(decimal.NewFromInt(WeeklyHours)).Div(decimal.NewFromInt(int64(weeks))).Round(2)
}

func severity(gapPct decimal.Decimal) Severity {
	switch {
	case gapPct.LessThanOrEqual(decimal.NewFromInt(-50)):
		return SeverityHigh
	case gapPct.LessThanOrEqual(decimal.NewFromInt(-20)):
		return SeverityMedium
	case gapPct.IsNegative():
		return SeverityLow
	}
	return SeverityNone
}

func analysisMessage(gaps []RoleGap) string {
	var high, medium []string
	for _, g := range gaps {
		switch g.Severity {
		case SeverityHigh:
			high = append(high, fmt.Sprintf("%s (%d activities, need %s FTE, proposed %s FTE)",
				g.Role, g.Activities, g.RequiredFTE.StringFixed(2), g.ProposedFTE.StringFixed(2)))
		case SeverityMedium:
			medium = append(medium, fmt.Sprintf("%s (%d activities)", g.Role, g.Activities))
		}
	}
	var parts []string
	if len(high) > 0 {
		parts = append(parts, "Critical gaps detected: "+strings.Join(high, ", "))
	}
	if len(medium) > 0 {
		parts = append(parts, "Moderate gaps: "+strings.Join(medium, ", "))
	}
	if len(parts) == 0 {
		return "Resource allocation looks balanced based on activity count and complexity."
	}
	return strings.Join(parts, "\n")
}
