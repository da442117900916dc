package capacity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GOVERNANCE ALERT - portfolio-wide weekly capacity health
// =============================================================================

// AlertStatus grades a role or the whole roadmap.
type AlertStatus string

const (
	AlertOK       AlertStatus = "OK"
	AlertWarning  AlertStatus = "WARNING"
	AlertCritical AlertStatus = "CRITICAL"
)

// WarningUtilization is the peak weekly utilization that raises a WARNING.
var WarningUtilization = decimal.NewFromInt(85)

// RoleAlert is the worst week found for one role across both portfolios.
type RoleAlert struct {
	Role             Role
	Status           AlertStatus
	Portfolio        Portfolio
	PeakWeek         string
	PeakDemandFTE    decimal.Decimal
	CapacityFTE      decimal.Decimal
	RequiredExtraFTE decimal.Decimal
	// PeakUtilization is nil when capacity is zero and demand is present.
	PeakUtilization *Percent
}

// GovernanceAlert summarizes capacity health of the whole commitment set.
type GovernanceAlert struct {
	Status                 AlertStatus
	Message                string
	ShortageRoles          []Role
	WarningRoles           []Role
	UnscheduledDemandItems int
	RoleAlerts             []RoleAlert
}

// BuildGovernanceAlert buckets scheduled demand into ISO weeks per portfolio
// and compares each week with weekly capacity. A role with any week over
// capacity is CRITICAL with the largest shortfall; otherwise a peak at or
// above 85% is a WARNING. A nil config is CRITICAL.
func BuildGovernanceAlert(cfg *GovernanceConfig, commitments []Commitment) GovernanceAlert {
	if cfg == nil {
		return GovernanceAlert{
			Status:  AlertCritical,
			Message: "Governance configuration missing. Team capacity and portfolio quotas must be configured.",
		}
	}

	usage := make(map[Portfolio]map[string]RoleTotals, len(Portfolios))
	for _, p := range Portfolios {
		usage[p] = make(map[string]RoleTotals)
	}
	unscheduled := 0
	for _, c := range commitments {
		w, ok := c.Window()
		if !ok {
			if c.HasDemand() {
				unscheduled++
			}
			continue
		}
		weeks, ok := usage[c.Portfolio]
		if !ok {
			continue
		}
		for _, wk := range w.WeekKeys() {
			weeks[wk] = weeks[wk].Add(c.RoleFTE)
		}
	}

	var allWeeks []string
	seen := map[string]bool{}
	for _, p := range Portfolios {
		for wk := range usage[p] {
			if !seen[wk] {
				seen[wk] = true
				allWeeks = append(allWeeks, wk)
			}
		}
	}
	sort.Strings(allWeeks)

	alert := GovernanceAlert{UnscheduledDemandItems: unscheduled}
	for _, role := range cfg.ActiveRoles() {
		ra := roleAlert(cfg, role, usage)
		if ra.Status == AlertOK && len(allWeeks) > 0 {
			ra.PeakWeek = allWeeks[len(allWeeks)-1]
		}
		switch ra.Status {
		case AlertCritical:
			alert.ShortageRoles = append(alert.ShortageRoles, role)
		case AlertWarning:
			alert.WarningRoles = append(alert.WarningRoles, role)
		}
		alert.RoleAlerts = append(alert.RoleAlerts, ra)
	}

	var details []string
	switch {
	case len(alert.ShortageRoles) > 0:
		alert.Status = AlertCritical
		for _, ra := range alert.RoleAlerts {
			if ra.Status == AlertCritical {
				details = append(details, fmt.Sprintf("%s (+%s FTE)", ra.Role, ra.RequiredExtraFTE.StringFixed(2)))
			}
		}
		alert.Message = "Additional resources required for roadmap commitments: " + strings.Join(details, ", ") + "."
	case len(alert.WarningRoles) > 0:
		alert.Status = AlertWarning
		for _, ra := range alert.RoleAlerts {
			if ra.Status == AlertWarning {
				details = append(details, fmt.Sprintf("%s (%s)", ra.Role, ra.PeakUtilization))
			}
		}
		alert.Message = fmt.Sprintf("Capacity risk nearing limit (>= %s%%): %s.", WarningUtilization, strings.Join(details, ", "))
	default:
		alert.Status = AlertOK
		alert.Message = "Roadmap demand is within configured capacity limits."
	}
	if unscheduled > 0 {
		alert.Message = fmt.Sprintf("%s Unscheduled demand items: %d.", alert.Message, unscheduled)
	}
	return alert
}

func roleAlert(cfg *GovernanceConfig, role Role, usage map[Portfolio]map[string]RoleTotals) RoleAlert {
	shortage := RoleAlert{Role: role, Status: AlertCritical}
	warning := RoleAlert{Role: role, Status: AlertWarning}
	var peak decimal.Decimal

	for _, p := range Portfolios {
		capacity := WeeklyCapacity(*cfg, role, p)
		weeks := make([]string, 0, len(usage[p]))
		for wk := range usage[p] {
			weeks = append(weeks, wk)
		}
		sort.Strings(weeks)

		for _, wk := range weeks {
			demand := usage[p][wk].Get(role)
			required := clampZero(demand.Sub(capacity))
			pct := RolePercent(demand, capacity)
			util := &pct
			// Demand against zero capacity has no meaningful percentage.
			if !capacity.IsPositive() && demand.IsPositive() {
				util = nil
			}

			if required.GreaterThan(shortage.RequiredExtraFTE) {
				shortage.Portfolio = p
				shortage.PeakWeek = wk
				shortage.PeakDemandFTE = demand
				shortage.CapacityFTE = capacity
				shortage.RequiredExtraFTE = required
				shortage.PeakUtilization = util
			}
			if util != nil && util.Value.GreaterThan(peak) {
				peak = util.Value
				warning.Portfolio = p
				warning.PeakWeek = wk
				warning.PeakDemandFTE = demand
				warning.CapacityFTE = capacity
				warning.PeakUtilization = util
			}
		}
	}

	if shortage.RequiredExtraFTE.IsPositive() {
		return shortage
	}
	if warning.PeakUtilization != nil && !warning.PeakUtilization.Value.LessThan(WarningUtilization) {
		return warning
	}
	return RoleAlert{Role: role, Status: AlertOK}
}
