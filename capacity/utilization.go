package capacity

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// UTILIZATION
// =============================================================================

// SentinelUtilization is reported when a role has demand but no capacity.
// It stands in for an undefined ratio and always counts as a breach.
var SentinelUtilization = decimal.NewFromInt(999)

var (
	hundred         = decimal.NewFromInt(100)
	breachThreshold = decimal.NewFromInt(100)
)

// Percent is a utilization figure rounded to one decimal place.
type Percent struct {
	Value decimal.Decimal
}

// NewPercent rounds v half away from zero to one decimal.
func NewPercent(v decimal.Decimal) Percent {
	return Percent{Value: v.Round(1)}
}

// String renders "120.0%".
func (p Percent) String() string {
	return p.Value.StringFixed(1) + "%"
}

// Float64 returns the rounded value.
func (p Percent) Float64() float64 {
	return p.Value.InexactFloat64()
}

// Breached reports whether the rounded value exceeds 100.0.
func (p Percent) Breached() bool {
	return p.Value.GreaterThan(breachThreshold)
}

// MarshalJSON encodes the formatted string.
func (p Percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts "120.0%" or a bare number.
func (p *Percent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	v, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return err
	}
	*p = NewPercent(v)
	return nil
}

// RolePercent computes one role's utilization. Zero or negative capacity
// yields 0.0% without demand and the 999.0% sentinel with demand.
func RolePercent(usage, capacity decimal.Decimal) Percent {
	if !capacity.IsPositive() {
		if !usage.IsPositive() {
			return NewPercent(decimal.Zero)
		}
		return NewPercent(SentinelUtilization)
	}
	return NewPercent(clampZero(usage).Div(capacity).Mul(hundred))
}

// Utilization computes a percentage for every role in roles. Roles missing
// from either operand read as zero, so the result never lacks a role.
func Utilization(usage, capacity RoleTotals, roles []Role) map[Role]Percent {
	out := make(map[Role]Percent, len(roles))
	for _, r := range roles {
		out[r] = RolePercent(usage.Get(r), capacity.Get(r))
	}
	return out
}
