/*
Package capacity provides the capacity governance and admission control engine.

PURPOSE:
  Models how much concurrent project work an organization can commit to, given
  finite staff split across functional roles and two portfolios (client and
  internal). Every function here is a pure computation over an immutable
  snapshot: governance config in, commitments in, decision or metrics out.

KEY CONCEPTS IN THIS FILE (types.go):
  - Role: functional skill bucket (FE, BE, AI, PM, or any catalog entry)
  - Portfolio: client or internal work stream, each with its own quota
  - RoleTotals: per-role quantities (FTE demand or weekly capacity)
  - Commitment: a unit of committed or proposed work

DESIGN PRINCIPLES:
  1. Snapshots: config and commitments are passed in, never read from globals
  2. Precision: decimal.Decimal for FTE and percentages, floats only at the edge
  3. Extensible roles: RoleTotals is keyed, not four hardcoded fields
  4. No side effects: safe to call on every debounced keystroke

SEE ALSO:
  - governance.go: GovernanceConfig and capacity arithmetic
  - demand.go: AggregateDemand
  - utilization.go: Utilization percentages and the 999% sentinel
  - admission.go: ValidateCapacity
*/
package capacity

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLE
// =============================================================================

// Role identifies a functional skill bucket by its abbreviation.
type Role string

const (
	RoleFE Role = "FE"
	RoleBE Role = "BE"
	RoleAI Role = "AI"
	RolePM Role = "PM"
)

// DefaultRoles is the out-of-the-box role set, in display order.
var DefaultRoles = []Role{RoleFE, RoleBE, RoleAI, RolePM}

// NormalizeRole upper-cases and trims a role key.
func NormalizeRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// =============================================================================
// PORTFOLIO
// =============================================================================

// Portfolio is a work stream with its own capacity quota.
type Portfolio string

const (
	PortfolioClient   Portfolio = "client"
	PortfolioInternal Portfolio = "internal"
)

// Portfolios lists every recognized portfolio.
var Portfolios = []Portfolio{PortfolioClient, PortfolioInternal}

// ParsePortfolio validates a portfolio string. Matching is case-insensitive.
func ParsePortfolio(s string) (Portfolio, error) {
	p := Portfolio(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PortfolioClient, PortfolioInternal:
		return p, nil
	}
	return "", &InvalidValueError{Kind: "portfolio", Value: s, Err: ErrInvalidPortfolio}
}

// DeliveryMode distinguishes standard delivery from R&D experiments.
type DeliveryMode string

const (
	DeliveryStandard DeliveryMode = "standard"
	DeliveryRnD      DeliveryMode = "rnd"
)

// ParseDeliveryMode defaults empty input to standard.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch m := DeliveryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DeliveryStandard, nil
	case DeliveryStandard, DeliveryRnD:
		return m, nil
	}
	return "", &InvalidValueError{Kind: "delivery_mode", Value: s, Err: ErrInvalidValue}
}

// =============================================================================
// ROLE TOTALS - per-role quantities
// =============================================================================

// RoleTotals holds a non-negative quantity per role. Used for both demand
// (FTE) and capacity (effective heads per week). A missing key reads as zero.
type RoleTotals map[Role]decimal.Decimal

// NewRoleTotals returns zeroed totals for the given roles.
func NewRoleTotals(roles ...Role) RoleTotals {
	t := make(RoleTotals, len(roles))
	for _, r := range roles {
		t[r] = decimal.Zero
	}
	return t
}

// RoleTotalsFromFloats converts a float map, e.g. from a JSON payload.
func RoleTotalsFromFloats(m map[Role]float64) RoleTotals {
	t := make(RoleTotals, len(m))
	for r, v := range m {
		t[r] = decimal.NewFromFloat(v)
	}
	return t
}

// Get returns the value for a role, zero when absent.
func (t RoleTotals) Get(r Role) decimal.Decimal {
	if v, ok := t[r]; ok {
		return v
	}
	return decimal.Zero
}

// Add returns the pointwise sum. Each addend is clamped at zero first, so a
// negative entry can never reduce demand. Neither operand is modified.
func (t RoleTotals) Add(other RoleTotals) RoleTotals {
	out := make(RoleTotals, len(t)+len(other))
	for r, v := range t {
		out[r] = clampZero(v)
	}
	for r, v := range other {
		out[r] = out.Get(r).Add(clampZero(v))
	}
	return out
}

// Clone returns an independent copy.
func (t RoleTotals) Clone() RoleTotals {
	out := make(RoleTotals, len(t))
	for r, v := range t {
		out[r] = v
	}
	return out
}

// Total sums every role.
func (t RoleTotals) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range t {
		sum = sum.Add(v)
	}
	return sum
}

// Floats converts to float64 for JSON responses.
func (t RoleTotals) Floats() map[Role]float64 {
	out := make(map[Role]float64, len(t))
	for r, v := range t {
		out[r] = v.InexactFloat64()
	}
	return out
}

// Roles returns the keys in lexical order.
func (t RoleTotals) Roles() []Role {
	roles := make([]Role, 0, len(t))
	for r := range t {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// negatives lists roles carrying a negative value.
func (t RoleTotals) negatives() []Role {
	var out []Role
	for _, r := range t.Roles() {
		if t[r].IsNegative() {
			out = append(out, r)
		}
	}
	return out
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// COMMITMENT - committed or proposed work
// =============================================================================

// Commitment is a unit of committed or proposed work.
type Commitment struct {
	ID           string
	Title        string
	Portfolio    Portfolio
	DeliveryMode DeliveryMode
	Priority     string
	RoleFTE      RoleTotals

	// Optional. Both present with End >= Start makes the commitment scheduled.
	PlannedStart *time.Time
	PlannedEnd   *time.Time

	TentativeDurationWeeks int
	Activities             []string

	// Free-text pickup period such as "Q3 2025"; used as a fallback bucket.
	PickupPeriod string

	PickedUp bool
	Locked   bool
	Version  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window returns the planned interval when the commitment is scheduled.
func (c Commitment) Window() (Window, bool) {
	if c.PlannedStart == nil || c.PlannedEnd == nil {
		return Window{}, false
	}
	w, err := NewWindow(*c.PlannedStart, *c.PlannedEnd)
	if err != nil {
		return Window{}, false
	}
	return w, true
}

// Scheduled reports whether both dates are present and ordered.
func (c Commitment) Scheduled() bool {
	_, ok := c.Window()
	return ok
}

// HasDemand reports whether any role carries a positive allocation.
func (c Commitment) HasDemand() bool {
	for _, v := range c.RoleFTE {
		if v.IsPositive() {
			return true
		}
	}
	return false
}

// DurationWeeks is the tentative duration, falling back to the scheduled
// span (rounded up to whole weeks) and finally to one week.
func (c Commitment) DurationWeeks() int {
	if c.TentativeDurationWeeks > 0 {
		return c.TentativeDurationWeeks
	}
	if w, ok := c.Window(); ok {
		return w.Weeks()
	}
	return 1
}

// ProjectType groups commitments the way roadmap views do: R&D delivery
// first, then by portfolio.
func (c Commitment) ProjectType() string {
	if c.DeliveryMode == DeliveryRnD {
		return "rnd"
	}
	if c.Portfolio == PortfolioClient {
		return "client"
	}
	return "internal"
}
