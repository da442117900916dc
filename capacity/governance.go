/*
governance.go - Team capacity model

PURPOSE:
  Holds per-role team size and efficiency plus per-portfolio quota
  fractions, and derives weekly capacity from them.

FORMULA:
  WeeklyCapacity(role, portfolio) = team_size[role] x efficiency[role] x quota[portfolio]

  Every factor is clamped at zero before multiplication. Update paths already
  reject or clamp negatives; the calculator clamps again so a bad snapshot can
  never yield negative capacity.

SNAPSHOTS:
  GovernanceConfig is a value. WithTeam and WithQuotas return a new snapshot
  with Version+1 and leave the receiver untouched. The two writes are
  independently authorized and timed; persistence publishes each one
  atomically, so a reader always sees one whole snapshot.

QUOTA INVARIANT (soft):
  quota[client] + quota[internal] <= 1.0 is reported by QuotaWarning but
  never blocks an update.

SEE ALSO:
  - roles.go: Role catalog
  - store/sqlite/sqlite.go: Versioned persistence (compare-and-swap)
*/
package capacity

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RoleCapacity is the staffing of one role.
type RoleCapacity struct {
	TeamSize   int
	Efficiency decimal.Decimal
}

// GovernanceConfig is an immutable snapshot of team capacity and quotas.
type GovernanceConfig struct {
	Version int64

	Roles  map[Role]RoleCapacity
	Quotas map[Portfolio]decimal.Decimal

	// Order fixes the role display order; roles missing from it sort after.
	Order []Role

	TeamUpdatedBy  string
	QuotaUpdatedBy string
	UpdatedAt      time.Time
}

// DefaultGovernanceConfig is the snapshot created on first use: every
// default role at zero heads with efficiency 1.0, quotas split 50/50.
func DefaultGovernanceConfig() GovernanceConfig {
	return NewGovernanceConfig(DefaultRoleCatalog())
}

// NewGovernanceConfig seeds a config from the active roles of a catalog.
func NewGovernanceConfig(catalog RoleCatalog) GovernanceConfig {
	cfg := GovernanceConfig{
		Version: 1,
		Roles:   make(map[Role]RoleCapacity),
		Quotas: map[Portfolio]decimal.Decimal{
			PortfolioClient:   decimal.NewFromFloat(0.5),
			PortfolioInternal: decimal.NewFromFloat(0.5),
		},
	}
	for _, d := range catalog.Sorted() {
		if !d.Active {
			continue
		}
		eff := d.DefaultEfficiency
		if eff.IsZero() {
			eff = decimal.NewFromInt(1)
		}
		cfg.Roles[d.Abbreviation] = RoleCapacity{TeamSize: 0, Efficiency: eff}
		cfg.Order = append(cfg.Order, d.Abbreviation)
	}
	return cfg
}

// ActiveRoles returns the configured roles in display order.
func (c GovernanceConfig) ActiveRoles() []Role {
	seen := make(map[Role]bool, len(c.Roles))
	roles := make([]Role, 0, len(c.Roles))
	for _, r := range c.Order {
		if _, ok := c.Roles[r]; ok && !seen[r] {
			roles = append(roles, r)
			seen[r] = true
		}
	}
	var rest []Role
	for r := range c.Roles {
		if !seen[r] {
			rest = append(rest, r)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(roles, rest...)
}

// HasRole reports whether the role participates in capacity arithmetic.
func (c GovernanceConfig) HasRole(r Role) bool {
	_, ok := c.Roles[r]
	return ok
}

// Quota returns the quota fraction for a portfolio, zero when unset.
func (c GovernanceConfig) Quota(p Portfolio) decimal.Decimal {
	if q, ok := c.Quotas[p]; ok {
		return q
	}
	return decimal.Zero
}

// QuotaWarning describes a breach of the soft quota invariant, or "".
func (c GovernanceConfig) QuotaWarning() string {
	sum := clampZero(c.Quota(PortfolioClient)).Add(clampZero(c.Quota(PortfolioInternal)))
	if sum.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Sprintf("client and internal quotas sum to %s, above 1.0", sum.StringFixed(2))
	}
	return ""
}

// =============================================================================
// CAPACITY ARITHMETIC
// =============================================================================

// WeeklyCapacity is team_size x efficiency x quota for one role and
// portfolio, each factor clamped at zero. Unknown roles have no capacity.
func WeeklyCapacity(cfg GovernanceConfig, role Role, portfolio Portfolio) decimal.Decimal {
	rc, ok := cfg.Roles[role]
	if !ok {
		return decimal.Zero
	}
	team := decimal.NewFromInt(int64(rc.TeamSize))
	return clampZero(team).Mul(clampZero(rc.Efficiency)).Mul(clampZero(cfg.Quota(portfolio)))
}

// PortfolioCapacity applies WeeklyCapacity to every configured role.
func PortfolioCapacity(cfg GovernanceConfig, portfolio Portfolio) RoleTotals {
	out := make(RoleTotals, len(cfg.Roles))
	for r := range cfg.Roles {
		out[r] = WeeklyCapacity(cfg, r, portfolio)
	}
	return out
}

// =============================================================================
// SNAPSHOT UPDATES
// =============================================================================

// TeamInput is one role's staffing as submitted by an administrator.
type TeamInput struct {
	TeamSize   int
	Efficiency float64
}

// WithTeam returns a new snapshot with the given roles restaffed. Roles not
// mentioned keep their values. Negative inputs are clamped to zero and
// reported in the returned notices.
func (c GovernanceConfig) WithTeam(team map[Role]TeamInput, actor string, at time.Time) (GovernanceConfig, []error) {
	next := c.clone()
	var notices []error

	roles := make([]Role, 0, len(team))
	for r := range team {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	for _, r := range roles {
		in := team[r]
		size := in.TeamSize
		if size < 0 {
			notices = append(notices, &NegativeInputError{Field: "team_size." + string(r), Value: float64(size)})
			size = 0
		}
		eff := in.Efficiency
		if eff < 0 {
			notices = append(notices, &NegativeInputError{Field: "efficiency." + string(r), Value: eff})
			eff = 0
		}
		if _, ok := next.Roles[r]; !ok {
			next.Order = append(next.Order, r)
		}
		next.Roles[r] = RoleCapacity{TeamSize: size, Efficiency: decimal.NewFromFloat(eff)}
	}

	next.Version = c.Version + 1
	next.TeamUpdatedBy = actor
	next.UpdatedAt = at
	return next, notices
}

// WithQuotas returns a new snapshot with both portfolio quotas replaced.
func (c GovernanceConfig) WithQuotas(client, internal float64, actor string, at time.Time) (GovernanceConfig, []error) {
	next := c.clone()
	var notices []error
	if client < 0 {
		notices = append(notices, &NegativeInputError{Field: "quota.client", Value: client})
		client = 0
	}
	if internal < 0 {
		notices = append(notices, &NegativeInputError{Field: "quota.internal", Value: internal})
		internal = 0
	}
	next.Quotas[PortfolioClient] = decimal.NewFromFloat(client)
	next.Quotas[PortfolioInternal] = decimal.NewFromFloat(internal)
	next.Version = c.Version + 1
	next.QuotaUpdatedBy = actor
	next.UpdatedAt = at
	return next, notices
}

// WithRole adds a role at zero heads with the definition's default
// efficiency, or leaves an existing role's staffing untouched.
func (c GovernanceConfig) WithRole(def RoleDefinition, at time.Time) GovernanceConfig {
	next := c.clone()
	if _, ok := next.Roles[def.Abbreviation]; !ok {
		next.Roles[def.Abbreviation] = RoleCapacity{Efficiency: clampZero(def.DefaultEfficiency)}
		next.Order = append(next.Order, def.Abbreviation)
	}
	next.Version = c.Version + 1
	next.UpdatedAt = at
	return next
}

// WithoutRole drops a deactivated role from the arithmetic.
func (c GovernanceConfig) WithoutRole(r Role, at time.Time) GovernanceConfig {
	next := c.clone()
	delete(next.Roles, r)
	next.Version = c.Version + 1
	next.UpdatedAt = at
	return next
}

// WithOrder replaces the display order.
func (c GovernanceConfig) WithOrder(order []Role) GovernanceConfig {
	next := c.clone()
	next.Order = append([]Role(nil), order...)
	return next
}

func (c GovernanceConfig) clone() GovernanceConfig {
	next := c
	next.Roles = make(map[Role]RoleCapacity, len(c.Roles))
	for r, v := range c.Roles {
		next.Roles[r] = v
	}
	next.Quotas = make(map[Portfolio]decimal.Decimal, len(c.Quotas))
	for p, v := range c.Quotas {
		next.Quotas[p] = v
	}
	next.Order = append([]Role(nil), c.Order...)
	return next
}
