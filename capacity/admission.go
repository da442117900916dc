/*
admission.go - The admission decision

PURPOSE:
  Decides whether a proposed or edited commitment fits within the remaining
  capacity of its portfolio. This is the single authoritative formula; any
  preview in a UI calls the same function over a cached snapshot.

ALGORITHM:
  1. Effective window: explicit dates when both are given, else AsOf plus
     the tentative duration in weeks
  2. Drop the proposal's own id from the commitment set (edit in place)
  3. usage = AggregateDemand(rest, portfolio, window) + proposal FTE
  4. capacity = PortfolioCapacity(config, portfolio)
  5. utilization per role; breach when the rounded figure exceeds 100.0
  6. REJECTED with at least one breach, else APPROVED

PURITY:
  No clock reads, no I/O. Identical inputs give identical results, so the
  function can run on every debounced keystroke. Callers set AsOf.

SEE ALSO:
  - demand.go: AggregateDemand
  - utilization.go: Percent and the 999% sentinel
  - service.go: Create and Update, the transactional write
*/
package capacity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the admission verdict.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Proposal is a new or modified commitment submitted for admission.
type Proposal struct {
	// ExcludeID is the id of the commitment being edited, if any.
	ExcludeID string

	Portfolio              Portfolio
	RoleFTE                RoleTotals
	TentativeDurationWeeks int
	PlannedStart           *time.Time
	PlannedEnd             *time.Time

	// AsOf anchors the derived window when explicit dates are absent.
	// A zero value means the Unix epoch, so callers should always set it.
	AsOf time.Time
}

// ProposalFor builds the proposal that re-validates an existing commitment.
func ProposalFor(c Commitment, asOf time.Time) Proposal {
	return Proposal{
		ExcludeID:              c.ID,
		Portfolio:              c.Portfolio,
		RoleFTE:                c.RoleFTE,
		TentativeDurationWeeks: c.TentativeDurationWeeks,
		PlannedStart:           c.PlannedStart,
		PlannedEnd:             c.PlannedEnd,
		AsOf:                   asOf,
	}
}

// EffectiveWindow resolves the interval the proposal will occupy.
func (p Proposal) EffectiveWindow() (Window, error) {
	weeks := p.TentativeDurationWeeks
	if weeks < 1 {
		weeks = 1
	}
	switch {
	case p.PlannedStart != nil && p.PlannedEnd != nil:
		return NewWindow(*p.PlannedStart, *p.PlannedEnd)
	case p.PlannedStart != nil:
		return WindowFromWeeks(*p.PlannedStart, weeks), nil
	default:
		return WindowFromWeeks(p.AsOf, weeks), nil
	}
}

// ValidationResult is the full admission decision.
type ValidationResult struct {
	Status      Status
	BreachRoles []Role
	Utilization map[Role]Percent
	Reason      string

	Window   Window
	Roles    []Role     // evaluated roles, in display order
	Usage    RoleTotals // projected usage including the proposal
	Capacity RoleTotals
	Existing Demand // demand of the other commitments alone

	// InputWarnings lists clamped negative inputs. They never fail the call.
	InputWarnings []string
}

// Approved reports whether the verdict is APPROVED.
func (r *ValidationResult) Approved() bool {
	return r.Status == StatusApproved
}

// ValidateCapacity runs the admission decision for one proposal against a
// snapshot of commitments and governance config.
func ValidateCapacity(p Proposal, commitments []Commitment, cfg GovernanceConfig) (*ValidationResult, error) {
	if _, err := ParsePortfolio(string(p.Portfolio)); err != nil {
		return nil, err
	}
	window, err := p.EffectiveWindow()
	if err != nil {
		return nil, err
	}
	requested := make(RoleTotals, len(p.RoleFTE))
	for _, r := range p.RoleFTE.Roles() {
		if cfg.HasRole(r) {
			requested[r] = p.RoleFTE[r]
			continue
		}
		// Unconfigured roles may ride along at zero.
		if p.RoleFTE[r].IsPositive() {
			return nil, &InvalidValueError{Kind: "role", Value: string(r), Err: ErrInvalidRole}
		}
	}

	var warnings []string
	for _, r := range p.RoleFTE.negatives() {
		warnings = append(warnings, (&NegativeInputError{
			Field: "role_fte." + string(r),
			Value: p.RoleFTE[r].InexactFloat64(),
		}).Error())
	}
	if p.TentativeDurationWeeks < 0 {
		warnings = append(warnings, (&NegativeInputError{
			Field: "tentative_duration_weeks",
			Value: float64(p.TentativeDurationWeeks),
		}).Error())
	}

	existing := AggregateDemand(ExcludeCommitment(commitments, p.ExcludeID), p.Portfolio, window)
	projected := existing.Usage.Add(requested)
	capacity := PortfolioCapacity(cfg, p.Portfolio)
	roles := cfg.ActiveRoles()
	util := Utilization(projected, capacity, roles)

	res := &ValidationResult{
		Status:        StatusApproved,
		Utilization:   util,
		Window:        window,
		Roles:         roles,
		Usage:         projected,
		Capacity:      capacity,
		Existing:      existing,
		InputWarnings: warnings,
	}
	for _, r := range roles {
		if util[r].Breached() {
			res.BreachRoles = append(res.BreachRoles, r)
		}
	}
	if len(res.BreachRoles) > 0 {
		res.Status = StatusRejected
	}
	res.Reason = reason(res)
	return res, nil
}

func reason(res *ValidationResult) string {
	if res.Status == StatusRejected {
		breached := append([]Role(nil), res.BreachRoles...)
		sort.SliceStable(breached, func(i, j int) bool {
			return res.Utilization[breached[i]].Value.GreaterThan(res.Utilization[breached[j]].Value)
		})
		parts := make([]string, len(breached))
		for i, r := range breached {
			parts[i] = fmt.Sprintf("%s would reach %s of capacity", r, res.Utilization[r])
		}
		return strings.Join(parts, "; ")
	}

	if len(res.Roles) == 0 {
		return "All roles within capacity"
	}
	top := res.Roles[0]
	for _, r := range res.Roles[1:] {
		if res.Utilization[r].Value.GreaterThan(res.Utilization[top].Value) {
			top = r
		}
	}
	return fmt.Sprintf("All roles within capacity; highest utilization %s at %s", top, res.Utilization[top])
}
