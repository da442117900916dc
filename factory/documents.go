/*
Package factory converts YAML and JSON documents into engine types.

PURPOSE:
  Governance settings, commitments and proposals arrive as documents from
  files (CLI, demo scenarios) or request bodies (HTTP). The factory turns
  them into capacity types so nothing else parses raw input.

DOCUMENT SHAPES:
  governance:
    roles:  [{abbreviation: FE, name: Frontend, default_efficiency: 1.0}]
    team:   {FE: {team_size: 10, efficiency: 1.0}}
    quotas: {client: 0.5, internal: 0.5}

  commitments:
    - id: portal
      title: Partner portal
      portfolio: client
      role_fte: {FE: 2, BE: 1.5}
      planned_start: 2025-04-01
      planned_end: 2025-06-30
      activities: ["[FE] Build UI | Complex"]

  YAML is a superset of JSON, so yaml.v3 reads both.

NEGATIVE INPUT:
  Negative FTE, team sizes, efficiencies and quotas are clamped to zero and
  reported as notices (errors wrapping capacity.ErrNegativeInput). They
  never fail a parse. Unknown portfolios, delivery modes and malformed
  dates do.

SEE ALSO:
  - api/scenarios.go: Embedded demo scenarios parsed here
  - cmd/server/main.go: check and project commands
*/
package factory

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/warp/capacity-engine/capacity"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// RoleDoc describes a catalog role.
type RoleDoc struct {
	Abbreviation      string   `yaml:"abbreviation" json:"abbreviation" validate:"required,max=8"`
	Name              string   `yaml:"name" json:"name" validate:"required"`
	Description       string   `yaml:"description,omitempty" json:"description,omitempty"`
	Category          string   `yaml:"category,omitempty" json:"category,omitempty"`
	DefaultEfficiency *float64 `yaml:"default_efficiency,omitempty" json:"default_efficiency,omitempty"`
	Active            *bool    `yaml:"active,omitempty" json:"active,omitempty"`
	DisplayOrder      int      `yaml:"display_order,omitempty" json:"display_order,omitempty"`
	Color             string   `yaml:"color,omitempty" json:"color,omitempty"`
}

// TeamDoc is one role's staffing.
type TeamDoc struct {
	TeamSize   int     `yaml:"team_size" json:"team_size"`
	Efficiency float64 `yaml:"efficiency" json:"efficiency"`
}

// QuotaDoc holds both portfolio quotas.
type QuotaDoc struct {
	Client   float64 `yaml:"client" json:"client"`
	Internal float64 `yaml:"internal" json:"internal"`
}

// GovernanceDoc is a complete governance setup.
type GovernanceDoc struct {
	Roles  []RoleDoc          `yaml:"roles,omitempty" json:"roles,omitempty"`
	Team   map[string]TeamDoc `yaml:"team" json:"team"`
	Quotas *QuotaDoc          `yaml:"quotas,omitempty" json:"quotas,omitempty"`
}

// CommitmentDoc is a commitment as written in documents and request bodies.
type CommitmentDoc struct {
	ID                     string             `yaml:"id,omitempty" json:"id,omitempty"`
	Title                  string             `yaml:"title" json:"title" validate:"required"`
	Portfolio              string             `yaml:"portfolio" json:"portfolio" validate:"required"`
	DeliveryMode           string             `yaml:"delivery_mode,omitempty" json:"delivery_mode,omitempty"`
	Priority               string             `yaml:"priority,omitempty" json:"priority,omitempty"`
	RoleFTE                map[string]float64 `yaml:"role_fte" json:"role_fte"`
	PlannedStart           string             `yaml:"planned_start,omitempty" json:"planned_start,omitempty"`
	PlannedEnd             string             `yaml:"planned_end,omitempty" json:"planned_end,omitempty"`
	TentativeDurationWeeks int                `yaml:"tentative_duration_weeks,omitempty" json:"tentative_duration_weeks,omitempty"`
	Activities             []string           `yaml:"activities,omitempty" json:"activities,omitempty"`
	PickupPeriod           string             `yaml:"pickup_period,omitempty" json:"pickup_period,omitempty"`
	PickedUp               bool               `yaml:"picked_up,omitempty" json:"picked_up,omitempty"`
	Locked                 bool               `yaml:"locked,omitempty" json:"locked,omitempty"`
	Version                int                `yaml:"version,omitempty" json:"version,omitempty"`
}

// ProposalDoc is a capacity check request.
type ProposalDoc struct {
	Portfolio              string             `yaml:"portfolio" json:"portfolio" validate:"required"`
	RoleFTE                map[string]float64 `yaml:"role_fte" json:"role_fte"`
	TentativeDurationWeeks int                `yaml:"tentative_duration_weeks,omitempty" json:"tentative_duration_weeks,omitempty"`
	PlannedStart           string             `yaml:"planned_start,omitempty" json:"planned_start,omitempty"`
	PlannedEnd             string             `yaml:"planned_end,omitempty" json:"planned_end,omitempty"`
	ExcludeID              string             `yaml:"exclude_id,omitempty" json:"exclude_id,omitempty"`
}

// ScenarioDoc bundles governance and commitments for demos and tests.
type ScenarioDoc struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Governance  GovernanceDoc   `yaml:"governance"`
	Commitments []CommitmentDoc `yaml:"commitments"`
}

// =============================================================================
// FACTORY
// =============================================================================

// DocumentFactory converts documents to engine types.
type DocumentFactory struct{}

// NewDocumentFactory creates a new document factory.
func NewDocumentFactory() *DocumentFactory {
	return &DocumentFactory{}
}

// Scenario is a parsed ScenarioDoc.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Catalog     capacity.RoleCatalog
	Team        map[capacity.Role]capacity.TeamInput
	Quotas      *QuotaDoc
	Commitments []capacity.Commitment
}

// ParseScenario parses a YAML or JSON scenario document.
func (f *DocumentFactory) ParseScenario(data []byte) (*Scenario, []error, error) {
	var doc ScenarioDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid scenario document: %w", err)
	}
	if doc.ID == "" {
		return nil, nil, fmt.Errorf("scenario id is required: %w", capacity.ErrInvalidValue)
	}

	catalog, team, err := f.Governance(doc.Governance)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", doc.ID, err)
	}
	commitments, notices, err := f.Commitments(doc.Commitments)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", doc.ID, err)
	}
	return &Scenario{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Catalog:     catalog,
		Team:        team,
		Quotas:      doc.Governance.Quotas,
		Commitments: commitments,
	}, notices, nil
}

// ParseGovernance parses a governance document into a config snapshot.
// Negative values are clamped and returned as notices.
func (f *DocumentFactory) ParseGovernance(data []byte) (capacity.GovernanceConfig, []error, error) {
	var doc GovernanceDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return capacity.GovernanceConfig{}, nil, fmt.Errorf("invalid governance document: %w", err)
	}
	catalog, team, err := f.Governance(doc)
	if err != nil {
		return capacity.GovernanceConfig{}, nil, err
	}
	cfg := capacity.NewGovernanceConfig(catalog)
	cfg, notices := cfg.WithTeam(team, "", cfg.UpdatedAt)
	if doc.Quotas != nil {
		var qn []error
		cfg, qn = cfg.WithQuotas(doc.Quotas.Client, doc.Quotas.Internal, "", cfg.UpdatedAt)
		notices = append(notices, qn...)
	}
	return cfg, notices, nil
}

// Governance converts the role list and team map. An empty role list means
// the default catalog. Team entries must name a catalog role.
func (f *DocumentFactory) Governance(doc GovernanceDoc) (capacity.RoleCatalog, map[capacity.Role]capacity.TeamInput, error) {
	catalog := capacity.DefaultRoleCatalog()
	if len(doc.Roles) > 0 {
		catalog = make(capacity.RoleCatalog, 0, len(doc.Roles))
		for _, rd := range doc.Roles {
			catalog = append(catalog, f.Role(rd))
		}
	}

	team := make(map[capacity.Role]capacity.TeamInput, len(doc.Team))
	for key, td := range doc.Team {
		r := capacity.NormalizeRole(key)
		if def, ok := catalog.Lookup(r); !ok || !def.Active {
			return nil, nil, &capacity.InvalidValueError{Kind: "role", Value: key, Err: capacity.ErrInvalidRole}
		}
		team[r] = capacity.TeamInput{TeamSize: td.TeamSize, Efficiency: td.Efficiency}
	}
	return catalog, team, nil
}

// Role converts a RoleDoc, defaulting to active with efficiency 1.0.
func (f *DocumentFactory) Role(rd RoleDoc) capacity.RoleDefinition {
	def := capacity.RoleDefinition{
		Abbreviation:      capacity.NormalizeRole(rd.Abbreviation),
		Name:              rd.Name,
		Description:       rd.Description,
		Category:          rd.Category,
		DefaultEfficiency: decimalOr(rd.DefaultEfficiency, 1),
		Active:            rd.Active == nil || *rd.Active,
		DisplayOrder:      rd.DisplayOrder,
		Color:             rd.Color,
	}
	if def.Category == "" {
		def.Category = "full_time"
	}
	return def
}

// ParseCommitments parses a YAML or JSON list of commitments.
func (f *DocumentFactory) ParseCommitments(data []byte) ([]capacity.Commitment, []error, error) {
	var docs []CommitmentDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		var wrapped struct {
			Commitments []CommitmentDoc `yaml:"commitments"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, nil, fmt.Errorf("invalid commitments document: %w", err)
		}
		docs = wrapped.Commitments
	}
	return f.Commitments(docs)
}

// Commitments converts a list, stopping at the first invalid entry.
func (f *DocumentFactory) Commitments(docs []CommitmentDoc) ([]capacity.Commitment, []error, error) {
	out := make([]capacity.Commitment, 0, len(docs))
	var notices []error
	for i, d := range docs {
		c, n, err := f.Commitment(d)
		if err != nil {
			return nil, nil, fmt.Errorf("commitment %d (%s): %w", i, d.Title, err)
		}
		out = append(out, c)
		notices = append(notices, n...)
	}
	return out, notices, nil
}

// Commitment converts one CommitmentDoc. Negative FTE is clamped and noted.
func (f *DocumentFactory) Commitment(d CommitmentDoc) (capacity.Commitment, []error, error) {
	portfolio, err := capacity.ParsePortfolio(d.Portfolio)
	if err != nil {
		return capacity.Commitment{}, nil, err
	}
	mode, err := capacity.ParseDeliveryMode(d.DeliveryMode)
	if err != nil {
		return capacity.Commitment{}, nil, err
	}
	start, err := capacity.ParseDate(d.PlannedStart)
	if err != nil {
		return capacity.Commitment{}, nil, err
	}
	end, err := capacity.ParseDate(d.PlannedEnd)
	if err != nil {
		return capacity.Commitment{}, nil, err
	}
	fte, notices := roleFTE(d.RoleFTE)
	if d.TentativeDurationWeeks < 0 {
		notices = append(notices, &capacity.NegativeInputError{Field: "tentative_duration_weeks", Value: float64(d.TentativeDurationWeeks)})
		d.TentativeDurationWeeks = 0
	}

	return capacity.Commitment{
		ID:                     d.ID,
		Title:                  d.Title,
		Portfolio:              portfolio,
		DeliveryMode:           mode,
		Priority:               d.Priority,
		RoleFTE:                fte,
		PlannedStart:           start,
		PlannedEnd:             end,
		TentativeDurationWeeks: d.TentativeDurationWeeks,
		Activities:             d.Activities,
		PickupPeriod:           d.PickupPeriod,
		PickedUp:               d.PickedUp,
		Locked:                 d.Locked,
		Version:                d.Version,
	}, notices, nil
}

// CommitmentDocFrom renders a commitment back into document form.
func CommitmentDocFrom(c capacity.Commitment) CommitmentDoc {
	return CommitmentDoc{
		ID:                     c.ID,
		Title:                  c.Title,
		Portfolio:              string(c.Portfolio),
		DeliveryMode:           string(c.DeliveryMode),
		Priority:               c.Priority,
		RoleFTE:                roleFloats(c.RoleFTE),
		PlannedStart:           capacity.FormatDate(c.PlannedStart),
		PlannedEnd:             capacity.FormatDate(c.PlannedEnd),
		TentativeDurationWeeks: c.TentativeDurationWeeks,
		Activities:             c.Activities,
		PickupPeriod:           c.PickupPeriod,
		PickedUp:               c.PickedUp,
		Locked:                 c.Locked,
		Version:                c.Version,
	}
}

// ParseProposal parses a YAML or JSON proposal document.
func (f *DocumentFactory) ParseProposal(data []byte) (capacity.Proposal, error) {
	var doc ProposalDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return capacity.Proposal{}, fmt.Errorf("invalid proposal document: %w", err)
	}
	return f.Proposal(doc)
}

// Proposal converts a ProposalDoc. Negative FTE is passed through so that
// ValidateCapacity can clamp and report it in the result.
func (f *DocumentFactory) Proposal(d ProposalDoc) (capacity.Proposal, error) {
	portfolio, err := capacity.ParsePortfolio(d.Portfolio)
	if err != nil {
		return capacity.Proposal{}, err
	}
	start, err := capacity.ParseDate(d.PlannedStart)
	if err != nil {
		return capacity.Proposal{}, err
	}
	end, err := capacity.ParseDate(d.PlannedEnd)
	if err != nil {
		return capacity.Proposal{}, err
	}
	fte := make(capacity.RoleTotals, len(d.RoleFTE))
	for k, v := range d.RoleFTE {
		fte[capacity.NormalizeRole(k)] = decimalOf(v)
	}
	return capacity.Proposal{
		ExcludeID:              d.ExcludeID,
		Portfolio:              portfolio,
		RoleFTE:                fte,
		TentativeDurationWeeks: d.TentativeDurationWeeks,
		PlannedStart:           start,
		PlannedEnd:             end,
	}, nil
}
