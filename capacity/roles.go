package capacity

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLE CATALOG - the extensible set of functional roles
// =============================================================================

// RoleDefinition describes a catalog role. Deactivated roles stay in the
// catalog so historical commitments keep their labels, but they drop out of
// capacity arithmetic.
type RoleDefinition struct {
	Abbreviation      Role
	Name              string
	Description       string
	Category          string // "full_time", "contractor", ...
	DefaultEfficiency decimal.Decimal
	Active            bool
	DisplayOrder      int
	Color             string
}

// RoleCatalog is an ordered collection of role definitions.
type RoleCatalog []RoleDefinition

// DefaultRoleCatalog returns the four built-in roles.
func DefaultRoleCatalog() RoleCatalog {
	one := decimal.NewFromInt(1)
	return RoleCatalog{
		{Abbreviation: RoleFE, Name: "Frontend", Description: "Frontend Engineer", Category: "full_time", DefaultEfficiency: one, Active: true, DisplayOrder: 1, Color: "#3B82F6"},
		{Abbreviation: RoleBE, Name: "Backend", Description: "Backend Engineer", Category: "full_time", DefaultEfficiency: one, Active: true, DisplayOrder: 2, Color: "#10B981"},
		{Abbreviation: RoleAI, Name: "AI/ML", Description: "AI/ML Engineer", Category: "full_time", DefaultEfficiency: one, Active: true, DisplayOrder: 3, Color: "#8B5CF6"},
		{Abbreviation: RolePM, Name: "Project Manager", Description: "Project Manager", Category: "full_time", DefaultEfficiency: one, Active: true, DisplayOrder: 4, Color: "#F59E0B"},
	}
}

// Sorted returns a copy ordered by DisplayOrder, then Name.
func (c RoleCatalog) Sorted() RoleCatalog {
	out := append(RoleCatalog(nil), c...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ActiveRoles lists active abbreviations in display order.
func (c RoleCatalog) ActiveRoles() []Role {
	var roles []Role
	for _, d := range c.Sorted() {
		if d.Active {
			roles = append(roles, d.Abbreviation)
		}
	}
	return roles
}

// Lookup finds a definition by abbreviation.
func (c RoleCatalog) Lookup(r Role) (RoleDefinition, bool) {
	for _, d := range c {
		if d.Abbreviation == r {
			return d, true
		}
	}
	return RoleDefinition{}, false
}
