package schedule

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/capacity-engine/capacity"
)

// =============================================================================
// ROADMAP VIEW
// =============================================================================

// WeeksPerYear converts weekly capacity into person-weeks.
const WeeksPerYear = 52

// Query filters a roadmap. Zero Quarter and empty ProjectType mean all.
type Query struct {
	Year        int
	Scheme      Scheme
	Quarter     Quarter
	ProjectType string // "client", "internal" or "rnd"
}

// Item is one commitment decomposed for display.
type Item struct {
	Commitment  capacity.Commitment
	ProjectType string
	Slices      []BucketSlice
	Weeks       int
	Resources   int             // total FTE rounded up
	Effort      decimal.Decimal // person-weeks, one decimal
	Marks       [12]string
	YearBar     *Bar
}

// QuarterGroup holds items whose start falls in one quarter.
type QuarterGroup struct {
	Quarter Quarter
	Axis    capacity.Window
	Items   []Item
	Bars    map[string]Bar // by commitment id
}

// TypeGroup holds items of one project type.
type TypeGroup struct {
	Label string
	Items []Item
}

// Metrics totals the filtered items.
type Metrics struct {
	Items      int
	Activities int
	Effort     decimal.Decimal
	Resources  int
}

// Insights compares annual person-week demand with annual capacity.
// Capacity and Utilization are nil without a governance config.
type Insights struct {
	Context     string
	Demand      capacity.RoleTotals
	Capacity    capacity.RoleTotals
	Utilization map[capacity.Role]capacity.Percent
}

// Roadmap is the full roadmap view for one year.
type Roadmap struct {
	Query    Query
	Items    []Item
	Quarters []QuarterGroup
	Types    []TypeGroup
	Metrics  Metrics
	Insights Insights
}

// BuildRoadmap filters commitments by year, quarter and project type, then
// groups them by quarter and type. Capacity insights reuse WeeklyCapacity
// and Utilization, so the view can never drift from admission arithmetic.
func BuildRoadmap(commitments []capacity.Commitment, cfg *capacity.GovernanceConfig, q Query) Roadmap {
	if q.Scheme == "" {
		q.Scheme = SchemeFiscal
	}
	rm := Roadmap{Query: q}

	for _, c := range commitments {
		if !matches(c, q) {
			continue
		}
		rm.Items = append(rm.Items, decompose(c, q))
	}
	sort.SliceStable(rm.Items, func(i, j int) bool {
		return strings.ToLower(rm.Items[i].Commitment.Title) < strings.ToLower(rm.Items[j].Commitment.Title)
	})

	for _, qq := range Quarters {
		axis := QuarterAxis(q.Scheme, q.Year, qq)
		g := QuarterGroup{Quarter: qq, Axis: axis, Bars: map[string]Bar{}}
		for _, it := range rm.Items {
			c := it.Commitment
			if c.PlannedStart == nil || q.Scheme.Quarter(*c.PlannedStart) != qq {
				continue
			}
			g.Items = append(g.Items, it)
			if w, ok := c.Window(); ok {
				if bar, ok := Placement(w.Start, w.End, axis); ok {
					g.Bars[c.ID] = bar
				}
			}
		}
		rm.Quarters = append(rm.Quarters, g)
	}

	types := []TypeGroup{{Label: "R&D Projects"}, {Label: "Client Projects"}, {Label: "Internal Development"}}
	for _, it := range rm.Items {
		switch it.ProjectType {
		case "rnd":
			types[0].Items = append(types[0].Items, it)
		case "client":
			types[1].Items = append(types[1].Items, it)
		default:
			types[2].Items = append(types[2].Items, it)
		}
	}
	rm.Types = types

	rm.Metrics.Effort = decimal.Zero
	for _, it := range rm.Items {
		rm.Metrics.Items++
		rm.Metrics.Activities += len(it.Commitment.Activities)
		rm.Metrics.Effort = rm.Metrics.Effort.Add(it.Effort)
		rm.Metrics.Resources += it.Resources
	}
	rm.Metrics.Effort = rm.Metrics.Effort.Round(1)

	rm.Insights = insights(rm.Items, cfg)
	return rm
}

func matches(c capacity.Commitment, q Query) bool {
	if q.Quarter != 0 && (c.PlannedStart == nil || q.Scheme.Quarter(*c.PlannedStart) != q.Quarter) {
		return false
	}
	if q.ProjectType != "" && c.ProjectType() != q.ProjectType {
		return false
	}
	if q.Year != 0 && c.PlannedStart != nil {
		endYear := 0
		if c.PlannedEnd != nil {
			endYear = c.PlannedEnd.Year()
		}
		if c.PlannedStart.Year() != q.Year && endYear != q.Year {
			return false
		}
	}
	return true
}

func decompose(c capacity.Commitment, q Query) Item {
	weeks := c.DurationWeeks()
	total := decimal.Zero
	for _, v := range c.RoleFTE {
		if v.IsPositive() {
			total = total.Add(v)
		}
	}
	it := Item{
		Commitment:  c,
		ProjectType: c.ProjectType(),
		Slices:      ProjectIntoBuckets(c, q.Scheme),
		Weeks:       weeks,
		Resources:   int(math.Ceil(total.InexactFloat64())),
		Effort:      total.Mul(decimal.NewFromInt(int64(weeks))).Round(1),
	}
	if q.Year != 0 {
		it.Marks = MonthMarks(c, q.Year)
		if w, ok := c.Window(); ok {
			if bar, ok := Placement(w.Start, w.End, YearAxis(q.Year)); ok {
				it.YearBar = &bar
			}
		}
	}
	return it
}

func insights(items []Item, cfg *capacity.GovernanceConfig) Insights {
	roles := capacity.DefaultRoles
	if cfg != nil {
		roles = cfg.ActiveRoles()
	}

	ins := Insights{Demand: capacity.NewRoleTotals(roles...)}
	contexts := map[capacity.Portfolio]bool{}
	for _, it := range items {
		c := it.Commitment
		if c.Portfolio == capacity.PortfolioClient {
			contexts[capacity.PortfolioClient] = true
		} else {
			contexts[capacity.PortfolioInternal] = true
		}
		weeks := decimal.NewFromInt(int64(it.Weeks))
		pw := capacity.RoleTotals{}
		for r, v := range c.RoleFTE {
			pw[r] = v.Mul(weeks)
		}
		ins.Demand = ins.Demand.Add(pw)
	}

	var included []capacity.Portfolio
	for _, p := range capacity.Portfolios {
		if len(contexts) == 0 || contexts[p] {
			included = append(included, p)
		}
	}
	labels := make([]string, len(included))
	for i, p := range included {
		labels[i] = string(p)
	}
	ins.Context = strings.Join(labels, " + ")

	if cfg == nil {
		return ins
	}
	year := decimal.NewFromInt(WeeksPerYear)
	ins.Capacity = capacity.NewRoleTotals(roles...)
	for _, p := range included {
		annual := capacity.RoleTotals{}
		for _, r := range roles {
			annual[r] = capacity.WeeklyCapacity(*cfg, r, p).Mul(year)
		}
		ins.Capacity = ins.Capacity.Add(annual)
	}
	ins.Utilization = capacity.Utilization(ins.Demand, ins.Capacity, roles)
	return ins
}
