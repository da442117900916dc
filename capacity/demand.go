package capacity

// =============================================================================
// DEMAND AGGREGATION
// =============================================================================

// Demand is the role demand of one portfolio over a reference window.
type Demand struct {
	Usage       RoleTotals
	Scheduled   int // commitments whose interval intersects the window
	Unscheduled int // commitments without a valid date range
}

// AggregateDemand sums the FTE of every scheduled commitment in the portfolio
// whose planned interval intersects window, both ends inclusive. Unscheduled
// commitments are counted but never contribute usage. Scheduled commitments
// outside the window are ignored. The input slice is not modified.
func AggregateDemand(commitments []Commitment, portfolio Portfolio, window Window) Demand {
	d := Demand{Usage: RoleTotals{}}
	for _, c := range commitments {
		if c.Portfolio != portfolio {
			continue
		}
		cw, ok := c.Window()
		if !ok {
			d.Unscheduled++
			continue
		}
		if !cw.Overlaps(window) {
			continue
		}
		d.Scheduled++
		d.Usage = d.Usage.Add(c.RoleFTE)
	}
	return d
}

// ExcludeCommitment drops the commitment with the given id. An empty id
// returns the input unchanged.
func ExcludeCommitment(commitments []Commitment, id string) []Commitment {
	if id == "" {
		return commitments
	}
	out := make([]Commitment, 0, len(commitments))
	for _, c := range commitments {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
