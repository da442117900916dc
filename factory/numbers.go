package factory

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/capacity-engine/capacity"
)

func decimalOf(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func decimalOr(f *float64, def float64) decimal.Decimal {
	if f == nil {
		return decimal.NewFromFloat(def)
	}
	if *f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*f)
}

// roleFTE normalizes role keys and clamps negative values.
func roleFTE(m map[string]float64) (capacity.RoleTotals, []error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(capacity.RoleTotals, len(m))
	var notices []error
	for _, k := range keys {
		r := capacity.NormalizeRole(k)
		v := m[k]
		if v < 0 {
			notices = append(notices, &capacity.NegativeInputError{Field: "role_fte." + string(r), Value: v})
			v = 0
		}
		out[r] = decimalOf(v)
	}
	return out, notices
}

func roleFloats(t capacity.RoleTotals) map[string]float64 {
	out := make(map[string]float64, len(t))
	for r, v := range t {
		out[string(r)] = v.InexactFloat64()
	}
	return out
}
