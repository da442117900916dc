package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/capacity-engine/capacity"
)

// Unscheduled labels slices of commitments without a planned start.
const Unscheduled = "Unscheduled"

// BucketSlice is one activity's share of a commitment's duration.
type BucketSlice struct {
	Activity       string
	Bucket         string
	EstimatedWeeks decimal.Decimal
}

// ProjectIntoBuckets splits a commitment's duration D evenly across its N
// activities, D/N weeks each rounded to one decimal. Activities in the last
// third by index land in the end date's bucket, the rest in the start
// date's bucket. With no activities a single unnamed slice carries D.
//
// D is the tentative duration, else the scheduled span, else one week.
func ProjectIntoBuckets(c capacity.Commitment, scheme Scheme) []BucketSlice {
	d := decimal.NewFromInt(int64(c.DurationWeeks()))
	startBucket, endBucket := Unscheduled, Unscheduled
	if c.PlannedStart != nil {
		startBucket = scheme.Bucket(*c.PlannedStart)
		endBucket = startBucket
		if w, ok := c.Window(); ok {
			endBucket = scheme.Bucket(w.End)
		}
	}

	n := len(c.Activities)
	if n == 0 {
		return []BucketSlice{{Bucket: startBucket, EstimatedWeeks: d}}
	}

	per := d.Div(decimal.NewFromInt(int64(n))).Round(1)
	out := make([]BucketSlice, n)
	for i, a := range c.Activities {
		bucket := startBucket
		if endBucket != startBucket && float64(i)/float64(n) > 0.66 {
			bucket = endBucket
		}
		out[i] = BucketSlice{Activity: a, Bucket: bucket, EstimatedWeeks: per}
	}
	return out
}

// TotalWeeks sums the slices.
func TotalWeeks(slices []BucketSlice) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range slices {
		sum = sum.Add(s.EstimatedWeeks)
	}
	return sum
}
