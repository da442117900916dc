package schedule

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/warp/capacity-engine/capacity"
)

// =============================================================================
// GANTT PLACEMENT
// =============================================================================

// Bar positions a commitment on an axis, both values in percent of the axis.
type Bar struct {
	Left  float64
	Width float64
}

// Placement positions [start, end] on axis at day granularity:
//
//	left  = days from axis start to the visible start / axis days x 100
//	width = visible days / axis days x 100
//
// The bar is clamped so left+width never exceeds 100. It returns false when
// the interval misses the axis or end precedes start.
func Placement(start, end time.Time, axis capacity.Window) (Bar, bool) {
	w, err := capacity.NewWindow(start, end)
	if err != nil {
		return Bar{}, false
	}
	visible, ok := w.Intersect(axis)
	if !ok {
		return Bar{}, false
	}
	length := float64(axis.Days())
	left := float64(capacity.DaysBetween(axis.Start, visible.Start)) / length * 100
	left = round2(left)
	width := round2(float64(visible.Days()) / length * 100)
	if left+width > 100 {
		width = 100 - left
	}
	return Bar{Left: left, Width: width}, true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// =============================================================================
// MONTH MARKS - twelve-column year grid
// =============================================================================

const (
	MarkScheduled = "X"
	MarkTentative = "~"
)

// MonthMarks fills a Jan..Dec grid for year: "X" for every month the
// scheduled interval touches, otherwise "~" across the calendar quarter
// named by the start date or the pickup period, otherwise blanks.
func MonthMarks(c capacity.Commitment, year int) [12]string {
	var marks [12]string
	if w, ok := c.Window(); ok {
		first, last := 1, 12
		switch {
		case w.Start.Year() > year:
			first = 13
		case w.Start.Year() == year:
			first = int(w.Start.Month())
		}
		switch {
		case w.End.Year() < year:
			last = 0
		case w.End.Year() == year:
			last = int(w.End.Month())
		}
		if first <= last {
			for m := first; m <= last; m++ {
				marks[m-1] = MarkScheduled
			}
			return marks
		}
	}

	if q := TentativeQuarter(c); q > 0 {
		for m := 3 * (int(q) - 1); m < 3*int(q); m++ {
			marks[m] = MarkTentative
		}
	}
	return marks
}

// TentativeQuarter is the calendar quarter of the planned start, or the
// first "Qn" found in the pickup period, or 0.
func TentativeQuarter(c capacity.Commitment) Quarter {
	if c.PlannedStart != nil {
		return CalendarQuarter(*c.PlannedStart)
	}
	p := strings.ToUpper(c.PickupPeriod)
	for i := 1; i <= 4; i++ {
		if strings.Contains(p, "Q"+strconv.Itoa(i)) {
			return Quarter(i)
		}
	}
	return 0
}
