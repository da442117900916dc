/*
Package schedule projects commitments onto time buckets for roadmap views.

PURPOSE:
  Maps commitment date ranges onto calendar quarters, fiscal quarters or
  months, splits activity lists into per-bucket duration slices, and places
  Gantt bars on quarter and year axes. Nothing here feeds back into
  admission decisions.

QUARTER SCHEMES:
  Two schemes coexist and are never conflated:

    Calendar:  Q1 = Jan-Mar, Q2 = Apr-Jun, Q3 = Jul-Sep, Q4 = Oct-Dec
    Fiscal:    Q1 = Apr-Jun, Q2 = Jul-Sep, Q3 = Oct-Dec, Q4 = Jan-Mar

  Fiscal Q4 belongs to the fiscal year that started the previous April, but
  a roadmap for year Y shows Jan-Mar of Y under its Q4 column. Callers pick
  a Scheme explicitly.

SEE ALSO:
  - projection.go: ProjectIntoBuckets
  - gantt.go: Placement, axes, month marks
  - roadmap.go: BuildRoadmap
*/
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/capacity-engine/capacity"
)

// Quarter is 1 through 4.
type Quarter int

func (q Quarter) String() string {
	return fmt.Sprintf("Q%d", int(q))
}

// Quarters lists Q1 through Q4.
var Quarters = []Quarter{1, 2, 3, 4}

// ParseQuarter accepts "Q1".."Q4" in any case. Empty or "all" yields 0.
func ParseQuarter(s string) (Quarter, error) {
	switch v := strings.ToUpper(strings.TrimSpace(s)); v {
	case "", "ALL":
		return 0, nil
	case "Q1", "Q2", "Q3", "Q4":
		return Quarter(v[1] - '0'), nil
	}
	return 0, &capacity.InvalidValueError{Kind: "quarter", Value: s, Err: capacity.ErrInvalidValue}
}

// CalendarQuarter buckets Jan-Mar as Q1.
func CalendarQuarter(t time.Time) Quarter {
	return Quarter((int(t.Month())-1)/3 + 1)
}

// FiscalQuarter buckets Apr-Jun as Q1 and Jan-Mar as Q4.
func FiscalQuarter(t time.Time) Quarter {
	m := int(t.Month())
	if m >= 4 {
		return Quarter((m-4)/3 + 1)
	}
	return 4
}

// FiscalYear is the calendar year in which t's fiscal year began.
func FiscalYear(t time.Time) int {
	if t.Month() >= time.April {
		return t.Year()
	}
	return t.Year() - 1
}

// MonthOfYear returns 1 through 12.
func MonthOfYear(t time.Time) int {
	return int(t.Month())
}

// =============================================================================
// SCHEME
// =============================================================================

// Scheme selects how dates map to buckets.
type Scheme string

const (
	SchemeCalendar Scheme = "calendar"
	SchemeFiscal   Scheme = "fiscal"
	SchemeMonth    Scheme = "month"
)

// ParseScheme defaults empty input to the fiscal scheme used by roadmap views.
func ParseScheme(s string) (Scheme, error) {
	switch v := Scheme(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return SchemeFiscal, nil
	case SchemeCalendar, SchemeFiscal, SchemeMonth:
		return v, nil
	}
	return "", &capacity.InvalidValueError{Kind: "scheme", Value: s, Err: capacity.ErrInvalidValue}
}

// Quarter buckets t under the scheme. The month scheme uses calendar quarters.
func (s Scheme) Quarter(t time.Time) Quarter {
	if s == SchemeFiscal {
		return FiscalQuarter(t)
	}
	return CalendarQuarter(t)
}

// Bucket labels t: "Q1".."Q4" for quarter schemes, "Jan".."Dec" for months.
func (s Scheme) Bucket(t time.Time) string {
	if s == SchemeMonth {
		return t.Month().String()[:3]
	}
	return s.Quarter(t).String()
}

// QuarterAxis is the date span shown for quarter q of a year-Y roadmap.
func QuarterAxis(s Scheme, year int, q Quarter) capacity.Window {
	startMonth := time.Month(3*(int(q)-1) + 1)
	if s == SchemeFiscal {
		if q == 4 {
			startMonth = time.January
		} else {
			startMonth = time.Month(3*int(q) + 1)
		}
	}
	start := capacity.Date(year, startMonth, 1)
	return capacity.Window{Start: start, End: start.AddDate(0, 3, -1)}
}

// YearAxis spans January through December.
func YearAxis(year int) capacity.Window {
	return capacity.Window{Start: capacity.Date(year, time.January, 1), End: capacity.Date(year, time.December, 31)}
}
