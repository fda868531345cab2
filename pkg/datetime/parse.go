// Package datetime provides date utility functions for report dates.
package datetime

import (
	"fmt"
	"time"

	"github.com/tsireporting/wip-report/pkg/constants"
)

// ReportDateLayout is the format expected for report dates in API requests
// and is also the stored date format. Dates in this layout order
// lexicographically, so string comparison doubles as date comparison.
const ReportDateLayout = constants.ReportDateLayout

// ParseReportDate validates a report date string and returns its time value.
func ParseReportDate(date string) (time.Time, error) {
	t, err := time.Parse(ReportDateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid report date %q: expected %s", date, ReportDateLayout)
	}
	return t, nil
}

// DateBeforeDate returns true if firstDate is strictly before secondDate.
func DateBeforeDate(firstDate, secondDate string) (bool, error) {
	firstDateT, err := ParseReportDate(firstDate)
	if err != nil {
		return false, err
	}
	secondDateT, err := ParseReportDate(secondDate)
	if err != nil {
		return false, err
	}
	return firstDateT.Before(secondDateT), nil
}

// MustParseTime parses a date string using the given layout and panics on
// error. This is intended for use in tests where the date string is known to
// be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}
