package core

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const MonthLayout = "2006-01"

var monthLabelPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// MonthRange is a UTC calendar month as a half-open interval [Start, End).
type MonthRange struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseMonth resolves a "YYYY-MM" label. Anything else returns ErrInvalidMonth.
func ParseMonth(label string) (MonthRange, error) {
	if !monthLabelPattern.MatchString(label) {
		return MonthRange{}, ErrInvalidMonth
	}
	year, err := strconv.Atoi(label[:4])
	if err != nil {
		return MonthRange{}, ErrInvalidMonth
	}
	month, err := strconv.Atoi(label[5:])
	if err != nil || month < 1 || month > 12 {
		return MonthRange{}, ErrInvalidMonth
	}
	return monthRange(year, time.Month(month)), nil
}

// MonthRangeUTC returns the range named by label, or now's UTC month when the
// label is empty or malformed.
func MonthRangeUTC(label string, now time.Time) MonthRange {
	if r, err := ParseMonth(label); err == nil {
		return r
	}
	return MonthOf(now)
}

// MonthOf returns the UTC calendar month containing t.
func MonthOf(t time.Time) MonthRange {
	u := t.UTC()
	return monthRange(u.Year(), u.Month())
}

func monthRange(year int, month time.Month) MonthRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return MonthRange{
		Label: fmt.Sprintf("%04d-%02d", year, int(month)),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// RemainingDaysInMonthUTC counts today and every later day of now's UTC month.
// The result is never below 1.
func RemainingDaysInMonthUTC(now time.Time) int {
	u := now.UTC()
	lastDay := time.Date(u.Year(), u.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return max(1, lastDay-u.Day()+1)
}

// Days returns the number of calendar days in the range.
func (r MonthRange) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

func (r MonthRange) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(r.Start) && u.Before(r.End)
}

// RemainingDays is the day count a budget for this range is spread over when
// viewed at now: the whole month before it starts, 1 once it is over.
func (r MonthRange) RemainingDays(now time.Time) int {
	u := now.UTC()
	switch {
	case u.Before(r.Start):
		return r.Days()
	case !u.Before(r.End):
		return 1
	default:
		return RemainingDaysInMonthUTC(u)
	}
}

func (r MonthRange) Previous() MonthRange {
	return MonthOf(r.Start.AddDate(0, 0, -1))
}

func (r MonthRange) Next() MonthRange {
	return MonthOf(r.End)
}

func (r MonthRange) String() string {
	return r.Label
}
