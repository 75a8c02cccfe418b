package goal

import (
	"fmt"
	"time"
)

type Type string

const (
	Daily   Type = "daily"
	Weekly  Type = "weekly"
	Monthly Type = "monthly"
	Yearly  Type = "yearly"
)

var Types = []Type{Daily, Weekly, Monthly, Yearly}

func (t Type) Valid() bool {
	switch t {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// zone is the user's fixed offset from UTC.
func zone(offsetMinutes int) *time.Location {
	return time.FixedZone("", offsetMinutes*60)
}

// NextReset is the start of the period after the one containing now, in
// the user's local time: the next midnight, the next Monday, the first of
// next month or the first of next year.
func NextReset(t Type, now time.Time, offsetMinutes int) (int64, error) {
	local := now.In(zone(offsetMinutes))
	y, m, d := local.Date()
	loc := local.Location()

	var next time.Time
	switch t {
	case Daily:
		next = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	case Weekly:
		days := (8 - int(local.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		next = time.Date(y, m, d+days, 0, 0, 0, 0, loc)
	case Monthly:
		next = time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	case Yearly:
		next = time.Date(y+1, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return 0, fmt.Errorf("unknown goal type %q", t)
	}

	return next.Unix(), nil
}

// PeriodLabel names the period that ends at reset, for the history table.
func PeriodLabel(t Type, reset int64, offsetMinutes int) string {
	last := time.Unix(reset-1, 0).In(zone(offsetMinutes))

	switch t {
	case Weekly:
		year, week := last.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Monthly:
		return last.Format("January 2006")
	case Yearly:
		return last.Format("2006")
	default:
		return last.Format("2006-01-02")
	}
}
