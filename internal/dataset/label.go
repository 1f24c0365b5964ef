package dataset

import (
	"fmt"
	"time"
)

// DayLabel generates the human label for a calendar day relative to
// now, both already in the forecast's local timezone (spec.md §4.2).
// The same-day branch is keyed off now's hour of day: a forecast
// fetched at 21:00 describes "the rest of the evening", not "today".
func DayLabel(day, now time.Time) string {
	weekday := day.Weekday().String()

	dayDate := truncateToDate(day)
	nowDate := truncateToDate(now)

	switch {
	case dayDate.Equal(nowDate):
		hour := now.Hour()
		switch {
		case hour >= 22:
			return fmt.Sprintf("Rest of the evening, %s", weekday)
		case hour > 15:
			return fmt.Sprintf("This evening, %s", weekday)
		case hour > 10:
			return fmt.Sprintf("This afternoon and evening, %s", weekday)
		case hour >= 6:
			return fmt.Sprintf("Rest of today, %s", weekday)
		default:
			return fmt.Sprintf("Today, %s", weekday)
		}
	case dayDate.Equal(nowDate.AddDate(0, 0, 1)):
		return fmt.Sprintf("Tomorrow, %s", weekday)
	default:
		return weekday
	}
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
