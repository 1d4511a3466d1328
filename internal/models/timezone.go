package models

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Location is the service's civil time zone. Dates and slot times are Kyiv local.
var Location = mustLoad("Europe/Kyiv")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD as local midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, Location)
}

// DayRange returns local midnight of the day containing t and the next midnight.
func DayRange(t time.Time) (time.Time, time.Time) {
	local := t.In(Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Location)
	return start, start.AddDate(0, 0, 1)
}

// ISOWeekday maps Monday..Sunday to 1..7.
func ISOWeekday(t time.Time) int {
	wd := int(t.In(Location).Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// MinuteKey is the minute-truncated local time used to match slots.
func MinuteKey(t time.Time) time.Time {
	return t.In(Location).Truncate(time.Minute)
}
