package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const TimeZone = "Europe/Amsterdam"

// Amsterdam is the civil calendar every source publishes dates in.
var Amsterdam = mustLoad(TimeZone)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

var dutchMonths = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mrt": time.March,
	"maa": time.March,
	"apr": time.April,
	"mei": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"okt": time.October,
	"nov": time.November,
	"dec": time.December,
}

// DutchMonth resolves abbreviated or full Dutch month names ("mrt", "maart", "Okt.").
func DutchMonth(s string) (time.Month, bool) {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "."))
	if len(s) < 3 {
		return 0, false
	}
	m, ok := dutchMonths[s[:3]]
	return m, ok
}

// NextOccurrence returns local midnight of day/month in the year of now,
// moved one year ahead when that day has already passed. Today counts as
// upcoming.
func NextOccurrence(day int, month time.Month, now time.Time) (time.Time, error) {
	local := now.In(Amsterdam)
	t := time.Date(local.Year(), month, day, 0, 0, 0, 0, Amsterdam)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid day %d for %s", day, month)
	}
	if t.Before(StartOfDay(local)) {
		t = time.Date(local.Year()+1, month, day, 0, 0, 0, 0, Amsterdam)
	}
	return t, nil
}

// ParseDayMonthYear parses "dd-mm-yyyy" (also with '/' or '.') as local midnight.
func ParseDayMonthYear(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '/' || r == '.' })
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unexpected date %q", s)
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected date %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected date %q: %w", s, err)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected date %q: %w", s, err)
	}
	if year < 100 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, Amsterdam)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func StartOfDay(t time.Time) time.Time {
	l := t.In(Amsterdam)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Amsterdam)
}

// EndOfDay is 23:59 local on the same calendar day, the end time used for
// imported events.
func EndOfDay(t time.Time) time.Time {
	l := t.In(Amsterdam)
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 0, 0, Amsterdam)
}

// IsFullDay reports whether start/end describe a full-day event in loc.
// An end time of 23:59 counts as full day whatever the start time is.
func IsFullDay(start, end time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = Amsterdam
	}
	s := start.In(loc).Format("15:04")
	e := end.In(loc).Format("15:04")
	return s == "00:00" && e == "00:00" || e == "23:59"
}
