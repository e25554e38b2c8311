// Package timemath holds the pure time and day-of-week helpers used by the
// schedule evaluator: clock parsing, 12-hour formatting and normalization of
// backend day names onto a canonical cyclic week.
package timemath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day is the canonical day-of-week enumeration with a fixed cyclic order
// starting at Monday.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DaysPerWeek is the length of the day cycle.
const DaysPerWeek = 7

var ErrBadClock = errors.New("malformed clock value")

var canonicalNames = [DaysPerWeek]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var displayNames = [DaysPerWeek]string{
	"Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado", "Domingo",
}

// dayAliases maps every accepted day spelling to the canonical value. The
// backend serves Spanish day names, sometimes without diacritics; English
// names are accepted because seed fixtures use them. The table is static on
// purpose: no further locales are inferred.
var dayAliases = map[string]Day{
	"monday": Monday, "lunes": Monday,
	"tuesday": Tuesday, "martes": Tuesday,
	"wednesday": Wednesday, "miercoles": Wednesday, "miércoles": Wednesday,
	"thursday": Thursday, "jueves": Thursday,
	"friday": Friday, "viernes": Friday,
	"saturday": Saturday, "sabado": Saturday, "sábado": Saturday,
	"sunday": Sunday, "domingo": Sunday,
}

func (d Day) String() string {
	if d < Monday || d > Sunday {
		return "unknown"
	}
	return canonicalNames[d]
}

// DisplayName returns the Spanish day name used on cards and chips.
func (d Day) DisplayName() string {
	if d < Monday || d > Sunday {
		return ""
	}
	return displayNames[d]
}

// Next returns the following day, wrapping Sunday back to Monday.
func (d Day) Next() Day {
	return (d + 1) % DaysPerWeek
}

// ParseDay normalizes a localized day name to its canonical Day.
func ParseDay(name string) (Day, bool) {
	d, ok := dayAliases[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// FromWeekday converts Go's Sunday-based weekday to the canonical Day.
func FromWeekday(w time.Weekday) Day {
	if w == time.Sunday {
		return Sunday
	}
	return Day(int(w) - 1)
}

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, value)
	}
	return hours*60 + minutes, nil
}

// Format12Hour renders minutes since midnight as a 12-hour clock with AM/PM.
func Format12Hour(minutes int) string {
	minutes %= 24 * 60
	if minutes < 0 {
		minutes += 24 * 60
	}
	hours := minutes / 60
	suffix := "AM"
	if hours >= 12 {
		suffix = "PM"
	}
	display := hours % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:%02d %s", display, minutes%60, suffix)
}

// MinutesOfDay extracts minutes since midnight from a wall-clock instant.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// NextOpenDay walks forward from (not including) the given day and returns
// the first day for which open reports true, scanning at most a full cycle.
func NextOpenDay(from Day, open func(Day) bool) (Day, bool) {
	day := from
	for i := 0; i < DaysPerWeek-1; i++ {
		day = day.Next()
		if open(day) {
			return day, true
		}
	}
	return from, false
}
