// Package schedule evaluates weekly opening windows against the wall clock,
// including windows that cross midnight.
package schedule

import (
	"time"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/timemath"
)

// Info describes the open/closed status of a branch right now. Known is
// false when the branch has no usable schedule at all, which the UI renders
// as "schedule unavailable" rather than "closed all week".
type Info struct {
	Known        bool   `json:"known"`
	IsOpen       bool   `json:"is_open"`
	OpenTime     string `json:"open_time,omitempty"`
	CloseTime    string `json:"close_time,omitempty"`
	NextOpenDay  string `json:"next_open_day,omitempty"`
	NextOpenTime string `json:"next_open_time,omitempty"`
}

// WeekEntry is one row of the Monday-first weekly table.
type WeekEntry struct {
	Day       string `json:"day"`
	OpenTime  string `json:"open_time,omitempty"`
	CloseTime string `json:"close_time,omitempty"`
	Closed    bool   `json:"is_closed"`
}

// byDay indexes entries by canonical day. Entries with an unrecognized day
// name are dropped; a day without an entry counts as closed, keeping lookups
// total.
func byDay(entries []domain.ScheduleEntry) map[timemath.Day]domain.ScheduleEntry {
	m := make(map[timemath.Day]domain.ScheduleEntry, len(entries))
	for _, e := range entries {
		if day, ok := timemath.ParseDay(e.Day); ok {
			m[day] = e
		}
	}
	return m
}

// openWindow reports whether a wall-clock minute falls inside the entry's
// window. A close time at or before the open time crosses midnight.
func openWindow(e domain.ScheduleEntry, nowMinutes int) (bool, bool) {
	open, err := timemath.ParseClock(e.OpenTime)
	if err != nil {
		return false, false
	}
	closeAt, err := timemath.ParseClock(e.CloseTime)
	if err != nil {
		return false, false
	}
	if closeAt <= open {
		return nowMinutes >= open || nowMinutes <= closeAt, true
	}
	return nowMinutes >= open && nowMinutes <= closeAt, true
}

// IsOpenNow reports whether the branch is open at the given instant.
func IsOpenNow(entries []domain.ScheduleEntry, now time.Time) bool {
	return CurrentInfo(entries, now).IsOpen
}

// CurrentInfo evaluates the schedule at the given instant. When the branch is
// closed it also reports the next opening, scanning forward up to six days
// with wraparound.
func CurrentInfo(entries []domain.ScheduleEntry, now time.Time) Info {
	idx := byDay(entries)
	if len(idx) == 0 {
		return Info{}
	}

	today := timemath.FromWeekday(now.Weekday())
	nowMinutes := timemath.MinutesOfDay(now)

	if entry, ok := idx[today]; ok && !entry.Closed {
		open, parsed := openWindow(entry, nowMinutes)
		if !parsed {
			return Info{}
		}
		info := Info{Known: true, IsOpen: open}
		if openAt, err := timemath.ParseClock(entry.OpenTime); err == nil {
			info.OpenTime = timemath.Format12Hour(openAt)
		}
		if closeAt, err := timemath.ParseClock(entry.CloseTime); err == nil {
			info.CloseTime = timemath.Format12Hour(closeAt)
		}
		if open {
			return info
		}
		fillNextOpen(&info, idx, today)
		return info
	}

	info := Info{Known: true}
	fillNextOpen(&info, idx, today)
	return info
}

func fillNextOpen(info *Info, idx map[timemath.Day]domain.ScheduleEntry, today timemath.Day) {
	next, ok := timemath.NextOpenDay(today, func(d timemath.Day) bool {
		entry, present := idx[d]
		if !present || entry.Closed {
			return false
		}
		_, err := timemath.ParseClock(entry.OpenTime)
		return err == nil
	})
	if !ok {
		return
	}
	entry := idx[next]
	openAt, err := timemath.ParseClock(entry.OpenTime)
	if err != nil {
		return
	}
	info.NextOpenDay = next.DisplayName()
	info.NextOpenTime = timemath.Format12Hour(openAt)
}

// WeeklyFormatted renders the full week Monday through Sunday regardless of
// input order, with 12-hour times and missing days marked closed.
func WeeklyFormatted(entries []domain.ScheduleEntry) []WeekEntry {
	idx := byDay(entries)
	week := make([]WeekEntry, 0, timemath.DaysPerWeek)
	for day := timemath.Monday; day <= timemath.Sunday; day++ {
		row := WeekEntry{Day: day.DisplayName(), Closed: true}
		if entry, ok := idx[day]; ok && !entry.Closed {
			openAt, openErr := timemath.ParseClock(entry.OpenTime)
			closeAt, closeErr := timemath.ParseClock(entry.CloseTime)
			if openErr == nil && closeErr == nil {
				row.Closed = false
				row.OpenTime = timemath.Format12Hour(openAt)
				row.CloseTime = timemath.Format12Hour(closeAt)
			}
		}
		week = append(week, row)
	}
	return week
}
