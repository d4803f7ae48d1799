package models

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleWindow is a per-company delivery window in 24-hour "HH:MM" local
// time. Outside the window non-critical notifications are deferred, not
// dropped; CRITICA severity always bypasses it. A Start after End spans
// midnight.
type ScheduleWindow struct {
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Days     map[string]bool `json:"days"`
	Timezone string          `json:"timezone"`
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
	time.Sunday:    "sunday",
}

// Validate checks the window's times, days, and timezone parse.
func (w ScheduleWindow) Validate() error {
	if _, err := parseClock(w.Start); err != nil {
		return fmt.Errorf("%w: bad start time %q", ErrConfigurationInvalid, w.Start)
	}
	if _, err := parseClock(w.End); err != nil {
		return fmt.Errorf("%w: bad end time %q", ErrConfigurationInvalid, w.End)
	}
	for day := range w.Days {
		if !knownDay(day) {
			return fmt.Errorf("%w: unknown day %q", ErrConfigurationInvalid, day)
		}
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrConfigurationInvalid, w.Timezone)
		}
	}
	return nil
}

// Contains reports whether now falls inside the delivery window.
func (w ScheduleWindow) Contains(now time.Time) bool {
	loc := w.location()
	local := now.In(loc)
	start, errS := parseClock(w.Start)
	end, errE := parseClock(w.End)
	if errS != nil || errE != nil {
		return true
	}
	tod := local.Hour()*60 + local.Minute()

	if start <= end {
		return w.dayEnabled(local.Weekday()) && tod >= start && tod < end
	}
	// Overnight window: open from start on an enabled day until end the
	// morning after.
	if tod >= start {
		return w.dayEnabled(local.Weekday())
	}
	if tod < end {
		return w.dayEnabled(local.AddDate(0, 0, -1).Weekday())
	}
	return false
}

// NextOpen returns the earliest instant at or after now when the window is
// open. With no enabled day it returns now so a misconfigured window never
// parks notifications forever.
func (w ScheduleWindow) NextOpen(now time.Time) time.Time {
	if w.Contains(now) {
		return now
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return now
	}
	loc := w.location()
	local := now.In(loc)
	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		if !w.dayEnabled(day.Weekday()) {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
		if !candidate.Before(local) {
			return candidate
		}
	}
	return now
}

func (w ScheduleWindow) dayEnabled(d time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	return w.Days[weekdayNames[d]]
}

func (w ScheduleWindow) location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func knownDay(day string) bool {
	for _, name := range weekdayNames {
		if name == strings.ToLower(day) {
			return true
		}
	}
	return false
}
