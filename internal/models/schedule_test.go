package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// at builds a UTC instant on a fixed week: 2026-03-02 is a Monday.
func at(day int, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
}

func TestScheduleWindowValidate(t *testing.T) {
	tests := []struct {
		name    string
		window  ScheduleWindow
		wantErr bool
	}{
		{name: "day window", window: ScheduleWindow{Start: "08:00", End: "18:00"}},
		{name: "overnight window", window: ScheduleWindow{Start: "22:00", End: "06:00"}},
		{name: "with days and tz", window: ScheduleWindow{Start: "08:00", End: "18:00", Days: map[string]bool{"monday": true}, Timezone: "America/Bogota"}},
		{name: "bad start", window: ScheduleWindow{Start: "8am", End: "18:00"}, wantErr: true},
		{name: "bad end", window: ScheduleWindow{Start: "08:00", End: "25:00"}, wantErr: true},
		{name: "unknown day", window: ScheduleWindow{Start: "08:00", End: "18:00", Days: map[string]bool{"funday": true}}, wantErr: true},
		{name: "unknown timezone", window: ScheduleWindow{Start: "08:00", End: "18:00", Timezone: "Mars/Olympus"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.window.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfigurationInvalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestScheduleWindowContains(t *testing.T) {
	day := ScheduleWindow{Start: "08:00", End: "18:00"}

	assert.True(t, day.Contains(at(2, 8, 0)))
	assert.True(t, day.Contains(at(2, 12, 30)))
	assert.False(t, day.Contains(at(2, 18, 0)), "end is exclusive")
	assert.False(t, day.Contains(at(2, 7, 59)))
	assert.False(t, day.Contains(at(2, 22, 0)))
}

func TestScheduleWindowContainsOvernight(t *testing.T) {
	// Open Monday 22:00 through Tuesday 06:00.
	night := ScheduleWindow{Start: "22:00", End: "06:00", Days: map[string]bool{"monday": true}}

	assert.True(t, night.Contains(at(2, 22, 0)), "Monday night")
	assert.True(t, night.Contains(at(2, 23, 59)))
	assert.True(t, night.Contains(at(3, 5, 59)), "Tuesday early morning belongs to Monday's window")
	assert.False(t, night.Contains(at(3, 6, 0)))
	assert.False(t, night.Contains(at(3, 22, 0)), "Tuesday night is not enabled")
	assert.False(t, night.Contains(at(2, 12, 0)))
}

func TestScheduleWindowDays(t *testing.T) {
	weekdays := ScheduleWindow{
		Start: "08:00", End: "18:00",
		Days: map[string]bool{"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true},
	}

	assert.True(t, weekdays.Contains(at(6, 12, 0)), "Friday")
	assert.False(t, weekdays.Contains(at(7, 12, 0)), "Saturday")

	all := ScheduleWindow{Start: "08:00", End: "18:00"}
	assert.True(t, all.Contains(at(8, 12, 0)), "empty day set enables every day")
}

func TestScheduleWindowTimezone(t *testing.T) {
	// 14:00 UTC is 09:00 in Bogota (UTC-5, no DST).
	bogota := ScheduleWindow{Start: "08:00", End: "10:00", Timezone: "America/Bogota"}

	assert.True(t, bogota.Contains(at(2, 14, 0)))
	assert.False(t, bogota.Contains(at(2, 8, 0)), "08:00 UTC is 03:00 local")
}

func TestScheduleWindowNextOpen(t *testing.T) {
	day := ScheduleWindow{Start: "08:00", End: "18:00"}

	now := at(2, 12, 0)
	assert.Equal(t, now, day.NextOpen(now), "inside the window returns now")

	next := day.NextOpen(at(2, 19, 0))
	assert.Equal(t, at(3, 8, 0), next, "after close rolls to next morning")

	next = day.NextOpen(at(2, 6, 0))
	assert.Equal(t, at(2, 8, 0), next, "before open waits for today's start")

	monday := ScheduleWindow{Start: "08:00", End: "18:00", Days: map[string]bool{"monday": true}}
	next = monday.NextOpen(at(3, 12, 0))
	assert.Equal(t, at(9, 8, 0), next, "skips to the next enabled weekday")

	never := ScheduleWindow{Start: "08:00", End: "18:00", Days: map[string]bool{"monday": false}}
	// No enabled day: Days non-empty but all false. NextOpen must not park
	// delivery forever.
	assert.Equal(t, at(2, 9, 0), never.NextOpen(at(2, 9, 0)))
}
