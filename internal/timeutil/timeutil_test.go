package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"06:00", 360, false},
		{"18:30", 1110, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"9:00", 0, true},
		{"12-30", 0, true},
		{"", 0, true},
		{"abcde", 0, true},
		{"12:3a", 0, true},
		{"12:3 ", 0, true},
		{"1a:30", 0, true},
		{" 2:30", 0, true},
		{"12: 3", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestFormatClock_RoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "06:30", "18:05", "23:59"} {
		minutes, err := ParseClock(s)
		require.NoError(t, err)
		assert.Equal(t, s, FormatClock(minutes))
	}
}

func TestParseWindow_RejectsInvertedAndEmpty(t *testing.T) {
	_, err := ParseWindow("12:00", "11:00")
	assert.Error(t, err)

	_, err = ParseWindow("12:00", "12:00")
	assert.Error(t, err)

	w, err := ParseWindow("10:00", "11:30")
	require.NoError(t, err)
	assert.Equal(t, Window{Start: 600, End: 690}, w)
}

func TestWindow_Overlaps(t *testing.T) {
	base := Window{Start: 600, End: 660} // 10:00-11:00

	// Смежные интервалы не пересекаются: интервалы полуоткрытые
	assert.False(t, base.Overlaps(Window{Start: 660, End: 720}))
	assert.False(t, base.Overlaps(Window{Start: 540, End: 600}))

	assert.True(t, base.Overlaps(Window{Start: 630, End: 690}))
	assert.True(t, base.Overlaps(Window{Start: 540, End: 630}))
	assert.True(t, base.Overlaps(Window{Start: 610, End: 650}))
	assert.True(t, base.Overlaps(Window{Start: 540, End: 720}))
}

func TestWindow_Contains(t *testing.T) {
	outer := Window{Start: 540, End: 1080} // 09:00-18:00

	assert.True(t, outer.Contains(Window{Start: 540, End: 1080}))
	assert.True(t, outer.Contains(Window{Start: 600, End: 660}))
	assert.False(t, outer.Contains(Window{Start: 480, End: 600}))
	assert.False(t, outer.Contains(Window{Start: 1020, End: 1140}))
}

func TestWindow_DurationHours(t *testing.T) {
	w := Window{Start: 600, End: 690}
	assert.InDelta(t, 1.5, w.DurationHours(), 1e-9)

	full, err := ParseWindow("18:00", "20:00")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, full.DurationHours(), 1e-9)
}

func TestParseDate(t *testing.T) {
	date, err := ParseDate("2026-09-05")
	require.NoError(t, err)
	assert.Equal(t, 2026, date.Year())
	assert.Equal(t, time.September, date.Month())
	assert.Equal(t, 5, date.Day())

	_, err = ParseDate("05.09.2026")
	assert.Error(t, err)
}

func TestIsWeekend(t *testing.T) {
	saturday, _ := ParseDate("2026-09-05")
	sunday, _ := ParseDate("2026-09-06")
	monday, _ := ParseDate("2026-09-07")

	assert.True(t, IsWeekend(saturday))
	assert.True(t, IsWeekend(sunday))
	assert.False(t, IsWeekend(monday))

	assert.Equal(t, 6, DayOfWeek(saturday))
	assert.Equal(t, 0, DayOfWeek(sunday))
	assert.Equal(t, 1, DayOfWeek(monday))
}

func TestFixedClockAndSameDay(t *testing.T) {
	moment := time.Date(2026, 9, 5, 14, 5, 0, 0, time.UTC)
	clock := FixedClock{Time: moment}

	assert.Equal(t, moment, clock.Now())
	assert.Equal(t, 845, MinutesOfDay(clock.Now()))

	sameDay, _ := ParseDate("2026-09-05")
	otherDay, _ := ParseDate("2026-09-06")
	assert.True(t, SameDay(clock.Now(), sameDay))
	assert.False(t, SameDay(clock.Now(), otherDay))
}
