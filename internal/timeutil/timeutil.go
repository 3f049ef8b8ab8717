package timeutil

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseClock разбирает строку "HH:MM" в минуты с начала суток.
// Формат строгий: ровно две цифры в каждом поле.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
	}
	for _, i := range [4]int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("invalid clock time %q: out of range", s)
	}
	return hh*60 + mm, nil
}

// FormatClock обратное преобразование минут в "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Window полуоткрытый интервал [Start, End) в минутах с начала суток.
type Window struct {
	Start int
	End   int
}

// ParseWindow разбирает пару "HH:MM" и требует start < end.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	if s >= e {
		return Window{}, fmt.Errorf("invalid window %s-%s: start must be before end", start, end)
	}
	return Window{Start: s, End: e}, nil
}

// Overlaps проверка пересечения полуоткрытых интервалов:
// existing.start < requested.end AND existing.end > requested.start.
func (w Window) Overlaps(other Window) bool {
	return w.Start < other.End && w.End > other.Start
}

// Contains окно other целиком лежит внутри w.
func (w Window) Contains(other Window) bool {
	return other.Start >= w.Start && other.End <= w.End
}

// DurationHours длительность окна в часах, может быть дробной.
func (w Window) DurationHours() float64 {
	return float64(w.End-w.Start) / 60.0
}

func (w Window) StartClock() string { return FormatClock(w.Start) }
func (w Window) EndClock() string   { return FormatClock(w.End) }

// ParseDate разбирает календарную дату "YYYY-MM-DD" без времени.
// Результат нормализован к полуночи UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DayOfWeek день недели даты, 0 = воскресенье.
func DayOfWeek(date time.Time) int {
	return int(date.Weekday())
}

// IsWeekend суббота или воскресенье.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
