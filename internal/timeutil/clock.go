package timeutil

import "time"

// Clock источник текущего времени. В тестах подменяется фиксированным
// значением, чтобы фильтрация прошедших слотов была детерминированной.
type Clock interface {
	Now() time.Time
}

type RealClock struct {
	Location *time.Location
}

func (c RealClock) Now() time.Time {
	if c.Location != nil {
		return time.Now().In(c.Location)
	}
	return time.Now()
}

// FixedClock всегда возвращает одно и то же время.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Time
}

// SameDay сравнивает календарные дни двух моментов в зоне момента now.
func SameDay(now, date time.Time) bool {
	return now.Format(DateLayout) == date.Format(DateLayout)
}

// MinutesOfDay минуты с начала суток для момента t.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
