// Package window computes calendar-aligned challenge windows.
// All functions are pure; callers pass the instant and its location.
package window

import (
	"time"

	"github.com/studyforge/studyforge/internal/domain"
)

// HotDuration is the lifetime of a hot challenge.
const HotDuration = 4 * time.Hour

// Midnight returns the start of t's day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Daily returns [midnight, next midnight).
func Daily(t time.Time) domain.Window {
	start := Midnight(t)
	return domain.Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Weekly returns seven days starting today.
func Weekly(t time.Time) domain.Window {
	start := Midnight(t)
	return domain.Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// Monthly returns today until the same day next month.
func Monthly(t time.Time) domain.Window {
	start := Midnight(t)
	return domain.Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// Hot returns a four hour window starting at t truncated to the minute, so
// triggers fired within the same minute share a start.
func Hot(t time.Time) domain.Window {
	start := t.Truncate(time.Minute)
	return domain.Window{Start: start, End: start.Add(HotDuration)}
}

// For returns the canonical window of ct at t.
func For(ct domain.ChallengeType, t time.Time) (domain.Window, error) {
	switch ct {
	case domain.ChallengeDaily:
		return Daily(t), nil
	case domain.ChallengeWeekly:
		return Weekly(t), nil
	case domain.ChallengeMonthly:
		return Monthly(t), nil
	case domain.ChallengeHot:
		return Hot(t), nil
	}
	return domain.Window{}, domain.ErrUnknownChallengeType
}

// UntilMidnight returns the time left in t's day. Never less than a second,
// so it is always a usable cache TTL.
func UntilMidnight(t time.Time) time.Duration {
	d := Daily(t).End.Sub(t)
	if d < time.Second {
		return time.Second
	}
	return d
}

// DateKey formats t's calendar day as used in cache keys and seeds.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Seed derives a stable selection seed (yyyymmdd) from a window start.
func Seed(t time.Time) int64 {
	y, m, d := t.Date()
	return int64(y*10000 + int(m)*100 + d)
}

// NextMonday returns the next Monday midnight strictly after t.
func NextMonday(t time.Time) time.Time {
	daysUntil := (8 - int(t.Weekday())) % 7
	if daysUntil == 0 {
		daysUntil = 7
	}
	return Midnight(t).AddDate(0, 0, daysUntil)
}

// NextMonthStart returns midnight on the first of the month after t.
func NextMonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
}

// NextAligned returns the next instant after t on a step boundary counted
// from t's midnight. step must divide a day.
func NextAligned(t time.Time, step time.Duration) time.Time {
	mid := Midnight(t)
	elapsed := t.Sub(mid)
	n := elapsed/step + 1
	return mid.Add(n * step)
}
