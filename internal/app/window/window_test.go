package window_test

import (
	"testing"
	"time"

	"github.com/studyforge/studyforge/internal/app/window"
	"github.com/studyforge/studyforge/internal/domain"
)

func TestDaily(t *testing.T) {
	now := time.Date(2025, 7, 9, 15, 30, 0, 0, time.UTC)
	w := window.Daily(now)
	if !w.Start.Equal(time.Date(2025, 7, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", w.Start)
	}
	if !w.End.Equal(time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", w.End)
	}
	if !w.Contains(now) || w.Contains(w.End) {
		t.Error("window must be half-open")
	}
}

func TestMonthly_CalendarMonth(t *testing.T) {
	now := time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)
	w := window.Monthly(now)
	if !w.End.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", w.End)
	}
}

func TestFor(t *testing.T) {
	now := time.Date(2025, 7, 9, 15, 30, 45, 0, time.UTC)
	tests := []struct {
		ct   domain.ChallengeType
		want time.Duration
	}{
		{domain.ChallengeDaily, 24 * time.Hour},
		{domain.ChallengeWeekly, 7 * 24 * time.Hour},
		{domain.ChallengeHot, 4 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.ct), func(t *testing.T) {
			w, err := window.For(tt.ct, now)
			if err != nil {
				t.Fatal(err)
			}
			if got := w.End.Sub(w.Start); got != tt.want {
				t.Errorf("length = %v, want %v", got, tt.want)
			}
			if !w.Start.Before(w.End) {
				t.Error("start must precede end")
			}
		})
	}
	if _, err := window.For("yearly", now); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestHot_TruncatesToMinute(t *testing.T) {
	a := window.Hot(time.Date(2025, 7, 9, 15, 30, 1, 0, time.UTC))
	b := window.Hot(time.Date(2025, 7, 9, 15, 30, 59, 0, time.UTC))
	if !a.Start.Equal(b.Start) {
		t.Errorf("expected same start, got %v and %v", a.Start, b.Start)
	}
}

func TestUntilMidnight(t *testing.T) {
	now := time.Date(2025, 7, 9, 23, 0, 0, 0, time.UTC)
	if got := window.UntilMidnight(now); got != time.Hour {
		t.Errorf("expected 1h, got %v", got)
	}
	almost := time.Date(2025, 7, 9, 23, 59, 59, 999, time.UTC)
	if got := window.UntilMidnight(almost); got != time.Second {
		t.Errorf("expected floor of 1s, got %v", got)
	}
}

func TestUntilMidnight_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2025, 7, 9, 22, 0, 0, 0, loc)
	if got := window.UntilMidnight(now); got != 2*time.Hour {
		t.Errorf("expected 2h, got %v", got)
	}
}

func TestNextMonday(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"wednesday", time.Date(2025, 7, 9, 10, 0, 0, 0, time.UTC), time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC)},
		{"monday", time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 21, 0, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2025, 7, 13, 23, 0, 0, 0, time.UTC), time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := window.NextMonday(tt.in); !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextMonthStart_December(t *testing.T) {
	got := window.NextMonthStart(time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC))
	if !got.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}
}

func TestNextAligned(t *testing.T) {
	got := window.NextAligned(time.Date(2025, 7, 9, 9, 15, 0, 0, time.UTC), 4*time.Hour)
	if !got.Equal(time.Date(2025, 7, 9, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}
	got = window.NextAligned(time.Date(2025, 7, 9, 12, 0, 0, 0, time.UTC), 4*time.Hour)
	if !got.Equal(time.Date(2025, 7, 9, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("boundary should advance, got %v", got)
	}
}

func TestSeed(t *testing.T) {
	if got := window.Seed(time.Date(2025, 7, 9, 0, 0, 0, 0, time.UTC)); got != 20250709 {
		t.Errorf("got %d", got)
	}
}
