package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studyforge/studyforge/internal/domain"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func every(d time.Duration) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return now.Add(d) }
}

func TestScheduler_FiresRepeatedly(t *testing.T) {
	var runs atomic.Int32
	s := New(time.UTC, 0, quiet(), Entry{
		Name: "tick",
		Next: every(5 * time.Millisecond),
		Run: func(context.Context, time.Time) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := runs.Load(); n < 3 {
		t.Errorf("runs = %d, want at least 3", n)
	}
}

func TestScheduler_FailureKeepsSchedule(t *testing.T) {
	var runs atomic.Int32
	s := New(time.UTC, 0, quiet(), Entry{
		Name: "flaky",
		Next: every(5 * time.Millisecond),
		Run: func(context.Context, time.Time) error {
			runs.Add(1)
			return errors.New("generator down")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if runs.Load() < 2 {
		t.Errorf("failed runs should be retried on the next tick, got %d", runs.Load())
	}
}

func TestScheduler_RunOnStart(t *testing.T) {
	var runs atomic.Int32
	s := New(time.UTC, 0, quiet(), Entry{
		Name:       "startup",
		Next:       every(time.Hour),
		Run:        func(context.Context, time.Time) error { runs.Add(1); return nil },
		RunOnStart: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
	if next, ok := s.NextRuns()["startup"]; !ok || time.Until(next) < 50*time.Minute {
		t.Errorf("next run = %v", next)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s := New(time.UTC, 0, quiet(), Entry{
		Name: "never",
		Next: every(time.Hour),
		Run:  func(context.Context, time.Time) error { t.Error("must not run"); return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_Timeout(t *testing.T) {
	var sawDeadline atomic.Bool
	s := New(time.UTC, 10*time.Millisecond, quiet(), Entry{
		Name:       "slow",
		Next:       every(time.Hour),
		RunOnStart: true,
		Run: func(ctx context.Context, _ time.Time) error {
			<-ctx.Done()
			sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if !sawDeadline.Load() {
		t.Error("run should be bounded by the scheduler timeout")
	}
}

// ─── Generation Cadences ────────────────────────────────────────────────────

type fakeGenerator struct {
	mu         sync.Mutex
	calls      []string
	dailyStart time.Time
}

func (f *fakeGenerator) record(name string) (*domain.GenerationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return &domain.GenerationResult{}, nil
}

func (f *fakeGenerator) GenerateDaily(_ context.Context, start time.Time) (*domain.GenerationResult, error) {
	f.mu.Lock()
	f.dailyStart = start
	f.mu.Unlock()
	return f.record("daily")
}
func (f *fakeGenerator) GenerateWeekly(context.Context) (*domain.GenerationResult, error) {
	return f.record("weekly")
}
func (f *fakeGenerator) GenerateMonthly(context.Context) (*domain.GenerationResult, error) {
	return f.record("monthly")
}
func (f *fakeGenerator) GenerateHot(context.Context) (*domain.GenerationResult, error) {
	return f.record("hot")
}

func TestGenerationEntries_NextTimes(t *testing.T) {
	entries := GenerationEntries(&fakeGenerator{}, Cadences{Daily: true, Weekly: true, Monthly: true, Hot: true})
	if len(entries) != 4 {
		t.Fatalf("entries = %d", len(entries))
	}

	// Wednesday mid-morning.
	now := time.Date(2025, 7, 9, 10, 30, 0, 0, time.UTC)
	want := map[string]time.Time{
		"generate_daily":   time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		"generate_weekly":  time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC),
		"generate_monthly": time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		"generate_hot":     time.Date(2025, 7, 9, 12, 0, 0, 0, time.UTC),
	}
	for _, e := range entries {
		if got := e.Next(now); !got.Equal(want[e.Name]) {
			t.Errorf("%s next = %v, want %v", e.Name, got, want[e.Name])
		}
	}
}

func TestGenerationEntries_Selection(t *testing.T) {
	entries := GenerationEntries(&fakeGenerator{}, Cadences{Daily: true, Hot: true, HotEvery: time.Hour})
	if len(entries) != 2 || entries[0].Name != "generate_daily" || entries[1].Name != "generate_hot" {
		t.Fatalf("entries = %+v", entries)
	}
	now := time.Date(2025, 7, 9, 10, 30, 0, 0, time.UTC)
	if got := entries[1].Next(now); !got.Equal(time.Date(2025, 7, 9, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("hourly hot next = %v", got)
	}
}

func TestGenerationEntries_DailyUsesFireTime(t *testing.T) {
	gen := &fakeGenerator{}
	entries := GenerationEntries(gen, Cadences{Daily: true})

	midnight := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	if err := entries[0].Run(context.Background(), midnight); err != nil {
		t.Fatal(err)
	}
	if !gen.dailyStart.Equal(midnight) {
		t.Errorf("daily generated for %v, want %v", gen.dailyStart, midnight)
	}
}

func TestGenerationEntries_DailyOnStart(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(time.UTC, 0, quiet(), GenerationEntries(gen, Cadences{Daily: true, DailyOnStart: true})...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.calls) != 1 || gen.calls[0] != "daily" {
		t.Errorf("calls = %v", gen.calls)
	}
}
