// Package schedule fires challenge generation on its calendar cadences.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/studyforge/studyforge/internal/app/window"
	"github.com/studyforge/studyforge/internal/domain"
)

// Entry is one recurring job. Next returns the first fire time strictly
// after now. Run receives the instant it was scheduled for, or the start
// time for a run on start.
type Entry struct {
	Name       string
	Next       func(now time.Time) time.Time
	Run        func(ctx context.Context, at time.Time) error
	RunOnStart bool
}

// Scheduler runs entries on their own timers until its context ends.
type Scheduler struct {
	entries []Entry
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger

	mu   sync.Mutex
	next map[string]time.Time
}

// New creates a scheduler computing fire times in loc. timeout bounds
// each run; zero means no bound.
func New(loc *time.Location, timeout time.Duration, log *slog.Logger, entries ...Entry) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		entries: entries,
		timeout: timeout,
		loc:     loc,
		now:     time.Now,
		log:     log.With(slog.String("component", "scheduler")),
		next:    make(map[string]time.Time),
	}
}

// Run blocks until ctx is cancelled and every in-flight run has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, e)
		}()
	}
	wg.Wait()
}

// NextRuns returns the pending fire time of every started entry.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.next))
	for k, v := range s.next {
		out[k] = v
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, e Entry) {
	if e.RunOnStart {
		s.fire(ctx, e, s.now().In(s.loc))
	}
	for {
		now := s.now().In(s.loc)
		at := e.Next(now)
		s.mu.Lock()
		s.next[e.Name] = at
		s.mu.Unlock()

		timer := time.NewTimer(at.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.fire(ctx, e, at)
	}
}

func (s *Scheduler) fire(ctx context.Context, e Entry, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	if err := e.Run(ctx, at); err != nil {
		s.log.Error("scheduled run failed", slog.String("job", e.Name), slog.Any("error", err))
		return
	}
	s.log.Info("scheduled run finished", slog.String("job", e.Name), slog.Duration("elapsed", time.Since(started)))
}

// ─── Generation Cadences ────────────────────────────────────────────────────

// Generator is the part of the challenge engine the cadences drive.
type Generator interface {
	GenerateDaily(ctx context.Context, start time.Time) (*domain.GenerationResult, error)
	GenerateWeekly(ctx context.Context) (*domain.GenerationResult, error)
	GenerateMonthly(ctx context.Context) (*domain.GenerationResult, error)
	GenerateHot(ctx context.Context) (*domain.GenerationResult, error)
}

// Cadences selects which generation entries are scheduled.
type Cadences struct {
	Daily, Weekly, Monthly, Hot bool
	DailyOnStart                bool // generate today's challenges at startup
	HotEvery                    time.Duration
}

// GenerationEntries returns the scheduled generation jobs: daily at midnight,
// weekly on Monday midnight, monthly on the first, hot every HotEvery
// (default four hours) aligned to midnight.
func GenerationEntries(g Generator, c Cadences) []Entry {
	hotEvery := c.HotEvery
	if hotEvery <= 0 {
		hotEvery = window.HotDuration
	}
	ignoreResult := func(run func(ctx context.Context) (*domain.GenerationResult, error)) func(ctx context.Context, at time.Time) error {
		return func(ctx context.Context, _ time.Time) error {
			_, err := run(ctx)
			return err
		}
	}

	var entries []Entry
	if c.Daily {
		entries = append(entries, Entry{
			Name: "generate_daily",
			Next: func(now time.Time) time.Time { return window.Daily(now).End },
			// Generate for the day of the fire time, not the wall clock at run time.
			Run: func(ctx context.Context, at time.Time) error {
				_, err := g.GenerateDaily(ctx, at)
				return err
			},
			RunOnStart: c.DailyOnStart,
		})
	}
	if c.Weekly {
		entries = append(entries, Entry{Name: "generate_weekly", Next: window.NextMonday, Run: ignoreResult(g.GenerateWeekly)})
	}
	if c.Monthly {
		entries = append(entries, Entry{Name: "generate_monthly", Next: window.NextMonthStart, Run: ignoreResult(g.GenerateMonthly)})
	}
	if c.Hot {
		entries = append(entries, Entry{
			Name: "generate_hot",
			Next: func(now time.Time) time.Time { return window.NextAligned(now, hotEvery) },
			Run:  ignoreResult(g.GenerateHot),
		})
	}
	return entries
}
