package challenge_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/studyforge/studyforge/internal/app/challenge"
	"github.com/studyforge/studyforge/internal/app/scoreboard"
	"github.com/studyforge/studyforge/internal/app/tasks"
	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/infra/cache"
	"github.com/studyforge/studyforge/internal/infra/sqlite"
)

// start is a Wednesday morning.
var start = time.Date(2025, 7, 9, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeGenerator struct {
	mu       sync.Mutex
	fail     bool
	requests []domain.QuizRequest
}

func (g *fakeGenerator) GenerateQuiz(_ context.Context, req domain.QuizRequest) (*domain.GeneratedQuiz, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.fail {
		return nil, domain.ErrGeneratorUnavailable
	}
	return &domain.GeneratedQuiz{
		Title: req.Topic + " quiz",
		Topic: req.Topic,
		Questions: []domain.Question{
			{Prompt: "q", Options: []string{"a", "b"}, AnswerIndex: 0},
		},
	}, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type harness struct {
	engine *challenge.Engine
	db     *sqlite.DB
	cache  *cache.Memory
	clock  *clock
	gen    *fakeGenerator
	runner *tasks.Runner
	scores *scoreboard.Service
}

func newHarness(t *testing.T, tune ...func(*challenge.Config)) *harness {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clk := &clock{t: start}
	mem, err := cache.NewMemory(128)
	if err != nil {
		t.Fatal(err)
	}
	mem.SetClock(clk.Now)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := tasks.NewRunner(tasks.Config{
		Concurrency: 2,
		Retry:       tasks.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, log)
	t.Cleanup(func() { runner.Close(context.Background()) })

	scores := scoreboard.New(db, log)
	gen := &fakeGenerator{}

	cfg := challenge.Config{
		Now:            clk.Now,
		GeneratorRetry: tasks.RetryConfig{MaxAttempts: 1},
	}
	for _, fn := range tune {
		fn(&cfg)
	}

	engine := challenge.New(cfg, challenge.Deps{
		Store:      db,
		Quizzes:    db,
		Generator:  gen,
		Scoreboard: scores,
		Cache:      mem,
		Tasks:      runner,
		Logger:     log,
	})
	return &harness{engine: engine, db: db, cache: mem, clock: clk, gen: gen, runner: runner, scores: scores}
}

// insert stores a challenge open for today unless mutate says otherwise.
func (h *harness) insert(t *testing.T, title string, mutate func(*domain.Challenge)) domain.Challenge {
	t.Helper()
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	c := domain.Challenge{
		ID:         title + "-id",
		TemplateID: "test_" + title,
		Title:      title,
		Type:       domain.ChallengeDaily,
		Format:     "standard",
		Rule:       domain.RuleAnyActivity,
		Target:     3,
		Reward:     50,
		StartDate:  day,
		EndDate:    day.AddDate(0, 0, 1),
		CreatedAt:  day,
	}
	if mutate != nil {
		mutate(&c)
	}
	created, err := h.db.InsertChallenges(context.Background(), []domain.Challenge{c})
	if err != nil || len(created) != 1 {
		t.Fatalf("insert %s: %v %v", title, created, err)
	}
	return c
}

func (h *harness) completion(t *testing.T, challengeID, userID string) *domain.Completion {
	t.Helper()
	c, err := h.db.GetCompletion(context.Background(), challengeID, userID)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
