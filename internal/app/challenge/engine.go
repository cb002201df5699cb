// Package challenge is the challenge engine: it generates time-windowed
// challenges, tracks per-user progress and scores finished challenge paths.
package challenge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/studyforge/studyforge/internal/app/tasks"
	"github.com/studyforge/studyforge/internal/app/window"
	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/infra/metrics"
)

// Config tunes the engine. Zero fields take the defaults of DefaultConfig.
type Config struct {
	Location              *time.Location    // Calendar used for windows and midnight
	AllTTL                time.Duration     // Cache lifetime of the "all active" view
	QuestionCount         int               // Questions per generated quiz
	QuizType              string            // Quiz type requested from the generator
	TopTopics             int               // Popular topics considered for dynamic templates
	UsageLookback         time.Duration     // Window of attempts analysed for topics and difficulty
	LeaderboardSize       int               // Entries returned by GetLeaderboard
	GenerationConcurrency int               // Parallel generator calls per run
	GeneratorRetry        tasks.RetryConfig // Backoff around each generator call
	Now                   func() time.Time
}

// DefaultConfig returns production engine defaults.
func DefaultConfig() Config {
	return Config{
		Location:              time.UTC,
		AllTTL:                5 * time.Minute,
		QuestionCount:         10,
		QuizType:              "multiple_choice",
		TopTopics:             5,
		UsageLookback:         7 * 24 * time.Hour,
		LeaderboardSize:       50,
		GenerationConcurrency: 3,
		GeneratorRetry:        tasks.RetryConfig{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second},
		Now:                   time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Location == nil {
		c.Location = d.Location
	}
	if c.AllTTL <= 0 {
		c.AllTTL = d.AllTTL
	}
	if c.QuestionCount <= 0 {
		c.QuestionCount = d.QuestionCount
	}
	if c.QuizType == "" {
		c.QuizType = d.QuizType
	}
	if c.TopTopics <= 0 {
		c.TopTopics = d.TopTopics
	}
	if c.UsageLookback <= 0 {
		c.UsageLookback = d.UsageLookback
	}
	if c.LeaderboardSize <= 0 {
		c.LeaderboardSize = d.LeaderboardSize
	}
	if c.GenerationConcurrency <= 0 {
		c.GenerationConcurrency = d.GenerationConcurrency
	}
	if c.GeneratorRetry.MaxAttempts <= 0 {
		c.GeneratorRetry = d.GeneratorRetry
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// Deps are the engine's collaborators.
type Deps struct {
	Store      domain.ChallengeStore
	Quizzes    domain.QuizStore
	Generator  domain.ContentGenerator
	Scoreboard domain.Scoreboard
	Cache      domain.Cache
	Tasks      *tasks.Runner
	Logger     *slog.Logger
}

// Engine orchestrates generation, enrolment, progress and scoring.
type Engine struct {
	cfg        Config
	store      domain.ChallengeStore
	quizzes    domain.QuizStore
	generator  domain.ContentGenerator
	scoreboard domain.Scoreboard
	cache      domain.Cache
	tasks      *tasks.Runner
	log        *slog.Logger

	reads singleflight.Group // collapses concurrent cache misses per key
	runs  singleflight.Group // collapses concurrent generation of one window
}

// New creates an engine. Store, Quizzes, Cache and Tasks are required.
func New(cfg Config, deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:        cfg.withDefaults(),
		store:      deps.Store,
		quizzes:    deps.Quizzes,
		generator:  deps.Generator,
		scoreboard: deps.Scoreboard,
		cache:      deps.Cache,
		tasks:      deps.Tasks,
		log:        log.With(slog.String("component", "challenge")),
	}
}

// Location is the calendar challenge windows are computed in.
func (e *Engine) Location() *time.Location {
	return e.cfg.Location
}

// now returns the current instant in the engine's calendar.
func (e *Engine) now() time.Time {
	return e.cfg.Now().In(e.cfg.Location)
}

// ─── Cache ──────────────────────────────────────────────────────────────────

const keyPrefix = "challenges:"

func allKey(userID string) string {
	return keyPrefix + "all:" + userID
}

func todayKey(userID string, day time.Time) string {
	return keyPrefix + "today:" + userID + ":" + window.DateKey(day)
}

// readThrough serves key from cache or loads, stores and returns it. The
// store is awaited so the caller never sees a value the cache does not hold.
func (e *Engine) readThrough(ctx context.Context, scope, key string, ttl time.Duration, load func(context.Context) ([]domain.ChallengeView, error)) ([]domain.ChallengeView, error) {
	raw, ok, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues(scope, "error").Inc()
		e.log.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	case ok:
		var views []domain.ChallengeView
		if err := json.Unmarshal(raw, &views); err == nil {
			metrics.CacheLookups.WithLabelValues(scope, "hit").Inc()
			return views, nil
		}
		e.log.Warn("cache entry unreadable", slog.String("key", key))
	default:
		metrics.CacheLookups.WithLabelValues(scope, "miss").Inc()
	}

	v, err, _ := e.reads.Do(key, func() (any, error) {
		views, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if views == nil {
			views = []domain.ChallengeView{}
		}
		raw, err := json.Marshal(views)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Set(ctx, key, raw, ttl); err != nil {
			e.log.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return views, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ChallengeView), nil
}

// invalidateUser drops every cached view of userID. Failures are logged only.
func (e *Engine) invalidateUser(ctx context.Context, userID string) {
	keys := []string{allKey(userID), todayKey(userID, e.now())}
	if err := e.cache.Delete(ctx, keys...); err != nil {
		e.log.Warn("cache invalidation failed", slog.String("user", userID), slog.Any("error", err))
	}
}

// invalidateAll drops every cached challenge view.
func (e *Engine) invalidateAll(ctx context.Context) {
	if err := e.cache.DeletePrefix(ctx, keyPrefix); err != nil {
		e.log.Warn("cache flush failed", slog.Any("error", err))
	}
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// award hands the challenge reward to the scoreboard in the background.
// The ledger is keyed on the challenge, so retries award once.
func (e *Engine) award(ch domain.Challenge, userID string) {
	metrics.ChallengesCompleted.WithLabelValues(string(ch.Type)).Inc()
	if ch.Reward <= 0 || e.scoreboard == nil {
		return
	}
	e.tasks.Go("award_xp", func(ctx context.Context) error {
		_, err := e.scoreboard.Award(ctx, userID, ch.Reward, domain.XPChallengeCompleted, ch.ID)
		return err
	})
}
