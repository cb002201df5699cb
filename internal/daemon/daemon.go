package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyforge/studyforge/internal/api"
	"github.com/studyforge/studyforge/internal/app/activity"
	"github.com/studyforge/studyforge/internal/app/challenge"
	"github.com/studyforge/studyforge/internal/app/schedule"
	"github.com/studyforge/studyforge/internal/app/scoreboard"
	"github.com/studyforge/studyforge/internal/app/tasks"
	"github.com/studyforge/studyforge/internal/app/window"
	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/health"
	"github.com/studyforge/studyforge/internal/infra/cache"
	"github.com/studyforge/studyforge/internal/infra/generator"
	"github.com/studyforge/studyforge/internal/infra/sqlite"
)

// Daemon is the studyforge runtime. It wires together all services.
type Daemon struct {
	Config     Config
	Log        *slog.Logger
	DB         *sqlite.DB
	Cache      domain.Cache
	Tasks      *tasks.Runner
	Scores     *scoreboard.Service
	Challenges *challenge.Engine
	Activity   *activity.Recorder
	Scheduler  *schedule.Scheduler
	Health     *health.Checker
	Server     *api.Server
	cancel     context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, NewLogger(cfg.Log, os.Stderr))
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Daemon{Config: cfg, Log: log}

	// Open SQLite
	db, err := sqlite.Open(cfg.DB.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.DB = db

	c, err := newCache(ctx, cfg.Cache, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	d.Cache = c

	d.Tasks = tasks.NewRunner(tasks.Config{
		Concurrency: cfg.Tasks.Concurrency,
		Retry: tasks.RetryConfig{
			MaxAttempts: cfg.Tasks.MaxAttempts,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		TaskTimeout: parseDuration(cfg.Tasks.Timeout, 2*time.Minute),
	}, log)

	d.Scores = scoreboard.New(db, log)

	loc := cfg.Location()
	d.Challenges = challenge.New(challenge.Config{
		Location:              loc,
		AllTTL:                parseDuration(cfg.Cache.AllTTL, 5*time.Minute),
		QuestionCount:         cfg.Generator.QuestionCount,
		QuizType:              cfg.Generator.QuizType,
		TopTopics:             cfg.Challenges.TopTopics,
		UsageLookback:         parseDuration(cfg.Challenges.UsageLookback, 7*24*time.Hour),
		LeaderboardSize:       cfg.Challenges.LeaderboardSize,
		GenerationConcurrency: cfg.Generator.Concurrency,
		GeneratorRetry: tasks.RetryConfig{
			MaxAttempts: cfg.Generator.MaxAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    5 * time.Second,
		},
	}, challenge.Deps{
		Store:      db,
		Quizzes:    db,
		Generator:  newGenerator(cfg.Generator, log),
		Scoreboard: d.Scores,
		Cache:      c,
		Tasks:      d.Tasks,
		Logger:     log,
	})

	d.Activity = activity.NewRecorder(db, d.Challenges, d.Tasks, log)

	sc := cfg.Scheduler
	d.Scheduler = schedule.New(loc, parseDuration(sc.RunTimeout, 10*time.Minute), log,
		schedule.GenerationEntries(d.Challenges, schedule.Cadences{
			Daily:        sc.Enabled && sc.Daily,
			Weekly:       sc.Enabled && sc.Weekly,
			Monthly:      sc.Enabled && sc.Monthly,
			Hot:          sc.Enabled && sc.Hot,
			DailyOnStart: sc.Enabled && sc.DailyOnStart,
			HotEvery:     parseDuration(sc.HotEvery, window.HotDuration),
		})...)

	// Health checker
	d.Health = health.NewChecker(db, c, parseDuration(cfg.Telemetry.HealthInterval, time.Minute), log)
	d.Health.Add(health.Check{
		Name: "daily_challenges",
		CheckFn: func(ctx context.Context) error {
			today, err := db.ChallengesStartingAt(ctx, domain.ChallengeDaily, window.Daily(time.Now().In(loc)).Start)
			if err != nil {
				return err
			}
			if len(today) == 0 {
				return errors.New("no daily challenges for today")
			}
			return nil
		},
		RecoverFn: func(ctx context.Context) error {
			_, err := d.Challenges.GenerateDaily(ctx, time.Time{})
			return err
		},
	})

	// Initialize API server
	d.Server = api.NewServer(api.Config{
		AdminToken:      cfg.API.AdminToken,
		RequestTimeout:  parseDuration(cfg.API.RequestTimeout, 30*time.Second),
		GenerateTimeout: parseDuration(cfg.API.GenerateTimeout, 2*time.Minute),
		XPBoardSize:     cfg.Challenges.XPLeaderboardSize,
	}, api.Services{
		Challenges: d.Challenges,
		Activity:   d.Activity,
		Scores:     d.Scores,
		Tasks:      d.Tasks,
		Health:     d.Health,
	}, log)

	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}
	if cfg.API.AdminToken == "" {
		log.Warn("admin token not set, admin routes are disabled")
	}

	return d, nil
}

func newCache(ctx context.Context, cfg CacheConfig, log *slog.Logger) (domain.Cache, error) {
	if cfg.Backend == "redis" {
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		log.Info("using redis cache", slog.String("addr", cfg.RedisAddr))
		return r, nil
	}
	m, err := cache.NewMemory(cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return m, nil
}

func newGenerator(cfg GeneratorConfig, log *slog.Logger) domain.ContentGenerator {
	if cfg.Provider == "openai" && cfg.APIKey != "" {
		return generator.NewOpenAI(generator.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: float32(cfg.Temperature),
			Timeout:     parseDuration(cfg.Timeout, 60*time.Second),
		})
	}
	if cfg.Provider == "openai" {
		log.Warn("generator api key missing, using offline quizzes")
	}
	return generator.Static{}
}

// Serve starts the HTTP server, scheduler and health loop, and blocks until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, d.cancel = context.WithCancel(ctx)

	go d.Health.Run(ctx)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		d.Scheduler.Run(ctx)
	}()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous generation
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		d.Log.Info("studyforge serving", slog.String("addr", "http://"+addr), slog.Bool("metrics", d.Config.Telemetry.Prometheus))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		d.cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		d.Log.Warn("http shutdown", slog.Any("error", err))
	}
	<-schedDone
	if err := d.Tasks.Close(shutdownCtx); err != nil {
		d.Log.Warn("background tasks still running at shutdown", slog.Any("error", err))
	}
	d.Log.Info("studyforge stopped")
	return serveErr
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Tasks != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = d.Tasks.Close(ctx)
		cancel()
	}
	if d.Cache != nil {
		_ = d.Cache.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
