// Package daemon manages the studyforge daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment overrides, applied after the config file and .env.
const (
	EnvHome       = "STUDYFORGE_HOME"
	EnvAPIKey     = "STUDYFORGE_GENERATOR_API_KEY"
	EnvRedisAddr  = "STUDYFORGE_REDIS_ADDR"
	EnvAdminToken = "STUDYFORGE_ADMIN_TOKEN"
)

// Config holds all daemon configuration.
type Config struct {
	API        APIConfig        `toml:"api"`
	DB         DBConfig         `toml:"db"`
	Cache      CacheConfig      `toml:"cache"`
	Generator  GeneratorConfig  `toml:"generator"`
	Challenges ChallengesConfig `toml:"challenges"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Tasks      TasksConfig      `toml:"tasks"`
	Log        LogConfig        `toml:"log"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	AdminToken      string `toml:"admin_token"`
	RequestTimeout  string `toml:"request_timeout"`
	GenerateTimeout string `toml:"generate_timeout"`
}

// DBConfig controls storage. An empty dir uses the studyforge home.
type DBConfig struct {
	Dir string `toml:"dir"`
}

// CacheConfig selects and sizes the read-path cache.
type CacheConfig struct {
	Backend       string `toml:"backend"` // memory | redis
	Size          int    `toml:"size"`    // entries, memory backend
	AllTTL        string `toml:"all_ttl"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// GeneratorConfig controls quiz content generation.
type GeneratorConfig struct {
	Provider      string  `toml:"provider"` // openai | static
	BaseURL       string  `toml:"base_url"`
	APIKey        string  `toml:"api_key"`
	Model         string  `toml:"model"`
	Temperature   float64 `toml:"temperature"`
	Timeout       string  `toml:"timeout"`
	QuestionCount int     `toml:"question_count"`
	QuizType      string  `toml:"quiz_type"`
	MaxAttempts   int     `toml:"max_attempts"`
	Concurrency   int     `toml:"concurrency"`
}

// ChallengesConfig tunes the challenge engine.
type ChallengesConfig struct {
	Timezone          string `toml:"timezone"`
	TopTopics         int    `toml:"top_topics"`
	UsageLookback     string `toml:"usage_lookback"`
	LeaderboardSize   int    `toml:"leaderboard_size"`
	XPLeaderboardSize int    `toml:"xp_leaderboard_size"`
}

// SchedulerConfig selects the generation cadences run by serve.
type SchedulerConfig struct {
	Enabled      bool   `toml:"enabled"`
	Daily        bool   `toml:"daily"`
	Weekly       bool   `toml:"weekly"`
	Monthly      bool   `toml:"monthly"`
	Hot          bool   `toml:"hot"`
	HotEvery     string `toml:"hot_every"`
	DailyOnStart bool   `toml:"daily_on_start"`
	RunTimeout   string `toml:"run_timeout"`
}

// TasksConfig controls the background task runner.
type TasksConfig struct {
	Concurrency int    `toml:"concurrency"`
	MaxAttempts int    `toml:"max_attempts"`
	Timeout     string `toml:"timeout"`
}

// LogConfig controls logging behavior.
type LogConfig struct {
	Level     string `toml:"level"`  // debug | info | warn | error
	Format    string `toml:"format"` // text | json
	AddSource bool   `toml:"add_source"`
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:            "127.0.0.1",
			Port:            8420,
			RequestTimeout:  "30s",
			GenerateTimeout: "2m",
		},
		Cache: CacheConfig{
			Backend:   "memory",
			Size:      10_000,
			AllTTL:    "5m",
			KeyPrefix: "studyforge:",
		},
		Generator: GeneratorConfig{
			Provider:      "static",
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			Temperature:   0.7,
			Timeout:       "60s",
			QuestionCount: 10,
			QuizType:      "multiple_choice",
			MaxAttempts:   2,
			Concurrency:   3,
		},
		Challenges: ChallengesConfig{
			Timezone:          "UTC",
			TopTopics:         5,
			UsageLookback:     "168h",
			LeaderboardSize:   50,
			XPLeaderboardSize: 50,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			Daily:        true,
			Weekly:       true,
			Monthly:      true,
			Hot:          true,
			HotEvery:     "4h",
			DailyOnStart: true,
			RunTimeout:   "10m",
		},
		Tasks: TasksConfig{
			Concurrency: 8,
			MaxAttempts: 3,
			Timeout:     "2m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
	}
}

// LoadConfig reads config from ~/.studyforge/config.toml, falling back to
// defaults, then applies .env files and environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(studyforgeHome())
}

// LoadConfigFrom is LoadConfig rooted at home.
func LoadConfigFrom(home string) (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(home, "config.toml")

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	// Existing environment variables win over .env entries.
	for _, p := range []string{".env", filepath.Join(home, ".env")} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return cfg, fmt.Errorf("load %s: %w", p, err)
		}
	}
	applyEnv(&cfg)

	if cfg.DB.Dir == "" {
		cfg.DB.Dir = home
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Generator.APIKey = v
		if cfg.Generator.Provider == "" || cfg.Generator.Provider == "static" {
			cfg.Generator.Provider = "openai"
		}
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Backend = "redis"
	}
	if v := os.Getenv(EnvAdminToken); v != "" {
		cfg.API.AdminToken = v
	}
}

// SaveConfig writes the config to ~/.studyforge/config.toml.
func SaveConfig(cfg Config) error {
	return SaveConfigTo(studyforgeHome(), cfg)
}

// SaveConfigTo writes the config under home.
func SaveConfigTo(home string, cfg Config) error {
	path := filepath.Join(home, "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Location resolves the configured timezone, UTC when unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Challenges.Timezone)
	if err != nil || c.Challenges.Timezone == "" {
		return time.UTC
	}
	return loc
}

// NewLogger builds the slog logger described by the log section.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// studyforgeHome returns the studyforge data directory.
func studyforgeHome() string {
	if env := os.Getenv(EnvHome); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".studyforge")
}

// Home is exported for use by other packages.
func Home() string {
	return studyforgeHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
