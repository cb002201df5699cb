// Package metrics provides Prometheus metrics for the challenge engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── HTTP ───────────────────────────────────────────────────────────────────

// RequestDuration tracks API latency per route pattern.
var RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "studyforge",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency by route and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})

// ─── Generation ─────────────────────────────────────────────────────────────

// ChallengesGenerated counts challenges created per cadence.
var ChallengesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "challenges_generated_total",
	Help:      "Challenges created by generation runs.",
}, []string{"type"})

// TemplatesSkipped counts templates not instantiated, by reason.
var TemplatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "templates_skipped_total",
	Help:      "Templates skipped during generation by reason (exists, generator).",
}, []string{"type", "reason"})

// GenerationDuration tracks generation run latency.
var GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "studyforge",
	Name:      "generation_duration_seconds",
	Help:      "Duration of challenge generation runs.",
	Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
}, []string{"type"})

// GeneratorRequests counts calls to the content generator by outcome.
var GeneratorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "generator_requests_total",
	Help:      "Content generator calls by outcome (ok, error).",
}, []string{"outcome"})

// ─── Progress ───────────────────────────────────────────────────────────────

// ProgressUpdates counts completions changed by progress updates.
var ProgressUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "progress_updates_total",
	Help:      "Completion rows advanced by progress updates, by rule.",
}, []string{"rule"})

// ChallengesCompleted counts completion transitions.
var ChallengesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "challenges_completed_total",
	Help:      "Challenges completed by cadence.",
}, []string{"type"})

// XPAwarded tracks XP handed out by source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "xp_awarded_total",
	Help:      "XP awarded by source.",
}, []string{"source"})

// ─── Cache ──────────────────────────────────────────────────────────────────

// CacheLookups counts read-path cache lookups by scope and result.
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "cache_lookups_total",
	Help:      "Cache lookups by scope (all, today) and result (hit, miss, error).",
}, []string{"scope", "result"})

// ─── Background Tasks ───────────────────────────────────────────────────────

// TasksCompleted counts background tasks by name and outcome.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "tasks_completed_total",
	Help:      "Background tasks by name and outcome (ok, failed).",
}, []string{"task", "outcome"})

// TaskRetries counts retry attempts of background tasks.
var TaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Name:      "task_retries_total",
	Help:      "Retry attempts of background tasks.",
}, []string{"task"})

// TasksActive gauges running background tasks.
var TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "studyforge",
	Name:      "tasks_active",
	Help:      "Background tasks currently running.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "studyforge",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
