package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// Infrastructure implements these; the application layer depends on them.

// ContentGenerator produces quiz content, usually from a generative-AI provider.
type ContentGenerator interface {
	GenerateQuiz(ctx context.Context, req QuizRequest) (*GeneratedQuiz, error)
}

// Scoreboard receives XP awards. Awards are idempotent on (userID, source, ref).
type Scoreboard interface {
	Award(ctx context.Context, userID string, amount int64, source XPSource, ref string) (XPAward, error)
}

// QuizStore persists quizzes and the attempt log used for usage analysis.
type QuizStore interface {
	CreateQuiz(ctx context.Context, q Quiz) (string, error)
	GetQuiz(ctx context.Context, id string) (*Quiz, error)
	RecordAttempt(ctx context.Context, a QuizAttempt) error
	PopularTopics(ctx context.Context, since time.Time, limit int) ([]TopicPopularity, error)
	DifficultyScores(ctx context.Context, since time.Time) (map[Difficulty]float64, error)
}

// ChallengeStore persists challenges and their completions.
// Getters return (nil, nil) when the row does not exist.
type ChallengeStore interface {
	// InsertChallenges inserts all rows in one transaction, skipping rows that
	// collide on (type, lower(title), start). Returns the rows actually created.
	InsertChallenges(ctx context.Context, cs []Challenge) ([]Challenge, error)
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	ActiveChallenges(ctx context.Context, at time.Time) ([]Challenge, error)
	ChallengesStartingAt(ctx context.Context, t ChallengeType, start time.Time) ([]Challenge, error)
	DeleteChallenge(ctx context.Context, id string) (bool, error)

	// CreateCompletion inserts a fresh completion unless one exists.
	CreateCompletion(ctx context.Context, challengeID, userID string, at time.Time) (bool, error)
	GetCompletion(ctx context.Context, challengeID, userID string) (*Completion, error)
	UserCompletions(ctx context.Context, userID string, challengeIDs []string) (map[string]*Completion, error)
	// DeleteUntouchedCompletion deletes only when progress = 0 and not completed.
	DeleteUntouchedCompletion(ctx context.Context, challengeID, userID string) (bool, error)
	// ApplyProgress adds every step to its completion in one transaction and
	// returns the stored rows that changed. Completed rows are left alone.
	ApplyProgress(ctx context.Context, steps []ProgressStep) ([]Completion, error)
	// SaveCompletion writes c only while the stored row is open and still at
	// quiz index fromIndex. False means another writer got there first.
	SaveCompletion(ctx context.Context, c Completion, fromIndex int) (bool, error)

	ScoreStanding(ctx context.Context, challengeID, userID string, score int) (below, others int, err error)
	Leaderboard(ctx context.Context, challengeID string, limit int) ([]LeaderboardEntry, error)
	CountHigherScores(ctx context.Context, challengeID string, score int) (int, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Cache is a time-boxed key/value store in front of read paths.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
	Close() error
}
