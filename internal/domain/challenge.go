// Package domain holds the challenge engine's core types, sentinel errors and
// the interfaces that infrastructure implements.
package domain

import (
	"strings"
	"time"
)

// ─── Challenge Types ────────────────────────────────────────────────────────

// ChallengeType is the cadence a challenge belongs to.
type ChallengeType string

const (
	ChallengeDaily   ChallengeType = "daily"
	ChallengeWeekly  ChallengeType = "weekly"
	ChallengeMonthly ChallengeType = "monthly"
	ChallengeHot     ChallengeType = "hot"
)

// ParseChallengeType validates a cadence name.
func ParseChallengeType(s string) (ChallengeType, error) {
	switch t := ChallengeType(s); t {
	case ChallengeDaily, ChallengeWeekly, ChallengeMonthly, ChallengeHot:
		return t, nil
	}
	return "", ErrUnknownChallengeType
}

// ProgressRule decides how an activity moves a completion forward.
// It is fixed when the challenge is created from its template.
type ProgressRule string

const (
	RuleAnyActivity   ProgressRule = "any_activity"   // +1 per activity of any type
	RuleActivityCount ProgressRule = "activity_count" // +1 per activity of ActivityType
	RulePerfectScore  ProgressRule = "perfect_score"  // straight to target on a perfect attempt
	RuleMixed         ProgressRule = "mixed"          // +Increment per activity of any type
	RuleQuizPath      ProgressRule = "quiz_path"      // driven by quiz-in-challenge completion only
)

// ActivityType is the kind of learning activity a user submitted.
type ActivityType string

const (
	ActivityQuiz      ActivityType = "quiz"
	ActivityFlashcard ActivityType = "flashcard"
)

// ParseActivityType validates an activity name.
func ParseActivityType(s string) (ActivityType, error) {
	switch a := ActivityType(s); a {
	case ActivityQuiz, ActivityFlashcard:
		return a, nil
	}
	return "", ErrUnknownActivity
}

// Difficulty buckets quizzes for usage analysis and generation.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Challenge is a template instantiated over [StartDate, EndDate).
type Challenge struct {
	ID           string        `json:"id"`
	TemplateID   string        `json:"template_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Type         ChallengeType `json:"type"`
	Format       string        `json:"format"`
	Rule         ProgressRule  `json:"progress_rule"`
	ActivityType ActivityType  `json:"activity_type,omitempty"`
	Increment    int           `json:"increment,omitempty"`
	Target       int           `json:"target"`
	Reward       int64         `json:"reward"`
	Topic        string        `json:"topic,omitempty"`
	Difficulty   Difficulty    `json:"difficulty,omitempty"`
	QuizIDs      []string      `json:"quiz_ids,omitempty"`
	StartDate    time.Time     `json:"start_date"`
	EndDate      time.Time     `json:"end_date"`
	CreatedAt    time.Time     `json:"created_at"`
}

// OpenAt reports whether t falls inside the challenge window.
func (c Challenge) OpenAt(t time.Time) bool {
	return !t.Before(c.StartDate) && t.Before(c.EndDate)
}

// TitleKey is the case-insensitive form titles are de-duplicated on.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// IsPath reports whether progress is driven by an ordered quiz list.
func (c Challenge) IsPath() bool {
	return c.Rule == RuleQuizPath
}

// ─── Completion Types ───────────────────────────────────────────────────────

// QuizAttemptResult is one entry in a completion's append-only attempt log.
type QuizAttemptResult struct {
	QuizID         string    `json:"quiz_id"`
	AttemptID      string    `json:"attempt_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Completion is the per-(challenge, user) join and progress record.
type Completion struct {
	ChallengeID      string              `json:"challenge_id"`
	UserID           string              `json:"user_id"`
	Progress         int                 `json:"progress"`
	Completed        bool                `json:"completed"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CurrentQuizIndex int                 `json:"current_quiz_index"`
	QuizAttempts     []QuizAttemptResult `json:"quiz_attempts"`
	FinalScore       *int                `json:"final_score,omitempty"`
	Percentile       *int                `json:"percentile,omitempty"`
	JoinedAt         time.Time           `json:"joined_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// HasAttempt reports whether attemptID is already logged.
func (c Completion) HasAttempt(attemptID string) bool {
	if attemptID == "" {
		return false
	}
	for _, a := range c.QuizAttempts {
		if a.AttemptID == attemptID {
			return true
		}
	}
	return false
}

// Touched reports whether the completion can no longer be abandoned.
func (c Completion) Touched() bool {
	return c.Progress > 0 || c.Completed
}

// ProgressStep is one increment applied to a stored completion. The store
// adds Increment to the current value, clamps at Target and completes the
// row when Target is reached.
type ProgressStep struct {
	ChallengeID string
	UserID      string
	Increment   int
	Target      int
	At          time.Time
}

// ChallengeView is a challenge enriched with one user's progress.
type ChallengeView struct {
	Challenge
	Joined     bool        `json:"joined"`
	Progress   int         `json:"progress"`
	Completed  bool        `json:"completed"`
	Completion *Completion `json:"completion,omitempty"`
}

// NewChallengeView attaches c (which may be nil) to ch.
func NewChallengeView(ch Challenge, c *Completion) ChallengeView {
	v := ChallengeView{Challenge: ch}
	if c != nil {
		v.Joined = true
		v.Progress = c.Progress
		v.Completed = c.Completed
		v.Completion = c
	}
	return v
}

// StartResult is returned when a user starts a challenge.
type StartResult struct {
	Challenge     ChallengeView `json:"challenge"`
	CurrentQuizID string        `json:"current_quiz_id,omitempty"`
	TotalQuizzes  int           `json:"total_quizzes"`
}

// QuizStepResult is returned after one quiz of a challenge path is finished.
type QuizStepResult struct {
	CurrentQuizIndex int  `json:"current_quiz_index"`
	TotalQuizzes     int  `json:"total_quizzes"`
	Completed        bool `json:"completed"`
	FinalScore       *int `json:"final_score,omitempty"`
	Percentile       *int `json:"percentile,omitempty"`
}

// ─── Leaderboard Types ──────────────────────────────────────────────────────

// LeaderboardEntry is one scored completion with its competition rank.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	FinalScore  int       `json:"final_score"`
	Percentile  *int      `json:"percentile,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Leaderboard is the top of a challenge plus the requester's own entry.
type Leaderboard struct {
	ChallengeID string             `json:"challenge_id"`
	Entries     []LeaderboardEntry `json:"entries"`
	Me          *LeaderboardEntry  `json:"me,omitempty"`
}

// ─── Generation Types ───────────────────────────────────────────────────────

// Window is a half-open [Start, End) interval.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t is inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// SkippedTemplate records a template that was not instantiated.
type SkippedTemplate struct {
	TemplateID string `json:"template_id"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
}

// GenerationResult summarizes one generation run.
type GenerationResult struct {
	Type    ChallengeType     `json:"type"`
	Window  Window            `json:"window"`
	Created []Challenge       `json:"created"`
	Skipped []SkippedTemplate `json:"skipped"`
}
