package domain

import "time"

// ─── Quiz Types ─────────────────────────────────────────────────────────────

// Question is a single multiple-choice question.
type Question struct {
	Prompt      string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is a persisted set of questions that challenges can reference.
type Quiz struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
	QuizType   string     `json:"quiz_type"`
	Questions  []Question `json:"questions"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QuizRequest asks a content generator for a fresh quiz.
type QuizRequest struct {
	Topic             string     `json:"topic"`
	Difficulty        Difficulty `json:"difficulty"`
	NumberOfQuestions int        `json:"number_of_questions"`
	QuizType          string     `json:"quiz_type"`
}

// GeneratedQuiz is what a content generator returns.
type GeneratedQuiz struct {
	Title     string     `json:"title"`
	Topic     string     `json:"topic"`
	Questions []Question `json:"questions"`
}

// QuizAttempt is one scored quiz submission, logged for usage analysis.
type QuizAttempt struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	QuizID         string    `json:"quiz_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CreatedAt      time.Time `json:"created_at"`
}

// TopicPopularity is the attempt count of one quiz over a lookback window.
type TopicPopularity struct {
	QuizID   string `json:"quiz_id"`
	Topic    string `json:"topic"`
	Attempts int    `json:"attempts"`
}

// Activity is a learning submission reported by the rest of the app.
type Activity struct {
	UserID         string       `json:"user_id"`
	Type           ActivityType `json:"type"`
	QuizID         string       `json:"quiz_id,omitempty"`
	Score          int          `json:"score"`
	TotalQuestions int          `json:"total_questions"`
}

// Perfect reports whether every question was answered correctly.
func (a Activity) Perfect() bool {
	return a.TotalQuestions > 0 && a.Score == a.TotalQuestions
}

// ─── User / XP Types ────────────────────────────────────────────────────────

// User is the display identity shown on leaderboards.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// UserLevel is a user's XP total and derived level.
type UserLevel struct {
	UserID    string `json:"user_id"`
	Level     int    `json:"level"`
	CurrentXP int64  `json:"current_xp"`
	ToNext    int64  `json:"xp_to_next_level"`
}

// XPSource categorizes how XP was earned.
type XPSource string

const (
	XPChallengeCompleted XPSource = "CHALLENGE_COMPLETED"
	XPQuizCompleted      XPSource = "QUIZ_COMPLETED"
	XPAdminGrant         XPSource = "ADMIN_GRANT"
)

// XPAward is the outcome of a scoreboard award.
type XPAward struct {
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Total     int64  `json:"total"`
	Level     int    `json:"level"`
	LeveledUp bool   `json:"leveled_up"`
	Duplicate bool   `json:"duplicate"`
}

// XPStanding is one row of the global XP table.
type XPStanding struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	XP          int64  `json:"xp"`
	Level       int    `json:"level"`
}
