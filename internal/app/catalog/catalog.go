// Package catalog holds the challenge templates and the pure rule that picks
// which of them to instantiate for a window.
package catalog

import (
	"fmt"
	"math/rand"

	"github.com/studyforge/studyforge/internal/domain"
)

// Template identifiers. They are stored on every challenge and never change.
const (
	DailyTopicMaster      = "daily_topic_master"
	DailyAnyActivity      = "daily_any_activity"
	DailyStreakBuilder    = "daily_streak_builder"
	DailyMix              = "daily_mix"
	DailyFlashcardFocus   = "daily_flashcard_focus"
	WeeklyWarrior         = "weekly_warrior"
	WeeklyFlashcards      = "weekly_flashcard_marathon"
	WeeklyTopicGauntlet   = "weekly_topic_gauntlet"
	MonthlyMarathon       = "monthly_marathon"
	MonthlyPerfectionist  = "monthly_perfectionist"
	HotSprint             = "hot_sprint"
	gauntletQuizzes       = 3
	dailyRotationSlot     = "daily_rotation"
	mixIncrement          = 25
	defaultStandardFormat = "standard"
)

// Blueprint is a template ready to be instantiated. A blueprint with QuizTopics needs one
// generated quiz per topic, in order, before it can be persisted.
type Blueprint struct {
	TemplateID   string
	Title        string
	Description  string
	Format       string
	Rule         domain.ProgressRule
	ActivityType domain.ActivityType
	Increment    int
	Target       int
	Reward       int64
	Topic        string
	Difficulty   domain.Difficulty
	QuizTopics   []string
}

// NeedsQuiz reports whether the blueprint requires content generation.
func (s Blueprint) NeedsQuiz() bool {
	return len(s.QuizTopics) > 0
}

// Snapshot is the analyzed usage that dynamic templates are built from.
type Snapshot struct {
	Topics     []string // most popular first
	Difficulty domain.Difficulty
}

// ─── Static Pools ───────────────────────────────────────────────────────────

// dailyRotation holds the daily templates of which one is picked per day.
var dailyRotation = []Blueprint{
	{
		TemplateID:  DailyStreakBuilder,
		Title:       "Streak Builder",
		Description: "Complete 3 learning activities today",
		Format:      defaultStandardFormat,
		Rule:        domain.RuleAnyActivity,
		Target:      3,
		Reward:      75,
	},
	{
		TemplateID:  DailyMix,
		Title:       "Mix It Up",
		Description: "Every quiz or flashcard session counts for 25%",
		Format:      defaultStandardFormat,
		Rule:        domain.RuleMixed,
		Increment:   mixIncrement,
		Target:      100,
		Reward:      80,
	},
	{
		TemplateID:   DailyFlashcardFocus,
		Title:        "Flashcard Focus",
		Description:  "Review 2 flashcard sets today",
		Format:       defaultStandardFormat,
		Rule:         domain.RuleActivityCount,
		ActivityType: domain.ActivityFlashcard,
		Target:       2,
		Reward:       60,
	},
}

var dailyAnyActivity = Blueprint{
	TemplateID:  DailyAnyActivity,
	Title:       "Daily Learner",
	Description: "Complete any quiz or flashcard session today",
	Format:      defaultStandardFormat,
	Rule:        domain.RuleAnyActivity,
	Target:      1,
	Reward:      25,
}

var weeklyStatic = []Blueprint{
	{
		TemplateID:   WeeklyWarrior,
		Title:        "Weekly Warrior",
		Description:  "Complete 15 quizzes this week",
		Format:       defaultStandardFormat,
		Rule:         domain.RuleActivityCount,
		ActivityType: domain.ActivityQuiz,
		Target:       15,
		Reward:       300,
	},
	{
		TemplateID:   WeeklyFlashcards,
		Title:        "Flashcard Marathon",
		Description:  "Review 20 flashcard sets this week",
		Format:       defaultStandardFormat,
		Rule:         domain.RuleActivityCount,
		ActivityType: domain.ActivityFlashcard,
		Target:       20,
		Reward:       250,
	},
}

var monthlyStatic = []Blueprint{
	{
		TemplateID:  MonthlyMarathon,
		Title:       "Monthly Marathon",
		Description: "Complete 60 learning activities this month",
		Format:      defaultStandardFormat,
		Rule:        domain.RuleAnyActivity,
		Target:      60,
		Reward:      1000,
	},
	{
		TemplateID:   MonthlyPerfectionist,
		Title:        "Perfectionist",
		Description:  "Score 100% on any quiz this month",
		Format:       defaultStandardFormat,
		Rule:         domain.RulePerfectScore,
		ActivityType: domain.ActivityQuiz,
		Target:       1,
		Reward:       400,
	},
}

var hotStatic = []Blueprint{
	{
		TemplateID:   HotSprint,
		Title:        "Hot Sprint",
		Description:  "Finish 3 quizzes in the next four hours",
		Format:       "sprint",
		Rule:         domain.RuleActivityCount,
		ActivityType: domain.ActivityQuiz,
		Target:       3,
		Reward:       150,
	},
}

// ─── Selection ──────────────────────────────────────────────────────────────

// Select returns the templates to attempt for a cadence. The result depends
// only on its arguments.
func Select(ct domain.ChallengeType, snap Snapshot, seed int64) []Blueprint {
	switch ct {
	case domain.ChallengeDaily:
		return selectDaily(snap, seed)
	case domain.ChallengeWeekly:
		blueprints := clone(weeklyStatic)
		if g, ok := topicGauntlet(snap); ok {
			blueprints = append(blueprints, g)
		}
		return blueprints
	case domain.ChallengeMonthly:
		return clone(monthlyStatic)
	case domain.ChallengeHot:
		return clone(hotStatic)
	}
	return nil
}

// selectDaily draws the rotation pick and the topic from separate sources,
// so a day's rotation template is the same with or without usage data.
func selectDaily(snap Snapshot, seed int64) []Blueprint {
	var blueprints []Blueprint

	if len(snap.Topics) > 0 {
		r := rand.New(rand.NewSource(seed))
		topic := snap.Topics[r.Intn(len(snap.Topics))]
		blueprints = append(blueprints, topicMaster(topic, difficultyOrDefault(snap.Difficulty)))
	}

	blueprints = append(blueprints, dailyAnyActivity)
	blueprints = append(blueprints, dailyRotation[rotationIndex(seed)])
	return blueprints
}

func rotationIndex(seed int64) int {
	return rand.New(rand.NewSource(seed + 1)).Intn(len(dailyRotation))
}

// Slot names the place a template fills in its window. At most one
// challenge per slot exists in a window: the daily rotation templates share
// one slot, every other template is its own.
func Slot(templateID string) string {
	for _, bp := range dailyRotation {
		if bp.TemplateID == templateID {
			return dailyRotationSlot
		}
	}
	return templateID
}

func topicMaster(topic string, d domain.Difficulty) Blueprint {
	return Blueprint{
		TemplateID:   DailyTopicMaster,
		Title:        fmt.Sprintf("%s Master", topic),
		Description:  fmt.Sprintf("Score 100%% on today's %s quiz (%s)", topic, d),
		Format:       defaultStandardFormat,
		Rule:         domain.RulePerfectScore,
		ActivityType: domain.ActivityQuiz,
		Target:       1,
		Reward:       rewardFor(d, 100),
		Topic:        topic,
		Difficulty:   d,
		QuizTopics:   []string{topic},
	}
}

// topicGauntlet strings the most popular topics into a quiz path.
func topicGauntlet(snap Snapshot) (Blueprint, bool) {
	if len(snap.Topics) == 0 {
		return Blueprint{}, false
	}
	topics := make([]string, gauntletQuizzes)
	for i := range topics {
		topics[i] = snap.Topics[i%len(snap.Topics)]
	}
	d := difficultyOrDefault(snap.Difficulty)
	return Blueprint{
		TemplateID:  WeeklyTopicGauntlet,
		Title:       "Topic Gauntlet",
		Description: fmt.Sprintf("Work through %d quizzes on this week's most popular topics", gauntletQuizzes),
		Format:      "path",
		Rule:        domain.RuleQuizPath,
		Target:      gauntletQuizzes,
		Reward:      rewardFor(d, 350),
		Topic:       topics[0],
		Difficulty:  d,
		QuizTopics:  topics,
	}, true
}

// OptimalDifficulty chooses the generation difficulty from mean score
// percentages per difficulty. Only the medium bucket is consulted.
func OptimalDifficulty(meanScores map[domain.Difficulty]float64) domain.Difficulty {
	medium, ok := meanScores[domain.DifficultyMedium]
	switch {
	case !ok:
		return domain.DifficultyMedium
	case medium >= 75:
		return domain.DifficultyHard
	case medium <= 50:
		return domain.DifficultyEasy
	default:
		return domain.DifficultyMedium
	}
}

// TopTopics collapses popularity rows (most attempted first) into at most n
// distinct topics, keeping order.
func TopTopics(rows []domain.TopicPopularity, n int) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, row := range rows {
		if len(topics) >= n {
			break
		}
		if row.Topic == "" || seen[row.Topic] {
			continue
		}
		seen[row.Topic] = true
		topics = append(topics, row.Topic)
	}
	return topics
}

func rewardFor(d domain.Difficulty, base int64) int64 {
	switch d {
	case domain.DifficultyHard:
		return base * 3 / 2
	case domain.DifficultyEasy:
		return base * 3 / 4
	}
	return base
}

func difficultyOrDefault(d domain.Difficulty) domain.Difficulty {
	if d == "" {
		return domain.DifficultyMedium
	}
	return d
}

func clone(blueprints []Blueprint) []Blueprint {
	out := make([]Blueprint, len(blueprints))
	copy(out, blueprints)
	return out
}
