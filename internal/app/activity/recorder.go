// Package activity accepts finished quizzes and flashcard sessions and feeds
// them to usage analysis and challenge progress.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studyforge/studyforge/internal/app/tasks"
	"github.com/studyforge/studyforge/internal/domain"
)

// ProgressUpdater applies an activity to the user's challenges.
type ProgressUpdater interface {
	UpdateProgress(ctx context.Context, userID string, activity domain.ActivityType, isPerfect bool) ([]domain.Completion, error)
}

// Receipt acknowledges a recorded activity.
type Receipt struct {
	AttemptID string `json:"attempt_id,omitempty"`
	Perfect   bool   `json:"perfect"`
	Queued    bool   `json:"progress_queued"`
}

// Recorder stores attempts and queues progress updates.
type Recorder struct {
	quizzes  domain.QuizStore
	progress ProgressUpdater
	tasks    *tasks.Runner
	log      *slog.Logger
	now      func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(quizzes domain.QuizStore, progress ProgressUpdater, runner *tasks.Runner, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		quizzes:  quizzes,
		progress: progress,
		tasks:    runner,
		log:      log.With(slog.String("component", "activity")),
		now:      time.Now,
	}
}

// SetClock overrides the recorder's time source.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Record validates a and stores its quiz attempt, then hands progress to
// the task runner. Progress failures never reach the caller.
func (r *Recorder) Record(ctx context.Context, a domain.Activity) (Receipt, error) {
	if err := validate(a); err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	if a.Type == domain.ActivityQuiz {
		receipt.Perfect = a.Perfect()
	}

	if a.Type == domain.ActivityQuiz && a.QuizID != "" {
		q, err := r.quizzes.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return Receipt{}, fmt.Errorf("get quiz: %w", err)
		}
		if q == nil {
			return Receipt{}, domain.ErrQuizNotFound
		}

		receipt.AttemptID = uuid.NewString()
		if err := r.quizzes.RecordAttempt(ctx, domain.QuizAttempt{
			ID:             receipt.AttemptID,
			UserID:         a.UserID,
			QuizID:         a.QuizID,
			Score:          a.Score,
			TotalQuestions: a.TotalQuestions,
			CreatedAt:      r.now(),
		}); err != nil {
			return Receipt{}, err
		}
	}

	userID, kind, perfect := a.UserID, a.Type, receipt.Perfect
	receipt.Queued = r.tasks.Go("update_progress", func(ctx context.Context) error {
		changed, err := r.progress.UpdateProgress(ctx, userID, kind, perfect)
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			r.log.Debug("progress updated", slog.String("user", userID), slog.Int("challenges", len(changed)))
		}
		return nil
	})
	return receipt, nil
}

func validate(a domain.Activity) error {
	if a.UserID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseActivityType(string(a.Type)); err != nil {
		return err
	}
	if a.Type == domain.ActivityQuiz {
		if a.TotalQuestions <= 0 || a.Score < 0 || a.Score > a.TotalQuestions {
			return domain.ErrInvalidAttempt
		}
	}
	return nil
}
