package challenge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/infra/metrics"
)

// UpdateProgress applies one learning activity to every open challenge the
// user takes part in, including today's daily challenges they are
// auto-enrolled in. Returns the completions that changed.
func (e *Engine) UpdateProgress(ctx context.Context, userID string, activity domain.ActivityType, isPerfect bool) ([]domain.Completion, error) {
	now := e.now()

	active, err := e.store.ActiveChallenges(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list active challenges: %w", err)
	}
	comps, enrolled, err := e.enroll(ctx, userID, active, now)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Challenge, len(active))
	var steps []domain.ProgressStep
	for _, ch := range active {
		comp := comps[ch.ID]
		if comp == nil || comp.Completed || ch.IsPath() {
			continue
		}
		inc, ok := increment(ch, activity, isPerfect)
		if !ok {
			continue
		}
		byID[ch.ID] = ch
		steps = append(steps, domain.ProgressStep{
			ChallengeID: ch.ID,
			UserID:      userID,
			Increment:   inc,
			Target:      ch.Target,
			At:          now,
		})
	}

	var saved []domain.Completion
	if len(steps) > 0 {
		saved, err = e.store.ApplyProgress(ctx, steps)
		if err != nil {
			return nil, fmt.Errorf("save progress: %w", err)
		}
	}

	for _, c := range saved {
		ch := byID[c.ChallengeID]
		metrics.ProgressUpdates.WithLabelValues(string(ch.Rule)).Inc()
		if c.Completed {
			e.log.Info("challenge completed",
				slog.String("challenge", ch.ID), slog.String("user", userID), slog.String("template", ch.TemplateID))
			e.award(ch, userID)
		}
	}
	if len(saved) > 0 || enrolled {
		e.invalidateUser(ctx, userID)
	}
	return saved, nil
}

// increment applies the challenge's progress rule. ok is false when the
// activity does not count towards the challenge.
func increment(ch domain.Challenge, activity domain.ActivityType, isPerfect bool) (int, bool) {
	matches := ch.ActivityType == "" || ch.ActivityType == activity
	switch ch.Rule {
	case domain.RuleAnyActivity:
		return 1, true
	case domain.RuleActivityCount:
		if matches {
			return 1, true
		}
	case domain.RulePerfectScore:
		if matches && isPerfect {
			return ch.Target, true
		}
	case domain.RuleMixed:
		return max(ch.Increment, 1), true
	}
	return 0, false
}

// stepAttempts bounds how often a quiz step is re-evaluated after losing a
// write to a concurrent step.
const stepAttempts = 3

// CompleteQuizInChallenge records one finished quiz of a challenge path and
// advances the user to the next quiz. Finishing the last quiz completes the
// challenge with a final score and percentile.
func (e *Engine) CompleteQuizInChallenge(ctx context.Context, challengeID, quizID, userID string, attempt domain.QuizAttemptResult) (domain.QuizStepResult, error) {
	if attempt.TotalQuestions <= 0 || attempt.Score < 0 || attempt.Score > attempt.TotalQuestions {
		return domain.QuizStepResult{}, domain.ErrInvalidAttempt
	}

	ch, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return domain.QuizStepResult{}, err
	}
	if len(ch.QuizIDs) == 0 {
		return domain.QuizStepResult{}, domain.ErrNotAPath
	}
	attempt.QuizID = quizID
	if attempt.AttemptID == "" {
		attempt.AttemptID = uuid.NewString()
	}

	for range stepAttempts {
		res, done, err := e.quizStep(ctx, *ch, userID, attempt)
		if err != nil || done {
			return res, err
		}
	}
	return domain.QuizStepResult{}, domain.ErrStepConflict
}

// quizStep evaluates a quiz step against the stored completion and writes it
// guarded by the index it was evaluated at. done is false when a concurrent
// step moved the completion first.
func (e *Engine) quizStep(ctx context.Context, ch domain.Challenge, userID string, attempt domain.QuizAttemptResult) (domain.QuizStepResult, bool, error) {
	comp, err := e.store.GetCompletion(ctx, ch.ID, userID)
	if err != nil {
		return domain.QuizStepResult{}, false, fmt.Errorf("get completion: %w", err)
	}
	if comp == nil {
		return domain.QuizStepResult{}, false, domain.ErrCompletionNotFound
	}
	total := len(ch.QuizIDs)
	if comp.Completed {
		return domain.QuizStepResult{}, false, domain.ErrAlreadyCompleted
	}
	if comp.HasAttempt(attempt.AttemptID) {
		return stepResult(*comp, total), true, nil
	}
	if comp.CurrentQuizIndex >= total || ch.QuizIDs[comp.CurrentQuizIndex] != attempt.QuizID {
		return domain.QuizStepResult{}, false, domain.ErrUnexpectedQuiz
	}

	now := e.now()
	if attempt.CompletedAt.IsZero() {
		attempt.CompletedAt = now
	}

	next := *comp
	next.QuizAttempts = append(append([]domain.QuizAttemptResult{}, comp.QuizAttempts...), attempt)
	next.CurrentQuizIndex = comp.CurrentQuizIndex + 1
	next.Progress = max(comp.Progress, min(next.CurrentQuizIndex*ch.Target/total, ch.Target))
	next.UpdatedAt = now

	if next.CurrentQuizIndex == total {
		score := FinalScore(next.QuizAttempts)
		below, others, err := e.store.ScoreStanding(ctx, ch.ID, userID, score)
		if err != nil {
			return domain.QuizStepResult{}, false, err
		}
		pct := Percentile(below, others)
		next.Progress = ch.Target
		next.Completed = true
		next.CompletedAt = &now
		next.FinalScore = &score
		next.Percentile = &pct
	}

	ok, err := e.store.SaveCompletion(ctx, next, comp.CurrentQuizIndex)
	if err != nil {
		return domain.QuizStepResult{}, false, fmt.Errorf("save quiz step: %w", err)
	}
	if !ok {
		e.log.Debug("quiz step lost a concurrent write, re-reading",
			slog.String("challenge", ch.ID), slog.String("user", userID))
		return domain.QuizStepResult{}, false, nil
	}

	if err := e.quizzes.RecordAttempt(ctx, domain.QuizAttempt{
		ID:             attempt.AttemptID,
		UserID:         userID,
		QuizID:         attempt.QuizID,
		Score:          attempt.Score,
		TotalQuestions: attempt.TotalQuestions,
		CreatedAt:      attempt.CompletedAt,
	}); err != nil {
		e.log.Warn("attempt not logged for usage", slog.String("quiz", attempt.QuizID), slog.Any("error", err))
	}

	if next.Completed {
		e.log.Info("challenge path completed",
			slog.String("challenge", ch.ID), slog.String("user", userID),
			slog.Int("final_score", *next.FinalScore), slog.Int("percentile", *next.Percentile))
		e.award(ch, userID)
	}
	e.invalidateUser(ctx, userID)
	return stepResult(next, total), true, nil
}

// CompleteChallenge marks a progress-style challenge completed once its
// target is met.
func (e *Engine) CompleteChallenge(ctx context.Context, challengeID, userID string) (domain.ChallengeView, error) {
	ch, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return domain.ChallengeView{}, err
	}
	comp, err := e.store.GetCompletion(ctx, challengeID, userID)
	if err != nil {
		return domain.ChallengeView{}, fmt.Errorf("get completion: %w", err)
	}
	if comp == nil {
		return domain.ChallengeView{}, domain.ErrCompletionNotFound
	}
	if comp.Completed {
		return domain.ChallengeView{}, domain.ErrAlreadyCompleted
	}
	if comp.Progress < ch.Target {
		return domain.ChallengeView{}, domain.ErrTargetNotMet
	}

	now := e.now()
	next := *comp
	next.Completed = true
	next.CompletedAt = &now
	next.UpdatedAt = now

	ok, err := e.store.SaveCompletion(ctx, next, comp.CurrentQuizIndex)
	if err != nil {
		return domain.ChallengeView{}, fmt.Errorf("complete challenge: %w", err)
	}
	if !ok {
		return domain.ChallengeView{}, domain.ErrAlreadyCompleted
	}

	e.award(*ch, userID)
	e.invalidateUser(ctx, userID)
	return domain.NewChallengeView(*ch, &next), nil
}

func stepResult(c domain.Completion, total int) domain.QuizStepResult {
	return domain.QuizStepResult{
		CurrentQuizIndex: c.CurrentQuizIndex,
		TotalQuizzes:     total,
		Completed:        c.Completed,
		FinalScore:       c.FinalScore,
		Percentile:       c.Percentile,
	}
}
