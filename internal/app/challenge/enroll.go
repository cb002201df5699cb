package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyforge/studyforge/internal/app/window"
	"github.com/studyforge/studyforge/internal/domain"
)

// GetAllActive returns every challenge open now with the user's progress.
func (e *Engine) GetAllActive(ctx context.Context, userID string) ([]domain.ChallengeView, error) {
	return e.readThrough(ctx, "all", allKey(userID), e.cfg.AllTTL, func(ctx context.Context) ([]domain.ChallengeView, error) {
		active, err := e.store.ActiveChallenges(ctx, e.now())
		if err != nil {
			return nil, fmt.Errorf("list active challenges: %w", err)
		}
		comps, err := e.store.UserCompletions(ctx, userID, challengeIDs(active))
		if err != nil {
			return nil, fmt.Errorf("load completions: %w", err)
		}
		return views(active, comps), nil
	})
}

// GetToday returns today's daily challenges. Every user is enrolled in them:
// missing completions are created on read. Cached until midnight.
func (e *Engine) GetToday(ctx context.Context, userID string) ([]domain.ChallengeView, error) {
	now := e.now()
	return e.readThrough(ctx, "today", todayKey(userID, now), window.UntilMidnight(now), func(ctx context.Context) ([]domain.ChallengeView, error) {
		daily, err := e.store.ChallengesStartingAt(ctx, domain.ChallengeDaily, window.Daily(now).Start)
		if err != nil {
			return nil, fmt.Errorf("list daily challenges: %w", err)
		}
		comps, _, err := e.enroll(ctx, userID, daily, now)
		if err != nil {
			return nil, err
		}
		return views(daily, comps), nil
	})
}

// enroll loads the user's completions for cs, creating missing ones for
// daily challenges, and reports whether any row was created.
func (e *Engine) enroll(ctx context.Context, userID string, cs []domain.Challenge, now time.Time) (map[string]*domain.Completion, bool, error) {
	comps, err := e.store.UserCompletions(ctx, userID, challengeIDs(cs))
	if err != nil {
		return nil, false, fmt.Errorf("load completions: %w", err)
	}

	// Reload after any insert attempt: a concurrent caller may have created
	// the row first, in which case ours was ignored.
	attempted, created := false, false
	for _, ch := range cs {
		if ch.Type != domain.ChallengeDaily || comps[ch.ID] != nil || !ch.OpenAt(now) {
			continue
		}
		ok, err := e.store.CreateCompletion(ctx, ch.ID, userID, now)
		if err != nil {
			return nil, false, fmt.Errorf("enroll in %s: %w", ch.ID, err)
		}
		attempted = true
		created = created || ok
	}
	if !attempted {
		return comps, false, nil
	}

	comps, err = e.store.UserCompletions(ctx, userID, challengeIDs(cs))
	if err != nil {
		return nil, false, fmt.Errorf("reload completions: %w", err)
	}
	return comps, created, nil
}

// Join enrolls the user. Joining again returns the existing completion.
func (e *Engine) Join(ctx context.Context, challengeID, userID string) (domain.ChallengeView, error) {
	ch, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return domain.ChallengeView{}, err
	}
	if err := checkOpen(*ch, e.now()); err != nil {
		return domain.ChallengeView{}, err
	}

	comp, created, err := e.ensureCompletion(ctx, *ch, userID)
	if err != nil {
		return domain.ChallengeView{}, err
	}
	if created {
		e.invalidateUser(ctx, userID)
		e.log.Info("challenge joined", slog.String("challenge", ch.ID), slog.String("user", userID))
	}
	return domain.NewChallengeView(*ch, comp), nil
}

// Leave abandons an untouched completion.
func (e *Engine) Leave(ctx context.Context, challengeID, userID string) error {
	comp, err := e.store.GetCompletion(ctx, challengeID, userID)
	if err != nil {
		return fmt.Errorf("get completion: %w", err)
	}
	if comp == nil {
		return domain.ErrCompletionNotFound
	}
	if comp.Touched() {
		return domain.ErrCannotLeave
	}

	deleted, err := e.store.DeleteUntouchedCompletion(ctx, challengeID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		// Lost a race with a progress update or another leave.
		current, err := e.store.GetCompletion(ctx, challengeID, userID)
		if err != nil {
			return fmt.Errorf("get completion: %w", err)
		}
		if current == nil {
			return domain.ErrCompletionNotFound
		}
		return domain.ErrCannotLeave
	}

	e.invalidateUser(ctx, userID)
	return nil
}

// Start enrolls the user if needed and returns where they are in the
// challenge's quiz path.
func (e *Engine) Start(ctx context.Context, challengeID, userID string) (domain.StartResult, error) {
	ch, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return domain.StartResult{}, err
	}

	existing, err := e.store.GetCompletion(ctx, challengeID, userID)
	if err != nil {
		return domain.StartResult{}, fmt.Errorf("get completion: %w", err)
	}
	if existing != nil && existing.Completed {
		return domain.StartResult{}, domain.ErrAlreadyCompleted
	}
	if err := checkOpen(*ch, e.now()); err != nil {
		return domain.StartResult{}, err
	}

	comp, created, err := e.ensureCompletion(ctx, *ch, userID)
	if err != nil {
		return domain.StartResult{}, err
	}
	if created {
		e.invalidateUser(ctx, userID)
	}

	res := domain.StartResult{Challenge: domain.NewChallengeView(*ch, comp), TotalQuizzes: len(ch.QuizIDs)}
	if comp.CurrentQuizIndex < len(ch.QuizIDs) {
		res.CurrentQuizID = ch.QuizIDs[comp.CurrentQuizIndex]
	}
	return res, nil
}

// GetProgress returns the challenge with the user's completion.
func (e *Engine) GetProgress(ctx context.Context, challengeID, userID string) (domain.ChallengeView, error) {
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
	return domain.NewChallengeView(*ch, comp), nil
}

// Delete removes a challenge with its completions.
func (e *Engine) Delete(ctx context.Context, challengeID string) error {
	deleted, err := e.store.DeleteChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrChallengeNotFound
	}
	e.invalidateAll(ctx)
	e.log.Info("challenge deleted", slog.String("challenge", challengeID))
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (e *Engine) getChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	ch, err := e.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if ch == nil {
		return nil, domain.ErrChallengeNotFound
	}
	return ch, nil
}

// ensureCompletion returns the user's completion, creating it if missing.
// A concurrent creator wins silently; both callers see the same row.
func (e *Engine) ensureCompletion(ctx context.Context, ch domain.Challenge, userID string) (*domain.Completion, bool, error) {
	created, err := e.store.CreateCompletion(ctx, ch.ID, userID, e.now())
	if err != nil {
		return nil, false, err
	}
	comp, err := e.store.GetCompletion(ctx, ch.ID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("get completion: %w", err)
	}
	if comp == nil {
		return nil, false, domain.ErrCompletionNotFound
	}
	return comp, created, nil
}

func checkOpen(ch domain.Challenge, now time.Time) error {
	if now.Before(ch.StartDate) {
		return domain.ErrChallengeNotOpen
	}
	if !now.Before(ch.EndDate) {
		return domain.ErrChallengeExpired
	}
	return nil
}

func challengeIDs(cs []domain.Challenge) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

func views(cs []domain.Challenge, comps map[string]*domain.Completion) []domain.ChallengeView {
	out := make([]domain.ChallengeView, len(cs))
	for i, c := range cs {
		out[i] = domain.NewChallengeView(c, comps[c.ID])
	}
	return out
}
