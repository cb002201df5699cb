package challenge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studyforge/studyforge/internal/domain"
)

func TestUpdateProgress_Rules(t *testing.T) {
	tests := []struct {
		name      string
		challenge func(*domain.Challenge)
		activity  domain.ActivityType
		perfect   bool
		want      int
		completed bool
	}{
		{"any activity counts", func(c *domain.Challenge) { c.Rule = domain.RuleAnyActivity }, domain.ActivityFlashcard, false, 1, false},
		{"matching type counts", func(c *domain.Challenge) {
			c.Rule = domain.RuleActivityCount
			c.ActivityType = domain.ActivityQuiz
		}, domain.ActivityQuiz, false, 1, false},
		{"other type ignored", func(c *domain.Challenge) {
			c.Rule = domain.RuleActivityCount
			c.ActivityType = domain.ActivityQuiz
		}, domain.ActivityFlashcard, false, 0, false},
		{"perfect jumps to target", func(c *domain.Challenge) {
			c.Rule = domain.RulePerfectScore
			c.ActivityType = domain.ActivityQuiz
		}, domain.ActivityQuiz, true, 3, true},
		{"imperfect ignored", func(c *domain.Challenge) {
			c.Rule = domain.RulePerfectScore
			c.ActivityType = domain.ActivityQuiz
		}, domain.ActivityQuiz, false, 0, false},
		{"mixed adds increment", func(c *domain.Challenge) {
			c.Rule = domain.RuleMixed
			c.Increment = 25
			c.Target = 100
		}, domain.ActivityFlashcard, false, 25, false},
		{"mixed clamps at target", func(c *domain.Challenge) {
			c.Rule = domain.RuleMixed
			c.Increment = 40
			c.Target = 30
		}, domain.ActivityQuiz, false, 30, true},
		{"quiz path untouched", func(c *domain.Challenge) {
			c.Rule = domain.RuleQuizPath
			c.QuizIDs = []string{"q1"}
		}, domain.ActivityQuiz, true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			ch := h.insert(t, "rule", tt.challenge)

			if _, err := h.engine.UpdateProgress(ctx, "u1", tt.activity, tt.perfect); err != nil {
				t.Fatalf("update: %v", err)
			}
			comp := h.completion(t, ch.ID, "u1")
			if comp == nil {
				t.Fatal("daily challenge should be auto-enrolled")
			}
			if comp.Progress != tt.want || comp.Completed != tt.completed {
				t.Errorf("progress=%d completed=%v, want %d %v", comp.Progress, comp.Completed, tt.want, tt.completed)
			}
		})
	}
}

func TestUpdateProgress_MonotoneAndClamped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.insert(t, "daily", func(c *domain.Challenge) { c.Target = 3 })

	last := 0
	for i := 0; i < 6; i++ {
		h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false)
		comp := h.completion(t, ch.ID, "u1")
		if comp.Progress < last {
			t.Fatalf("progress went backwards: %d -> %d", last, comp.Progress)
		}
		if comp.Progress > ch.Target {
			t.Fatalf("progress %d exceeds target %d", comp.Progress, ch.Target)
		}
		last = comp.Progress
	}
	if last != 3 {
		t.Errorf("final progress = %d", last)
	}
}

func TestUpdateProgress_CompletionIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.insert(t, "daily", func(c *domain.Challenge) { c.Target = 1 })

	changed, err := h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false)
	if err != nil || len(changed) != 1 || !changed[0].Completed {
		t.Fatalf("changed = %+v, err = %v", changed, err)
	}
	done := h.completion(t, ch.ID, "u1")

	h.clock.Advance(time.Minute)
	changed, _ = h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, true)
	if len(changed) != 0 {
		t.Errorf("completed challenge must not change, got %+v", changed)
	}
	again := h.completion(t, ch.ID, "u1")
	if !again.CompletedAt.Equal(*done.CompletedAt) || again.Progress != done.Progress {
		t.Error("completed record was modified")
	}

	_, err = h.engine.CompleteChallenge(ctx, ch.ID, "u1")
	expectErr(t, err, domain.ErrAlreadyCompleted)
	_, err = h.engine.Start(ctx, ch.ID, "u1")
	expectErr(t, err, domain.ErrAlreadyCompleted)
}

func TestUpdateProgress_IgnoresUnjoined(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	weekly := h.insert(t, "weekly", func(c *domain.Challenge) { c.Type = domain.ChallengeWeekly })

	h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false)
	if h.completion(t, weekly.ID, "u1") != nil {
		t.Error("non-daily challenges need an explicit join")
	}

	h.engine.Join(ctx, weekly.ID, "u1")
	h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false)
	if got := h.completion(t, weekly.ID, "u1").Progress; got != 1 {
		t.Errorf("joined weekly progress = %d", got)
	}
}

func TestCompletion_AwardsXPOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.insert(t, "daily", func(c *domain.Challenge) {
		c.Target = 1
		c.Reward = 120
	})

	h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false)
	h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false)
	h.runner.Wait()

	st, err := h.scores.Standing(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if st.CurrentXP != 120 {
		t.Errorf("xp = %d, want 120", st.CurrentXP)
	}
}

func TestCompleteChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.insert(t, "weekly", func(c *domain.Challenge) {
		c.Type = domain.ChallengeWeekly
		c.Target = 2
	})

	_, err := h.engine.CompleteChallenge(ctx, ch.ID, "u1")
	expectErr(t, err, domain.ErrCompletionNotFound)

	h.engine.Join(ctx, ch.ID, "u1")
	h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false)
	_, err = h.engine.CompleteChallenge(ctx, ch.ID, "u1")
	expectErr(t, err, domain.ErrTargetNotMet)
	expectErr(t, err, domain.ErrInvalidState)

	_, err = h.engine.CompleteChallenge(ctx, "missing", "u1")
	expectErr(t, err, domain.ErrNotFound)
}

// ═══════════════════════════════════════════════════════════════════════════
// Quiz paths
// ═══════════════════════════════════════════════════════════════════════════

func (h *harness) path(t *testing.T, title string, quizIDs ...string) domain.Challenge {
	t.Helper()
	return h.insert(t, title, func(c *domain.Challenge) {
		c.Type = domain.ChallengeWeekly
		c.Rule = domain.RuleQuizPath
		c.Format = "path"
		c.Target = len(quizIDs)
		c.QuizIDs = quizIDs
	})
}

func TestCompleteQuizInChallenge_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.path(t, "gauntlet", "q1", "q2")
	plain := h.insert(t, "plain", nil)

	_, err := h.engine.CompleteQuizInChallenge(ctx, ch.ID, "q1", "u1", domain.QuizAttemptResult{Score: 11, TotalQuestions: 10})
	expectErr(t, err, domain.ErrInvalidAttempt)
	_, err = h.engine.CompleteQuizInChallenge(ctx, ch.ID, "q1", "u1", domain.QuizAttemptResult{Score: 1, TotalQuestions: 10})
	expectErr(t, err, domain.ErrCompletionNotFound)

	h.engine.Start(ctx, ch.ID, "u1")
	_, err = h.engine.CompleteQuizInChallenge(ctx, ch.ID, "q2", "u1", domain.QuizAttemptResult{Score: 1, TotalQuestions: 10})
	expectErr(t, err, domain.ErrUnexpectedQuiz)

	h.engine.Join(ctx, plain.ID, "u1")
	_, err = h.engine.CompleteQuizInChallenge(ctx, plain.ID, "q1", "u1", domain.QuizAttemptResult{Score: 1, TotalQuestions: 10})
	expectErr(t, err, domain.ErrNotAPath)
}

func TestCompleteQuizInChallenge_RetriedAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.path(t, "gauntlet", "q1", "q2")
	h.engine.Start(ctx, ch.ID, "u1")

	attempt := domain.QuizAttemptResult{AttemptID: "a1", Score: 6, TotalQuestions: 10}
	first, err := h.engine.CompleteQuizInChallenge(ctx, ch.ID, "q1", "u1", attempt)
	if err != nil {
		t.Fatal(err)
	}
	retry, err := h.engine.CompleteQuizInChallenge(ctx, ch.ID, "q1", "u1", attempt)
	if err != nil {
		t.Fatalf("retried attempt: %v", err)
	}
	if first.CurrentQuizIndex != 1 || retry.CurrentQuizIndex != 1 {
		t.Errorf("indices %d %d, want 1", first.CurrentQuizIndex, retry.CurrentQuizIndex)
	}
	if n := len(h.completion(t, ch.ID, "u1").QuizAttempts); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestCompleteQuizInChallenge_Percentile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.path(t, "gauntlet", "q1", "q2")

	finish := func(user string, score int) domain.QuizStepResult {
		t.Helper()
		if _, err := h.engine.Start(ctx, ch.ID, user); err != nil {
			t.Fatal(err)
		}
		var res domain.QuizStepResult
		for _, q := range ch.QuizIDs {
			var err error
			res, err = h.engine.CompleteQuizInChallenge(ctx, ch.ID, q, user, domain.QuizAttemptResult{Score: score, TotalQuestions: 10})
			if err != nil {
				t.Fatalf("%s %s: %v", user, q, err)
			}
		}
		h.clock.Advance(time.Minute)
		return res
	}

	a := finish("a", 9)
	b := finish("b", 7)
	c := finish("c", 7)

	for _, tc := range []struct {
		name  string
		res   domain.QuizStepResult
		score int
		pct   int
	}{
		{"a", a, 90, 100},
		{"b", b, 70, 0},
		{"c", c, 70, 0},
	} {
		if !tc.res.Completed || tc.res.FinalScore == nil || tc.res.Percentile == nil {
			t.Fatalf("%s: not completed: %+v", tc.name, tc.res)
		}
		if *tc.res.FinalScore != tc.score || *tc.res.Percentile != tc.pct {
			t.Errorf("%s: score=%d pct=%d, want %d %d", tc.name, *tc.res.FinalScore, *tc.res.Percentile, tc.score, tc.pct)
		}
	}

	// Percentiles are frozen at completion time.
	if *h.completion(t, ch.ID, "a").Percentile != 100 {
		t.Error("first finisher's percentile changed")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Concurrency
// ═══════════════════════════════════════════════════════════════════════════

func TestUpdateProgress_ConcurrentActivities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.insert(t, "marathon", func(c *domain.Challenge) { c.Target = 1000 })

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.UpdateProgress(ctx, "u1", domain.ActivityQuiz, false); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if got := h.completion(t, ch.ID, "u1").Progress; got != n {
		t.Errorf("%d concurrent activities -> progress %d", n, got)
	}
}

func TestUpdateProgress_ConcurrentCompletionAwardsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.insert(t, "sprint", func(c *domain.Challenge) {
		c.Target = 10
		c.Reward = 40
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	completions := 0
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			saved, err := h.engine.UpdateProgress(ctx, "u1", domain.ActivityFlashcard, false)
			if err != nil {
				t.Error(err)
				return
			}
			for _, c := range saved {
				if c.Completed {
					mu.Lock()
					completions++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	h.runner.Wait()

	comp := h.completion(t, ch.ID, "u1")
	if comp.Progress != 10 || !comp.Completed {
		t.Errorf("progress %d completed %v, want 10/true", comp.Progress, comp.Completed)
	}
	if completions != 1 {
		t.Errorf("completion reported %d times", completions)
	}
	st, _ := h.scores.Standing(ctx, "u1")
	if st.CurrentXP != 40 {
		t.Errorf("xp = %d, want 40", st.CurrentXP)
	}
}

func TestCompleteQuizInChallenge_ConcurrentSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch := h.path(t, "gauntlet", "q1", "q2")
	if _, err := h.engine.Start(ctx, ch.ID, "u1"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.CompleteQuizInChallenge(ctx, ch.ID, "q1", "u1",
				domain.QuizAttemptResult{AttemptID: string(rune('a' + i)), Score: i, TotalQuestions: 10})
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case !errors.Is(err, domain.ErrUnexpectedQuiz):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	comp := h.completion(t, ch.ID, "u1")
	if succeeded != 1 {
		t.Errorf("%d concurrent submissions of the same step succeeded", succeeded)
	}
	if comp.CurrentQuizIndex != 1 || len(comp.QuizAttempts) != 1 {
		t.Errorf("index %d with %d attempts, want 1/1", comp.CurrentQuizIndex, len(comp.QuizAttempts))
	}
}
