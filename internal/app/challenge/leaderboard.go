package challenge

import (
	"context"
	"fmt"
	"math"

	"github.com/studyforge/studyforge/internal/domain"
)

// FinalScore is the whole-path score percentage, recomputed from every
// attempt in the log.
func FinalScore(attempts []domain.QuizAttemptResult) int {
	var score, total int
	for _, a := range attempts {
		score += a.Score
		total += a.TotalQuestions
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(total)))
}

// Percentile is the share of other finishers who scored strictly lower.
// The first finisher gets 100.
func Percentile(below, others int) int {
	if others == 0 {
		return 100
	}
	return int(math.Round(100 * float64(below) / float64(others)))
}

// GetLeaderboard returns the top scored completions of a challenge and the
// requester's own entry, ranked even when outside the top.
func (e *Engine) GetLeaderboard(ctx context.Context, challengeID, userID string) (domain.Leaderboard, error) {
	if _, err := e.getChallenge(ctx, challengeID); err != nil {
		return domain.Leaderboard{}, err
	}

	entries, err := e.store.Leaderboard(ctx, challengeID, e.cfg.LeaderboardSize)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	rank(entries)
	board := domain.Leaderboard{ChallengeID: challengeID, Entries: entries}
	if board.Entries == nil {
		board.Entries = []domain.LeaderboardEntry{}
	}

	for i := range entries {
		if entries[i].UserID == userID {
			me := entries[i]
			board.Me = &me
			return board, nil
		}
	}

	me, err := e.ownEntry(ctx, challengeID, userID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	board.Me = me
	return board, nil
}

func (e *Engine) ownEntry(ctx context.Context, challengeID, userID string) (*domain.LeaderboardEntry, error) {
	comp, err := e.store.GetCompletion(ctx, challengeID, userID)
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	if comp == nil || !comp.Completed || comp.FinalScore == nil {
		return nil, nil
	}

	higher, err := e.store.CountHigherScores(ctx, challengeID, *comp.FinalScore)
	if err != nil {
		return nil, err
	}
	name, err := e.store.DisplayName(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry := &domain.LeaderboardEntry{
		Rank:        higher + 1,
		UserID:      userID,
		DisplayName: name,
		FinalScore:  *comp.FinalScore,
		Percentile:  comp.Percentile,
	}
	if comp.CompletedAt != nil {
		entry.CompletedAt = *comp.CompletedAt
	}
	return entry, nil
}

// rank assigns competition ranks (1 + number of strictly higher scores) to
// entries already sorted by score.
func rank(entries []domain.LeaderboardEntry) {
	for i := range entries {
		if i > 0 && entries[i].FinalScore == entries[i-1].FinalScore {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
