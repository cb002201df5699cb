package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studyforge/studyforge/internal/domain"
)

// ─── Completions ────────────────────────────────────────────────────────────

const completionColumns = `challenge_id, user_id, progress, completed, completed_at, current_quiz_index,
	quiz_attempts, final_score, percentile, joined_at, updated_at`

// CreateCompletion inserts a fresh completion. Returns false if the pair
// already has one; the existing row is left untouched.
func (d *DB) CreateCompletion(ctx context.Context, challengeID, userID string, at time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO challenge_completions (challenge_id, user_id, joined_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		challengeID, userID, toMillis(at), toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("create completion: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetCompletion returns the (challenge, user) completion, or nil if not found.
func (d *DB) GetCompletion(ctx context.Context, challengeID, userID string) (*domain.Completion, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+completionColumns+` FROM challenge_completions WHERE challenge_id = ? AND user_id = ?`,
		challengeID, userID,
	)
	return scanCompletion(row)
}

// UserCompletions returns the user's completions keyed by challenge ID.
func (d *DB) UserCompletions(ctx context.Context, userID string, challengeIDs []string) (map[string]*domain.Completion, error) {
	out := make(map[string]*domain.Completion, len(challengeIDs))
	if len(challengeIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(challengeIDs)+1)
	args = append(args, userID)
	for _, id := range challengeIDs {
		args = append(args, id)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+completionColumns+` FROM challenge_completions
		 WHERE user_id = ? AND challenge_id IN (`+placeholders(len(challengeIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out[c.ChallengeID] = c
	}
	return out, rows.Err()
}

// DeleteUntouchedCompletion deletes a completion only while it has no
// progress and is not completed.
func (d *DB) DeleteUntouchedCompletion(ctx context.Context, challengeID, userID string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM challenge_completions
		 WHERE challenge_id = ? AND user_id = ? AND progress = 0 AND completed = 0`,
		challengeID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete completion: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ApplyProgress adds each step to its completion inside one transaction.
// The increment is computed by SQLite from the stored value, so concurrent
// steps never overwrite each other. Rows already completed are not touched
// and are left out of the result.
func (d *DB) ApplyProgress(ctx context.Context, steps []domain.ProgressStep) ([]domain.Completion, error) {
	var saved []domain.Completion
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range steps {
			at := toMillis(s.At)
			row := tx.QueryRowContext(ctx,
				`UPDATE challenge_completions SET
					progress = MIN(progress + ?, ?),
					completed = CASE WHEN progress + ? >= ? THEN 1 ELSE 0 END,
					completed_at = CASE WHEN progress + ? >= ? THEN ? ELSE completed_at END,
					updated_at = ?
				 WHERE challenge_id = ? AND user_id = ? AND completed = 0
				 RETURNING `+completionColumns,
				s.Increment, s.Target, s.Increment, s.Target, s.Increment, s.Target, at, at,
				s.ChallengeID, s.UserID,
			)
			c, err := scanCompletion(row)
			if err != nil {
				return fmt.Errorf("apply progress %s/%s: %w", s.ChallengeID, s.UserID, err)
			}
			if c != nil {
				saved = append(saved, *c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SaveCompletion writes the full row while it is open and its quiz index is
// still fromIndex. Progress never moves backwards.
func (d *DB) SaveCompletion(ctx context.Context, c domain.Completion, fromIndex int) (bool, error) {
	attempts, err := json.Marshal(attemptsOrEmpty(c.QuizAttempts))
	if err != nil {
		return false, fmt.Errorf("encode attempts: %w", err)
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE challenge_completions SET
			progress = MAX(progress, ?),
			completed = ?,
			completed_at = ?,
			current_quiz_index = ?,
			quiz_attempts = ?,
			final_score = ?,
			percentile = ?,
			updated_at = ?
		 WHERE challenge_id = ? AND user_id = ? AND completed = 0 AND current_quiz_index = ?`,
		c.Progress, c.Completed, nullableMillis(c.CompletedAt), c.CurrentQuizIndex,
		string(attempts), nullableInt(c.FinalScore), nullableInt(c.Percentile), toMillis(c.UpdatedAt),
		c.ChallengeID, c.UserID, fromIndex,
	)
	if err != nil {
		return false, fmt.Errorf("save completion %s/%s: %w", c.ChallengeID, c.UserID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ScoreStanding counts other scored completions of a challenge: how many
// scored strictly below score and how many there are in total.
func (d *DB) ScoreStanding(ctx context.Context, challengeID, userID string, score int) (int, int, error) {
	var below, others int
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN final_score < ? THEN 1 ELSE 0 END), 0), COUNT(*)
		 FROM challenge_completions
		 WHERE challenge_id = ? AND user_id <> ? AND completed = 1 AND final_score IS NOT NULL`,
		score, challengeID, userID,
	).Scan(&below, &others)
	if err != nil {
		return 0, 0, fmt.Errorf("score standing: %w", err)
	}
	return below, others, nil
}

// Leaderboard returns scored completions ordered by score, earliest finisher
// first on ties. Ranks are left for the caller.
func (d *DB) Leaderboard(ctx context.Context, challengeID string, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT c.user_id, COALESCE(u.display_name, c.user_id), c.final_score, c.percentile, c.completed_at
		 FROM challenge_completions c
		 LEFT JOIN users u ON u.id = c.user_id
		 WHERE c.challenge_id = ? AND c.completed = 1 AND c.final_score IS NOT NULL
		 ORDER BY c.final_score DESC, c.completed_at ASC, c.user_id ASC
		 LIMIT ?`,
		challengeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		var percentile, completedAt sql.NullInt64
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.FinalScore, &percentile, &completedAt); err != nil {
			return nil, err
		}
		e.Percentile = intPtr(percentile)
		if completedAt.Valid {
			e.CompletedAt = fromMillis(completedAt.Int64)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountHigherScores counts scored completions strictly above score.
func (d *DB) CountHigherScores(ctx context.Context, challengeID string, score int) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenge_completions
		 WHERE challenge_id = ? AND completed = 1 AND final_score > ?`,
		challengeID, score,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count higher scores: %w", err)
	}
	return n, nil
}

func scanCompletion(s scanner) (*domain.Completion, error) {
	var c domain.Completion
	var completedAt, finalScore, percentile sql.NullInt64
	var attempts string
	var joined, updated int64
	err := s.Scan(&c.ChallengeID, &c.UserID, &c.Progress, &c.Completed, &completedAt,
		&c.CurrentQuizIndex, &attempts, &finalScore, &percentile, &joined, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan completion: %w", err)
	}
	if err := json.Unmarshal([]byte(attempts), &c.QuizAttempts); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	c.QuizAttempts = attemptsOrEmpty(c.QuizAttempts)
	c.CompletedAt = timePtr(completedAt)
	c.FinalScore = intPtr(finalScore)
	c.Percentile = intPtr(percentile)
	c.JoinedAt = fromMillis(joined)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func attemptsOrEmpty(a []domain.QuizAttemptResult) []domain.QuizAttemptResult {
	if a == nil {
		return []domain.QuizAttemptResult{}
	}
	return a
}
