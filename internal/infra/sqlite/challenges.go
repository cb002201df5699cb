package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studyforge/studyforge/internal/domain"
)

// ─── Challenges ─────────────────────────────────────────────────────────────

const challengeColumns = `id, template_id, title, description, type, format, progress_rule,
	activity_type, increment, target, reward, topic, difficulty, start_at, end_at, created_at`

// InsertChallenges inserts cs in one transaction. Rows colliding with an
// existing (type, title, start) are skipped; the created rows are returned.
func (d *DB) InsertChallenges(ctx context.Context, cs []domain.Challenge) ([]domain.Challenge, error) {
	var created []domain.Challenge
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range cs {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO challenges (`+challengeColumns+`, title_key)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(type, title_key, start_at) DO NOTHING`,
				c.ID, c.TemplateID, c.Title, c.Description, string(c.Type), c.Format, string(c.Rule),
				string(c.ActivityType), c.Increment, c.Target, c.Reward, c.Topic, string(c.Difficulty),
				toMillis(c.StartDate), toMillis(c.EndDate), toMillis(c.CreatedAt), domain.TitleKey(c.Title),
			)
			if err != nil {
				return fmt.Errorf("insert challenge %q: %w", c.Title, err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				continue
			}
			for i, quizID := range c.QuizIDs {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO challenge_quizzes (challenge_id, position, quiz_id) VALUES (?, ?, ?)`,
					c.ID, i, quizID,
				); err != nil {
					return fmt.Errorf("attach quiz to %q: %w", c.Title, err)
				}
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetChallenge returns a challenge by ID, or nil if not found.
func (d *DB) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if err != nil || c == nil {
		return nil, err
	}
	list := []domain.Challenge{*c}
	if err := d.attachQuizzes(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ActiveChallenges returns challenges whose window contains at.
func (d *DB) ActiveChallenges(ctx context.Context, at time.Time) ([]domain.Challenge, error) {
	ms := toMillis(at)
	return d.queryChallenges(ctx,
		`SELECT `+challengeColumns+` FROM challenges
		 WHERE start_at <= ? AND end_at > ?
		 ORDER BY end_at ASC, created_at ASC, title ASC`,
		ms, ms,
	)
}

// ChallengesStartingAt returns challenges of a type whose window starts at start.
func (d *DB) ChallengesStartingAt(ctx context.Context, t domain.ChallengeType, start time.Time) ([]domain.Challenge, error) {
	return d.queryChallenges(ctx,
		`SELECT `+challengeColumns+` FROM challenges
		 WHERE type = ? AND start_at = ?
		 ORDER BY created_at ASC, title ASC`,
		string(t), toMillis(start),
	)
}

// DeleteChallenge removes a challenge with its quiz links and completions.
func (d *DB) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM challenge_completions WHERE challenge_id = ?`,
			`DELETE FROM challenge_quizzes WHERE challenge_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete challenge children: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete challenge: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func (d *DB) queryChallenges(ctx context.Context, query string, args ...any) ([]domain.Challenge, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}

	var out []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the single connection before the follow-up query.
	rows.Close()

	if err := d.attachQuizzes(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachQuizzes fills QuizIDs, ordered by position, for every challenge.
func (d *DB) attachQuizzes(ctx context.Context, cs []domain.Challenge) error {
	if len(cs) == 0 {
		return nil
	}
	index := make(map[string]int, len(cs))
	args := make([]any, len(cs))
	for i, c := range cs {
		index[c.ID] = i
		args[i] = c.ID
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT challenge_id, quiz_id FROM challenge_quizzes
		 WHERE challenge_id IN (`+placeholders(len(cs))+`)
		 ORDER BY challenge_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("load challenge quizzes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var challengeID, quizID string
		if err := rows.Scan(&challengeID, &quizID); err != nil {
			return err
		}
		i := index[challengeID]
		cs[i].QuizIDs = append(cs[i].QuizIDs, quizID)
	}
	return rows.Err()
}

func scanChallenge(s scanner) (*domain.Challenge, error) {
	var c domain.Challenge
	var typ, rule, activity, difficulty string
	var start, end, created int64
	err := s.Scan(&c.ID, &c.TemplateID, &c.Title, &c.Description, &typ, &c.Format, &rule,
		&activity, &c.Increment, &c.Target, &c.Reward, &c.Topic, &difficulty, &start, &end, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge: %w", err)
	}
	c.Type = domain.ChallengeType(typ)
	c.Rule = domain.ProgressRule(rule)
	c.ActivityType = domain.ActivityType(activity)
	c.Difficulty = domain.Difficulty(difficulty)
	c.StartDate = fromMillis(start)
	c.EndDate = fromMillis(end)
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
