package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studyforge/studyforge/internal/domain"
)

// ─── Quizzes ────────────────────────────────────────────────────────────────

// CreateQuiz persists a quiz and returns its ID. An empty ID is assigned.
func (d *DB) CreateQuiz(ctx context.Context, q domain.Quiz) (string, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return "", fmt.Errorf("encode questions: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, title, topic, difficulty, quiz_type, questions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Title, q.Topic, string(q.Difficulty), q.QuizType, string(questions), toMillis(q.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert quiz: %w", err)
	}
	return q.ID, nil
}

// GetQuiz returns a quiz by ID, or nil if not found.
func (d *DB) GetQuiz(ctx context.Context, id string) (*domain.Quiz, error) {
	var q domain.Quiz
	var difficulty, questions string
	var created int64
	err := d.db.QueryRowContext(ctx,
		`SELECT id, title, topic, difficulty, quiz_type, questions, created_at FROM quizzes WHERE id = ?`, id,
	).Scan(&q.ID, &q.Title, &q.Topic, &difficulty, &q.QuizType, &questions, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &q.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	q.Difficulty = domain.Difficulty(difficulty)
	q.CreatedAt = fromMillis(created)
	return &q, nil
}

// RecordAttempt logs a scored quiz attempt for usage analysis.
func (d *DB) RecordAttempt(ctx context.Context, a domain.QuizAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quiz_attempts (id, user_id, quiz_id, score, total_questions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.QuizID, a.Score, a.TotalQuestions, toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// PopularTopics returns attempt counts per quiz since a cutoff, most
// attempted first.
func (d *DB) PopularTopics(ctx context.Context, since time.Time, limit int) ([]domain.TopicPopularity, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT a.quiz_id, q.topic, COUNT(*) AS attempts
		 FROM quiz_attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 WHERE a.created_at >= ?
		 GROUP BY a.quiz_id, q.topic
		 ORDER BY attempts DESC, a.quiz_id ASC
		 LIMIT ?`,
		toMillis(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("popular topics: %w", err)
	}
	defer rows.Close()

	var out []domain.TopicPopularity
	for rows.Next() {
		var p domain.TopicPopularity
		if err := rows.Scan(&p.QuizID, &p.Topic, &p.Attempts); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DifficultyScores returns the mean score percentage per quiz difficulty
// since a cutoff.
func (d *DB) DifficultyScores(ctx context.Context, since time.Time) (map[domain.Difficulty]float64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT q.difficulty, AVG(a.score * 100.0 / a.total_questions)
		 FROM quiz_attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 WHERE a.created_at >= ? AND a.total_questions > 0
		 GROUP BY q.difficulty`,
		toMillis(since),
	)
	if err != nil {
		return nil, fmt.Errorf("difficulty scores: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Difficulty]float64)
	for rows.Next() {
		var difficulty string
		var mean float64
		if err := rows.Scan(&difficulty, &mean); err != nil {
			return nil, err
		}
		out[domain.Difficulty(difficulty)] = mean
	}
	return out, rows.Err()
}
