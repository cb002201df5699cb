package generator

import (
	"context"
	"fmt"

	"github.com/studyforge/studyforge/internal/domain"
)

// Static builds placeholder quizzes locally. Used when no provider is
// configured so generation still produces playable challenges.
type Static struct{}

// GenerateQuiz returns n simple recall questions about the topic.
func (Static) GenerateQuiz(ctx context.Context, req domain.QuizRequest) (*domain.GeneratedQuiz, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := req.NumberOfQuestions
	if n <= 0 {
		n = 5
	}
	q := &domain.GeneratedQuiz{
		Title: fmt.Sprintf("%s Review (%s)", req.Topic, req.Difficulty),
		Topic: req.Topic,
	}
	for i := 0; i < n; i++ {
		q.Questions = append(q.Questions, domain.Question{
			Prompt:      fmt.Sprintf("%s: review question %d", req.Topic, i+1),
			Options:     []string{"A", "B", "C", "D"},
			AnswerIndex: i % 4,
		})
	}
	return q, nil
}
