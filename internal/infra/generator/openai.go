// Package generator produces quiz content for quiz-backed challenges.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studyforge/studyforge/internal/domain"
)

// ─── OpenAI-compatible client ───────────────────────────────────────────────
// Talks to any provider exposing POST {base}/chat/completions and asks for a
// JSON object reply.

// Config configures the chat-completions client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OpenAI generates quizzes through a chat-completions endpoint.
type OpenAI struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI creates a client. A zero timeout means 60 seconds.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = `You write quizzes for students. Reply with a single JSON object:
{"title": string, "topic": string, "questions": [{"question": string, "options": [string], "answer_index": number, "explanation": string}]}`

// GenerateQuiz asks the provider for a quiz and validates the reply.
func (o *OpenAI) GenerateQuiz(ctx context.Context, req domain.QuizRequest) (*domain.GeneratedQuiz, error) {
	body := chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if o.cfg.Temperature > 0 {
		t := o.cfg.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrGeneratorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrGeneratorUnavailable, resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGeneratorBadOutput, err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrGeneratorUnavailable, cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", domain.ErrGeneratorBadOutput)
	}

	return ParseQuiz(cr.Choices[0].Message.Content, req)
}

func userPrompt(req domain.QuizRequest) string {
	return fmt.Sprintf("Topic: %s\nDifficulty: %s\nQuestions: %d\nType: %s",
		req.Topic, req.Difficulty, req.NumberOfQuestions, req.QuizType)
}

// ParseQuiz decodes a model reply into a quiz, tolerating a fenced code block
// around the JSON, and validates every question.
func ParseQuiz(content string, req domain.QuizRequest) (*domain.GeneratedQuiz, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var q domain.GeneratedQuiz
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &q); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneratorBadOutput, err)
	}
	if len(q.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", domain.ErrGeneratorBadOutput)
	}
	for i, question := range q.Questions {
		if question.Prompt == "" || len(question.Options) < 2 {
			return nil, fmt.Errorf("%w: question %d is incomplete", domain.ErrGeneratorBadOutput, i+1)
		}
		if question.AnswerIndex < 0 || question.AnswerIndex >= len(question.Options) {
			return nil, fmt.Errorf("%w: question %d answer out of range", domain.ErrGeneratorBadOutput, i+1)
		}
	}
	if req.NumberOfQuestions > 0 && len(q.Questions) > req.NumberOfQuestions {
		q.Questions = q.Questions[:req.NumberOfQuestions]
	}
	if q.Topic == "" {
		q.Topic = req.Topic
	}
	if q.Title == "" {
		q.Title = fmt.Sprintf("%s Quiz", req.Topic)
	}
	return &q, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
