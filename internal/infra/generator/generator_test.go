package generator_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/infra/generator"
)

var _ domain.ContentGenerator = (*generator.OpenAI)(nil)
var _ domain.ContentGenerator = generator.Static{}

const quizJSON = `{"title":"Cells 101","topic":"Biology","questions":[
	{"question":"Powerhouse of the cell?","options":["Nucleus","Mitochondria"],"answer_index":1}
]}`

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "gpt-test" {
			t.Errorf("model = %v", req["model"])
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_GenerateQuiz(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "```json\n"+quizJSON+"\n```")
	g := generator.NewOpenAI(generator.Config{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "gpt-test"})

	q, err := g.GenerateQuiz(context.Background(), domain.QuizRequest{Topic: "Biology", Difficulty: domain.DifficultyEasy, NumberOfQuestions: 10})
	if err != nil {
		t.Fatalf("GenerateQuiz() error: %v", err)
	}
	if q.Title != "Cells 101" || len(q.Questions) != 1 {
		t.Errorf("quiz = %+v", q)
	}
}

func TestOpenAI_UpstreamError(t *testing.T) {
	srv := completionServer(t, http.StatusBadGateway, quizJSON)
	g := generator.NewOpenAI(generator.Config{BaseURL: srv.URL + "/v1", APIKey: "secret", Model: "gpt-test"})

	_, err := g.GenerateQuiz(context.Background(), domain.QuizRequest{Topic: "Biology"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestParseQuiz(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", quizJSON, false},
		{"not json", "sorry, I cannot", true},
		{"no questions", `{"title":"x","questions":[]}`, true},
		{"answer out of range", `{"questions":[{"question":"q","options":["a","b"],"answer_index":2}]}`, true},
		{"one option", `{"questions":[{"question":"q","options":["a"],"answer_index":0}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := generator.ParseQuiz(tt.content, domain.QuizRequest{Topic: "Biology"})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrGeneratorBadOutput) {
				t.Errorf("expected bad output error, got %v", err)
			}
		})
	}
}

func TestParseQuiz_Defaults(t *testing.T) {
	q, err := generator.ParseQuiz(`{"questions":[{"question":"q","options":["a","b"],"answer_index":0},{"question":"r","options":["a","b"],"answer_index":1}]}`,
		domain.QuizRequest{Topic: "History", NumberOfQuestions: 1})
	if err != nil {
		t.Fatal(err)
	}
	if q.Topic != "History" || q.Title != "History Quiz" || len(q.Questions) != 1 {
		t.Errorf("quiz = %+v", q)
	}
}

func TestStatic(t *testing.T) {
	q, err := generator.Static{}.GenerateQuiz(context.Background(), domain.QuizRequest{Topic: "Algebra", NumberOfQuestions: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Questions) != 3 || q.Topic != "Algebra" {
		t.Errorf("quiz = %+v", q)
	}
}
