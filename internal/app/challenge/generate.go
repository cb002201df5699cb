package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studyforge/studyforge/internal/app/catalog"
	"github.com/studyforge/studyforge/internal/app/tasks"
	"github.com/studyforge/studyforge/internal/app/window"
	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/infra/metrics"
)

// GenerateDaily creates the daily challenges of the day containing start, or
// of today when start is zero.
func (e *Engine) GenerateDaily(ctx context.Context, start time.Time) (*domain.GenerationResult, error) {
	if start.IsZero() {
		start = e.now()
	}
	return e.Generate(ctx, domain.ChallengeDaily, start.In(e.cfg.Location))
}

// GenerateWeekly creates this week's challenges (today for seven days).
func (e *Engine) GenerateWeekly(ctx context.Context) (*domain.GenerationResult, error) {
	return e.Generate(ctx, domain.ChallengeWeekly, e.now())
}

// GenerateMonthly creates this month's challenges (today for one month).
func (e *Engine) GenerateMonthly(ctx context.Context) (*domain.GenerationResult, error) {
	return e.Generate(ctx, domain.ChallengeMonthly, e.now())
}

// GenerateHot creates hot challenges for the next four hours.
func (e *Engine) GenerateHot(ctx context.Context) (*domain.GenerationResult, error) {
	return e.Generate(ctx, domain.ChallengeHot, e.now())
}

// Generate instantiates the catalog templates of ct for the window at t.
// Templates whose title or slot is already filled in that window are
// skipped, so a rerun creates nothing new. Concurrent runs for the same
// window share one execution.
func (e *Engine) Generate(ctx context.Context, ct domain.ChallengeType, at time.Time) (*domain.GenerationResult, error) {
	w, err := window.For(ct, at)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:%d", ct, w.Start.UnixMilli())
	v, err, _ := e.runs.Do(key, func() (any, error) {
		return e.generate(ctx, ct, w)
	})
	if v == nil {
		return nil, err
	}
	return v.(*domain.GenerationResult), err
}

// built pairs a template with the challenge row made from it.
type built struct {
	bp        catalog.Blueprint
	challenge domain.Challenge
	err       error
}

func (e *Engine) generate(ctx context.Context, ct domain.ChallengeType, w domain.Window) (*domain.GenerationResult, error) {
	started := time.Now()
	defer func() {
		metrics.GenerationDuration.WithLabelValues(string(ct)).Observe(time.Since(started).Seconds())
	}()
	log := e.log.With(slog.String("type", string(ct)), slog.Time("window_start", w.Start))

	result := &domain.GenerationResult{Type: ct, Window: w, Created: []domain.Challenge{}, Skipped: []domain.SkippedTemplate{}}

	existing, err := e.store.ChallengesStartingAt(ctx, ct, w.Start)
	if err != nil {
		return nil, fmt.Errorf("load existing challenges: %w", err)
	}
	titles := make(map[string]bool, len(existing))
	slots := make(map[string]bool, len(existing))
	for _, c := range existing {
		titles[domain.TitleKey(c.Title)] = true
		slots[catalog.Slot(c.TemplateID)] = true
	}

	snap := e.analyzeUsage(ctx, ct, log)
	blueprints := catalog.Select(ct, snap, window.Seed(w.Start))

	var todo []catalog.Blueprint
	for _, bp := range blueprints {
		if titles[domain.TitleKey(bp.Title)] || slots[catalog.Slot(bp.TemplateID)] {
			result.Skipped = append(result.Skipped, skip(ct, bp, "already exists"))
			continue
		}
		todo = append(todo, bp)
	}
	if len(todo) == 0 {
		log.Info("challenges already generated", slog.Int("skipped", len(result.Skipped)))
		return result, nil
	}

	now := e.now()
	builds := make([]built, len(todo))
	var g errgroup.Group
	g.SetLimit(e.cfg.GenerationConcurrency)
	for i, bp := range todo {
		builds[i].bp = bp
		g.Go(func() error {
			ch := newChallenge(ct, bp, w, now)
			if bp.NeedsQuiz() {
				ids, err := e.materialize(ctx, bp, now)
				if err != nil {
					builds[i].err = err
					return nil
				}
				ch.QuizIDs = ids
			}
			builds[i].challenge = ch
			return nil
		})
	}
	g.Wait()

	var rows []domain.Challenge
	for _, b := range builds {
		if b.err != nil {
			log.Warn("template skipped, content generation failed",
				slog.String("template", b.bp.TemplateID), slog.Any("error", b.err))
			result.Skipped = append(result.Skipped, skip(ct, b.bp, "content generation failed: "+b.err.Error()))
			continue
		}
		rows = append(rows, b.challenge)
	}
	if len(rows) == 0 {
		log.Error("generation produced no challenges", slog.Int("skipped", len(result.Skipped)))
		return result, nil
	}

	created, err := e.store.InsertChallenges(ctx, rows)
	if err != nil {
		titles := make([]string, len(rows))
		for i, r := range rows {
			titles[i] = r.Title
		}
		log.Error("challenge batch not persisted", slog.Any("titles", titles), slog.Any("error", err))
		return result, fmt.Errorf("persist %s challenges [%s]: %w", ct, strings.Join(titles, ", "), err)
	}

	inserted := make(map[string]bool, len(created))
	for _, c := range created {
		inserted[c.ID] = true
	}
	for _, b := range builds {
		if b.err == nil && !inserted[b.challenge.ID] {
			result.Skipped = append(result.Skipped, skip(ct, b.bp, "already exists"))
		}
	}
	result.Created = created
	metrics.ChallengesGenerated.WithLabelValues(string(ct)).Add(float64(len(created)))

	if len(created) > 0 {
		e.invalidateAll(ctx)
	}
	log.Info("challenges generated", slog.Int("created", len(created)), slog.Int("skipped", len(result.Skipped)))
	return result, nil
}

// analyzeUsage builds the catalog snapshot from recent attempts. Only daily
// and weekly templates use it. Failures degrade to static templates.
func (e *Engine) analyzeUsage(ctx context.Context, ct domain.ChallengeType, log *slog.Logger) catalog.Snapshot {
	if ct != domain.ChallengeDaily && ct != domain.ChallengeWeekly {
		return catalog.Snapshot{}
	}
	since := e.now().Add(-e.cfg.UsageLookback)

	popular, err := e.quizzes.PopularTopics(ctx, since, e.cfg.TopTopics)
	if err != nil {
		log.Warn("usage analysis failed, using static templates", slog.Any("error", err))
		return catalog.Snapshot{}
	}
	scores, err := e.quizzes.DifficultyScores(ctx, since)
	if err != nil {
		log.Warn("difficulty analysis failed, using medium", slog.Any("error", err))
		scores = nil
	}
	return catalog.Snapshot{
		Topics:     catalog.TopTopics(popular, e.cfg.TopTopics),
		Difficulty: catalog.OptimalDifficulty(scores),
	}
}

// materialize generates and stores one quiz per topic of bp, in order.
func (e *Engine) materialize(ctx context.Context, bp catalog.Blueprint, now time.Time) ([]string, error) {
	if e.generator == nil {
		return nil, domain.ErrGeneratorUnavailable
	}

	ids := make([]string, 0, len(bp.QuizTopics))
	for _, topic := range bp.QuizTopics {
		req := domain.QuizRequest{
			Topic:             topic,
			Difficulty:        bp.Difficulty,
			NumberOfQuestions: e.cfg.QuestionCount,
			QuizType:          e.cfg.QuizType,
		}

		var gq *domain.GeneratedQuiz
		err := tasks.Retry(ctx, e.cfg.GeneratorRetry, func(ctx context.Context) error {
			var err error
			gq, err = e.generator.GenerateQuiz(ctx, req)
			return err
		}, nil)
		if err != nil {
			metrics.GeneratorRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("generate %s quiz: %w", topic, err)
		}
		metrics.GeneratorRequests.WithLabelValues("ok").Inc()

		quizTopic := gq.Topic
		if quizTopic == "" {
			quizTopic = topic
		}
		id, err := e.quizzes.CreateQuiz(ctx, domain.Quiz{
			ID:         uuid.NewString(),
			Title:      gq.Title,
			Topic:      quizTopic,
			Difficulty: bp.Difficulty,
			QuizType:   e.cfg.QuizType,
			Questions:  gq.Questions,
			CreatedAt:  now,
		})
		if err != nil {
			return nil, fmt.Errorf("store %s quiz: %w", topic, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newChallenge(ct domain.ChallengeType, bp catalog.Blueprint, w domain.Window, now time.Time) domain.Challenge {
	return domain.Challenge{
		ID:           uuid.NewString(),
		TemplateID:   bp.TemplateID,
		Title:        bp.Title,
		Description:  bp.Description,
		Type:         ct,
		Format:       bp.Format,
		Rule:         bp.Rule,
		ActivityType: bp.ActivityType,
		Increment:    bp.Increment,
		Target:       bp.Target,
		Reward:       bp.Reward,
		Topic:        bp.Topic,
		Difficulty:   bp.Difficulty,
		StartDate:    w.Start,
		EndDate:      w.End,
		CreatedAt:    now,
	}
}

func skip(ct domain.ChallengeType, bp catalog.Blueprint, reason string) domain.SkippedTemplate {
	label := reason
	if i := strings.IndexByte(reason, ':'); i > 0 {
		label = reason[:i]
	}
	metrics.TemplatesSkipped.WithLabelValues(string(ct), label).Inc()
	return domain.SkippedTemplate{TemplateID: bp.TemplateID, Title: bp.Title, Reason: reason}
}
