package job

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"corelms/internal/cache"
	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		ProviderOrder:   "alpha",
		Budget:          5 * time.Second,
		MaxRetries:      2,
		BackoffBase:     0,
		AttemptOverhead: 10 * time.Millisecond,
		SafetyMargin:    time.Millisecond,
		OrderCacheTTL:   time.Minute,
	}
}

// validResponse yields n well-formed candidates with non-degenerate answers.
func validResponse(n int) func(domain.GenerateRequest) (*domain.GenerateResult, error) {
	return func(domain.GenerateRequest) (*domain.GenerateResult, error) {
		questions := make([]domain.GeneratedQuestion, n)
		letters := []string{"A", "B", "C", "D"}
		for i := range questions {
			questions[i] = domain.GeneratedQuestion{
				Type: domain.QuestionSingle,
				Prompt: fmt.Sprintf("Which statement about routing table entry %d is accurate?\n"+
					"A) It always points to a default gateway only\n"+
					"B) It maps a destination prefix to a next hop\n"+
					"C) It stores the full path to every destination\n"+
					"D) It is recomputed on every forwarded packet", i),
				CorrectAnswer: letters[i%len(letters)],
				Explanation:   "A routing table entry maps a prefix to a next hop.",
			}
		}
		return &domain.GenerateResult{Questions: questions}, nil
	}
}

func failingResponse() func(domain.GenerateRequest) (*domain.GenerateResult, error) {
	return func(domain.GenerateRequest) (*domain.GenerateResult, error) {
		return nil, fmt.Errorf("upstream status 503")
	}
}

type regenFixture struct {
	kv      *memCache
	modules *fakeModules
	quizzes *fakeQuizzes
	tx      *passTx
	handler *RegenHandler
	module  *domain.Module
}

func newRegenFixture(t *testing.T, provider *scriptedProvider, lessonCount int) *regenFixture {
	t.Helper()
	ctx := context.Background()
	kv := newMemCache()
	modules := newFakeModules()
	quizzes := newFakeQuizzes()
	tx := &passTx{}

	module := &domain.Module{Title: "Networking 101"}
	require.NoError(t, modules.CreateModule(ctx, module))
	for i := 1; i <= lessonCount; i++ {
		quiz := &domain.Quiz{Kind: domain.QuizKindLesson, PassThreshold: 70, AttemptsLimit: 3}
		require.NoError(t, quizzes.CreateQuiz(ctx, quiz))
		lesson := &domain.Lesson{
			ModuleID:     module.ID,
			Title:        fmt.Sprintf("Lesson %d", i),
			Content:      lessonText,
			Position:     i,
			QuizID:       quiz.ID,
			RequiresQuiz: true,
		}
		require.NoError(t, modules.CreateLesson(ctx, lesson))
		seed := &domain.Question{
			QuizID:        quiz.ID,
			Type:          domain.QuestionSingle,
			Prompt:        "placeholder",
			CorrectAnswer: "A",
			ProvenanceTag: domain.ProvenanceNeedsRegen + ":import1",
		}
		require.NoError(t, quizzes.InsertQuestions(ctx, []*domain.Question{seed}))
	}

	build := func(config.LLMConfig) map[string]domain.QuestionProvider {
		return map[string]domain.QuestionProvider{provider.name: provider}
	}
	handler := NewRegenHandler(kv, modules, quizzes, tx, testLLMConfig(), testQuizConfig(), build)
	return &regenFixture{kv: kv, modules: modules, quizzes: quizzes, tx: tx, handler: handler, module: module}
}

func regenJob(t *testing.T, moduleID string) domain.Job {
	t.Helper()
	raw, err := json.Marshal(service.RegeneratePayload{ModuleID: moduleID})
	require.NoError(t, err)
	return domain.Job{ID: "regen1", Kind: domain.JobKindRegenerate, Payload: raw}
}

func TestRegenHandler_ReplacesSeedsAndActivates(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		name:      "alpha",
		enabled:   true,
		responses: []func(domain.GenerateRequest) (*domain.GenerateResult, error){validResponse(5)},
	}
	fx := newRegenFixture(t, provider, 2)

	result, err := fx.handler.Handle(ctx, regenJob(t, fx.module.ID))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 2, result.Report["lessons"])
	assert.Equal(t, 2, result.Report["ai"])
	assert.Equal(t, 0, result.Report["heuristic"])

	lessons, err := fx.modules.GetLessonsByModule(ctx, fx.module.ID)
	require.NoError(t, err)
	for _, lesson := range lessons {
		questions, err := fx.quizzes.GetQuestionsByQuiz(ctx, lesson.QuizID)
		require.NoError(t, err)
		require.Len(t, questions, 5)
		for _, q := range questions {
			assert.Equal(t, domain.ProvenanceAI+":alpha", q.ProvenanceTag)
		}
	}

	module, err := fx.modules.GetModule(ctx, fx.module.ID)
	require.NoError(t, err)
	assert.True(t, module.IsActive, "module activates once nothing is pending")
	assert.NotEmpty(t, module.FinalQuizID, "final quiz row created")

	final, err := fx.quizzes.GetQuiz(ctx, module.FinalQuizID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuizKindFinal, final.Kind)
	pool, err := fx.quizzes.GetQuestionsByQuiz(ctx, module.FinalQuizID)
	require.NoError(t, err)
	assert.Empty(t, pool, "final quiz owns no persisted questions")
}

func TestRegenHandler_HeuristicFallbackKeepsModuleInactive(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		name:      "alpha",
		enabled:   true,
		responses: []func(domain.GenerateRequest) (*domain.GenerateResult, error){failingResponse()},
	}
	fx := newRegenFixture(t, provider, 1)
	fx.modules.pendingCount = 5

	result, err := fx.handler.Handle(ctx, regenJob(t, fx.module.ID))
	require.NoError(t, err, "provider exhaustion is not a job failure")
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Report["heuristic"])
	assert.Equal(t, 0, result.Report["ai"])

	lessons, err := fx.modules.GetLessonsByModule(ctx, fx.module.ID)
	require.NoError(t, err)
	questions, err := fx.quizzes.GetQuestionsByQuiz(ctx, lessons[0].QuizID)
	require.NoError(t, err)
	require.Len(t, questions, 5)
	for _, q := range questions {
		assert.True(t, q.NeedsRegeneration(), "fallback questions stay tagged for retry")
		assert.Contains(t, q.ProvenanceTag, "regen1", "tag names the job that produced them")
	}

	module, err := fx.modules.GetModule(ctx, fx.module.ID)
	require.NoError(t, err)
	assert.False(t, module.IsActive, "pending questions block activation")
}

func TestRegenHandler_AttemptedQuizGetsReplacementRow(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		name:      "alpha",
		enabled:   true,
		responses: []func(domain.GenerateRequest) (*domain.GenerateResult, error){validResponse(5)},
	}
	fx := newRegenFixture(t, provider, 1)

	lessons, err := fx.modules.GetLessonsByModule(ctx, fx.module.ID)
	require.NoError(t, err)
	oldQuizID := lessons[0].QuizID
	fx.quizzes.attempts[oldQuizID] = 2

	_, err = fx.handler.Handle(ctx, regenJob(t, fx.module.ID))
	require.NoError(t, err)

	lessons, err = fx.modules.GetLessonsByModule(ctx, fx.module.ID)
	require.NoError(t, err)
	newQuizID := lessons[0].QuizID
	assert.NotEqual(t, oldQuizID, newQuizID, "attempted quiz is immutable; lesson repoints")

	oldPool, err := fx.quizzes.GetQuestionsByQuiz(ctx, oldQuizID)
	require.NoError(t, err)
	require.Len(t, oldPool, 1, "historical questions survive")
	assert.Equal(t, "placeholder", oldPool[0].Prompt)

	newPool, err := fx.quizzes.GetQuestionsByQuiz(ctx, newQuizID)
	require.NoError(t, err)
	assert.Len(t, newPool, 5)
}

func TestRegenHandler_CancellationRollsBack(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		name:      "alpha",
		enabled:   true,
		responses: []func(domain.GenerateRequest) (*domain.GenerateResult, error){validResponse(5)},
	}
	fx := newRegenFixture(t, provider, 2)

	require.NoError(t, fx.kv.HSet(ctx, cache.JobMetaKey("regen1"), "cancel_requested", "1"))
	require.NoError(t, fx.kv.Set(ctx, cache.RegenLock(fx.module.ID), "regen1", time.Minute))

	result, err := fx.handler.Handle(ctx, regenJob(t, fx.module.ID))
	require.NoError(t, err)
	assert.True(t, result.Canceled)
	assert.True(t, fx.tx.rolledBack, "canceled run must not commit partial lessons")

	_, err = fx.kv.Get(ctx, cache.RegenLock(fx.module.ID))
	assert.ErrorIs(t, err, domain.ErrCacheMiss, "regeneration lock released")

	module, err := fx.modules.GetModule(ctx, fx.module.ID)
	require.NoError(t, err)
	assert.False(t, module.IsActive)
}

func TestRegenHandler_UnknownModule(t *testing.T) {
	provider := &scriptedProvider{name: "alpha", enabled: true,
		responses: []func(domain.GenerateRequest) (*domain.GenerateResult, error){validResponse(5)}}
	fx := newRegenFixture(t, provider, 1)

	_, err := fx.handler.Handle(context.Background(), regenJob(t, "missing"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrNotFound, domain.CodeOf(err))
}
