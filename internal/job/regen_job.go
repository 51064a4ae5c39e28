package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"corelms/internal/cache"
	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/generation"
	"corelms/internal/logger"
	"corelms/internal/service"

	"go.uber.org/zap"
)

// RegenHandler replaces a module's placeholder questions with AI-generated
// ones, lesson by lesson, falling back to fresh heuristic questions when
// every provider is exhausted. All writes for one run commit in a single
// transaction; the module is activated only when nothing is left tagged
// needs-regeneration.
type RegenHandler struct {
	kv      domain.Cache
	modules domain.ModuleRepository
	quizzes domain.QuizRepository
	tx      domain.TransactionManager

	llmCfg  config.LLMConfig
	quizCfg config.QuizConfig

	// buildProviders is a seam for tests; production wiring injects
	// provider.Build.
	buildProviders func(config.LLMConfig) map[string]domain.QuestionProvider
}

func NewRegenHandler(
	kv domain.Cache,
	modules domain.ModuleRepository,
	quizzes domain.QuizRepository,
	tx domain.TransactionManager,
	llmCfg config.LLMConfig,
	quizCfg config.QuizConfig,
	buildProviders func(config.LLMConfig) map[string]domain.QuestionProvider,
) *RegenHandler {
	return &RegenHandler{
		kv:             kv,
		modules:        modules,
		quizzes:        quizzes,
		tx:             tx,
		llmCfg:         llmCfg,
		quizCfg:        quizCfg,
		buildProviders: buildProviders,
	}
}

// Handle runs the regeneration pipeline for one module.
func (h *RegenHandler) Handle(ctx context.Context, j domain.Job) (domain.JobResult, error) {
	var payload service.RegeneratePayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return domain.JobResult{}, domain.NewInvalidInputError("malformed regeneration payload")
	}

	tracker := NewTracker(h.kv, j.ID)
	tracker.SetStage(ctx, StageStart, payload.ModuleID)

	result, err := h.run(ctx, tracker, payload.ModuleID)
	h.releaseLock(ctx, payload.ModuleID)
	if errors.Is(err, domain.ErrJobCanceled) {
		return domain.JobResult{Canceled: true}, nil
	}
	if err != nil {
		tracker.RecordError(ctx, err)
		return domain.JobResult{}, err
	}
	tracker.SetStage(ctx, StageDone)
	return result, nil
}

func (h *RegenHandler) run(ctx context.Context, tracker *Tracker, moduleID string) (domain.JobResult, error) {
	module, err := h.modules.GetModule(ctx, moduleID)
	if err != nil {
		return domain.JobResult{}, err
	}
	if module == nil {
		return domain.JobResult{}, domain.NewNotFoundError(fmt.Sprintf("module not found: %s", moduleID))
	}
	lessons, err := h.modules.GetLessonsByModule(ctx, moduleID)
	if err != nil {
		return domain.JobResult{}, err
	}

	// Runtime overrides and the preflight order are read once per job, so a
	// run is internally consistent even if an admin flips a provider mid-way.
	snapshot := generation.LoadRuntimeSnapshot(ctx, h.kv, h.llmCfg)
	providers := h.buildProviders(snapshot)
	orchestrator := generation.NewOrchestrator(providers, snapshot)
	preflight := generation.NewPreflight(h.kv, snapshot.OrderCacheTTL)
	order := preflight.ProviderOrder(ctx, providers, generation.ProviderOrderList(snapshot.ProviderOrder))

	tracker.SetStage(ctx, StageGenerate)
	report := map[string]int{"ai": 0, "heuristic": 0, "lessons": 0}

	err = h.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, lesson := range lessons {
			if !lesson.RequiresQuiz {
				continue
			}
			if err := tracker.Checkpoint(txCtx); err != nil {
				return err
			}
			report["lessons"]++

			questions, tag := h.generate(txCtx, tracker, lesson, orchestrator, order, report)
			if err := h.replaceQuiz(txCtx, lesson, questions, tag); err != nil {
				return err
			}
			tracker.Heartbeat(txCtx, "lesson "+lesson.Title)
		}

		if module.FinalQuizID == "" {
			if err := h.createFinalQuiz(txCtx, module); err != nil {
				return err
			}
		}

		pending, err := h.modules.CountNeedsRegeneration(txCtx, moduleID)
		if err != nil {
			return err
		}
		if pending == 0 {
			return h.modules.SetModuleActive(txCtx, moduleID, true)
		}
		logger.Get().Info("module left inactive, questions still pending regeneration",
			zap.String("module_id", moduleID), zap.Int("pending", pending))
		return nil
	})
	if err != nil {
		return domain.JobResult{}, err
	}

	tracker.SetStage(ctx, StageCommit)
	return domain.JobResult{
		OK:       true,
		ModuleID: moduleID,
		Report:   report,
	}, nil
}

// generate produces one lesson's question set and its provenance tag.
// Provider exhaustion is not an error: the lesson gets deterministic
// heuristic questions re-tagged needs-regeneration so a later run retries
// it, and the module stays inactive.
func (h *RegenHandler) generate(
	ctx context.Context,
	tracker *Tracker,
	lesson *domain.Lesson,
	orchestrator *generation.Orchestrator,
	order []string,
	report map[string]int,
) ([]domain.GeneratedQuestion, string) {
	outcome, err := orchestrator.Generate(ctx, lesson.Title, lesson.Content,
		h.quizCfg.TargetQuestions, h.quizCfg.MinQuestions, order)
	if err == nil {
		report["ai"]++
		if outcome.Why != "" {
			tracker.Heartbeat(ctx, outcome.Why)
		}
		return outcome.Questions, domain.ProvenanceAI + ":" + outcome.Provider
	}

	logger.Get().Warn("falling back to heuristic questions",
		zap.String("lesson_id", lesson.ID), zap.Error(err))
	report["heuristic"]++
	heuristic := generation.NewHeuristicGenerator(lesson.ID + ":" + tracker.jobID)
	questions := heuristic.Generate(lesson.Title, lesson.Content, h.quizCfg.TargetQuestions)
	return questions, domain.ProvenanceNeedsRegen + ":" + tracker.jobID
}

// replaceQuiz installs a lesson's new question set. A quiz that already has
// attempts is immutable, so the new set goes into a brand-new quiz row and
// the lesson is repointed; historical attempts keep referencing the old one.
func (h *RegenHandler) replaceQuiz(ctx context.Context, lesson *domain.Lesson, generated []domain.GeneratedQuestion, tag string) error {
	quizID := lesson.QuizID
	reuse := false
	if quizID != "" {
		attempts, err := h.quizzes.CountQuizAttempts(ctx, quizID)
		if err != nil {
			return err
		}
		reuse = attempts == 0
	}

	if !reuse {
		quiz := &domain.Quiz{
			Kind:          domain.QuizKindLesson,
			PassThreshold: h.quizCfg.PassThreshold,
			AttemptsLimit: h.quizCfg.AttemptsLimit,
		}
		if err := h.quizzes.CreateQuiz(ctx, quiz); err != nil {
			return err
		}
		quizID = quiz.ID
	} else if err := h.quizzes.DeleteQuestionsByQuiz(ctx, quizID); err != nil {
		return err
	}

	questions := make([]*domain.Question, 0, len(generated))
	for _, gq := range generated {
		questions = append(questions, &domain.Question{
			QuizID:        quizID,
			Type:          gq.Type,
			Prompt:        gq.Prompt,
			CorrectAnswer: gq.CorrectAnswer,
			Explanation:   gq.Explanation,
			ProvenanceTag: tag,
		})
	}
	if err := h.quizzes.InsertQuestions(ctx, questions); err != nil {
		return err
	}

	if quizID != lesson.QuizID {
		if err := h.modules.SetLessonQuiz(ctx, lesson.ID, quizID); err != nil {
			return err
		}
		lesson.QuizID = quizID
	}
	return nil
}

// createFinalQuiz gives the module its final-exam quiz row. The row carries
// only grading policy; its question set is assembled live at session start.
func (h *RegenHandler) createFinalQuiz(ctx context.Context, module *domain.Module) error {
	quiz := &domain.Quiz{
		Kind:          domain.QuizKindFinal,
		PassThreshold: h.quizCfg.PassThreshold,
		AttemptsLimit: h.quizCfg.AttemptsLimit,
	}
	if err := h.quizzes.CreateQuiz(ctx, quiz); err != nil {
		return err
	}
	if err := h.modules.SetFinalQuiz(ctx, module.ID, quiz.ID); err != nil {
		return err
	}
	module.FinalQuizID = quiz.ID
	return nil
}

func (h *RegenHandler) releaseLock(ctx context.Context, moduleID string) {
	if err := h.kv.Delete(ctx, cache.RegenLock(moduleID)); err != nil {
		logger.Get().Warn("failed to release regeneration lock",
			zap.String("module_id", moduleID), zap.Error(err))
	}
}
