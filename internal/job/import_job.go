package job

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/generation"
	"corelms/internal/logger"
	"corelms/internal/service"

	"go.uber.org/zap"
)

// lessonFile is one extracted lesson source, ordered by archive file name.
type lessonFile struct {
	Name    string
	Title   string
	Content string
}

// ImportHandler turns an uploaded archive of lesson texts into a full
// inactive module: lessons, quizzes and heuristic placeholder questions, all
// committed in one transaction, then chains a regeneration job.
type ImportHandler struct {
	kv      domain.Cache
	storage domain.ObjectStorage
	modules domain.ModuleRepository
	quizzes domain.QuizRepository
	tx      domain.TransactionManager
	queue   domain.Queue
	dedup   *service.EnqueueDeduplicator

	quizCfg   config.QuizConfig
	workerCfg config.WorkerConfig
}

func NewImportHandler(
	kv domain.Cache,
	storage domain.ObjectStorage,
	modules domain.ModuleRepository,
	quizzes domain.QuizRepository,
	tx domain.TransactionManager,
	queue domain.Queue,
	dedup *service.EnqueueDeduplicator,
	quizCfg config.QuizConfig,
	workerCfg config.WorkerConfig,
) *ImportHandler {
	return &ImportHandler{
		kv:        kv,
		storage:   storage,
		modules:   modules,
		quizzes:   quizzes,
		tx:        tx,
		queue:     queue,
		dedup:     dedup,
		quizCfg:   quizCfg,
		workerCfg: workerCfg,
	}
}

// Handle runs the import pipeline. Cancellation checkpoints sit between
// stages and between lessons; a canceled job rolls the transaction back,
// releases the enqueue locks and reports a canceled result instead of an
// error.
func (h *ImportHandler) Handle(ctx context.Context, j domain.Job) (domain.JobResult, error) {
	var payload service.ImportPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return domain.JobResult{}, domain.NewInvalidInputError("malformed import payload")
	}

	tracker := NewTracker(h.kv, j.ID)
	tracker.SetStage(ctx, StageStart)

	result, err := h.run(ctx, tracker, payload)
	if errors.Is(err, domain.ErrJobCanceled) {
		h.releaseLocks(ctx, payload)
		return domain.JobResult{Canceled: true}, nil
	}
	if err != nil {
		tracker.RecordError(ctx, err)
		return domain.JobResult{}, err
	}
	tracker.SetStage(ctx, StageDone)
	return result, nil
}

func (h *ImportHandler) run(ctx context.Context, tracker *Tracker, payload service.ImportPayload) (domain.JobResult, error) {
	if err := tracker.Checkpoint(ctx); err != nil {
		return domain.JobResult{}, err
	}

	tracker.SetStage(ctx, StageDownload, payload.ObjectKey)
	archive, err := h.storage.Get(ctx, payload.ObjectKey)
	if err != nil {
		return domain.JobResult{}, err
	}

	if err := tracker.Checkpoint(ctx); err != nil {
		return domain.JobResult{}, err
	}

	tracker.SetStage(ctx, StageExtract)
	lessons, err := extractLessons(archive)
	if err != nil {
		return domain.JobResult{}, err
	}

	if err := tracker.Checkpoint(ctx); err != nil {
		return domain.JobResult{}, err
	}

	tracker.SetStage(ctx, StageImport, fmt.Sprintf("%d lessons", len(lessons)))
	module := &domain.Module{
		Title:    payload.Title,
		IsActive: false,
	}
	err = h.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		// Re-check inside the transaction; the pre-enqueue check raced with
		// other imports.
		existing, err := h.modules.GetModuleByTitle(txCtx, payload.Title)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.NewError(domain.ErrDuplicateModuleTitle,
				fmt.Sprintf("a module titled %q already exists", payload.Title), nil)
		}
		if err := h.modules.CreateModule(txCtx, module); err != nil {
			return err
		}

		for i, lf := range lessons {
			if err := tracker.Checkpoint(txCtx); err != nil {
				return err
			}
			if err := h.importLesson(txCtx, tracker, module, lf, i+1); err != nil {
				return err
			}
			tracker.Heartbeat(txCtx, fmt.Sprintf("lesson %d/%d", i+1, len(lessons)))
		}
		return nil
	})
	if err != nil {
		return domain.JobResult{}, err
	}

	tracker.SetStage(ctx, StageCommit)

	// Placeholder questions went in tagged needs-regeneration; chain the job
	// that replaces them with AI output.
	tracker.SetStage(ctx, StageRegenEnqueue)
	regenID, err := h.queue.Enqueue(ctx, domain.JobKindRegenerate, service.RegeneratePayload{
		ModuleID: module.ID,
	}, domain.EnqueueOptions{
		Timeout:   h.workerCfg.JobTimeout,
		ResultTTL: h.workerCfg.ResultTTL,
	})
	if err != nil {
		// The module exists and is importable again via regenerate; surface
		// the failure but keep the committed content.
		logger.Get().Error("failed to chain regeneration job",
			zap.String("module_id", module.ID), zap.Error(err))
		return domain.JobResult{}, domain.NewError(domain.ErrQueueOrUploadFailed,
			"module imported but regeneration could not be enqueued", err).
			WithHint("Trigger regeneration manually for module " + module.ID + ".")
	}
	logger.Get().Info("module imported",
		zap.String("module_id", module.ID),
		zap.Int("lessons", len(lessons)),
		zap.String("regen_job_id", regenID))

	return domain.JobResult{
		OK:       true,
		ModuleID: module.ID,
		Report:   map[string]int{"lessons": len(lessons)},
	}, nil
}

// importLesson creates one lesson with its quiz and heuristic seed
// questions. The seed questions carry a needs-regeneration tag naming the
// import job, so publishability checks and the chained regeneration job can
// find them.
func (h *ImportHandler) importLesson(ctx context.Context, tracker *Tracker, module *domain.Module, lf lessonFile, position int) error {
	quiz := &domain.Quiz{
		Kind:          domain.QuizKindLesson,
		PassThreshold: h.quizCfg.PassThreshold,
		AttemptsLimit: h.quizCfg.AttemptsLimit,
	}
	if err := h.quizzes.CreateQuiz(ctx, quiz); err != nil {
		return err
	}

	// Theory text also lands in object storage; the key is recorded so the
	// content can be re-served or re-imported without the original archive.
	contentKey := fmt.Sprintf("modules/%s/lessons/%02d.md", module.ID, position)
	if err := h.storage.Put(ctx, contentKey, []byte(lf.Content), "text/markdown"); err != nil {
		return err
	}

	lesson := &domain.Lesson{
		ModuleID:         module.ID,
		Title:            lf.Title,
		Content:          lf.Content,
		ContentObjectKey: contentKey,
		Position:         position,
		QuizID:           quiz.ID,
		RequiresQuiz:     true,
	}
	if err := h.modules.CreateLesson(ctx, lesson); err != nil {
		return err
	}

	heuristic := generation.NewHeuristicGenerator(lesson.ID)
	generated := heuristic.Generate(lf.Title, lf.Content, h.quizCfg.TargetQuestions)
	questions := make([]*domain.Question, 0, len(generated))
	for _, gq := range generated {
		questions = append(questions, &domain.Question{
			QuizID:        quiz.ID,
			Type:          gq.Type,
			Prompt:        gq.Prompt,
			CorrectAnswer: gq.CorrectAnswer,
			Explanation:   gq.Explanation,
			ProvenanceTag: domain.ProvenanceNeedsRegen + ":" + tracker.jobID,
		})
	}
	return h.quizzes.InsertQuestions(ctx, questions)
}

// extractLessons reads the archive's text files as lessons, ordered by file
// name. Only .txt and .md entries count; anything else is ignored. An
// archive yielding no lessons is invalid.
func extractLessons(data []byte) ([]lessonFile, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.NewError(domain.ErrArchiveInvalid, "uploaded content is not a readable zip archive", err)
	}

	var lessons []lessonFile
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		ext := strings.ToLower(path.Ext(base))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		if strings.HasPrefix(base, ".") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, domain.NewError(domain.ErrArchiveInvalid, "failed to open archive entry "+f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, domain.NewError(domain.ErrArchiveInvalid, "failed to read archive entry "+f.Name, err)
		}
		text := strings.TrimSpace(string(content))
		if text == "" {
			continue
		}
		lessons = append(lessons, lessonFile{
			Name:    f.Name,
			Title:   lessonTitle(base),
			Content: text,
		})
	}
	if len(lessons) == 0 {
		return nil, domain.NewError(domain.ErrArchiveInvalid, "archive contains no lesson text files", nil).
			WithHint("Pack one .txt or .md file per lesson; file name order defines lesson order.")
	}

	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Name < lessons[j].Name })
	return lessons, nil
}

// lessonTitle derives a human title from a file name: strip the extension
// and any numeric order prefix, then replace separators with spaces.
func lessonTitle(base string) string {
	name := strings.TrimSuffix(base, path.Ext(base))
	name = strings.TrimLeft(name, "0123456789")
	name = strings.TrimLeft(name, "-_. ")
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return base
	}
	return name
}

func (h *ImportHandler) releaseLocks(ctx context.Context, payload service.ImportPayload) {
	keys := h.dedup.ImportLockKeys(payload.Fingerprint, payload.Title, payload.ObjectKey)
	h.dedup.Release(ctx, keys)
}
