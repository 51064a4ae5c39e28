package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"corelms/internal/cache"
	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/generation"
	"corelms/internal/logger"

	"go.uber.org/zap"
)

// sessionValue is the wire shape stored per (learner, quiz). Once written,
// the question id list is immutable for the session's lifetime so repeated
// start calls see identical ordering.
type sessionValue struct {
	QuestionIDs []string `json:"question_ids"`
	StartedAt   int64    `json:"started_at"`
}

// StartResult is what a learner gets back from starting a quiz.
type StartResult struct {
	QuizID    string
	Questions []*domain.Question
	StartedAt time.Time
	TimeLimit int // seconds, 0 means none
}

// SubmitResult is the graded outcome of a submit.
type SubmitResult struct {
	AttemptID string
	Score     int
	Passed    bool
	Correct   int
	Total     int
}

// QuizSessionService implements the ephemeral start/submit protocol. The
// session store is the single source of truth for "what was shown"; the
// relational store is the single source of truth for "what was answered".
type QuizSessionService struct {
	kv        domain.Cache
	quizzes   domain.QuizRepository
	modules   domain.ModuleRepository
	attempts  domain.AttemptRepository
	tx        domain.TransactionManager
	assembler *FinalExamAssembler
	cfg       config.QuizConfig

	now    func() time.Time
	newRng func() *rand.Rand
}

func NewQuizSessionService(
	kv domain.Cache,
	quizzes domain.QuizRepository,
	modules domain.ModuleRepository,
	attempts domain.AttemptRepository,
	tx domain.TransactionManager,
	assembler *FinalExamAssembler,
	cfg config.QuizConfig,
) *QuizSessionService {
	return &QuizSessionService{
		kv:        kv,
		quizzes:   quizzes,
		modules:   modules,
		attempts:  attempts,
		tx:        tx,
		assembler: assembler,
		cfg:       cfg,
		now:       time.Now,
		newRng: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// Start opens (or re-opens) a quiz session. For non-final quizzes an
// existing session is returned verbatim, so retries never re-roll questions
// or restart the timer. A final exam always reassembles.
func (s *QuizSessionService) Start(ctx context.Context, userID, quizID string) (*StartResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, domain.NewQuizNotFoundError(quizID)
	}
	if err := s.checkAttemptsLimit(ctx, quiz, userID); err != nil {
		return nil, err
	}

	key := cache.QuizSessionKey(userID, quizID)
	if quiz.Kind != domain.QuizKindFinal {
		if existing, err := s.readSession(ctx, key); err == nil {
			return s.rehydrate(ctx, quiz, existing)
		}
	}

	questions, err := s.selectQuestions(ctx, quiz)
	if err != nil {
		return nil, err
	}

	value := sessionValue{
		QuestionIDs: make([]string, len(questions)),
		StartedAt:   s.now().Unix(),
	}
	for i, q := range questions {
		value.QuestionIDs[i] = q.ID
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, domain.NewInternalError("failed to encode quiz session", err)
	}

	ttl := s.sessionTTL(quiz)
	if quiz.Kind == domain.QuizKindFinal {
		// Final exams reassemble on every start; overwrite any prior session.
		if err := s.kv.Set(ctx, key, string(raw), ttl); err != nil {
			return nil, domain.NewInternalError("failed to store quiz session", err)
		}
	} else {
		// A concurrent start may have written first; the stored session wins
		// so both callers observe the same question order.
		created, err := s.kv.SetNX(ctx, key, string(raw), ttl)
		if err != nil {
			return nil, domain.NewInternalError("failed to store quiz session", err)
		}
		if !created {
			if existing, readErr := s.readSession(ctx, key); readErr == nil {
				return s.rehydrate(ctx, quiz, existing)
			}
			// The stored value is unreadable; replace it so this session
			// is the one future reads see.
			if err := s.kv.Set(ctx, key, string(raw), ttl); err != nil {
				return nil, domain.NewInternalError("failed to store quiz session", err)
			}
		}
	}

	return &StartResult{
		QuizID:    quizID,
		Questions: questions,
		StartedAt: time.Unix(value.StartedAt, 0),
		TimeLimit: quiz.TimeLimit,
	}, nil
}

// Submit grades a quiz against the session's question list. A lost session
// falls back to the learner-supplied question ids, accepted only when every
// one of them belongs to the quiz, so a store restart cannot be abused for
// cross-quiz answer injection.
func (s *QuizSessionService) Submit(ctx context.Context, userID, quizID string, answers map[string]string) (*SubmitResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, domain.NewQuizNotFoundError(quizID)
	}

	key := cache.QuizSessionKey(userID, quizID)
	var questions []*domain.Question
	startedAt := s.now()

	session, sessErr := s.readSession(ctx, key)
	switch {
	case sessErr == nil:
		startedAt = time.Unix(session.StartedAt, 0)
		questions, err = s.questionsInOrder(ctx, session.QuestionIDs)
		if err != nil {
			return nil, err
		}
	case errors.Is(sessErr, domain.ErrCacheMiss):
		questions, err = s.fallbackQuestions(ctx, quiz, answers)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domain.NewInternalError("failed to read quiz session", sessErr)
	}
	if len(questions) == 0 {
		return nil, domain.NewError(domain.ErrSessionNotFound, "no active session and nothing to grade", nil)
	}

	now := s.now()
	elapsed := now.Sub(startedAt)
	if quiz.TimeLimit > 0 && elapsed > time.Duration(quiz.TimeLimit)*time.Second {
		return nil, domain.NewError(domain.ErrTimeLimit, "quiz time limit exceeded", nil)
	}

	correct := 0
	answerRows := make([]*domain.QuizAttemptAnswer, 0, len(questions))
	for _, q := range questions {
		given := answers[q.ID]
		isCorrect := answerMatches(q, given)
		if isCorrect {
			correct++
		}
		answerRows = append(answerRows, &domain.QuizAttemptAnswer{
			QuestionID: q.ID,
			Answer:     given,
			IsCorrect:  isCorrect,
		})
	}
	score := int(math.Round(100 * float64(correct) / float64(len(questions))))

	attemptNo, err := s.attempts.CountUserAttempts(ctx, quizID, userID)
	if err != nil {
		return nil, err
	}
	attempt := &domain.QuizAttempt{
		QuizID:           quizID,
		UserID:           userID,
		AttemptNo:        attemptNo + 1,
		StartedAt:        startedAt,
		FinishedAt:       now,
		Score:            score,
		Passed:           score >= quiz.PassThreshold,
		TimeSpentSeconds: int(elapsed.Seconds()),
	}

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.attempts.SaveAttempt(txCtx, attempt); err != nil {
			return err
		}
		for _, row := range answerRows {
			row.AttemptID = attempt.ID
		}
		return s.attempts.SaveAnswers(txCtx, answerRows)
	})
	if err != nil {
		return nil, err
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		logger.Get().Warn("failed to delete quiz session", zap.String("key", key), zap.Error(err))
	}

	return &SubmitResult{
		AttemptID: attempt.ID,
		Score:     score,
		Passed:    attempt.Passed,
		Correct:   correct,
		Total:     len(questions),
	}, nil
}

func (s *QuizSessionService) checkAttemptsLimit(ctx context.Context, quiz *domain.Quiz, userID string) error {
	if quiz.AttemptsLimit <= 0 {
		return nil
	}
	used, err := s.attempts.CountUserAttempts(ctx, quiz.ID, userID)
	if err != nil {
		return err
	}
	if used >= quiz.AttemptsLimit {
		return domain.NewError(domain.ErrAttemptsLimit, "attempts limit reached for this quiz", nil)
	}
	return nil
}

func (s *QuizSessionService) readSession(ctx context.Context, key string) (*sessionValue, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var value sessionValue
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, domain.ErrCacheMiss
	}
	if len(value.QuestionIDs) == 0 {
		return nil, domain.ErrCacheMiss
	}
	return &value, nil
}

func (s *QuizSessionService) rehydrate(ctx context.Context, quiz *domain.Quiz, session *sessionValue) (*StartResult, error) {
	questions, err := s.questionsInOrder(ctx, session.QuestionIDs)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		QuizID:    quiz.ID,
		Questions: questions,
		StartedAt: time.Unix(session.StartedAt, 0),
		TimeLimit: quiz.TimeLimit,
	}, nil
}

// questionsInOrder rehydrates question bodies preserving the session's
// ordering.
func (s *QuizSessionService) questionsInOrder(ctx context.Context, ids []string) ([]*domain.Question, error) {
	fetched, err := s.quizzes.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Question, len(fetched))
	for _, q := range fetched {
		byID[q.ID] = q
	}
	ordered := make([]*domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

// selectQuestions picks the question set shown in a new session: the
// assembled exam for finals; for lesson quizzes one random variant per
// variant group plus every ungrouped question, shuffled.
func (s *QuizSessionService) selectQuestions(ctx context.Context, quiz *domain.Quiz) ([]*domain.Question, error) {
	if quiz.Kind == domain.QuizKindFinal {
		return s.assembler.Assemble(ctx, quiz.ID)
	}

	pool, err := s.quizzes.GetQuestionsByQuiz(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, domain.NewError(domain.ErrNoQuestions, "quiz has no questions", nil)
	}

	rng := s.newRng()
	var selected []*domain.Question
	variants := make(map[string][]*domain.Question)
	for _, q := range pool {
		if q.VariantGroup == "" {
			selected = append(selected, q)
			continue
		}
		variants[q.VariantGroup] = append(variants[q.VariantGroup], q)
	}
	for _, group := range variants {
		selected = append(selected, group[rng.Intn(len(group))])
	}
	rng.Shuffle(len(selected), func(i, j int) { selected[i], selected[j] = selected[j], selected[i] })
	return selected, nil
}

// fallbackQuestions covers session loss at submit time. For a final quiz
// the supplied ids must all belong to the module's lesson quizzes; for a
// lesson quiz, to the quiz itself.
func (s *QuizSessionService) fallbackQuestions(ctx context.Context, quiz *domain.Quiz, answers map[string]string) ([]*domain.Question, error) {
	if len(answers) == 0 {
		return nil, domain.NewError(domain.ErrSessionNotFound, "quiz session expired or missing", nil)
	}
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	fetched, err := s.quizzes.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(ids) {
		return nil, domain.NewError(domain.ErrInvalidAnswer, "submitted question ids do not belong to this quiz", nil)
	}

	allowed := map[string]bool{quiz.ID: true}
	if quiz.Kind == domain.QuizKindFinal {
		module, err := s.modules.GetModuleByFinalQuiz(ctx, quiz.ID)
		if err != nil {
			return nil, err
		}
		if module == nil {
			return nil, domain.NewNotFoundError("no module owns this final quiz")
		}
		lessons, err := s.modules.GetLessonsByModule(ctx, module.ID)
		if err != nil {
			return nil, err
		}
		for _, lesson := range lessons {
			if lesson.QuizID != "" {
				allowed[lesson.QuizID] = true
			}
		}
	}
	for _, q := range fetched {
		if !allowed[q.QuizID] {
			return nil, domain.NewError(domain.ErrInvalidAnswer, "submitted question ids do not belong to this quiz", nil)
		}
	}
	return fetched, nil
}

func (s *QuizSessionService) sessionTTL(quiz *domain.Quiz) time.Duration {
	if quiz.TimeLimit > 0 {
		return time.Duration(quiz.TimeLimit) * time.Second
	}
	return s.cfg.SessionTTL
}

// answerMatches grades one answer with the same tolerant letter extraction
// the validator uses. Multi-choice compares letter sets; open-case answers
// compare as normalized text.
func answerMatches(q *domain.Question, given string) bool {
	if strings.TrimSpace(given) == "" {
		return false
	}
	switch q.Type {
	case domain.QuestionMulti:
		want := generation.AnswerLetters(q.CorrectAnswer)
		got := generation.AnswerLetters(given)
		if len(want) == 0 || len(want) != len(got) {
			return false
		}
		for i := range want {
			if want[i] != got[i] {
				return false
			}
		}
		return true
	case domain.QuestionSingle:
		want := generation.AnswerLetters(q.CorrectAnswer)
		got := generation.AnswerLetters(given)
		return len(want) == 1 && len(got) == 1 && want[0] == got[0]
	default:
		return strings.EqualFold(normalizeText(q.CorrectAnswer), normalizeText(given))
	}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
