package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"corelms/internal/domain"
)

// memCache is an in-memory domain.Cache for the service tests.
type memCache struct {
	mu     sync.Mutex
	values map[string]string
	hashes map[string]map[string]string

	failSetNX error
}

func newMemCache() *memCache {
	return &memCache{
		values: make(map[string]string),
		hashes: make(map[string]map[string]string),
	}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if c.failSetNX != nil {
		return false, c.failSetNX
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = value
	return true, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.hashes, key)
	return nil
}

func (c *memCache) Incr(context.Context, string) (int64, error) { return 0, nil }
func (c *memCache) Ping(context.Context) error                  { return nil }

func (c *memCache) HGet(_ context.Context, key, field string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	v, ok := h[field]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.hashes[key]))
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *memCache) HSet(_ context.Context, key string, pairs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		h[pairs[i]] = pairs[i+1]
	}
	return nil
}

func (c *memCache) Expire(context.Context, string, time.Duration) error { return nil }

// memStore is an in-memory stand-in for the relational ports used by the
// session and final-exam tests.
type memStore struct {
	mu        sync.Mutex
	modules   map[string]*domain.Module
	lessons   map[string]*domain.Lesson
	quizzes   map[string]*domain.Quiz
	questions map[string][]*domain.Question
	attempts  []*domain.QuizAttempt
	answers   []*domain.QuizAttemptAnswer
	counts    map[string]int // "quizID/userID" -> attempts
	nextID    int
}

func newMemStore() *memStore {
	return &memStore{
		modules:   make(map[string]*domain.Module),
		lessons:   make(map[string]*domain.Lesson),
		quizzes:   make(map[string]*domain.Quiz),
		questions: make(map[string][]*domain.Question),
		counts:    make(map[string]int),
	}
}

func (s *memStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// ModuleRepository

func (s *memStore) GetModule(_ context.Context, id string) (*domain.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modules[id], nil
}

func (s *memStore) GetModuleByFinalQuiz(_ context.Context, quizID string) (*domain.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.modules {
		if m.FinalQuizID == quizID {
			return m, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetModuleByTitle(_ context.Context, title string) (*domain.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.modules {
		if strings.EqualFold(m.Title, title) {
			return m, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateModule(_ context.Context, m *domain.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id("mod")
	s.modules[m.ID] = m
	return nil
}

func (s *memStore) SetModuleActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modules[id]; ok {
		m.IsActive = active
	}
	return nil
}

func (s *memStore) SetFinalQuiz(_ context.Context, moduleID, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modules[moduleID]; ok {
		m.FinalQuizID = quizID
	}
	return nil
}

func (s *memStore) GetLessonsByModule(_ context.Context, moduleID string) ([]*domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Lesson
	for _, l := range s.lessons {
		if l.ModuleID == moduleID {
			out = append(out, l)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Position < out[i].Position {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memStore) GetLessonByQuiz(_ context.Context, quizID string) (*domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lessons {
		if l.QuizID == quizID {
			return l, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateLesson(_ context.Context, l *domain.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id("les")
	s.lessons[l.ID] = l
	return nil
}

func (s *memStore) SetLessonQuiz(_ context.Context, lessonID, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lessons[lessonID]; ok {
		l.QuizID = quizID
	}
	return nil
}

func (s *memStore) CountNeedsRegeneration(context.Context, string) (int, error) { return 0, nil }

// QuizRepository

func (s *memStore) GetQuiz(_ context.Context, id string) (*domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quizzes[id], nil
}

func (s *memStore) CreateQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		q.ID = s.id("quiz")
	}
	s.quizzes[q.ID] = q
	return nil
}

func (s *memStore) GetQuestionsByQuiz(_ context.Context, quizID string) ([]*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Question(nil), s.questions[quizID]...), nil
}

func (s *memStore) GetQuestionsByIDs(_ context.Context, ids []string) ([]*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*domain.Question
	for _, pool := range s.questions {
		for _, q := range pool {
			if want[q.ID] {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func (s *memStore) InsertQuestions(_ context.Context, questions []*domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		if q.ID == "" {
			q.ID = s.id("qst")
		}
		s.questions[q.QuizID] = append(s.questions[q.QuizID], q)
	}
	return nil
}

func (s *memStore) CountQuizAttempts(_ context.Context, quizID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteQuestionsByQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, quizID)
	return nil
}

// AttemptRepository

func (s *memStore) CountUserAttempts(_ context.Context, quizID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[quizID+"/"+userID], nil
}

func (s *memStore) SaveAttempt(_ context.Context, attempt *domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = s.id("att")
	}
	s.attempts = append(s.attempts, attempt)
	s.counts[attempt.QuizID+"/"+attempt.UserID]++
	return nil
}

func (s *memStore) SaveAnswers(_ context.Context, answers []*domain.QuizAttemptAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answers...)
	return nil
}

// passTx runs the function without a transaction.
type passTx struct{}

func (passTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// addQuiz seeds a quiz with count single-choice questions answered "B".
func (s *memStore) addQuiz(kind domain.QuizKind, count int) *domain.Quiz {
	quiz := &domain.Quiz{
		ID:            s.id("quiz"),
		Kind:          kind,
		PassThreshold: 70,
		AttemptsLimit: 3,
	}
	s.quizzes[quiz.ID] = quiz
	for i := 0; i < count; i++ {
		q := &domain.Question{
			ID:     s.id("qst"),
			QuizID: quiz.ID,
			Type:   domain.QuestionSingle,
			Prompt: fmt.Sprintf("Question %d about the lesson material?\n"+
				"A) first option\nB) second option\nC) third option\nD) fourth option", i+1),
			CorrectAnswer: "B",
			Explanation:   "The second option is the accurate statement.",
			ProvenanceTag: "ai:test",
		}
		s.questions[quiz.ID] = append(s.questions[quiz.ID], q)
	}
	return quiz
}
