package job

import (
	"context"
	"strings"
	"sync"
	"time"

	"corelms/internal/domain"
)

// memCache is an in-memory domain.Cache used across the job tests.
type memCache struct {
	mu     sync.Mutex
	values map[string]string
	hashes map[string]map[string]string
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

func (c *memCache) Incr(_ context.Context, key string) (int64, error) {
	return 0, nil
}

func (c *memCache) Ping(context.Context) error { return nil }

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

// fakeModules is an in-memory domain.ModuleRepository.
type fakeModules struct {
	mu      sync.Mutex
	modules map[string]*domain.Module
	lessons map[string]*domain.Lesson
	nextID  int

	// pendingCount is returned by CountNeedsRegeneration when >= 0.
	pendingCount int
}

func newFakeModules() *fakeModules {
	return &fakeModules{
		modules: make(map[string]*domain.Module),
		lessons: make(map[string]*domain.Lesson),
	}
}

func (r *fakeModules) id(prefix string) string {
	r.nextID++
	return prefix + "-" + itoa(r.nextID)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (r *fakeModules) GetModule(_ context.Context, id string) (*domain.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modules[id], nil
}

func (r *fakeModules) GetModuleByFinalQuiz(_ context.Context, quizID string) (*domain.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.modules {
		if m.FinalQuizID == quizID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeModules) GetModuleByTitle(_ context.Context, title string) (*domain.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.modules {
		if strings.EqualFold(m.Title, title) {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeModules) CreateModule(_ context.Context, m *domain.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.id("mod")
	r.modules[m.ID] = m
	return nil
}

func (r *fakeModules) SetModuleActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[id]; ok {
		m.IsActive = active
	}
	return nil
}

func (r *fakeModules) SetFinalQuiz(_ context.Context, moduleID, quizID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[moduleID]; ok {
		m.FinalQuizID = quizID
	}
	return nil
}

func (r *fakeModules) GetLessonsByModule(_ context.Context, moduleID string) ([]*domain.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Lesson
	for _, l := range r.lessons {
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

func (r *fakeModules) GetLessonByQuiz(_ context.Context, quizID string) (*domain.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lessons {
		if l.QuizID == quizID {
			return l, nil
		}
	}
	return nil, nil
}

func (r *fakeModules) CreateLesson(_ context.Context, l *domain.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = r.id("les")
	r.lessons[l.ID] = l
	return nil
}

func (r *fakeModules) SetLessonQuiz(_ context.Context, lessonID, quizID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.lessons[lessonID]; ok {
		l.QuizID = quizID
	}
	return nil
}

func (r *fakeModules) CountNeedsRegeneration(_ context.Context, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingCount, nil
}

// fakeQuizzes is an in-memory domain.QuizRepository.
type fakeQuizzes struct {
	mu        sync.Mutex
	quizzes   map[string]*domain.Quiz
	questions map[string][]*domain.Question
	attempts  map[string]int
	nextID    int
}

func newFakeQuizzes() *fakeQuizzes {
	return &fakeQuizzes{
		quizzes:   make(map[string]*domain.Quiz),
		questions: make(map[string][]*domain.Question),
		attempts:  make(map[string]int),
	}
}

func (r *fakeQuizzes) GetQuiz(_ context.Context, id string) (*domain.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quizzes[id], nil
}

func (r *fakeQuizzes) CreateQuiz(_ context.Context, q *domain.Quiz) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	q.ID = "quiz-" + itoa(r.nextID)
	r.quizzes[q.ID] = q
	return nil
}

func (r *fakeQuizzes) GetQuestionsByQuiz(_ context.Context, quizID string) ([]*domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Question(nil), r.questions[quizID]...), nil
}

func (r *fakeQuizzes) GetQuestionsByIDs(_ context.Context, ids []string) ([]*domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*domain.Question
	for _, pool := range r.questions {
		for _, q := range pool {
			if want[q.ID] {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func (r *fakeQuizzes) InsertQuestions(_ context.Context, questions []*domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range questions {
		r.nextID++
		if q.ID == "" {
			q.ID = "qst-" + itoa(r.nextID)
		}
		r.questions[q.QuizID] = append(r.questions[q.QuizID], q)
	}
	return nil
}

func (r *fakeQuizzes) CountQuizAttempts(_ context.Context, quizID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[quizID], nil
}

func (r *fakeQuizzes) DeleteQuestionsByQuiz(_ context.Context, quizID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.questions, quizID)
	return nil
}

// passTx runs the function without a real transaction and records whether
// the batch rolled back.
type passTx struct {
	rolledBack bool
}

func (t *passTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		t.rolledBack = true
		return err
	}
	return nil
}

// fakeQueue records enqueued jobs.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []struct {
		Kind    string
		Payload any
	}
}

func (q *fakeQueue) Enqueue(_ context.Context, kind string, payload any, _ domain.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, struct {
		Kind    string
		Payload any
	}{kind, payload})
	return "chained-job", nil
}

func (q *fakeQueue) Fetch(context.Context, string) (*domain.JobInfo, error) {
	return nil, domain.NewNotFoundError("not implemented")
}

func (q *fakeQueue) RequestCancel(context.Context, string) error { return nil }

// fakeStorage serves fixed object bytes.
type fakeStorage struct {
	objects map[string][]byte
}

func (s *fakeStorage) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.NewError(domain.ErrSourceContentMissing, "object not found: "+key, nil)
	}
	return data, nil
}

func (s *fakeStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	s.objects[key] = data
	return nil
}

func (s *fakeStorage) Stat(_ context.Context, key string) (*domain.ObjectInfo, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.NewError(domain.ErrSourceContentMissing, "object not found: "+key, nil)
	}
	return &domain.ObjectInfo{Key: key, ETag: "etag-" + key, Size: int64(len(data))}, nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

// scriptedProvider implements domain.QuestionProvider with canned responses.
type scriptedProvider struct {
	name      string
	enabled   bool
	responses []func(domain.GenerateRequest) (*domain.GenerateResult, error)
	calls     int
}

func (p *scriptedProvider) Name() string                { return p.name }
func (p *scriptedProvider) Enabled() bool               { return p.enabled }
func (p *scriptedProvider) MinCallTime() time.Duration  { return 0 }
func (p *scriptedProvider) ReadTimeout() time.Duration  { return 50 * time.Millisecond }
func (p *scriptedProvider) Healthcheck(context.Context) (bool, string) {
	return p.enabled, ""
}

func (p *scriptedProvider) Generate(_ context.Context, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return p.responses[idx](req)
}
