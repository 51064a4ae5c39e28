package domain

import "context"

// TransactionManager runs a function inside one relational transaction.
// Repositories resolve the active transaction from the context, so a job can
// commit all of its writes at once and a mid-job failure rolls back the
// whole batch.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ModuleRepository is the relational port for modules and lessons.
type ModuleRepository interface {
	GetModule(ctx context.Context, id string) (*Module, error)
	GetModuleByFinalQuiz(ctx context.Context, quizID string) (*Module, error)
	GetModuleByTitle(ctx context.Context, title string) (*Module, error)
	CreateModule(ctx context.Context, m *Module) error
	SetModuleActive(ctx context.Context, id string, active bool) error
	SetFinalQuiz(ctx context.Context, moduleID, quizID string) error

	GetLessonsByModule(ctx context.Context, moduleID string) ([]*Lesson, error)
	GetLessonByQuiz(ctx context.Context, quizID string) (*Lesson, error)
	CreateLesson(ctx context.Context, l *Lesson) error
	SetLessonQuiz(ctx context.Context, lessonID, quizID string) error

	// CountNeedsRegeneration counts questions still tagged needs-regeneration
	// across the module's active lesson quizzes and final quiz.
	CountNeedsRegeneration(ctx context.Context, moduleID string) (int, error)
}

// QuizRepository is the relational port for quizzes and questions.
type QuizRepository interface {
	GetQuiz(ctx context.Context, id string) (*Quiz, error)
	CreateQuiz(ctx context.Context, q *Quiz) error

	GetQuestionsByQuiz(ctx context.Context, quizID string) ([]*Question, error)
	GetQuestionsByIDs(ctx context.Context, ids []string) ([]*Question, error)
	InsertQuestions(ctx context.Context, questions []*Question) error

	// CountQuizAttempts reports how many attempts exist for the quiz across
	// all users. Quizzes with attempts are immutable; regeneration must
	// create a replacement quiz instead of rewriting questions in place.
	CountQuizAttempts(ctx context.Context, quizID string) (int, error)

	// DeleteQuestionsByQuiz removes a quiz's question pool. Only valid for
	// quizzes without attempts.
	DeleteQuestionsByQuiz(ctx context.Context, quizID string) error
}

// AttemptRepository is the relational port for learner attempts.
type AttemptRepository interface {
	CountUserAttempts(ctx context.Context, quizID, userID string) (int, error)
	SaveAttempt(ctx context.Context, attempt *QuizAttempt) error
	SaveAnswers(ctx context.Context, answers []*QuizAttemptAnswer) error
}
