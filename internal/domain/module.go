package domain

import (
	"strings"
	"time"
)

// QuizKind distinguishes per-lesson quizzes from a module's final exam.
type QuizKind string

const (
	QuizKindLesson QuizKind = "lesson"
	QuizKindFinal  QuizKind = "final"
)

// QuestionType enumerates the supported question kinds. Unsupported types
// coming out of a provider are rejected, never coerced.
type QuestionType string

const (
	QuestionSingle QuestionType = "single"
	QuestionMulti  QuestionType = "multi"
	QuestionCase   QuestionType = "case"
)

// Provenance prefixes recorded on questions. The tag is the single source of
// truth for "is this module publishable": a module must not be activated
// while any of its active quizzes contain a needs-regeneration question.
const (
	ProvenanceAI         = "ai"
	ProvenanceHeuristic  = "heuristic"
	ProvenanceNeedsRegen = "needs-regeneration"
)

// Module represents a learning module owning ordered lessons and one final quiz.
type Module struct {
	ID          string
	Title       string
	Description string
	Category    string
	Difficulty  int
	IsActive    bool
	FinalQuizID string // empty when the module has no final exam
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Lesson is one teachable unit: theory text plus one owned quiz.
// Position is immutable once assigned and unique within the module.
type Lesson struct {
	ID               string
	ModuleID         string
	Title            string
	Content          string
	ContentObjectKey string
	Position         int
	QuizID           string
	RequiresQuiz     bool
}

// Quiz is a gradable set of questions. A quiz is immutable once it has
// attempts: regeneration creates a new Quiz row and repoints the owning
// lesson/module, preserving historical attempts that reference the old id.
type Quiz struct {
	ID            string
	Kind          QuizKind
	PassThreshold int
	TimeLimit     int // seconds; 0 means no limit
	AttemptsLimit int
	CreatedAt     time.Time
}

// Question is one generated quiz item. The prompt carries the stem and, for
// choice types, four labeled options inline ("A) ..." per line).
type Question struct {
	ID            string
	QuizID        string
	Type          QuestionType
	Difficulty    int
	Prompt        string
	CorrectAnswer string
	Explanation   string
	ProvenanceTag string
	VariantGroup  string
}

// NeedsRegeneration reports whether the question is still pending a
// successful AI regeneration.
func (q *Question) NeedsRegeneration() bool {
	return strings.HasPrefix(q.ProvenanceTag, ProvenanceNeedsRegen+":")
}

// QuizAttempt is one learner attempt at a quiz.
type QuizAttempt struct {
	ID               string
	QuizID           string
	UserID           string
	AttemptNo        int
	StartedAt        time.Time
	FinishedAt       time.Time
	Score            int
	Passed           bool
	TimeSpentSeconds int
}

// QuizAttemptAnswer is the per-question record of an attempt.
type QuizAttemptAnswer struct {
	ID         string
	AttemptID  string
	QuestionID string
	Answer     string
	IsCorrect  bool
}

func (m *Module) Validate() error {
	if m.Title == "" {
		return NewInvalidInputError("module title is required")
	}
	return nil
}

func (l *Lesson) Validate() error {
	if l.ModuleID == "" {
		return NewInvalidInputError("lesson module id is required")
	}
	if l.Title == "" {
		return NewInvalidInputError("lesson title is required")
	}
	if l.Position < 1 {
		return NewInvalidInputError("lesson position must be positive")
	}
	return nil
}
