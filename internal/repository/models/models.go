// Package models holds the sqlx row representations of the relational
// schema. Conversion to and from domain types lives in the repository
// adapters.
package models

import (
	"database/sql"
	"time"
)

type Module struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Category    sql.NullString `db:"category"`
	Difficulty  int            `db:"difficulty"`
	IsActive    bool           `db:"is_active"`
	FinalQuizID sql.NullString `db:"final_quiz_id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type Lesson struct {
	ID               string         `db:"id"`
	ModuleID         string         `db:"module_id"`
	Title            string         `db:"title"`
	Content          string         `db:"content"`
	ContentObjectKey sql.NullString `db:"content_object_key"`
	Position         int            `db:"position"`
	QuizID           sql.NullString `db:"quiz_id"`
	RequiresQuiz     bool           `db:"requires_quiz"`
}

type Quiz struct {
	ID            string    `db:"id"`
	Kind          string    `db:"kind"`
	PassThreshold int       `db:"pass_threshold"`
	TimeLimit     int       `db:"time_limit"`
	AttemptsLimit int       `db:"attempts_limit"`
	CreatedAt     time.Time `db:"created_at"`
}

type Question struct {
	ID            string         `db:"id"`
	QuizID        string         `db:"quiz_id"`
	Type          string         `db:"type"`
	Difficulty    int            `db:"difficulty"`
	Prompt        string         `db:"prompt"`
	CorrectAnswer string         `db:"correct_answer"`
	Explanation   sql.NullString `db:"explanation"`
	ProvenanceTag string         `db:"provenance_tag"`
	VariantGroup  sql.NullString `db:"variant_group"`
}

type QuizAttempt struct {
	ID               string    `db:"id"`
	QuizID           string    `db:"quiz_id"`
	UserID           string    `db:"user_id"`
	AttemptNo        int       `db:"attempt_no"`
	StartedAt        time.Time `db:"started_at"`
	FinishedAt       time.Time `db:"finished_at"`
	Score            int       `db:"score"`
	Passed           bool      `db:"passed"`
	TimeSpentSeconds int       `db:"time_spent_seconds"`
}

type QuizAttemptAnswer struct {
	ID         string `db:"id"`
	AttemptID  string `db:"attempt_id"`
	QuestionID string `db:"question_id"`
	Answer     string `db:"answer"`
	IsCorrect  bool   `db:"is_correct"`
}
