package repository

import (
	"context"
	"fmt"

	"corelms/internal/domain"
	"corelms/internal/util"

	"github.com/jmoiron/sqlx"
)

// AttemptDatabaseAdapter implements domain.AttemptRepository using sqlx.
// The relational store is the single source of truth for "what was
// answered"; the session store only covers "what was shown".
type AttemptDatabaseAdapter struct {
	db *sqlx.DB
}

func NewAttemptDatabaseAdapter(db *sqlx.DB) domain.AttemptRepository {
	return &AttemptDatabaseAdapter{db: db}
}

func (a *AttemptDatabaseAdapter) CountUserAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1 AND user_id = $2`
	if err := GetExecutor(ctx, a.db).GetContext(ctx, &count, query, quizID, userID); err != nil {
		return 0, fmt.Errorf("failed to count attempts for quiz %s user %s: %w", quizID, userID, err)
	}
	return count, nil
}

func (a *AttemptDatabaseAdapter) SaveAttempt(ctx context.Context, attempt *domain.QuizAttempt) error {
	if attempt.ID == "" {
		attempt.ID = util.NewULID()
	}
	query := `INSERT INTO quiz_attempts (id, quiz_id, user_id, attempt_no, started_at, finished_at, score, passed, time_spent_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query,
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.AttemptNo,
		attempt.StartedAt, attempt.FinishedAt, attempt.Score, attempt.Passed, attempt.TimeSpentSeconds)
	if err != nil {
		return fmt.Errorf("failed to save attempt for quiz %s: %w", attempt.QuizID, err)
	}
	return nil
}

func (a *AttemptDatabaseAdapter) SaveAnswers(ctx context.Context, answers []*domain.QuizAttemptAnswer) error {
	query := `INSERT INTO quiz_attempt_answers (id, attempt_id, question_id, answer, is_correct)
		VALUES ($1, $2, $3, $4, $5)`
	exec := GetExecutor(ctx, a.db)
	for _, ans := range answers {
		if ans.ID == "" {
			ans.ID = util.NewULID()
		}
		if _, err := exec.ExecContext(ctx, query,
			ans.ID, ans.AttemptID, ans.QuestionID, ans.Answer, ans.IsCorrect); err != nil {
			return fmt.Errorf("failed to save answer for question %s: %w", ans.QuestionID, err)
		}
	}
	return nil
}
