package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"corelms/internal/domain"
	"corelms/internal/repository/models"
	"corelms/internal/util"

	"github.com/jmoiron/sqlx"
)

const questionColumns = `id, quiz_id, type, difficulty, prompt, correct_answer, explanation, provenance_tag, variant_group`

// QuizDatabaseAdapter implements domain.QuizRepository using sqlx.
type QuizDatabaseAdapter struct {
	db *sqlx.DB
}

func NewQuizDatabaseAdapter(db *sqlx.DB) domain.QuizRepository {
	return &QuizDatabaseAdapter{db: db}
}

func (a *QuizDatabaseAdapter) GetQuiz(ctx context.Context, id string) (*domain.Quiz, error) {
	var q models.Quiz
	query := `SELECT id, kind, pass_threshold, time_limit, attempts_limit, created_at FROM quizzes WHERE id = $1`
	err := GetExecutor(ctx, a.db).GetContext(ctx, &q, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quiz %s: %w", id, err)
	}
	return &domain.Quiz{
		ID:            q.ID,
		Kind:          domain.QuizKind(q.Kind),
		PassThreshold: q.PassThreshold,
		TimeLimit:     q.TimeLimit,
		AttemptsLimit: q.AttemptsLimit,
		CreatedAt:     q.CreatedAt,
	}, nil
}

func (a *QuizDatabaseAdapter) CreateQuiz(ctx context.Context, q *domain.Quiz) error {
	if q.ID == "" {
		q.ID = util.NewULID()
	}
	q.CreatedAt = time.Now()
	query := `INSERT INTO quizzes (id, kind, pass_threshold, time_limit, attempts_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query,
		q.ID, string(q.Kind), q.PassThreshold, q.TimeLimit, q.AttemptsLimit, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

func (a *QuizDatabaseAdapter) GetQuestionsByQuiz(ctx context.Context, quizID string) ([]*domain.Question, error) {
	var rows []models.Question
	query := `SELECT ` + questionColumns + ` FROM questions WHERE quiz_id = $1 ORDER BY id`
	if err := GetExecutor(ctx, a.db).SelectContext(ctx, &rows, query, quizID); err != nil {
		return nil, fmt.Errorf("failed to get questions for quiz %s: %w", quizID, err)
	}
	return toDomainQuestions(rows), nil
}

func (a *QuizDatabaseAdapter) GetQuestionsByIDs(ctx context.Context, ids []string) ([]*domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+questionColumns+` FROM questions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build question query: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var rows []models.Question
	if err := GetExecutor(ctx, a.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}
	return toDomainQuestions(rows), nil
}

func (a *QuizDatabaseAdapter) InsertQuestions(ctx context.Context, questions []*domain.Question) error {
	query := `INSERT INTO questions (id, quiz_id, type, difficulty, prompt, correct_answer, explanation, provenance_tag, variant_group)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	exec := GetExecutor(ctx, a.db)
	for _, q := range questions {
		if q.ID == "" {
			q.ID = util.NewULID()
		}
		_, err := exec.ExecContext(ctx, query,
			q.ID, q.QuizID, string(q.Type), q.Difficulty, q.Prompt, q.CorrectAnswer,
			util.StringToNullString(q.Explanation),
			q.ProvenanceTag,
			util.StringToNullString(q.VariantGroup),
		)
		if err != nil {
			return fmt.Errorf("failed to insert question for quiz %s: %w", q.QuizID, err)
		}
	}
	return nil
}

func (a *QuizDatabaseAdapter) CountQuizAttempts(ctx context.Context, quizID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1`
	if err := GetExecutor(ctx, a.db).GetContext(ctx, &count, query, quizID); err != nil {
		return 0, fmt.Errorf("failed to count attempts for quiz %s: %w", quizID, err)
	}
	return count, nil
}

func (a *QuizDatabaseAdapter) DeleteQuestionsByQuiz(ctx context.Context, quizID string) error {
	query := `DELETE FROM questions WHERE quiz_id = $1`
	if _, err := GetExecutor(ctx, a.db).ExecContext(ctx, query, quizID); err != nil {
		return fmt.Errorf("failed to delete questions for quiz %s: %w", quizID, err)
	}
	return nil
}

func toDomainQuestions(rows []models.Question) []*domain.Question {
	questions := make([]*domain.Question, len(rows))
	for i, r := range rows {
		questions[i] = &domain.Question{
			ID:            r.ID,
			QuizID:        r.QuizID,
			Type:          domain.QuestionType(r.Type),
			Difficulty:    r.Difficulty,
			Prompt:        r.Prompt,
			CorrectAnswer: r.CorrectAnswer,
			Explanation:   r.Explanation.String,
			ProvenanceTag: r.ProvenanceTag,
			VariantGroup:  r.VariantGroup.String,
		}
	}
	return questions
}
