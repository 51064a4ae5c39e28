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

const moduleColumns = `id, title, description, category, difficulty, is_active, final_quiz_id, created_at, updated_at`
const lessonColumns = `id, module_id, title, content, content_object_key, position, quiz_id, requires_quiz`

// ModuleDatabaseAdapter implements domain.ModuleRepository using sqlx.
// Absent rows are reported as (nil, nil); callers decide whether absence is
// an error.
type ModuleDatabaseAdapter struct {
	db *sqlx.DB
}

func NewModuleDatabaseAdapter(db *sqlx.DB) domain.ModuleRepository {
	return &ModuleDatabaseAdapter{db: db}
}

func (a *ModuleDatabaseAdapter) GetModule(ctx context.Context, id string) (*domain.Module, error) {
	var m models.Module
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE id = $1`
	err := GetExecutor(ctx, a.db).GetContext(ctx, &m, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get module %s: %w", id, err)
	}
	return toDomainModule(&m), nil
}

func (a *ModuleDatabaseAdapter) GetModuleByFinalQuiz(ctx context.Context, quizID string) (*domain.Module, error) {
	var m models.Module
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE final_quiz_id = $1`
	err := GetExecutor(ctx, a.db).GetContext(ctx, &m, query, quizID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get module by final quiz %s: %w", quizID, err)
	}
	return toDomainModule(&m), nil
}

func (a *ModuleDatabaseAdapter) GetModuleByTitle(ctx context.Context, title string) (*domain.Module, error) {
	var m models.Module
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE LOWER(title) = LOWER($1)`
	err := GetExecutor(ctx, a.db).GetContext(ctx, &m, query, title)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get module by title: %w", err)
	}
	return toDomainModule(&m), nil
}

func (a *ModuleDatabaseAdapter) CreateModule(ctx context.Context, m *domain.Module) error {
	if m.ID == "" {
		m.ID = util.NewULID()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := `INSERT INTO modules (id, title, description, category, difficulty, is_active, final_quiz_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query,
		m.ID, m.Title,
		util.StringToNullString(m.Description),
		util.StringToNullString(m.Category),
		m.Difficulty, m.IsActive,
		util.StringToNullString(m.FinalQuizID),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create module: %w", err)
	}
	return nil
}

func (a *ModuleDatabaseAdapter) SetModuleActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE modules SET is_active = $1, updated_at = $2 WHERE id = $3`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set module %s active=%t: %w", id, active, err)
	}
	return nil
}

func (a *ModuleDatabaseAdapter) SetFinalQuiz(ctx context.Context, moduleID, quizID string) error {
	query := `UPDATE modules SET final_quiz_id = $1, updated_at = $2 WHERE id = $3`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query, quizID, time.Now(), moduleID)
	if err != nil {
		return fmt.Errorf("failed to set final quiz for module %s: %w", moduleID, err)
	}
	return nil
}

func (a *ModuleDatabaseAdapter) GetLessonsByModule(ctx context.Context, moduleID string) ([]*domain.Lesson, error) {
	var rows []models.Lesson
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE module_id = $1 ORDER BY position`
	if err := GetExecutor(ctx, a.db).SelectContext(ctx, &rows, query, moduleID); err != nil {
		return nil, fmt.Errorf("failed to get lessons for module %s: %w", moduleID, err)
	}
	lessons := make([]*domain.Lesson, len(rows))
	for i := range rows {
		lessons[i] = toDomainLesson(&rows[i])
	}
	return lessons, nil
}

func (a *ModuleDatabaseAdapter) GetLessonByQuiz(ctx context.Context, quizID string) (*domain.Lesson, error) {
	var l models.Lesson
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE quiz_id = $1`
	err := GetExecutor(ctx, a.db).GetContext(ctx, &l, query, quizID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lesson by quiz %s: %w", quizID, err)
	}
	return toDomainLesson(&l), nil
}

func (a *ModuleDatabaseAdapter) CreateLesson(ctx context.Context, l *domain.Lesson) error {
	if l.ID == "" {
		l.ID = util.NewULID()
	}
	query := `INSERT INTO lessons (id, module_id, title, content, content_object_key, position, quiz_id, requires_quiz)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query,
		l.ID, l.ModuleID, l.Title, l.Content,
		util.StringToNullString(l.ContentObjectKey),
		l.Position,
		util.StringToNullString(l.QuizID),
		l.RequiresQuiz,
	)
	if err != nil {
		return fmt.Errorf("failed to create lesson: %w", err)
	}
	return nil
}

func (a *ModuleDatabaseAdapter) SetLessonQuiz(ctx context.Context, lessonID, quizID string) error {
	query := `UPDATE lessons SET quiz_id = $1 WHERE id = $2`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query, quizID, lessonID)
	if err != nil {
		return fmt.Errorf("failed to set quiz for lesson %s: %w", lessonID, err)
	}
	return nil
}

// CountNeedsRegeneration counts questions still tagged needs-regeneration
// across the module's active lesson quizzes and its final quiz. A non-zero
// count blocks module activation.
func (a *ModuleDatabaseAdapter) CountNeedsRegeneration(ctx context.Context, moduleID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM questions q
		WHERE q.provenance_tag LIKE 'needs-regeneration:%'
		AND (
			q.quiz_id IN (SELECT quiz_id FROM lessons WHERE module_id = $1 AND quiz_id IS NOT NULL)
			OR q.quiz_id = (SELECT final_quiz_id FROM modules WHERE id = $1)
		)`
	if err := GetExecutor(ctx, a.db).GetContext(ctx, &count, query, moduleID); err != nil {
		return 0, fmt.Errorf("failed to count needs-regeneration questions for module %s: %w", moduleID, err)
	}
	return count, nil
}

func toDomainModule(m *models.Module) *domain.Module {
	return &domain.Module{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description.String,
		Category:    m.Category.String,
		Difficulty:  m.Difficulty,
		IsActive:    m.IsActive,
		FinalQuizID: m.FinalQuizID.String,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toDomainLesson(l *models.Lesson) *domain.Lesson {
	return &domain.Lesson{
		ID:               l.ID,
		ModuleID:         l.ModuleID,
		Title:            l.Title,
		Content:          l.Content,
		ContentObjectKey: l.ContentObjectKey.String,
		Position:         l.Position,
		QuizID:           l.QuizID.String,
		RequiresQuiz:     l.RequiresQuiz,
	}
}
