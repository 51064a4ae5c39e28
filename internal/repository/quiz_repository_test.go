package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corelms/internal/domain"
)

var questionTestColumns = []string{"id", "quiz_id", "type", "difficulty", "prompt", "correct_answer", "explanation", "provenance_tag", "variant_group"}

func TestQuizDatabaseAdapter_GetQuestionsByIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuizDatabaseAdapter(db)
	ctx := context.Background()

	t.Run("EmptyInputShortCircuits", func(t *testing.T) {
		questions, err := repo.GetQuestionsByIDs(ctx, nil)
		assert.NoError(t, err)
		assert.Nil(t, questions)
	})

	t.Run("RebindsToDollarPlaceholders", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE id IN ($1, $2)`)).
			WithArgs("q1", "q2").
			WillReturnRows(sqlmock.NewRows(questionTestColumns).
				AddRow("q1", "quiz1", "single", 1, "Prompt one?", "A", "because", "ai:openrouter", nil).
				AddRow("q2", "quiz1", "multi", 1, "Prompt two?", "A,C", nil, "heuristic:job1", "vg1"))

		questions, err := repo.GetQuestionsByIDs(ctx, []string{"q1", "q2"})
		require.NoError(t, err)
		require.Len(t, questions, 2)
		assert.Equal(t, domain.QuestionMulti, questions[1].Type)
		assert.Equal(t, "vg1", questions[1].VariantGroup)
		assert.Empty(t, questions[1].Explanation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQuizDatabaseAdapter_InsertQuestions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuizDatabaseAdapter(db)

	questions := []*domain.Question{
		{QuizID: "quiz1", Type: domain.QuestionSingle, Prompt: "P1?", CorrectAnswer: "A", Explanation: "e", ProvenanceTag: "ai:openrouter"},
		{QuizID: "quiz1", Type: domain.QuestionSingle, Prompt: "P2?", CorrectAnswer: "B", ProvenanceTag: "needs-regeneration:job1"},
	}
	mock.ExpectExec("INSERT INTO questions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO questions").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertQuestions(context.Background(), questions)
	require.NoError(t, err)
	// IDs are assigned during insert.
	assert.NotEmpty(t, questions[0].ID)
	assert.NotEmpty(t, questions[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizDatabaseAdapter_CountQuizAttempts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuizDatabaseAdapter(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1`)).
		WithArgs("quiz1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountQuizAttempts(context.Background(), "quiz1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptDatabaseAdapter_SaveAttempt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptDatabaseAdapter(db)

	mock.ExpectExec("INSERT INTO quiz_attempts").WillReturnResult(sqlmock.NewResult(0, 1))

	attempt := &domain.QuizAttempt{QuizID: "quiz1", UserID: "u1", AttemptNo: 1, Score: 80, Passed: true}
	err := repo.SaveAttempt(context.Background(), attempt)
	require.NoError(t, err)
	assert.NotEmpty(t, attempt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
