package handler

import (
	"context"

	"corelms/internal/domain"
	"corelms/internal/dto"
	"corelms/internal/service"

	"github.com/gofiber/fiber/v2"
)

// QuizSessions is the session-protocol surface the handler needs.
type QuizSessions interface {
	Start(ctx context.Context, userID, quizID string) (*service.StartResult, error)
	Submit(ctx context.Context, userID, quizID string, answers map[string]string) (*service.SubmitResult, error)
}

// QuizHandler exposes the quiz session protocol. Identity comes from the
// X-User-ID header; authentication itself is out of scope here and handled
// upstream.
type QuizHandler struct {
	sessions QuizSessions
}

func NewQuizHandler(sessions QuizSessions) *QuizHandler {
	return &QuizHandler{sessions: sessions}
}

func (h *QuizHandler) Register(app *fiber.App) {
	app.Post("/quizzes/:id/start", h.Start)
	app.Post("/quizzes/:id/submit", h.Submit)
}

// Start handles POST /quizzes/:id/start.
func (h *QuizHandler) Start(c *fiber.Ctx) error {
	userID, err := userID(c)
	if err != nil {
		return err
	}

	result, err := h.sessions.Start(c.Context(), userID, c.Params("id"))
	if err != nil {
		return err
	}

	questions := make([]dto.QuestionResponse, len(result.Questions))
	for i, q := range result.Questions {
		questions[i] = dto.QuestionResponse{
			ID:     q.ID,
			Type:   string(q.Type),
			Prompt: q.Prompt,
		}
	}
	return c.JSON(dto.StartQuizResponse{
		QuizID:           result.QuizID,
		Questions:        questions,
		StartedAt:        result.StartedAt.Unix(),
		TimeLimitSeconds: result.TimeLimit,
	})
}

// Submit handles POST /quizzes/:id/submit.
func (h *QuizHandler) Submit(c *fiber.Ctx) error {
	userID, err := userID(c)
	if err != nil {
		return err
	}

	var req dto.SubmitQuizRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.NewInvalidInputError("malformed request body")
	}

	result, err := h.sessions.Submit(c.Context(), userID, c.Params("id"), req.Answers)
	if err != nil {
		return err
	}
	return c.JSON(dto.SubmitQuizResponse{
		AttemptID: result.AttemptID,
		Score:     result.Score,
		Passed:    result.Passed,
		Correct:   result.Correct,
		Total:     result.Total,
	})
}

func userID(c *fiber.Ctx) (string, error) {
	id := c.Get("X-User-ID")
	if id == "" {
		return "", domain.NewInvalidInputError("X-User-ID header is required")
	}
	return id, nil
}
