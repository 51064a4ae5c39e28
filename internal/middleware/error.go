package middleware

import (
	"errors"
	"net/http"

	"corelms/internal/domain"
	"corelms/internal/dto"
	"corelms/internal/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler is the centralized fiber error handler. Handlers return
// domain errors as-is; the mapping to HTTP lives here only.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		log := logger.Get()

		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			status := statusOf(domainErr.Code)
			if status >= http.StatusInternalServerError {
				log.Error("request failed",
					zap.String("path", c.Path()),
					zap.String("code", string(domainErr.Code)),
					zap.Error(domainErr.Cause))
			} else {
				log.Warn("request rejected",
					zap.String("path", c.Path()),
					zap.String("code", string(domainErr.Code)))
			}
			return c.Status(status).JSON(dto.ErrorResponse{
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Hint:    domainErr.Hint,
				Status:  status,
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(dto.ErrorResponse{
				Code:    "HTTP_ERROR",
				Message: fiberErr.Message,
				Status:  fiberErr.Code,
			})
		}

		log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:    string(domain.ErrInternal),
			Message: "Internal server error",
			Status:  http.StatusInternalServerError,
		})
	}
}

func statusOf(code domain.ErrorCode) int {
	switch code {
	case domain.ErrNotFound, domain.ErrQuizNotFound, domain.ErrSessionNotFound,
		domain.ErrSourceContentMissing:
		return http.StatusNotFound
	case domain.ErrInvalidInput, domain.ErrInvalidID, domain.ErrInvalidAnswer,
		domain.ErrArchiveInvalid:
		return http.StatusBadRequest
	case domain.ErrDuplicateModuleTitle, domain.ErrEnqueueConflict, domain.ErrNoQuestions:
		return http.StatusConflict
	case domain.ErrTimeLimit:
		return http.StatusUnprocessableEntity
	case domain.ErrAttemptsLimit:
		return http.StatusTooManyRequests
	case domain.ErrAIGenerationExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
