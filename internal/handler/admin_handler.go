package handler

import (
	"context"

	"corelms/internal/domain"
	"corelms/internal/dto"

	"github.com/gofiber/fiber/v2"
)

// AdminOperations is the pipeline-control surface the handler needs.
type AdminOperations interface {
	EnqueueImport(ctx context.Context, objectKey, title string) (string, error)
	EnqueueRegenerate(ctx context.Context, moduleID string) (string, error)
	GetJob(ctx context.Context, jobID string) (*domain.JobInfo, error)
	CancelJob(ctx context.Context, jobID string) error
}

// AdminHandler exposes the background pipeline controls.
type AdminHandler struct {
	admin AdminOperations
}

func NewAdminHandler(admin AdminOperations) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) Register(app *fiber.App) {
	admin := app.Group("/admin")
	admin.Post("/modules/enqueue-import", h.EnqueueImport)
	admin.Post("/modules/:id/regenerate", h.EnqueueRegenerate)
	admin.Get("/jobs/:id", h.GetJob)
	admin.Post("/jobs/:id/cancel", h.CancelJob)
}

// EnqueueImport handles POST /admin/modules/enqueue-import.
func (h *AdminHandler) EnqueueImport(c *fiber.Ctx) error {
	var req dto.EnqueueImportRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.NewInvalidInputError("malformed request body")
	}

	jobID, err := h.admin.EnqueueImport(c.Context(), req.ObjectKey, req.Title)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.EnqueueResponse{JobID: jobID})
}

// EnqueueRegenerate handles POST /admin/modules/:id/regenerate.
func (h *AdminHandler) EnqueueRegenerate(c *fiber.Ctx) error {
	jobID, err := h.admin.EnqueueRegenerate(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.EnqueueResponse{JobID: jobID})
}

// GetJob handles GET /admin/jobs/:id.
func (h *AdminHandler) GetJob(c *fiber.Ctx) error {
	info, err := h.admin.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.JobResponse{
		ID:     info.ID,
		Kind:   info.Kind,
		Status: string(info.Status),
		Meta:   info.Meta,
		Result: info.Result,
	})
}

// CancelJob handles POST /admin/jobs/:id/cancel.
func (h *AdminHandler) CancelJob(c *fiber.Ctx) error {
	if err := h.admin.CancelJob(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}
