package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "keycrate/internal/log"
	"keycrate/internal/services"
	"keycrate/internal/validate"
)

type BroadcastHandler struct {
	Broadcast *services.BroadcastService
}

// POST /admin/broadcasts
func (h *BroadcastHandler) Start(c *fiber.Ctx) error {
	var body struct {
		Payload string `json:"payload"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	payload, ok := validate.Payload(body.Payload)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payload required (max 4000 chars)"})
	}
	ownerID, _ := c.Locals("owner_id").(string)

	jobID, err := h.Broadcast.Start(c.Context(), ownerID, payload)
	if errors.Is(err, services.ErrNoRecipients) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no reachable recipients"})
	}
	if err != nil {
		applog.Error(c, "admin.broadcast.start.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not start broadcast"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID})
}

// GET /admin/broadcasts/:id
func (h *BroadcastHandler) Status(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid job id"})
	}
	sum, err := h.Broadcast.Summary(id)
	if errors.Is(err, services.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	if err != nil {
		applog.Error(c, "admin.broadcast.status.fail", err, map[string]any{"job_id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load job"})
	}
	return c.JSON(sum)
}

// POST /admin/broadcasts/:id/cancel
func (h *BroadcastHandler) Cancel(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid job id"})
	}
	err := h.Broadcast.Cancel(id)
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	case errors.Is(err, services.ErrJobFinished):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "job already finished"})
	case err != nil:
		applog.Error(c, "admin.broadcast.cancel.fail", err, map[string]any{"job_id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not cancel job"})
	}
	applog.Audit(c, "admin.broadcast.cancel", map[string]any{"job_id": id})
	return c.JSON(fiber.Map{"ok": true})
}
