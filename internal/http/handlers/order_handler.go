package handlers

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2"

	"keycrate/internal/domain"
	applog "keycrate/internal/log"
	"keycrate/internal/repos"
	"keycrate/internal/services"
	"keycrate/internal/validate"
)

type OrderHandler struct {
	Orders   *repos.OrderRepo
	Approval *services.ApprovalService
	Fulfill  *services.FulfillmentService
}

// GET /admin/orders?state=
func (h *OrderHandler) List(c *fiber.Ctx) error {
	var (
		orders []domain.Order
		err    error
	)
	if state := c.Query("state"); state != "" {
		orders, err = h.Orders.ListByState(domain.OrderState(state), 100)
	} else {
		orders, err = h.Orders.ListLatest(100)
	}
	if err != nil {
		applog.Error(c, "admin.orders.list.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load orders"})
	}
	return c.JSON(fiber.Map{"orders": orders})
}

// GET /admin/orders/:id
func (h *OrderHandler) Detail(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	o, err := h.Orders.Get(id)
	if err == sql.ErrNoRows {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	}
	if err != nil {
		applog.Error(c, "admin.orders.get.fail", err, map[string]any{"order_id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load order"})
	}
	return c.JSON(o)
}

// POST /admin/orders/:id/approve
func (h *OrderHandler) Approve(c *fiber.Ctx) error {
	return h.decide(c, domain.VerdictApprove, "")
}

// POST /admin/orders/:id/reject
func (h *OrderHandler) Reject(c *fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&body)
	return h.decide(c, domain.VerdictReject, validate.Reason(body.Reason))
}

func (h *OrderHandler) decide(c *fiber.Ctx, verdict domain.Verdict, reason string) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	ownerID, _ := c.Locals("owner_id").(string)

	o, err := h.Approval.Decide(c.Context(), domain.OwnerDecision{
		OrderID: id, OwnerID: ownerID, Verdict: verdict, Reason: reason,
	})

	var superseded *services.SupersededError
	switch {
	case errors.As(err, &superseded):
		// Not an error to hide: the caller learns who decided first.
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":         "superseded",
			"superseded_by": superseded.DecidedBy,
			"decided_state": superseded.State,
			"reason":        superseded.Reason,
		})
	case errors.Is(err, services.ErrOrderNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, services.ErrNotUnderReview):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "order is not under review"})
	case errors.Is(err, services.ErrUnknownOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "unknown owner"})
	case err != nil:
		applog.Error(c, "admin.orders.decide.fail", err, map[string]any{"order_id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not commit decision"})
	}
	return c.JSON(o)
}

// GET /admin/fulfillment/pending
func (h *OrderHandler) PendingFulfillment(c *fiber.Ctx) error {
	orders, err := h.Fulfill.PendingManual()
	if err != nil {
		applog.Error(c, "admin.fulfillment.pending.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load queue"})
	}
	return c.JSON(fiber.Map{"orders": orders})
}

// POST /admin/orders/:id/fulfill retries an exhausted delivery by hand.
func (h *OrderHandler) ManualFulfill(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	o, err := h.Orders.Get(id)
	if err == sql.ErrNoRows {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load order"})
	}
	if o.State != domain.StateApproved {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "order is not awaiting fulfillment"})
	}

	applog.Audit(c, "admin.fulfillment.retry", map[string]any{"order_id": id})
	if err := h.Fulfill.Deliver(c.Context(), id); err != nil {
		applog.Error(c, "admin.fulfillment.retry.fail", err, map[string]any{"order_id": id})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "delivery failed"})
	}
	o, _ = h.Orders.Get(id)
	return c.JSON(o)
}
