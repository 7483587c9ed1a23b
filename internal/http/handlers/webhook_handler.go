package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	applog "keycrate/internal/log"
	"keycrate/internal/metrics"
	"keycrate/internal/repos"
	"keycrate/internal/services"
	"keycrate/internal/transport"
	"keycrate/internal/validate"
)

// WebhookHandler is the inbound side of the transport: every buyer update
// lands here. Replies go back out through the Sender; the webhook response
// itself only acknowledges receipt so order processing never blocks the
// front-end.
type WebhookHandler struct {
	Orders     *services.OrderService
	Catalog    *services.CatalogService
	Recipients *repos.RecipientRepo
	Settings   *repos.SettingsRepo
	Sender     transport.Sender
}

func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	start := time.Now()
	defer func() { metrics.WebhookDuration.Observe(time.Since(start).Seconds()) }()

	var u transport.Update
	if err := c.BodyParser(&u); err != nil || u.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed update"})
	}

	if err := h.Recipients.Upsert(u.UserID, u.Username, u.FirstName); err != nil {
		applog.Error(c, "webhook.recipient.upsert.fail", err, map[string]any{"user": u.UserID})
	}

	if u.AttachmentRef != "" {
		h.handleEvidence(c, u)
	} else {
		h.handleText(c, u)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *WebhookHandler) handleEvidence(c *fiber.Ctx, u transport.Update) {
	o, err := h.Orders.AttachEvidence(c.Context(), u.UserID, u.AttachmentRef)
	switch {
	case errors.Is(err, services.ErrNoOpenOrder):
		h.reply(c, u.UserID, "We received an image but you have no order awaiting payment. Send \"catalog\" to browse.")
	case errors.Is(err, services.ErrAlreadyUnderReview):
		h.reply(c, u.UserID, "Your payment is already under review. You'll be notified once it is verified.")
	case err != nil:
		applog.Error(c, "webhook.evidence.fail", err, map[string]any{"user": u.UserID})
		h.reply(c, u.UserID, "Something went wrong processing your screenshot. Please try again.")
	default:
		applog.Info(c, "webhook.evidence.attached", map[string]any{"order_id": o.ID})
		h.reply(c, u.UserID, fmt.Sprintf("Payment screenshot received for order %s. It will be verified within 24 hours.", o.ID))
	}
}

func (h *WebhookHandler) handleText(c *fiber.Ctx, u transport.Update) {
	payload := strings.TrimSpace(u.Payload)
	fields := strings.Fields(payload)
	cmd := ""
	if len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}

	switch {
	case cmd == "catalog" && len(fields) == 1:
		h.sendCategories(c, u.UserID)
	case cmd == "catalog":
		category, ok := validate.Category(strings.Join(fields[1:], " "))
		if !ok {
			h.reply(c, u.UserID, "That category name doesn't look right.")
			return
		}
		h.sendProducts(c, u.UserID, category)
	case cmd == "buy" && len(fields) == 2:
		h.handleBuy(c, u, fields[1])
	default:
		welcome, err := h.Settings.Get("welcome_message", "Welcome! Send \"catalog\" to browse.")
		if err != nil {
			applog.Error(c, "webhook.welcome.fail", err, nil)
			welcome = "Welcome! Send \"catalog\" to browse."
		}
		h.reply(c, u.UserID, welcome)
	}
}

func (h *WebhookHandler) handleBuy(c *fiber.Ctx, u transport.Update, rawID string) {
	productID, ok := validate.ID(rawID)
	if !ok {
		h.reply(c, u.UserID, "That product id doesn't look right. Send \"catalog\" to browse.")
		return
	}
	o, err := h.Orders.Start(c.Context(), u.UserID, productID)
	if errors.Is(err, services.ErrUnknownProduct) {
		h.reply(c, u.UserID, "That product isn't available. Send \"catalog\" to browse.")
		return
	}
	if err != nil {
		applog.Error(c, "webhook.buy.fail", err, map[string]any{"user": u.UserID, "product": productID})
		h.reply(c, u.UserID, "Could not start your order. Please try again.")
		return
	}
	applog.Info(c, "webhook.order.started", map[string]any{"order_id": o.ID, "product": productID})
}

func (h *WebhookHandler) sendCategories(c *fiber.Ctx, userID int64) {
	cats, err := h.Catalog.Categories()
	if err != nil || len(cats) == 0 {
		h.reply(c, userID, "No products available right now. Please check back later.")
		return
	}
	var b strings.Builder
	b.WriteString("Categories:\n")
	for _, cat := range cats {
		fmt.Fprintf(&b, "- %s\n", cat)
	}
	b.WriteString("Send \"catalog <category>\" to see products.")
	h.reply(c, userID, b.String())
}

func (h *WebhookHandler) sendProducts(c *fiber.Ctx, userID int64, category string) {
	products, err := h.Catalog.ProductsByCategory(category)
	if err != nil || len(products) == 0 {
		h.reply(c, userID, fmt.Sprintf("No products found in %s.", category))
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", category)
	for _, p := range products {
		fmt.Fprintf(&b, "- %s (%.2f): %s\n  buy %s\n", p.Title, p.Price, p.Features, p.ID)
	}
	h.reply(c, userID, b.String())
}

func (h *WebhookHandler) reply(c *fiber.Ctx, userID int64, text string) {
	if _, err := h.Sender.Send(c.Context(), userID, transport.Message{Text: text}); err != nil {
		applog.Error(c, "webhook.reply.fail", err, map[string]any{"user": userID})
	}
}
