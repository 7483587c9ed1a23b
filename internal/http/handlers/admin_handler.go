package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"keycrate/internal/domain"
	applog "keycrate/internal/log"
	"keycrate/internal/repos"
	"keycrate/internal/services"
	"keycrate/internal/validate"
)

// AdminHandler covers catalog management, stats and store copy.
type AdminHandler struct {
	Catalog    *services.CatalogService
	Orders     *repos.OrderRepo
	ProductRepo *repos.ProductRepo
	Recipients *repos.RecipientRepo
	Settings   *repos.SettingsRepo
}

// GET /admin/products
func (h *AdminHandler) Products(c *fiber.Ctx) error {
	products, err := h.Catalog.ActiveProducts()
	if err != nil {
		applog.Error(c, "admin.products.list.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load products"})
	}
	return c.JSON(fiber.Map{"products": products})
}

// POST /admin/products
func (h *AdminHandler) AddProduct(c *fiber.Ctx) error {
	var body struct {
		ID          string `json:"id"`
		Category    string `json:"category"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Features    string `json:"features"`
		Price       string `json:"price"`
		ArtifactRef string `json:"artifact_ref"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	id, okID := validate.ID(body.ID)
	category, okCat := validate.Category(body.Category)
	price, okPrice := validate.Price(body.Price)
	if !okID || !okCat || !okPrice || body.Title == "" || body.ArtifactRef == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product"})
	}

	p := domain.Product{
		ID: id, Category: category, Title: body.Title,
		Description: body.Description, Features: body.Features,
		Price: price, ArtifactRef: body.ArtifactRef,
	}
	if err := h.Catalog.Add(p); err != nil {
		applog.Error(c, "admin.products.add.fail", err, map[string]any{"product": id})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "could not add product"})
	}
	applog.Audit(c, "admin.products.add", map[string]any{"product": id})
	return c.Status(fiber.StatusCreated).JSON(p)
}

// DELETE /admin/products/:id, refused once the product has sales.
func (h *AdminHandler) DeleteProduct(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	err := h.Catalog.Remove(id)
	if errors.Is(err, repos.ErrProductSold) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "product has sales; deactivate instead",
		})
	}
	if err != nil {
		applog.Error(c, "admin.products.delete.fail", err, map[string]any{"product": id})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "could not delete product"})
	}
	applog.Audit(c, "admin.products.delete", map[string]any{"product": id})
	return c.JSON(fiber.Map{"ok": true})
}

// POST /admin/products/:id/deactivate
func (h *AdminHandler) DeactivateProduct(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	if err := h.Catalog.Deactivate(id); err != nil {
		applog.Error(c, "admin.products.deactivate.fail", err, map[string]any{"product": id})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "could not deactivate product"})
	}
	applog.Audit(c, "admin.products.deactivate", map[string]any{"product": id})
	return c.JSON(fiber.Map{"ok": true})
}

// GET /admin/stats
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	users, err := h.Recipients.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load stats"})
	}
	products, err := h.ProductRepo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load stats"})
	}
	orders, err := h.Orders.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load stats"})
	}
	return c.JSON(fiber.Map{"users": users, "products": products, "orders": orders})
}

// PUT /admin/settings/welcome
func (h *AdminHandler) SetWelcome(c *fiber.Ctx) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	msg, ok := validate.Payload(body.Message)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message required"})
	}
	if err := h.Settings.Set("welcome_message", msg); err != nil {
		applog.Error(c, "admin.settings.welcome.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not save message"})
	}
	applog.Audit(c, "admin.settings.welcome", nil)
	return c.JSON(fiber.Map{"ok": true})
}
