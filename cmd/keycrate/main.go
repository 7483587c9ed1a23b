package main

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keycrate/internal/blob"
	"keycrate/internal/config"
	"keycrate/internal/http/handlers"
	applog "keycrate/internal/log"
	"keycrate/internal/metrics"
	"keycrate/internal/repos"
	"keycrate/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			log.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	if err := repos.SeedOwners(db, cfg.Owners); err != nil {
		log.Fatal(err)
	}

	blobs, err := blob.NewFileStore(cfg.BlobDir)
	if err != nil {
		log.Fatal(err)
	}
	sender := transport.NewHTTPSender(cfg.TransportURL)

	metrics.Register()
	deps := handlers.NewDeps(db, cfg, blobs, sender)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Error(c, "server.error", err, nil)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		},
	})
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())

	// ---------- Transport webhook ----------
	app.Post("/webhook/transport", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}), deps.Webhook.Receive)

	// ---------- Public catalog ----------
	app.Get("/products", deps.Product.List)
	app.Get("/products/:id", deps.Product.Detail)

	// ---------- Admin ----------
	admin := app.Group("/admin", handlers.RequireOwner(deps.OwnerRepo))
	admin.Get("/orders", deps.Order.List)
	admin.Get("/orders/:id", deps.Order.Detail)
	admin.Post("/orders/:id/approve", deps.Order.Approve)
	admin.Post("/orders/:id/reject", deps.Order.Reject)
	admin.Post("/orders/:id/fulfill", deps.Order.ManualFulfill)
	admin.Get("/fulfillment/pending", deps.Order.PendingFulfillment)
	admin.Post("/broadcasts", deps.Broadcast.Start)
	admin.Get("/broadcasts/:id", deps.Broadcast.Status)
	admin.Post("/broadcasts/:id/cancel", deps.Broadcast.Cancel)
	admin.Get("/products", deps.Admin.Products)
	admin.Post("/products", deps.Admin.AddProduct)
	admin.Delete("/products/:id", deps.Admin.DeleteProduct)
	admin.Post("/products/:id/deactivate", deps.Admin.DeactivateProduct)
	admin.Get("/stats", deps.Admin.Stats)
	admin.Put("/settings/welcome", deps.Admin.SetWelcome)

	// ---------- Health & metrics ----------
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ---------- Background loops ----------
	ctx := context.Background()
	if err := deps.BroadcastSvc.Resume(ctx); err != nil {
		applog.Error(nil, "broadcast.resume.fail", err, nil)
	}
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := deps.OrderSvc.CancelStale(ctx, time.Now()); err != nil {
				applog.Error(nil, "order.sweep.fail", err, nil)
			} else if n > 0 {
				applog.Info(nil, "order.sweep", map[string]any{"cancelled": n})
			}
		}
	}()

	log.Fatal(app.Listen(":" + cfg.Port))
}
