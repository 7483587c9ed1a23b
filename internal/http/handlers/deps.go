package handlers

import (
	"github.com/jmoiron/sqlx"

	"keycrate/internal/blob"
	"keycrate/internal/config"
	"keycrate/internal/repos"
	"keycrate/internal/services"
	"keycrate/internal/transport"
)

type Deps struct {
	OwnerRepo *repos.OwnerRepo

	Webhook   *WebhookHandler
	Product   *ProductHandler
	Order     *OrderHandler
	Broadcast *BroadcastHandler
	Admin     *AdminHandler

	BroadcastSvc *services.BroadcastService
	OrderSvc     *services.OrderService
}

func NewDeps(db *sqlx.DB, cfg config.Config, blobs blob.Store, sender transport.Sender) *Deps {
	orderRepo := repos.NewOrderRepo(db)
	productRepo := repos.NewProductRepo(db)
	recipientRepo := repos.NewRecipientRepo(db)
	broadcastRepo := repos.NewBroadcastRepo(db)
	ownerRepo := repos.NewOwnerRepo(db)
	settingsRepo := repos.NewSettingsRepo(db)

	catalogSvc := services.NewCatalogService(productRepo)
	orderSvc := services.NewOrderService(orderRepo, productRepo, ownerRepo, blobs, sender, cfg.EvidenceTTL)
	fulfillSvc := services.NewFulfillmentService(orderRepo, productRepo, recipientRepo, blobs, sender, cfg.FulfillMaxAttempts, cfg.FulfillBackoff)
	approvalSvc := services.NewApprovalService(orderRepo, ownerRepo, sender, fulfillSvc)
	broadcastSvc := services.NewBroadcastService(broadcastRepo, recipientRepo, sender, cfg.BroadcastWorkers, cfg.BroadcastMaxAttempts, cfg.BroadcastBackoff)

	return &Deps{
		OwnerRepo: ownerRepo,
		Webhook: &WebhookHandler{
			Orders: orderSvc, Catalog: catalogSvc,
			Recipients: recipientRepo, Settings: settingsRepo, Sender: sender,
		},
		Product:   &ProductHandler{Catalog: catalogSvc},
		Order:     &OrderHandler{Orders: orderRepo, Approval: approvalSvc, Fulfill: fulfillSvc},
		Broadcast: &BroadcastHandler{Broadcast: broadcastSvc},
		Admin: &AdminHandler{
			Catalog: catalogSvc, Orders: orderRepo, ProductRepo: productRepo,
			Recipients: recipientRepo, Settings: settingsRepo,
		},
		BroadcastSvc: broadcastSvc,
		OrderSvc:     orderSvc,
	}
}
