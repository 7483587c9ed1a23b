package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keycrate/internal/blob"
	"keycrate/internal/domain"
	applog "keycrate/internal/log"
	"keycrate/internal/metrics"
	"keycrate/internal/repos"
	"keycrate/internal/transport"
)

var (
	ErrUnknownProduct     = errors.New("unknown or inactive product")
	ErrNoOpenOrder        = errors.New("no order awaiting payment evidence")
	ErrAlreadyUnderReview = errors.New("payment already under review")
)

type OrderService struct {
	Orders   *repos.OrderRepo
	Products *repos.ProductRepo
	Owners   *repos.OwnerRepo
	Blobs    blob.Store
	Sender   transport.Sender

	EvidenceTTL time.Duration
}

func NewOrderService(orders *repos.OrderRepo, products *repos.ProductRepo, owners *repos.OwnerRepo, blobs blob.Store, sender transport.Sender, evidenceTTL time.Duration) *OrderService {
	return &OrderService{Orders: orders, Products: products, Owners: owners, Blobs: blobs, Sender: sender, EvidenceTTL: evidenceTTL}
}

// Start creates an order for the buyer, sends payment instructions (with the
// payment code image when one is on file) and moves it to AWAITING_EVIDENCE.
func (s *OrderService) Start(ctx context.Context, buyerID int64, productID string) (domain.Order, error) {
	p, err := s.Products.Get(productID)
	if err == sql.ErrNoRows {
		return domain.Order{}, ErrUnknownProduct
	}
	if err != nil {
		return domain.Order{}, err
	}
	if !p.Active {
		return domain.Order{}, ErrUnknownProduct
	}

	o := domain.Order{
		ID:         uuid.NewString(),
		BuyerID:    buyerID,
		ProductID:  p.ID,
		PaymentRef: uuid.NewString(),
	}
	if err := s.Orders.Create(o); err != nil {
		return domain.Order{}, err
	}
	metrics.OrdersCreatedTotal.Inc()

	msg := transport.Message{Text: fmt.Sprintf(
		"Order %s for %s (%.2f).\nPayment reference: %s\nPay using the code below, then send a screenshot of your payment.",
		o.ID, p.Title, p.Price, o.PaymentRef)}
	if s.Blobs.Exists(blob.PaymentCodeRef) {
		if img, err := s.Blobs.Get(blob.PaymentCodeRef); err == nil {
			msg.Attachment = img
		}
	}
	if _, err := s.Sender.Send(ctx, buyerID, msg); err != nil {
		applog.Error(nil, "order.instructions.send.fail", err, map[string]any{"order_id": o.ID})
	}

	ok, err := s.Orders.CompareAndTransition(o.ID, domain.StateCreated, domain.StateAwaitingEvidence, repos.TransitionMeta{})
	if err != nil {
		return domain.Order{}, err
	}
	if ok {
		metrics.OrderTransitionsTotal.WithLabelValues(string(domain.StateAwaitingEvidence)).Inc()
	}
	return s.Orders.Get(o.ID)
}

// AttachEvidence binds an uploaded payment screenshot to the buyer's most
// recent open order and puts it under review, prompting both owners.
func (s *OrderService) AttachEvidence(ctx context.Context, buyerID int64, evidenceRef string) (domain.Order, error) {
	o, err := s.Orders.LatestOpenForBuyer(buyerID)
	if err == sql.ErrNoRows {
		// Evidence with no open order: either nothing bought yet, or the
		// last upload already moved the order under review.
		if reviewing, err := s.Orders.BuyerHasUnderReview(buyerID); err == nil && reviewing {
			return domain.Order{}, ErrAlreadyUnderReview
		}
		return domain.Order{}, ErrNoOpenOrder
	}
	if err != nil {
		return domain.Order{}, err
	}

	ok, err := s.Orders.CompareAndTransition(o.ID, domain.StateAwaitingEvidence, domain.StateUnderReview,
		repos.TransitionMeta{EvidenceRef: evidenceRef})
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		// Lost a race with the timeout sweep or a duplicate upload.
		return domain.Order{}, ErrNoOpenOrder
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(domain.StateUnderReview)).Inc()

	s.notifyOwners(ctx, o.ID, evidenceRef)
	return s.Orders.Get(o.ID)
}

// notifyOwners sends both administrators an identical review prompt.
func (s *OrderService) notifyOwners(ctx context.Context, orderID, evidenceRef string) {
	owners, err := s.Owners.List()
	if err != nil {
		applog.Error(nil, "order.review.notify.fail", err, map[string]any{"order_id": orderID})
		return
	}
	text := fmt.Sprintf("Payment evidence received.\nOrder: %s\nEvidence: %s\nApprove or reject via the admin API.", orderID, evidenceRef)
	for _, owner := range owners {
		if _, err := s.Sender.Send(ctx, owner.UserID, transport.Message{Text: text}); err != nil {
			applog.Error(nil, "order.review.notify.fail", err, map[string]any{"order_id": orderID, "owner": owner.ID})
		}
	}
}

// CancelStale expires AWAITING_EVIDENCE orders older than the evidence TTL
// and tells the buyer. Returns how many orders were cancelled.
func (s *OrderService) CancelStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.EvidenceTTL).UTC().Format("2006-01-02 15:04:05")
	stale, err := s.Orders.ListStaleAwaitingEvidence(cutoff)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range stale {
		ok, err := s.Orders.CompareAndTransition(o.ID, domain.StateAwaitingEvidence, domain.StateCancelled,
			repos.TransitionMeta{Reason: "payment evidence not received in time"})
		if err != nil {
			return cancelled, err
		}
		if !ok {
			continue // evidence arrived while sweeping
		}
		cancelled++
		metrics.OrderTransitionsTotal.WithLabelValues(string(domain.StateCancelled)).Inc()
		applog.Audit(nil, "order.cancel.timeout", map[string]any{"order_id": o.ID})
		_, _ = s.Sender.Send(ctx, o.BuyerID, transport.Message{
			Text: fmt.Sprintf("Order %s was cancelled: we did not receive your payment screenshot in time.", o.ID),
		})
	}
	return cancelled, nil
}
