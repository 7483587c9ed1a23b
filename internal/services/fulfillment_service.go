package services

import (
	"context"
	"fmt"
	"time"

	"keycrate/internal/blob"
	"keycrate/internal/domain"
	applog "keycrate/internal/log"
	"keycrate/internal/metrics"
	"keycrate/internal/repos"
	"keycrate/internal/transport"
)

// FulfillmentService hands the purchased artifact to the buyer once an order
// is approved. A paid, approved order is never dropped: if every retry fails
// it stays APPROVED and shows up in the manual fulfillment queue.
type FulfillmentService struct {
	Orders     *repos.OrderRepo
	Products   *repos.ProductRepo
	Recipients *repos.RecipientRepo
	Blobs      blob.Store
	Sender     transport.Sender

	MaxAttempts int
	Backoff     time.Duration
}

func NewFulfillmentService(orders *repos.OrderRepo, products *repos.ProductRepo, recipients *repos.RecipientRepo, blobs blob.Store, sender transport.Sender, maxAttempts int, backoff time.Duration) *FulfillmentService {
	return &FulfillmentService{
		Orders: orders, Products: products, Recipients: recipients,
		Blobs: blobs, Sender: sender,
		MaxAttempts: maxAttempts, Backoff: backoff,
	}
}

// Deliver fetches the artifact and sends it, retrying transient transport
// failures with backoff up to MaxAttempts. On success the order transitions
// APPROVED -> FULFILLED.
func (s *FulfillmentService) Deliver(ctx context.Context, orderID string) error {
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		o, err := s.Orders.Get(orderID)
		if err != nil {
			return err
		}
		if o.State != domain.StateApproved {
			return nil // decided otherwise, or already fulfilled
		}

		outcome, err := s.sendArtifact(ctx, o)
		if err != nil {
			applog.Error(nil, "fulfill.send.fail", err, map[string]any{"order_id": orderID, "attempt": attempt})
		}

		switch outcome {
		case transport.Delivered:
			ok, err := s.Orders.CompareAndTransition(orderID, domain.StateApproved, domain.StateFulfilled, repos.TransitionMeta{})
			if err != nil {
				return err
			}
			if ok {
				metrics.FulfillmentDeliveriesTotal.Inc()
				metrics.OrderTransitionsTotal.WithLabelValues(string(domain.StateFulfilled)).Inc()
				applog.Audit(nil, "fulfill.delivered", map[string]any{"order_id": orderID, "attempts": attempt})
			}
			return nil

		case transport.Blocked:
			// Buyer unreachable. The order stays APPROVED for manual
			// handling; the recipient is excluded from future broadcasts.
			_ = s.Recipients.MarkBlocked(o.BuyerID)
			if err := s.Orders.MarkFulfillExhausted(orderID, s.MaxAttempts); err != nil {
				return err
			}
			applog.Security(nil, "fulfill.buyer.blocked", map[string]any{"order_id": orderID, "buyer": o.BuyerID})
			return nil

		default: // transient
			metrics.FulfillmentRetriesTotal.Inc()
			if _, err := s.Orders.IncrementFulfillAttempts(orderID); err != nil {
				return err
			}
			if attempt < s.MaxAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.Backoff * time.Duration(attempt)):
				}
			}
		}
	}

	applog.Error(nil, "fulfill.exhausted", nil, map[string]any{"order_id": orderID, "max_attempts": s.MaxAttempts})
	return nil
}

func (s *FulfillmentService) sendArtifact(ctx context.Context, o domain.Order) (transport.Outcome, error) {
	p, err := s.Products.Get(o.ProductID)
	if err != nil {
		return transport.TransientError, err
	}
	artifact, err := s.Blobs.Get(p.ArtifactRef)
	if err != nil {
		return transport.TransientError, err
	}
	return s.Sender.Send(ctx, o.BuyerID, transport.Message{
		Text:       fmt.Sprintf("Payment verified. Here is your %s, thanks for the purchase!", p.Title),
		Attachment: artifact,
	})
}

// PendingManual lists approved orders whose automatic delivery exhausted its
// attempt budget; an owner retries these by hand.
func (s *FulfillmentService) PendingManual() ([]domain.Order, error) {
	return s.Orders.ListAwaitingManualFulfillment(s.MaxAttempts)
}
