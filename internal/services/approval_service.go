package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keycrate/internal/domain"
	applog "keycrate/internal/log"
	"keycrate/internal/metrics"
	"keycrate/internal/repos"
	"keycrate/internal/transport"
)

var (
	ErrUnknownOwner   = errors.New("unknown owner")
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotUnderReview = errors.New("order is not under review")
)

// SupersededError reports a decision that lost the race: another decision
// committed first, and the loser learns who decided and what was decided.
type SupersededError struct {
	OrderID   string
	DecidedBy string
	State     domain.OrderState
	Reason    string
}

func (e *SupersededError) Error() string {
	return fmt.Sprintf("order %s already decided %s by %s", e.OrderID, e.State, e.DecidedBy)
}

// ApprovalService arbitrates concurrent owner decisions on one order. The
// first decision whose UNDER_REVIEW precondition still holds at the ledger
// wins; resolution is by commit order, not wall-clock send time.
type ApprovalService struct {
	Orders  *repos.OrderRepo
	Owners  *repos.OwnerRepo
	Sender  transport.Sender
	Fulfill *FulfillmentService
}

func NewApprovalService(orders *repos.OrderRepo, owners *repos.OwnerRepo, sender transport.Sender, fulfill *FulfillmentService) *ApprovalService {
	return &ApprovalService{Orders: orders, Owners: owners, Sender: sender, Fulfill: fulfill}
}

// Decide applies one owner decision. On commit it triggers fulfillment
// (approve) or notifies the buyer (reject). A losing decision returns
// *SupersededError and is never silently dropped.
func (s *ApprovalService) Decide(ctx context.Context, d domain.OwnerDecision) (domain.Order, error) {
	if _, err := s.Owners.Get(d.OwnerID); err == sql.ErrNoRows {
		return domain.Order{}, ErrUnknownOwner
	} else if err != nil {
		return domain.Order{}, err
	}

	next := domain.StateApproved
	if d.Verdict == domain.VerdictReject {
		next = domain.StateRejected
		if d.Reason == "" {
			d.Reason = "payment could not be verified"
		}
	}

	ok, err := s.Orders.CompareAndTransition(d.OrderID, domain.StateUnderReview, next,
		repos.TransitionMeta{DecidedBy: d.OwnerID, Reason: d.Reason})
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, s.superseded(d)
	}

	metrics.DecisionsCommittedTotal.Inc()
	metrics.OrderTransitionsTotal.WithLabelValues(string(next)).Inc()
	applog.Audit(nil, "order.decision.commit", map[string]any{
		"order_id": d.OrderID, "owner": d.OwnerID, "verdict": string(d.Verdict),
	})

	o, err := s.Orders.Get(d.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	switch next {
	case domain.StateApproved:
		go s.Fulfill.Deliver(context.WithoutCancel(ctx), o.ID)
	case domain.StateRejected:
		_, _ = s.Sender.Send(ctx, o.BuyerID, transport.Message{
			Text: fmt.Sprintf("Order %s was rejected: %s", o.ID, o.Reason),
		})
	}
	return o, nil
}

// superseded builds the report for a decision whose precondition no longer
// held. The current ledger row names the winner; when no decision exists at
// all the order simply was not reviewable.
func (s *ApprovalService) superseded(d domain.OwnerDecision) error {
	o, err := s.Orders.Get(d.OrderID)
	if err == sql.ErrNoRows {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if o.DecidedBy == "" {
		return fmt.Errorf("%w: order %s is %s", ErrNotUnderReview, o.ID, o.State)
	}

	metrics.DecisionsSupersededTotal.Inc()
	applog.Audit(nil, "order.decision.superseded", map[string]any{
		"order_id": d.OrderID, "owner": d.OwnerID, "verdict": string(d.Verdict),
		"decided_by": o.DecidedBy, "state": string(o.State),
	})
	return &SupersededError{OrderID: o.ID, DecidedBy: o.DecidedBy, State: o.State, Reason: o.Reason}
}
