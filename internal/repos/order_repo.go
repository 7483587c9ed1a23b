package repos

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"keycrate/internal/domain"
)

type OrderRepo struct{ db *sqlx.DB }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

// TransitionMeta is written atomically with the state change. Empty fields
// leave the existing column value untouched.
type TransitionMeta struct {
	EvidenceRef string
	DecidedBy   string
	Reason      string
}

// Create inserts a new order in CREATED state.
func (r *OrderRepo) Create(o domain.Order) error {
	_, err := r.db.Exec(`
	  INSERT INTO orders(id, buyer_id, product_id, state, payment_ref, created_at, updated_at)
	  VALUES(?, ?, ?, 'CREATED', ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, o.ID, o.BuyerID, o.ProductID, o.PaymentRef)
	return err
}

func (r *OrderRepo) Get(id string) (domain.Order, error) {
	var o domain.Order
	err := r.db.Get(&o, `
	  SELECT id, buyer_id, product_id, state, payment_ref, evidence_ref, reason,
	         decided_by, decided_at, fulfill_attempts, created_at, COALESCE(updated_at,'') AS updated_at
	  FROM orders WHERE id = ?
	`, id)
	return o, err
}

// CompareAndTransition atomically moves the order from expected to next and
// writes meta in the same statement. Returns false when the order is no
// longer in the expected state; the caller re-reads to learn what won.
func (r *OrderRepo) CompareAndTransition(id string, expected, next domain.OrderState, meta TransitionMeta) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, fmt.Errorf("illegal transition %s -> %s", expected, next)
	}
	res, err := r.db.Exec(`
	  UPDATE orders SET
	    state = ?,
	    evidence_ref = CASE WHEN ? != '' THEN ? ELSE evidence_ref END,
	    decided_by   = CASE WHEN ? != '' THEN ? ELSE decided_by END,
	    decided_at   = CASE WHEN ? != '' THEN CURRENT_TIMESTAMP ELSE decided_at END,
	    reason       = CASE WHEN ? != '' THEN ? ELSE reason END,
	    updated_at   = CURRENT_TIMESTAMP
	  WHERE id = ? AND state = ?
	`, next,
		meta.EvidenceRef, meta.EvidenceRef,
		meta.DecidedBy, meta.DecidedBy,
		meta.DecidedBy,
		meta.Reason, meta.Reason,
		id, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementFulfillAttempts bumps the retry counter while the order stays
// APPROVED; returns the new count.
func (r *OrderRepo) IncrementFulfillAttempts(id string) (int, error) {
	if _, err := r.db.Exec(`
	  UPDATE orders SET fulfill_attempts = fulfill_attempts + 1, updated_at = CURRENT_TIMESTAMP
	  WHERE id = ? AND state = 'APPROVED'
	`, id); err != nil {
		return 0, err
	}
	var n int
	err := r.db.Get(&n, `SELECT fulfill_attempts FROM orders WHERE id = ?`, id)
	return n, err
}

// MarkFulfillExhausted raises the attempt counter to at least floor so the
// order lands in the manual fulfillment queue immediately.
func (r *OrderRepo) MarkFulfillExhausted(id string, floor int) error {
	_, err := r.db.Exec(`
	  UPDATE orders SET fulfill_attempts = MAX(fulfill_attempts, ?), updated_at = CURRENT_TIMESTAMP
	  WHERE id = ? AND state = 'APPROVED'
	`, floor, id)
	return err
}

func (r *OrderRepo) ListByState(state domain.OrderState, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Order
	err := r.db.Select(&out, `
	  SELECT id, buyer_id, product_id, state, payment_ref, evidence_ref, reason,
	         decided_by, decided_at, fulfill_attempts, created_at, COALESCE(updated_at,'') AS updated_at
	  FROM orders WHERE state = ?
	  ORDER BY datetime(created_at) DESC
	  LIMIT ?
	`, state, limit)
	return out, err
}

func (r *OrderRepo) ListLatest(limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Order
	err := r.db.Select(&out, `
	  SELECT id, buyer_id, product_id, state, payment_ref, evidence_ref, reason,
	         decided_by, decided_at, fulfill_attempts, created_at, COALESCE(updated_at,'') AS updated_at
	  FROM orders
	  ORDER BY datetime(created_at) DESC
	  LIMIT ?
	`, limit)
	return out, err
}

// LatestOpenForBuyer returns the buyer's most recent AWAITING_EVIDENCE order,
// the one an uploaded payment screenshot belongs to.
func (r *OrderRepo) LatestOpenForBuyer(buyerID int64) (domain.Order, error) {
	var o domain.Order
	err := r.db.Get(&o, `
	  SELECT id, buyer_id, product_id, state, payment_ref, evidence_ref, reason,
	         decided_by, decided_at, fulfill_attempts, created_at, COALESCE(updated_at,'') AS updated_at
	  FROM orders
	  WHERE buyer_id = ? AND state = 'AWAITING_EVIDENCE'
	  ORDER BY datetime(created_at) DESC
	  LIMIT 1
	`, buyerID)
	return o, err
}

// BuyerHasUnderReview reports whether the buyer has any order currently
// awaiting an owner decision.
func (r *OrderRepo) BuyerHasUnderReview(buyerID int64) (bool, error) {
	var exists bool
	err := r.db.Get(&exists, `
	  SELECT EXISTS(SELECT 1 FROM orders WHERE buyer_id = ? AND state = 'UNDER_REVIEW')
	`, buyerID)
	return exists, err
}

// ListStaleAwaitingEvidence returns orders past the evidence deadline; the
// sweep cancels them one compare-and-transition at a time.
func (r *OrderRepo) ListStaleAwaitingEvidence(cutoff string) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.Select(&out, `
	  SELECT id, buyer_id, product_id, state, payment_ref, evidence_ref, reason,
	         decided_by, decided_at, fulfill_attempts, created_at, COALESCE(updated_at,'') AS updated_at
	  FROM orders
	  WHERE state = 'AWAITING_EVIDENCE' AND datetime(created_at) <= datetime(?)
	`, cutoff)
	return out, err
}

// ListAwaitingManualFulfillment returns APPROVED orders whose automatic
// delivery has exhausted its attempt budget.
func (r *OrderRepo) ListAwaitingManualFulfillment(maxAttempts int) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.Select(&out, `
	  SELECT id, buyer_id, product_id, state, payment_ref, evidence_ref, reason,
	         decided_by, decided_at, fulfill_attempts, created_at, COALESCE(updated_at,'') AS updated_at
	  FROM orders
	  WHERE state = 'APPROVED' AND fulfill_attempts >= ?
	  ORDER BY datetime(created_at) ASC
	`, maxAttempts)
	return out, err
}

// CountSalesForProduct reports how many orders reference a product; a
// nonzero count freezes the product's artifact reference.
func (r *OrderRepo) CountSalesForProduct(productID string) (int, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM orders WHERE product_id = ?`, productID)
	return n, err
}

func (r *OrderRepo) Count() (int, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM orders`)
	return n, err
}
